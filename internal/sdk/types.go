// Package sdk describes the device SDK the bridge drives: the asynchronous
// Device contract, the typed results it delivers and the pure helper
// functions that travel with it.
package sdk

import "fmt"

const (
	ChannelIDSize     = 16
	EncryptionKeySize = 32
)

// State is the link state reported by a device driver.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// DisconnectReason is attached to every disconnect notification.
type DisconnectReason uint8

const (
	ReasonClosed DisconnectReason = iota
	ReasonNoRoute
	ReasonFailed
	ReasonUnexpectedError
	ReasonUnexpectedResponse
	ReasonWriteError
	ReasonReadError
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonClosed:
		return "closed"
	case ReasonNoRoute:
		return "no_route"
	case ReasonFailed:
		return "failed"
	case ReasonUnexpectedError:
		return "unexpected_error"
	case ReasonUnexpectedResponse:
		return "unexpected_response"
	case ReasonWriteError:
		return "write_error"
	case ReasonReadError:
		return "read_error"
	}
	return fmt.Sprintf("reason(%d)", uint8(r))
}

// ResponseCode is the status delivered with every request callback.
type ResponseCode uint16

const (
	RspSuccess      ResponseCode = 0x0000
	RspSuccessMore  ResponseCode = 0x0100
	RspInvalidReq   ResponseCode = 0x0001
	RspInvalidParam ResponseCode = 0x0002
	RspError        ResponseCode = 0x0003
	RspLockedUser   ResponseCode = 0x0004
	RspLockedMaster ResponseCode = 0x0005
	RspCannotUnlock ResponseCode = 0x0006
	RspNotFound     ResponseCode = 0x0007
	RspTimeout      ResponseCode = 0x0008
	RspInvalid      ResponseCode = 0x0009
	RspCancelled    ResponseCode = 0x000A
)

// OK reports whether the code is RspSuccess.
func (c ResponseCode) OK() bool { return c == RspSuccess }

// PowerStatus is the state of the device's switched output.
type PowerStatus uint8

const (
	PowerOff PowerStatus = iota
	PowerOn
	PowerLVD
	PowerOCD
	PowerHVD
	PowerFGD
	PowerNCH
	PowerLTD
	PowerHTD
)

// Hardware families, held in the upper nibble of a hardware revision.
const (
	FamilyMask      uint8 = 0xF0
	FamilyPowermonE uint8 = 0x10
	FamilyPowermon  uint8 = 0x20
	FamilyPowermon5 uint8 = 0x30
	FamilyPowermonW uint8 = 0x40
)

// AccessKey addresses a remote WiFi device through the relay.
type AccessKey struct {
	ChannelID     [ChannelIDSize]byte
	EncryptionKey [EncryptionKeySize]byte
}

// IsZero reports whether no byte of the key is set.
func (k AccessKey) IsZero() bool {
	return k == AccessKey{}
}

// DeviceIdentifier is what an access URL decodes to.
type DeviceIdentifier struct {
	Name             string
	Serial           uint64
	HardwareRevision uint8
	AccessKey        AccessKey
}

// Device information flag bits.
const (
	InfoUserPasswordSet   uint8 = 1 << 0
	InfoMasterPasswordSet uint8 = 1 << 1
	InfoUserLocked        uint8 = 1 << 2
	InfoMasterLocked      uint8 = 1 << 3
	InfoWifiConnecting    uint8 = 1 << 4
	InfoWifiConnected     uint8 = 1 << 5
	InfoWifiFailed        uint8 = 1 << 6
)

type DeviceInfo struct {
	Name             string
	FirmwareVersion  uint16 // BCD, major in the high byte
	HardwareRevision uint8
	Address          uint64
	Serial           uint64
	SSID             string
	Flags            uint8
	Timezone         int8
}

func (i DeviceInfo) IsUserLocked() bool    { return i.Flags&InfoUserLocked != 0 }
func (i DeviceInfo) IsMasterLocked() bool  { return i.Flags&InfoMasterLocked != 0 }
func (i DeviceInfo) IsWifiConnected() bool { return i.Flags&InfoWifiConnected != 0 }

// MonitorTemperatureExternal marks a reading taken by the external probe.
const MonitorTemperatureExternal uint32 = 1 << 0

// MonitorData is one live snapshot.
type MonitorData struct {
	FirmwareVersion  uint16
	HardwareRevision uint8
	Time             uint32 // local UNIX time
	Flags            uint32
	Voltage1         float32 // V
	Voltage2         float32 // V
	Current          float32 // A
	Power            float32 // W
	Temperature      float32 // C
	CoulombMeter     int64   // mAh
	EnergyMeter      int64   // mWh
	PowerStatus      PowerStatus
	SOC              uint8  // percent; 0xFF disabled, 0xFE unknown
	Runtime          uint16 // minutes; 0xFFFF disabled
	RSSI             int16  // dBm
}

func (m MonitorData) IsTemperatureExternal() bool {
	return m.Flags&MonitorTemperatureExternal != 0
}

type MonitorStatistics struct {
	SecondsSinceOn       uint32
	Voltage1Min          float32
	Voltage1Max          float32
	Voltage2Min          float32
	Voltage2Max          float32
	PeakChargeCurrent    float32
	PeakDischargeCurrent float32
	TemperatureMin       float32
	TemperatureMax       float32
}

type FuelgaugeStatistics struct {
	TimeSinceLastFullCharge uint32  // s
	FullChargeCapacity      float32 // Ah
	TotalDischarge          uint64  // mAh
	TotalDischargeEnergy    uint64  // mWh
	TotalCharge             uint64  // mAh
	TotalChargeEnergy       uint64  // mWh
	MinVoltage              float32
	MaxVoltage              float32
	MaxDischargeCurrent     float32
	MaxChargeCurrent        float32
	DeepestDischarge        float32 // Ah
	LastDischarge           float32 // Ah
	SOC                     float32 // percent
}

// LogFileDescriptor names one file of the on-device data log. ID is the UNIX
// time of the file's first sample.
type LogFileDescriptor struct {
	ID   uint32
	Size uint32
}
