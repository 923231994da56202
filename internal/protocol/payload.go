package protocol

import (
	"encoding/hex"
	"strings"

	"github.com/mil-ad/pmbridge/internal/sdk"
)

// Result payloads. Field order is the order clients see on the wire.

type Version struct {
	Major  int    `json:"major"`
	Minor  int    `json:"minor"`
	String string `json:"string"`
}

func NewVersion(v uint16) Version {
	return Version{Major: int(v >> 8), Minor: int(v & 0xFF), String: sdk.VersionString(v)}
}

type Identifier struct {
	Name             string `json:"name"`
	Serial           string `json:"serial"`
	HardwareRevision int    `json:"hardwareRevision"`
	HardwareString   string `json:"hardwareString"`
	ChannelID        string `json:"channelId"`
	EncryptionKey    string `json:"encryptionKey"`
}

func NewIdentifier(id sdk.DeviceIdentifier) Identifier {
	return Identifier{
		Name:             id.Name,
		Serial:           sdk.SerialString(id.Serial),
		HardwareRevision: int(id.HardwareRevision),
		HardwareString:   sdk.HardwareString(id.HardwareRevision),
		ChannelID:        strings.ToUpper(hex.EncodeToString(id.AccessKey.ChannelID[:])),
		EncryptionKey:    strings.ToUpper(hex.EncodeToString(id.AccessKey.EncryptionKey[:])),
	}
}

type Status struct {
	Connected    bool `json:"connected"`
	Connecting   bool `json:"connecting"`
	BLEAvailable bool `json:"bleAvailable"`
}

type Info struct {
	Name               string `json:"name"`
	FirmwareVersion    string `json:"firmwareVersion"`
	FirmwareVersionBCD int    `json:"firmwareVersionBcd"`
	HardwareRevision   int    `json:"hardwareRevision"`
	HardwareString     string `json:"hardwareString"`
	Serial             string `json:"serial"`
	Timezone           int    `json:"timezone"`
	IsUserLocked       bool   `json:"isUserLocked"`
	IsMasterLocked     bool   `json:"isMasterLocked"`
	IsWifiConnected    bool   `json:"isWifiConnected"`
}

func NewInfo(i sdk.DeviceInfo) Info {
	return Info{
		Name:               i.Name,
		FirmwareVersion:    sdk.VersionString(i.FirmwareVersion),
		FirmwareVersionBCD: int(i.FirmwareVersion),
		HardwareRevision:   int(i.HardwareRevision),
		HardwareString:     sdk.HardwareString(i.HardwareRevision),
		Serial:             sdk.SerialString(i.Serial),
		Timezone:           int(i.Timezone),
		IsUserLocked:       i.IsUserLocked(),
		IsMasterLocked:     i.IsMasterLocked(),
		IsWifiConnected:    i.IsWifiConnected(),
	}
}

// Monitor meters are sent in Ah and Wh.
type Monitor struct {
	Time                  uint32 `json:"time"`
	Voltage1              Fixed  `json:"voltage1"`
	Voltage2              Fixed  `json:"voltage2"`
	Current               Fixed  `json:"current"`
	Power                 Fixed  `json:"power"`
	Temperature           Fixed  `json:"temperature"`
	CoulombMeter          Fixed  `json:"coulombMeter"`
	EnergyMeter           Fixed  `json:"energyMeter"`
	PowerStatus           int    `json:"powerStatus"`
	PowerStatusString     string `json:"powerStatusString"`
	SOC                   int    `json:"soc"`
	Runtime               int    `json:"runtime"`
	RSSI                  int    `json:"rssi"`
	IsTemperatureExternal bool   `json:"isTemperatureExternal"`
}

func NewMonitor(m sdk.MonitorData) Monitor {
	return Monitor{
		Time:                  m.Time,
		Voltage1:              F3(m.Voltage1),
		Voltage2:              F3(m.Voltage2),
		Current:               F3(m.Current),
		Power:                 F2(m.Power),
		Temperature:           F1(m.Temperature),
		CoulombMeter:          F3(float64(m.CoulombMeter) / 1000),
		EnergyMeter:           F3(float64(m.EnergyMeter) / 1000),
		PowerStatus:           int(m.PowerStatus),
		PowerStatusString:     sdk.PowerStatusString(m.PowerStatus),
		SOC:                   int(m.SOC),
		Runtime:               int(m.Runtime),
		RSSI:                  int(m.RSSI),
		IsTemperatureExternal: m.IsTemperatureExternal(),
	}
}

type Statistics struct {
	SecondsSinceOn       uint32 `json:"secondsSinceOn"`
	Voltage1Min          Fixed  `json:"voltage1Min"`
	Voltage1Max          Fixed  `json:"voltage1Max"`
	Voltage2Min          Fixed  `json:"voltage2Min"`
	Voltage2Max          Fixed  `json:"voltage2Max"`
	PeakChargeCurrent    Fixed  `json:"peakChargeCurrent"`
	PeakDischargeCurrent Fixed  `json:"peakDischargeCurrent"`
	TemperatureMin       Fixed  `json:"temperatureMin"`
	TemperatureMax       Fixed  `json:"temperatureMax"`
}

func NewStatistics(s sdk.MonitorStatistics) Statistics {
	return Statistics{
		SecondsSinceOn:       s.SecondsSinceOn,
		Voltage1Min:          F3(s.Voltage1Min),
		Voltage1Max:          F3(s.Voltage1Max),
		Voltage2Min:          F3(s.Voltage2Min),
		Voltage2Max:          F3(s.Voltage2Max),
		PeakChargeCurrent:    F3(s.PeakChargeCurrent),
		PeakDischargeCurrent: F3(s.PeakDischargeCurrent),
		TemperatureMin:       F1(s.TemperatureMin),
		TemperatureMax:       F1(s.TemperatureMax),
	}
}

// FuelGauge totals are sent in Ah and Wh.
type FuelGauge struct {
	TimeSinceLastFullCharge uint32 `json:"timeSinceLastFullCharge"`
	FullChargeCapacity      Fixed  `json:"fullChargeCapacity"`
	TotalDischarge          Fixed  `json:"totalDischarge"`
	TotalDischargeEnergy    Fixed  `json:"totalDischargeEnergy"`
	TotalCharge             Fixed  `json:"totalCharge"`
	TotalChargeEnergy       Fixed  `json:"totalChargeEnergy"`
	MinVoltage              Fixed  `json:"minVoltage"`
	MaxVoltage              Fixed  `json:"maxVoltage"`
	MaxDischargeCurrent     Fixed  `json:"maxDischargeCurrent"`
	MaxChargeCurrent        Fixed  `json:"maxChargeCurrent"`
	DeepestDischarge        Fixed  `json:"deepestDischarge"`
	LastDischarge           Fixed  `json:"lastDischarge"`
	SOC                     Fixed  `json:"soc"`
}

func NewFuelGauge(s sdk.FuelgaugeStatistics) FuelGauge {
	return FuelGauge{
		TimeSinceLastFullCharge: s.TimeSinceLastFullCharge,
		FullChargeCapacity:      F3(s.FullChargeCapacity),
		TotalDischarge:          F3(float64(s.TotalDischarge) / 1000),
		TotalDischargeEnergy:    F3(float64(s.TotalDischargeEnergy) / 1000),
		TotalCharge:             F3(float64(s.TotalCharge) / 1000),
		TotalChargeEnergy:       F3(float64(s.TotalChargeEnergy) / 1000),
		MinVoltage:              F3(s.MinVoltage),
		MaxVoltage:              F3(s.MaxVoltage),
		MaxDischargeCurrent:     F3(s.MaxDischargeCurrent),
		MaxChargeCurrent:        F3(s.MaxChargeCurrent),
		DeepestDischarge:        F3(s.DeepestDischarge),
		LastDischarge:           F3(s.LastDischarge),
		SOC:                     F1(s.SOC),
	}
}

type LogFile struct {
	ID   uint32 `json:"id"`
	Size uint32 `json:"size"`
}

// NewLogFiles never returns nil, so an empty list is sent as [].
func NewLogFiles(files []sdk.LogFileDescriptor) []LogFile {
	out := make([]LogFile, len(files))
	for i, f := range files {
		out[i] = LogFile{ID: f.ID, Size: f.Size}
	}
	return out
}

// StreamSummary is the data of a stream's terminal result.
type StreamSummary struct {
	Samples int `json:"samples"`
}

// LogSample is one decoded data-log record.
type LogSample struct {
	Time              uint32 `json:"time"`
	Voltage1          Fixed  `json:"voltage1"`
	Voltage2          Fixed  `json:"voltage2"`
	Current           Fixed  `json:"current"`
	Power             Fixed  `json:"power"`
	Temperature       Fixed  `json:"temperature"`
	SOC               int    `json:"soc"`
	PowerStatus       int    `json:"powerStatus"`
	PowerStatusString string `json:"powerStatusString"`
}

func NewLogSample(s sdk.LogSample) LogSample {
	return LogSample{
		Time:              s.Time,
		Voltage1:          F3(s.Voltage1),
		Voltage2:          F3(s.Voltage2),
		Current:           F3(s.Current),
		Power:             F2(s.Power),
		Temperature:       F1(s.Temperature),
		SOC:               int(s.SOC),
		PowerStatus:       int(s.PowerStatus),
		PowerStatusString: sdk.PowerStatusString(sdk.PowerStatus(s.PowerStatus)),
	}
}
