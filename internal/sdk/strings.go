package sdk

import "fmt"

// libraryVersion is the SDK release this contract tracks, major.minor in BCD
// style bytes.
const libraryVersion uint16 = 0x010B

// Version returns the SDK version, major in the high byte.
func Version() uint16 { return libraryVersion }

// VersionString formats a major/minor pair as "major.minor".
func VersionString(v uint16) string {
	return fmt.Sprintf("%d.%d", v>>8, v&0xFF)
}

// HardwareString names the product family of a hardware revision.
func HardwareString(bcd uint8) string {
	switch bcd & FamilyMask {
	case FamilyPowermonE:
		return "PowerMon-E"
	case FamilyPowermon:
		return "PowerMon"
	case FamilyPowermon5:
		return "PowerMon-5S"
	case FamilyPowermonW:
		return "PowerMon-W"
	}
	return "Unknown"
}

// PowerStatusString returns the short label used by the device UI.
func PowerStatusString(ps PowerStatus) string {
	switch ps {
	case PowerOff:
		return "Off"
	case PowerOn:
		return "On"
	case PowerLVD:
		return "Low Voltage Disconnect"
	case PowerOCD:
		return "Over-Current Disconnect"
	case PowerHVD:
		return "High Voltage Disconnect"
	case PowerFGD:
		return "Fuel Gauge Disconnect"
	case PowerNCH:
		return "Not Charging"
	case PowerLTD:
		return "Low Temperature Disconnect"
	case PowerHTD:
		return "High Temperature Disconnect"
	}
	return "Unknown"
}

// HasDataLog reports whether the hardware keeps an on-device log.
func HasDataLog(bcd uint8) bool {
	switch bcd & FamilyMask {
	case FamilyPowermonE, FamilyPowermonW, FamilyPowermon5:
		return true
	}
	return false
}
