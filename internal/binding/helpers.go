package binding

import (
	"github.com/mil-ad/pmbridge/internal/protocol"
	"github.com/mil-ad/pmbridge/internal/sdk"
)

func LibraryVersion() protocol.Version {
	return protocol.NewVersion(sdk.Version())
}

// AccessURL is a decoded access URL: the printable identifier plus the raw
// key for ConnectOptions.
type AccessURL struct {
	protocol.Identifier
	AccessKey sdk.AccessKey
}

func ParseAccessURL(url string) (AccessURL, bool) {
	id, ok := sdk.ParseURL(url)
	if !ok {
		return AccessURL{}, false
	}
	return AccessURL{Identifier: protocol.NewIdentifier(id), AccessKey: id.AccessKey}, true
}

// DecodedLog is the outcome of DecodeLogData. Samples decoded before a
// failure are kept.
type DecodedLog struct {
	Success bool
	Code    uint32
	Samples []sdk.LogSample
}

func DecodeLogData(data []byte) DecodedLog {
	code, samples := sdk.DecodeLog(data)
	if samples == nil {
		samples = []sdk.LogSample{}
	}
	return DecodedLog{Success: code == sdk.LogOK, Code: code, Samples: samples}
}

func HardwareString(bcd uint8) string { return sdk.HardwareString(bcd) }

func PowerStatusString(ps sdk.PowerStatus) string { return sdk.PowerStatusString(ps) }
