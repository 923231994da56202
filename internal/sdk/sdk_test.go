package sdk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "https://applinks.thornwave.com/?n=DCL-Moeck&s=a3a5b30ea9b3ff98&h=41" +
	"&c=000102030405060708090a0b0c0d0e0f" +
	"&k=101112131415161718191a1b1c1d1e1f202122232425262728292a2b2c2d2e2f"

func TestParseURLApplink(t *testing.T) {
	id, ok := ParseURL(testURL)
	require.True(t, ok)

	assert.Equal(t, "DCL-Moeck", id.Name)
	assert.Equal(t, uint64(0xa3a5b30ea9b3ff98), id.Serial)
	assert.Equal(t, uint8(0x41), id.HardwareRevision)
	assert.Equal(t, byte(0x0f), id.AccessKey.ChannelID[15])
	assert.Equal(t, byte(0x10), id.AccessKey.EncryptionKey[0])
	assert.Equal(t, "PowerMon-W", HardwareString(id.HardwareRevision))
}

func TestParseURLLegacy(t *testing.T) {
	key := strings.Repeat("ab", EncryptionKeySize)
	channel := strings.Repeat("cd", ChannelIDSize)

	id, ok := ParseURL("powermon://" + key + "@" + channel)
	require.True(t, ok)
	assert.Equal(t, byte(0xcd), id.AccessKey.ChannelID[0])
	assert.Equal(t, byte(0xab), id.AccessKey.EncryptionKey[31])
}

func TestParseURLRejects(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"garbage", "not a url"},
		{"wrong host", strings.Replace(testURL, "applinks.thornwave.com", "example.com", 1)},
		{"missing key", "https://applinks.thornwave.com/?c=000102030405060708090a0b0c0d0e0f"},
		{"short channel", strings.Replace(testURL, "c=00", "c=", 1)},
		{"bad serial", strings.Replace(testURL, "s=a3a5", "s=zz", 1)},
		{"zero key", "https://applinks.thornwave.com/?c=" + strings.Repeat("00", 16) + "&k=" + strings.Repeat("00", 32)},
		{"legacy without key", "powermon://" + strings.Repeat("cd", 16)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseURL(tt.url)
			assert.False(t, ok)
			// Same input, same answer.
			_, again := ParseURL(tt.url)
			assert.Equal(t, ok, again)
		})
	}
}

func TestDeviceIdentifierURLRoundTrip(t *testing.T) {
	id, ok := ParseURL(testURL)
	require.True(t, ok)

	back, ok := ParseURL(id.URL())
	require.True(t, ok)
	assert.Equal(t, id, back)
}

func TestSerialString(t *testing.T) {
	assert.Equal(t, "A3A5B30EA9B3FF98", SerialString(0xa3a5b30ea9b3ff98))
	assert.Equal(t, "00000000000000FF", SerialString(0xff))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "1.11", VersionString(Version()))
	assert.Equal(t, "PowerMon-E", HardwareString(0x12))
	assert.Equal(t, "Unknown", HardwareString(0x90))
	assert.Equal(t, "On", PowerStatusString(PowerOn))
	assert.Equal(t, "Unknown", PowerStatusString(PowerStatus(42)))
	assert.Equal(t, "no_route", ReasonNoRoute.String())
}

func TestLogRoundTrip(t *testing.T) {
	h := LogHeader{
		Mode: LogMode10s,
		Time: 1700000000,
		Mask: LogFieldV1 | LogFieldV2 | LogFieldI1 | LogFieldT1 | LogFieldSOC | LogFieldPS,
	}
	in := []LogSample{
		{Voltage1: 12.5, Voltage2: 12.4, Current: -3.25, Temperature: 21.5, SOC: 80, PowerStatus: 1},
		{Voltage1: 13.1, Voltage2: 13.0, Current: 10.5, Temperature: -4.2, SOC: 81, PowerStatus: 1},
	}

	code, out := DecodeLog(EncodeLog(h, in))
	require.Equal(t, LogOK, code)
	require.Len(t, out, 2)

	assert.Equal(t, uint32(1700000000), out[0].Time)
	assert.Equal(t, uint32(1700000010), out[1].Time)
	assert.InDelta(t, 12.5, out[0].Voltage1, 0.001)
	assert.InDelta(t, -3.25, out[0].Current, 0.001)
	assert.InDelta(t, 12.5*-3.25, out[0].Power, 0.01)
	assert.InDelta(t, -4.2, out[1].Temperature, 0.01)
	assert.Equal(t, uint8(81), out[1].SOC)
}

func TestDecodeLogErrors(t *testing.T) {
	h := LogHeader{Mode: LogMode1s, Mask: LogFieldV1}
	good := EncodeLog(h, []LogSample{{Voltage1: 1}, {Voltage1: 2}})

	code, _ := DecodeLog(good[:10])
	assert.Equal(t, LogShortHeader, code)

	bad := append([]byte(nil), good...)
	bad[0] = 'X'
	code, _ = DecodeLog(bad)
	assert.Equal(t, LogBadMagic, code)

	code, _ = DecodeLog(EncodeLog(LogHeader{Mode: 99, Mask: LogFieldV1}, nil))
	assert.Equal(t, LogBadMode, code)

	code, samples := DecodeLog(good[:len(good)-1])
	assert.Equal(t, LogTruncated, code)
	assert.Len(t, samples, 1)
}
