package protocol

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mil-ad/pmbridge/internal/sdk"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		want Command
	}{
		{"1 version", true, Command{ID: "1", Name: "version", Args: []string{}}},
		{"  7\tstream 100  3 ", true, Command{ID: "7", Name: "stream", Args: []string{"100", "3"}, Rest: "100  3"}},
		{"a parse https://x/?n=a b\r", true, Command{ID: "a", Name: "parse", Args: []string{"https://x/?n=a", "b"}, Rest: "https://x/?n=a b"}},
		{"", false, Command{}},
		{"   ", false, Command{}},
		{"onlyid", false, Command{}},
	}
	for _, tt := range tests {
		got, ok := ParseCommand(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		if tt.ok {
			assert.Equal(t, tt.want.ID, got.ID)
			assert.Equal(t, tt.want.Name, got.Name)
			assert.ElementsMatch(t, tt.want.Args, got.Args)
			assert.Equal(t, tt.want.Rest, got.Rest)
		}
	}
}

func TestLineRoundTrip(t *testing.T) {
	cmd, ok := ParseCommand(Line("cmd_1", "readlog", "5", "0", "128"))
	require.True(t, ok)
	assert.Equal(t, []string{"5", "0", "128"}, cmd.Args)
}

func encode(t *testing.T, m Message) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Write(m))
	return buf.String()
}

func TestMessageShapes(t *testing.T) {
	assert.Equal(t, `{"type":"event","event":"ready"}`+"\n", encode(t, NewEvent(EventReady)))
	assert.Equal(t, `{"type":"event","event":"disconnected","reason":1}`+"\n",
		encode(t, NewEvent(EventDisconnected, "reason", 1)))
	assert.Equal(t, `{"type":"result","id":"1","success":true,"code":0}`+"\n", encode(t, OK("1", nil)))
	assert.Equal(t, `{"type":"result","id":"2","success":false,"code":-1,"data":null}`+"\n",
		encode(t, NewResult("2", false, -1, Null)))
	assert.Equal(t, `{"type":"error","id":"3","message":"Not connected"}`+"\n", encode(t, NewError("3", "Not connected")))
	assert.Equal(t, `{"type":"fatal","message":"boom"}`+"\n", encode(t, NewFatal("boom")))
}

func TestEscaping(t *testing.T) {
	line := encode(t, NewError("x", "a\"b\\c\n\x01<&>"))
	assert.Equal(t, `{"type":"error","id":"x","message":"a\"b\\c\n\u0001<&>"}`+"\n", line)
}

func TestEventRejectsReservedField(t *testing.T) {
	_, err := NewEvent("monitor", "type", 1).MarshalJSON()
	assert.Error(t, err)
}

func TestFixed(t *testing.T) {
	tests := []struct {
		in   Fixed
		want string
	}{
		{F2(12.345678), "12.35"},
		{F3(float32(12.5)), "12.500"},
		{F1(-4.25), "-4.2"},
		{F3(0.0), "0.000"},
		{F2(math.NaN()), "null"},
		{F1(math.Inf(1)), "null"},
	}
	for _, tt := range tests {
		b, err := tt.in.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(b))
	}
}

func TestWriterLinesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Write(NewEvent(EventMonitor, "data", map[string]any{"v": strings.Repeat("x", 200)}))
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 50)
	for _, l := range lines {
		m, err := Decode([]byte(l))
		require.NoError(t, err)
		assert.Equal(t, EventMonitor, m.Event)
	}
}

func TestDecode(t *testing.T) {
	m, err := Decode([]byte(`{"type":"event","event":"disconnected","reason":3}`))
	require.NoError(t, err)
	require.NotNil(t, m.Reason)
	assert.Equal(t, 3, *m.Reason)
	assert.False(t, m.Terminal())

	m, err = Decode([]byte(`{"type":"result","id":"9","success":true,"code":0,"data":"0aff"}`))
	require.NoError(t, err)
	assert.True(t, m.Terminal())
	assert.JSONEq(t, `"0aff"`, string(m.Data))
	assert.Equal(t, `{"type":"result","id":"9","success":true,"code":0,"data":"0aff"}`, string(m.Raw))

	_, err = Decode([]byte(`{}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`nope`))
	assert.Error(t, err)
}

func TestFixedUnmarshal(t *testing.T) {
	var m Monitor
	require.NoError(t, json.Unmarshal([]byte(`{"voltage1":12.345,"power":null}`), &m))
	assert.InDelta(t, 12.345, m.Voltage1.V, 1e-9)
	assert.Equal(t, 3, m.Voltage1.Prec)
	assert.True(t, math.IsNaN(m.Power.V))
}

func TestMonitorPayload(t *testing.T) {
	line := encode(t, OK("m", NewMonitor(sdk.MonitorData{
		Time:         10,
		Voltage1:     12.3456,
		Current:      -1.5,
		Power:        float32(math.NaN()),
		Temperature:  21.25,
		CoulombMeter: 12345,
		PowerStatus:  sdk.PowerLVD,
		SOC:          80,
	})))
	assert.Contains(t, line, `"voltage1":12.346,`)
	assert.Contains(t, line, `"current":-1.500,`)
	assert.Contains(t, line, `"power":null,`)
	assert.Contains(t, line, `"temperature":21.2,`)
	assert.Contains(t, line, `"coulombMeter":12.345,`)
	assert.Contains(t, line, `"powerStatusString":"Low Voltage Disconnect"`)
}

func TestIdentifierPayload(t *testing.T) {
	id := NewIdentifier(sdk.DeviceIdentifier{
		Name:             "van",
		Serial:           0xab,
		HardwareRevision: 0x41,
		AccessKey:        sdk.AccessKey{ChannelID: [16]byte{0xab}},
	})
	assert.Equal(t, "00000000000000AB", id.Serial)
	assert.Equal(t, "PowerMon-W", id.HardwareString)
	assert.Equal(t, "AB"+strings.Repeat("00", 15), id.ChannelID)
	assert.Len(t, id.EncryptionKey, 64)
}

func TestLogFilesNeverNull(t *testing.T) {
	assert.Equal(t, `{"type":"result","id":"l","success":true,"code":0,"data":[]}`+"\n",
		encode(t, OK("l", NewLogFiles(nil))))
}

func TestLogSamplePayload(t *testing.T) {
	b, err := json.Marshal(NewLogSample(sdk.LogSample{Time: 9, Voltage1: 12.5, Temperature: 21.25, SOC: 80, PowerStatus: 1}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":9,"voltage1":12.500,"voltage2":0.000,"current":0.000,"power":0.00,
		"temperature":21.2,"soc":80,"powerStatus":1,"powerStatusString":"On"}`, string(b))
}
