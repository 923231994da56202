package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mil-ad/pmbridge/internal/bridge"
	"github.com/mil-ad/pmbridge/internal/bridgeclient"
	"github.com/mil-ad/pmbridge/internal/config"
	"github.com/mil-ad/pmbridge/internal/infra/metrics"
	"github.com/mil-ad/pmbridge/internal/sdk"
)

var testURL = sdk.DeviceIdentifier{
	Name:             "Van",
	Serial:           0xa3a5b30ea9b3ff98,
	HardwareRevision: 0x41,
	AccessKey:        sdk.AccessKey{ChannelID: [16]byte{1, 2, 3}, EncryptionKey: [32]byte{4, 5, 6}},
}.URL()

func testApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Defaults()
	cfg.Driver.Latency = 0
	cfg.Devices = []config.DeviceConfig{{Name: "van", URL: testURL}}
	return &app{
		cfg:     cfg,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: metrics.New(),
	}
}

func TestOpenDevice(t *testing.T) {
	a := testApp(t)
	dev, err := openDevice(a.cfg, a.log)
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	a.cfg.Driver.Name = "usb"
	_, err = openDevice(a.cfg, a.log)
	assert.ErrorIs(t, err, errUnknownDriver)
}

func TestWriteFatal(t *testing.T) {
	var buf bytes.Buffer
	writeFatal(&buf, fatalDevice)
	assert.Equal(t, `{"type":"fatal","message":"Failed to create device instance"}`+"\n", buf.String())
}

func startDaemon(t *testing.T) string {
	t.Helper()
	a := testApp(t)
	dev, err := openDevice(a.cfg, a.log)
	require.NoError(t, err)
	d := &daemon{b: bridge.New(dev, a.bridgeOptions(false)), a: a}

	sock := filepath.Join(t.TempDir(), "pm.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.acceptLoop(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		ln.Close()
		assert.NoError(t, <-done)
		d.wg.Wait()
		_ = dev.Close()
	})
	return sock
}

func dial(t *testing.T, sock string) *bridgeclient.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := bridgeclient.Dial(ctx, sock, bridgeclient.Options{})
	require.NoError(t, err)
	return c
}

func TestDaemonOneSessionAtATime(t *testing.T) {
	sock := startDaemon(t)
	first := dial(t, sock)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := bridgeclient.Dial(ctx, sock, bridgeclient.Options{})
	var fatal *bridgeclient.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "Bridge busy", fatal.Message)

	require.NoError(t, first.Close())
	second := dial(t, sock)
	defer second.Close()
	_, err = second.Call(ctx, "version")
	assert.NoError(t, err)
}

func TestDaemonConnectionOutlivesSession(t *testing.T) {
	sock := startDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c := dial(t, sock)
	_, err := c.Call(ctx, "connect", "van")
	require.NoError(t, err)
	ev := <-c.Events()
	require.Equal(t, "connected", ev.Event)
	require.NoError(t, c.Close())

	c = dial(t, sock)
	defer c.Close()
	m, err := c.Call(ctx, "status")
	require.NoError(t, err)
	assert.JSONEq(t, `{"connected":true,"connecting":false,"bleAvailable":false}`, string(m.Data))
}

func TestRelayPrintsUntilTerminal(t *testing.T) {
	sock := startDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c := dial(t, sock)
	defer c.Close()
	var buf bytes.Buffer
	out := bufio.NewWriter(&buf)

	err := relay(ctx, c, out, "nosuch", nil)
	var cerr *bridgeclient.CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "Unknown command", cerr.Message)
	assert.Contains(t, buf.String(), `"type":"error"`)

	_, err = c.Call(ctx, "connect", testURL)
	require.NoError(t, err)
	require.Equal(t, "connected", (<-c.Events()).Event)

	buf.Reset()
	require.NoError(t, relay(ctx, c, out, "stream", []string{"1", "2"}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var monitors int
	for _, l := range lines {
		if strings.Contains(l, `"event":"monitor"`) {
			monitors++
		}
	}
	assert.Equal(t, 2, monitors)
	assert.Contains(t, lines[len(lines)-1], `"data":{"samples":2}`)
}

func TestOpenDeviceRejectsBadOptions(t *testing.T) {
	a := testApp(t)
	a.cfg.Driver.Latency = -time.Second
	_, err := openDevice(a.cfg, a.log)
	assert.Error(t, err)
}
