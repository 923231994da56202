package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mil-ad/pmbridge/internal/sdk"
)

var testKey = sdk.AccessKey{ChannelID: [16]byte{1}, EncryptionKey: [32]byte{2}}

func newDevice(t *testing.T, opts Options) *Device {
	t.Helper()
	d, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func connect(t *testing.T, d *Device) {
	t.Helper()
	up := make(chan struct{})
	d.SetOnConnect(func() { close(up) })
	d.ConnectWifi(testKey)
	select {
	case <-up:
	case <-time.After(time.Second):
		t.Fatal("no connect callback")
	}
}

func TestNewRejectsNegativeLatency(t *testing.T) {
	_, err := New(Options{Latency: -time.Second})
	assert.Error(t, err)
}

func TestConnectZeroKeyFails(t *testing.T) {
	d := newDevice(t, Options{})
	reasons := make(chan sdk.DisconnectReason, 1)
	d.SetOnDisconnect(func(r sdk.DisconnectReason) { reasons <- r })

	d.ConnectWifi(sdk.AccessKey{})
	select {
	case r := <-reasons:
		assert.Equal(t, sdk.ReasonNoRoute, r)
	case <-time.After(time.Second):
		t.Fatal("no disconnect callback")
	}
}

func TestRequestsNeedLink(t *testing.T) {
	d := newDevice(t, Options{})
	codes := make(chan sdk.ResponseCode, 1)
	d.RequestGetInfo(func(c sdk.ResponseCode, _ sdk.DeviceInfo) { codes <- c })
	assert.Equal(t, sdk.RspCancelled, <-codes)
}

func TestMonitorAndInfo(t *testing.T) {
	d := newDevice(t, Options{Seed: 7})
	connect(t, d)

	info := make(chan sdk.DeviceInfo, 1)
	d.RequestGetInfo(func(c sdk.ResponseCode, i sdk.DeviceInfo) {
		assert.Equal(t, sdk.RspSuccess, c)
		info <- i
	})
	assert.Equal(t, "SimMon", (<-info).Name)

	mon := make(chan sdk.MonitorData, 1)
	d.RequestGetMonitorData(func(c sdk.ResponseCode, m sdk.MonitorData) {
		assert.Equal(t, sdk.RspSuccess, c)
		mon <- m
	})
	m := <-mon
	assert.InDelta(t, 12.5, m.Voltage1, 2.5)
	assert.LessOrEqual(t, m.SOC, uint8(100))
}

func TestSetResponseForcesCode(t *testing.T) {
	d := newDevice(t, Options{})
	connect(t, d)
	d.SetResponse(OpStatistics, sdk.RspTimeout)

	codes := make(chan sdk.ResponseCode, 1)
	d.RequestGetStatistics(func(c sdk.ResponseCode, _ sdk.MonitorStatistics) { codes <- c })
	assert.Equal(t, sdk.RspTimeout, <-codes)

	d.SetResponse(OpStatistics, sdk.RspSuccess)
	d.RequestGetStatistics(func(c sdk.ResponseCode, _ sdk.MonitorStatistics) { codes <- c })
	assert.Equal(t, sdk.RspSuccess, <-codes)
}

func TestReadLogFile(t *testing.T) {
	d := newDevice(t, Options{})
	connect(t, d)
	d.AddLogFile(9, []byte{1, 2, 3, 4, 5})

	type answer struct {
		code sdk.ResponseCode
		data []byte
	}
	read := func(id, off, size uint32) answer {
		ch := make(chan answer, 1)
		d.RequestReadLogFile(id, off, size, func(c sdk.ResponseCode, b []byte) { ch <- answer{c, b} })
		return <-ch
	}

	assert.Equal(t, answer{sdk.RspSuccess, []byte{2, 3}}, read(9, 1, 2))
	assert.Equal(t, answer{sdk.RspSuccess, []byte{4, 5}}, read(9, 3, 100))
	assert.Equal(t, answer{sdk.RspSuccess, nil}, read(9, 5, 10))
	assert.Equal(t, sdk.RspNotFound, read(10, 0, 1).code)
}

func TestGeneratedLogsDecode(t *testing.T) {
	d := newDevice(t, Options{LogFiles: 2, Seed: 3})
	connect(t, d)

	list := make(chan []sdk.LogFileDescriptor, 1)
	d.RequestGetLogFileList(func(_ sdk.ResponseCode, f []sdk.LogFileDescriptor) { list <- f })
	files := <-list
	require.Len(t, files, 2)
	assert.Less(t, files[0].ID, files[1].ID)

	data := make(chan []byte, 1)
	d.RequestReadLogFile(files[0].ID, 0, files[0].Size, func(_ sdk.ResponseCode, b []byte) { data <- b })
	code, samples := sdk.DecodeLog(<-data)
	require.Equal(t, sdk.LogOK, code)
	assert.Len(t, samples, 360)
	assert.Equal(t, files[0].ID, samples[0].Time)
}

func TestDropLinkCancelsPending(t *testing.T) {
	d := newDevice(t, Options{})
	connect(t, d)
	down := make(chan sdk.DisconnectReason, 1)
	d.SetOnDisconnect(func(r sdk.DisconnectReason) { down <- r })

	d.Pause()
	codes := make(chan sdk.ResponseCode, 1)
	d.RequestGetMonitorData(func(c sdk.ResponseCode, _ sdk.MonitorData) { codes <- c })
	d.DropLink(sdk.ReasonReadError)
	assert.Equal(t, sdk.ReasonReadError, <-down)
	d.Resume()
	assert.Equal(t, sdk.RspCancelled, <-codes)
}

func TestCloseCancelsQueued(t *testing.T) {
	d, err := New(Options{})
	require.NoError(t, err)
	connect(t, d)

	d.Pause()
	codes := make(chan sdk.ResponseCode, 2)
	d.RequestGetFgStatistics(func(c sdk.ResponseCode, _ sdk.FuelgaugeStatistics) { codes <- c })
	require.NoError(t, d.Close())
	assert.Equal(t, sdk.RspCancelled, <-codes)

	d.RequestGetInfo(func(c sdk.ResponseCode, _ sdk.DeviceInfo) { codes <- c })
	assert.Equal(t, sdk.RspCancelled, <-codes)
	assert.NoError(t, d.Close())
}
