// Package sim is an in-process device driver. It keeps the asynchronous
// shape of the real SDK: requests are queued, a single worker goroutine
// answers them after a latency, and every callback runs on that goroutine.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mil-ad/pmbridge/internal/sdk"
)

// Op names a request type for SetResponse.
type Op string

const (
	OpInfo         Op = "info"
	OpMonitor      Op = "monitor"
	OpStatistics   Op = "statistics"
	OpFgStatistics Op = "fgstatistics"
	OpLogFiles     Op = "logfiles"
	OpReadLog      Op = "readlog"
)

// Options configure a simulated device.
type Options struct {
	Latency  time.Duration // delay before each answer
	Seed     int64
	LogFiles int // number of generated data-log files
	Identity sdk.DeviceIdentifier
	Logger   *slog.Logger
}

var errNegativeLatency = errors.New("sim: latency must not be negative")

// Device implements sdk.Device.
type Device struct {
	opts Options
	log  *slog.Logger

	mu           sync.Mutex
	state        sdk.State
	onConnect    func()
	onDisconnect func(sdk.DisconnectReason)
	codes        map[Op]sdk.ResponseCode
	files        map[uint32][]byte
	closed       bool
	gate         chan struct{}
	rng          *rand.Rand
	battery      battery
	queue        []func()
	wake         *sync.Cond

	done chan struct{}
}

// New starts a simulated device. It fails only for invalid options, which is
// the simulator's equivalent of the SDK refusing to create an instance.
func New(opts Options) (*Device, error) {
	if opts.Latency < 0 {
		return nil, errNegativeLatency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Identity.Name == "" {
		opts.Identity.Name = "SimMon"
	}
	if opts.Identity.HardwareRevision == 0 {
		opts.Identity.HardwareRevision = sdk.FamilyPowermonW | 0x01
	}
	if opts.Identity.Serial == 0 {
		opts.Identity.Serial = uint64(opts.Seed)<<16 | 0x5157
	}

	gate := make(chan struct{})
	close(gate)
	d := &Device{
		opts:  opts,
		log:   opts.Logger.With("driver", "sim"),
		codes: map[Op]sdk.ResponseCode{},
		files: map[uint32][]byte{},
		gate:  gate,
		rng:   rand.New(rand.NewSource(opts.Seed)),
		done:  make(chan struct{}),
	}
	d.wake = sync.NewCond(&d.mu)
	d.battery = newBattery(d.rng)
	d.generateLogs(time.Now())
	go d.run()
	return d, nil
}

func (d *Device) run() {
	defer close(d.done)
	for {
		job, ok := d.next()
		if !ok {
			return
		}
		d.mu.Lock()
		gate, closed := d.gate, d.closed
		d.mu.Unlock()
		<-gate
		if !closed && d.opts.Latency > 0 {
			time.Sleep(d.opts.Latency)
		}
		job()
	}
}

func (d *Device) next() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 && !d.closed {
		d.wake.Wait()
	}
	if len(d.queue) == 0 {
		return nil, false
	}
	job := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return job, true
}

// enqueue hands a job to the worker. After Close the cancel path runs on a
// fresh goroutine so callbacks never run on the caller's stack.
func (d *Device) enqueue(job, cancel func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		go cancel()
		return
	}
	d.queue = append(d.queue, job)
	d.mu.Unlock()
	d.wake.Signal()
}

func (d *Device) ConnectWifi(key sdk.AccessKey) {
	d.mu.Lock()
	if d.state == sdk.StateDisconnected {
		d.state = sdk.StateConnecting
	}
	d.mu.Unlock()

	d.enqueue(func() {
		d.mu.Lock()
		if d.state != sdk.StateConnecting {
			d.mu.Unlock()
			return
		}
		if key.IsZero() {
			d.state = sdk.StateDisconnected
			cb := d.onDisconnect
			d.mu.Unlock()
			d.log.Debug("connect refused", "reason", sdk.ReasonNoRoute)
			if cb != nil {
				cb(sdk.ReasonNoRoute)
			}
			return
		}
		d.state = sdk.StateConnected
		cb := d.onConnect
		d.mu.Unlock()
		d.log.Debug("link up")
		if cb != nil {
			cb()
		}
	}, func() {})
}

func (d *Device) Disconnect() {
	d.enqueue(func() { d.DropLink(sdk.ReasonClosed) }, func() {})
}

// DropLink tears the link down immediately, outside the request queue, the
// way a transport failure would. Requests still queued resolve with
// RspCancelled.
func (d *Device) DropLink(reason sdk.DisconnectReason) {
	d.mu.Lock()
	if d.state == sdk.StateDisconnected {
		d.mu.Unlock()
		return
	}
	d.state = sdk.StateDisconnected
	cb := d.onDisconnect
	d.mu.Unlock()
	d.log.Debug("link down", "reason", reason)
	if cb != nil {
		cb(reason)
	}
}

func (d *Device) SetOnConnect(cb func()) {
	d.mu.Lock()
	d.onConnect = cb
	d.mu.Unlock()
}

func (d *Device) SetOnDisconnect(cb func(sdk.DisconnectReason)) {
	d.mu.Lock()
	d.onDisconnect = cb
	d.mu.Unlock()
}

// SetResponse forces every later request of op to fail with code. RspSuccess
// restores normal answers.
func (d *Device) SetResponse(op Op, code sdk.ResponseCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if code == sdk.RspSuccess {
		delete(d.codes, op)
		return
	}
	d.codes[op] = code
}

// Pause holds every answer until Resume.
func (d *Device) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.gate:
		d.gate = make(chan struct{})
	default:
	}
}

func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.gate:
	default:
		close(d.gate)
	}
}

// AddLogFile installs or replaces a data-log file.
func (d *Device) AddLogFile(id uint32, data []byte) {
	d.mu.Lock()
	d.files[id] = append([]byte(nil), data...)
	d.mu.Unlock()
}

// Close stops the worker after it has drained the queue; queued requests
// resolve with RspCancelled. It must not be called from a callback.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.state = sdk.StateDisconnected
	select {
	case <-d.gate:
	default:
		close(d.gate)
	}
	d.mu.Unlock()
	d.wake.Broadcast()
	<-d.done
	return nil
}

// answer runs fn on the worker once the request reaches the head of the
// queue. fn receives the code to report; RspSuccess means fn must produce a
// real result.
func (d *Device) answer(op Op, fn func(code sdk.ResponseCode)) {
	d.enqueue(func() {
		d.mu.Lock()
		code := sdk.RspSuccess
		switch {
		case d.closed:
			code = sdk.RspCancelled
		case d.state != sdk.StateConnected:
			code = sdk.RspCancelled
		default:
			if forced, ok := d.codes[op]; ok {
				code = forced
			}
		}
		d.mu.Unlock()
		fn(code)
	}, func() { fn(sdk.RspCancelled) })
}

func (d *Device) RequestGetInfo(cb func(sdk.ResponseCode, sdk.DeviceInfo)) {
	d.answer(OpInfo, func(code sdk.ResponseCode) {
		if !code.OK() {
			cb(code, sdk.DeviceInfo{})
			return
		}
		id := d.opts.Identity
		cb(code, sdk.DeviceInfo{
			Name:             id.Name,
			FirmwareVersion:  0x0112,
			HardwareRevision: id.HardwareRevision,
			Serial:           id.Serial,
			SSID:             "sim-net",
			Flags:            sdk.InfoWifiConnected,
			Timezone:         0,
		})
	})
}

func (d *Device) RequestGetMonitorData(cb func(sdk.ResponseCode, sdk.MonitorData)) {
	d.answer(OpMonitor, func(code sdk.ResponseCode) {
		if !code.OK() {
			cb(code, sdk.MonitorData{})
			return
		}
		d.mu.Lock()
		m := d.battery.step(d.rng, time.Now())
		d.mu.Unlock()
		m.FirmwareVersion = 0x0112
		m.HardwareRevision = d.opts.Identity.HardwareRevision
		cb(code, m)
	})
}

func (d *Device) RequestGetStatistics(cb func(sdk.ResponseCode, sdk.MonitorStatistics)) {
	d.answer(OpStatistics, func(code sdk.ResponseCode) {
		if !code.OK() {
			cb(code, sdk.MonitorStatistics{})
			return
		}
		d.mu.Lock()
		s := d.battery.statistics()
		d.mu.Unlock()
		cb(code, s)
	})
}

func (d *Device) RequestGetFgStatistics(cb func(sdk.ResponseCode, sdk.FuelgaugeStatistics)) {
	d.answer(OpFgStatistics, func(code sdk.ResponseCode) {
		if !code.OK() {
			cb(code, sdk.FuelgaugeStatistics{})
			return
		}
		d.mu.Lock()
		s := d.battery.fuelgauge()
		d.mu.Unlock()
		cb(code, s)
	})
}

func (d *Device) RequestGetLogFileList(cb func(sdk.ResponseCode, []sdk.LogFileDescriptor)) {
	d.answer(OpLogFiles, func(code sdk.ResponseCode) {
		if !code.OK() {
			cb(code, nil)
			return
		}
		d.mu.Lock()
		files := make([]sdk.LogFileDescriptor, 0, len(d.files))
		for id, data := range d.files {
			files = append(files, sdk.LogFileDescriptor{ID: id, Size: uint32(len(data))})
		}
		d.mu.Unlock()
		sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
		cb(code, files)
	})
}

func (d *Device) RequestReadLogFile(fileID, offset, size uint32, cb func(sdk.ResponseCode, []byte)) {
	d.answer(OpReadLog, func(code sdk.ResponseCode) {
		if !code.OK() {
			cb(code, nil)
			return
		}
		if !sdk.HasDataLog(d.opts.Identity.HardwareRevision) {
			cb(sdk.RspInvalidReq, nil)
			return
		}
		d.mu.Lock()
		data, ok := d.files[fileID]
		d.mu.Unlock()
		if !ok {
			cb(sdk.RspNotFound, nil)
			return
		}
		if offset >= uint32(len(data)) {
			cb(sdk.RspSuccess, nil)
			return
		}
		end := uint64(offset) + uint64(size)
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		cb(sdk.RspSuccess, append([]byte(nil), data[offset:end]...))
	})
}

func (d *Device) generateLogs(now time.Time) {
	const samplesPerFile = 360
	period := sdk.SamplePeriod(sdk.LogMode10s)
	start := uint32(now.Unix()) - uint32(d.opts.LogFiles*samplesPerFile)*period
	b := newBattery(d.rng)
	for f := 0; f < d.opts.LogFiles; f++ {
		h := sdk.LogHeader{
			Mode: sdk.LogMode10s,
			Time: start + uint32(f*samplesPerFile)*period,
			Mask: sdk.LogFieldV1 | sdk.LogFieldV2 | sdk.LogFieldI1 | sdk.LogFieldT1 | sdk.LogFieldSOC | sdk.LogFieldPS,
		}
		samples := make([]sdk.LogSample, samplesPerFile)
		for i := range samples {
			m := b.step(d.rng, time.Unix(int64(h.Time+uint32(i)*period), 0))
			samples[i] = sdk.LogSample{
				Voltage1:    m.Voltage1,
				Voltage2:    m.Voltage2,
				Current:     m.Current,
				Temperature: m.Temperature,
				SOC:         m.SOC,
				PowerStatus: uint8(m.PowerStatus),
			}
		}
		d.files[h.Time] = sdk.EncodeLog(h, samples)
	}
}

func (d *Device) String() string {
	return fmt.Sprintf("sim(%s %s)", d.opts.Identity.Name, sdk.SerialString(d.opts.Identity.Serial))
}
