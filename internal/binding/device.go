package binding

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/mil-ad/pmbridge/internal/sdk"
	"github.com/mil-ad/pmbridge/internal/session"
)

var (
	ErrNotConnected  = errors.New("binding: not connected")
	ErrAlreadyActive = errors.New("binding: already connected or connecting")
	ErrInvalidURL    = errors.New("binding: invalid access URL")
	ErrNoTarget      = errors.New("binding: either an access key or a url is required")
	ErrClosed        = errors.New("binding: device closed")
)

// Result is what an asynchronous getter delivers.
type Result[T any] struct {
	Success bool
	Code    sdk.ResponseCode
	Data    T
}

func newResult[T any](code sdk.ResponseCode, v T) Result[T] {
	r := Result[T]{Success: code.OK(), Code: code}
	if r.Success {
		r.Data = v
	}
	return r
}

// ConnectOptions name the device by access key or by URL. The callbacks
// stay registered until the next Connect or Close.
type ConnectOptions struct {
	AccessKey    *sdk.AccessKey
	URL          string
	OnConnect    func()
	OnDisconnect func(sdk.DisconnectReason)
}

type Options struct {
	Logger       *slog.Logger
	BLEAvailable bool
}

// Device is a handle on one driver instance. Methods return immediately;
// callbacks run on the loop.
type Device struct {
	loop *Loop
	dev  sdk.Device
	sess *session.Session
	log  *slog.Logger
	ble  bool

	mu           sync.Mutex
	closed       bool
	onConnect    *listener[struct{}]
	onDisconnect *listener[sdk.DisconnectReason]
}

// New takes ownership of dev; Close closes it.
func New(loop *Loop, dev sdk.Device, opts Options) *Device {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Device{
		loop: loop,
		dev:  dev,
		log:  opts.Logger,
		ble:  opts.BLEAvailable,
	}
	d.sess = session.New(session.Options{Logger: opts.Logger})
	dev.SetOnConnect(d.handleConnect)
	dev.SetOnDisconnect(d.handleDisconnect)
	return d
}

// The transition and the listener snapshot share d.mu with Connect, so a
// notification reaches the listeners of the attempt it belongs to.
func (d *Device) handleConnect() {
	d.mu.Lock()
	ok := d.sess.HandleConnected()
	l := d.onConnect
	d.mu.Unlock()
	if ok {
		l.invoke(struct{}{})
	}
}

func (d *Device) handleDisconnect(reason sdk.DisconnectReason) {
	d.mu.Lock()
	ok := d.sess.HandleDisconnected(reason)
	l := d.onDisconnect
	d.mu.Unlock()
	if ok {
		l.invoke(reason)
	}
}

// Connect starts a WiFi connection. The outcome arrives through the
// callbacks in opts.
func (d *Device) Connect(opts ConnectOptions) error {
	var key sdk.AccessKey
	switch {
	case opts.AccessKey != nil:
		key = *opts.AccessKey
	case opts.URL != "":
		id, ok := sdk.ParseURL(opts.URL)
		if !ok {
			return ErrInvalidURL
		}
		key = id.AccessKey
	default:
		return ErrNoTarget
	}

	var connectFn func(struct{})
	if onConnect := opts.OnConnect; onConnect != nil {
		connectFn = func(struct{}) { onConnect() }
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if !d.sess.BeginConnect() {
		d.mu.Unlock()
		return ErrAlreadyActive
	}
	d.onConnect.release()
	d.onDisconnect.release()
	d.onConnect = newListener(d.loop, connectFn)
	d.onDisconnect = newListener(d.loop, opts.OnDisconnect)
	d.mu.Unlock()

	d.dev.ConnectWifi(key)
	return nil
}

// Disconnect is a no-op unless connecting or connected.
func (d *Device) Disconnect() {
	if d.sess.Active() {
		d.dev.Disconnect()
	}
}

func (d *Device) IsConnected() bool { return d.sess.IsConnected() }

// IsBLEAvailable reports the capability probed at startup. WiFi connections
// do not depend on it.
func (d *Device) IsBLEAvailable() bool { return d.ble }

func (d *Device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// get issues one request whose result is delivered once on the loop.
func get[T any](d *Device, issue func(func(sdk.ResponseCode, T)), cb func(Result[T])) error {
	if d.isClosed() {
		return ErrClosed
	}
	if !d.sess.IsConnected() {
		return ErrNotConnected
	}
	proxy := newOneShot(d.loop, cb)
	issue(func(code sdk.ResponseCode, v T) {
		if !proxy.invoke(newResult(code, v)) {
			d.log.Debug("result dropped", "code", int(code))
		}
	})
	return nil
}

func (d *Device) GetInfo(cb func(Result[sdk.DeviceInfo])) error {
	return get(d, d.dev.RequestGetInfo, cb)
}

func (d *Device) GetMonitorData(cb func(Result[sdk.MonitorData])) error {
	return get(d, d.dev.RequestGetMonitorData, cb)
}

func (d *Device) GetStatistics(cb func(Result[sdk.MonitorStatistics])) error {
	return get(d, d.dev.RequestGetStatistics, cb)
}

func (d *Device) GetFuelgaugeStatistics(cb func(Result[sdk.FuelgaugeStatistics])) error {
	return get(d, d.dev.RequestGetFgStatistics, cb)
}

func (d *Device) GetLogFileList(cb func(Result[[]sdk.LogFileDescriptor])) error {
	return get(d, d.dev.RequestGetLogFileList, cb)
}

// ReadLogFile delivers a private copy of the bytes. A successful empty read
// has nil Data.
func (d *Device) ReadLogFile(fileID, offset, size uint32, cb func(Result[[]byte])) error {
	return get(d, func(done func(sdk.ResponseCode, []byte)) {
		d.dev.RequestReadLogFile(fileID, offset, size, func(code sdk.ResponseCode, data []byte) {
			var cp []byte
			if len(data) > 0 {
				cp = append([]byte(nil), data...)
			}
			done(code, cp)
		})
	}, cb)
}

// Close revokes the notification callbacks, disconnects and closes the
// driver. It is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.onConnect.release()
	d.onDisconnect.release()
	d.mu.Unlock()

	if d.sess.Active() {
		d.dev.Disconnect()
	}
	return d.dev.Close()
}
