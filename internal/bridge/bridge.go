// Package bridge serves the line protocol on top of an asynchronous device
// driver. Commands run one at a time; every command gets exactly one
// response unless shutdown abandons it.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mil-ad/pmbridge/internal/infra/metrics"
	"github.com/mil-ad/pmbridge/internal/protocol"
	"github.com/mil-ad/pmbridge/internal/sdk"
	"github.com/mil-ad/pmbridge/internal/session"
)

// Resolver maps the argument of connect to an access URL.
type Resolver func(string) (string, error)

type Options struct {
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	Resolver        Resolver
	BLEAvailable    bool
	StreamInterval  time.Duration // used when stream omits an interval
	StreamCount     int
	ShutdownTimeout time.Duration
}

type Bridge struct {
	dev      sdk.Device
	sess     *session.Session
	log      *slog.Logger
	metrics  *metrics.Metrics
	opts     Options
	handlers map[string]handler

	busy atomic.Bool                     // a Serve loop is running
	sink atomic.Pointer[protocol.Writer] // receives events
	ble  atomic.Bool
}

var ErrBusy = errors.New("bridge: already serving a client")

// New wires the bridge to dev. It installs the driver's connect and
// disconnect callbacks.
func New(dev sdk.Device, opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = 2 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	b := &Bridge{
		dev:     dev,
		log:     opts.Logger,
		metrics: opts.Metrics,
		opts:    opts,
	}
	b.ble.Store(opts.BLEAvailable)
	b.sess = session.New(session.Options{Logger: opts.Logger, Observer: b.onTransition})
	b.handlers = b.handlerTable()

	dev.SetOnConnect(func() { b.sess.HandleConnected() })
	dev.SetOnDisconnect(func(r sdk.DisconnectReason) { b.sess.HandleDisconnected(r) })
	return b
}

// SetBLEAvailable updates what status reports, for when the adapter comes
// and goes.
func (b *Bridge) SetBLEAvailable(ok bool) { b.ble.Store(ok) }

// Session exposes the link state.
func (b *Bridge) Session() *session.Session { return b.sess }

func (b *Bridge) onTransition(t session.Transition) {
	b.metrics.SetConnectionState(t.To)
	switch t.To {
	case sdk.StateConnected:
		b.log.Info("device connected")
		b.emit(protocol.NewEvent(protocol.EventConnected))
	case sdk.StateDisconnected:
		b.log.Info("device disconnected", "reason", t.Reason, "from", t.From)
		b.metrics.RecordDisconnect(t.Reason)
		b.emit(protocol.NewEvent(protocol.EventDisconnected, "reason", int(t.Reason)))
	}
}

// emit sends an event to the attached client, if any.
func (b *Bridge) emit(ev protocol.Event) {
	w := b.sink.Load()
	if w == nil {
		b.log.Debug("event dropped, no client", "event", ev.Name)
		return
	}
	if err := w.Write(ev); err != nil {
		b.log.Warn("write event", "event", ev.Name, "err", err)
	}
}

// Shutdown disconnects an active link and waits for the driver to confirm,
// bounded by ShutdownTimeout and ctx.
func (b *Bridge) Shutdown(ctx context.Context) error {
	if !b.sess.Active() {
		return nil
	}
	done := b.sess.Done()
	b.dev.Disconnect()

	timer := time.NewTimer(b.opts.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		b.log.Warn("disconnect not confirmed", "timeout", b.opts.ShutdownTimeout)
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}
