// Package session tracks the link to one device. Transitions are driven by
// driver notifications; callers only ask for a connection attempt.
package session

import (
	"log/slog"
	"sync"

	"github.com/mil-ad/pmbridge/internal/sdk"
)

// Transition describes one state change.
type Transition struct {
	From   sdk.State
	To     sdk.State
	Reason sdk.DisconnectReason // set when To is StateDisconnected
}

// Observer is called once per transition, in transition order.
type Observer func(Transition)

type Options struct {
	Logger   *slog.Logger
	Observer Observer
}

type Session struct {
	log      *slog.Logger
	observer Observer

	notify sync.Mutex // orders observer calls

	mu      sync.Mutex
	state   sdk.State
	reason  sdk.DisconnectReason
	dropped bool // a disconnect has been seen
	down    chan struct{}
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		log:      opts.Logger,
		observer: opts.Observer,
		down:     closedCh,
	}
}

func (s *Session) State() sdk.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsConnected() bool { return s.State() == sdk.StateConnected }

// Active reports Connecting or Connected.
func (s *Session) Active() bool { return s.State() != sdk.StateDisconnected }

// LastReason returns the reason attached to the most recent disconnect.
func (s *Session) LastReason() (sdk.DisconnectReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason, s.dropped
}

// Done is closed when the current connection attempt ends. While
// Disconnected it returns a closed channel.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

// BeginConnect moves Disconnected to Connecting. It returns false, changing
// nothing, from any other state.
func (s *Session) BeginConnect() bool {
	return s.transition(func() (Transition, bool) {
		if s.state != sdk.StateDisconnected {
			return Transition{}, false
		}
		s.state = sdk.StateConnecting
		s.down = make(chan struct{})
		return Transition{From: sdk.StateDisconnected, To: sdk.StateConnecting}, true
	})
}

// HandleConnected applies the driver's connect notification. It is accepted
// only while Connecting.
func (s *Session) HandleConnected() bool {
	ok := s.transition(func() (Transition, bool) {
		if s.state != sdk.StateConnecting {
			return Transition{}, false
		}
		s.state = sdk.StateConnected
		return Transition{From: sdk.StateConnecting, To: sdk.StateConnected}, true
	})
	if !ok {
		s.log.Warn("connect notification ignored", "state", s.State())
	}
	return ok
}

// HandleDisconnected applies the driver's disconnect notification from
// Connecting or Connected.
func (s *Session) HandleDisconnected(reason sdk.DisconnectReason) bool {
	ok := s.transition(func() (Transition, bool) {
		if s.state == sdk.StateDisconnected {
			return Transition{}, false
		}
		t := Transition{From: s.state, To: sdk.StateDisconnected, Reason: reason}
		s.state = sdk.StateDisconnected
		s.reason = reason
		s.dropped = true
		close(s.down)
		s.down = closedCh
		return t, true
	})
	if !ok {
		s.log.Warn("disconnect notification ignored", "reason", reason)
	}
	return ok
}

func (s *Session) transition(apply func() (Transition, bool)) bool {
	s.notify.Lock()
	defer s.notify.Unlock()

	s.mu.Lock()
	t, ok := apply()
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.log.Debug("session transition", "from", t.From, "to", t.To)
	if s.observer != nil {
		s.observer(t)
	}
	return true
}
