package bridgeclient

import (
	"sync"

	"github.com/mil-ad/pmbridge/internal/protocol"
)

// pendingCalls tracks commands awaiting their terminal message. Once failed,
// it refuses new registrations with the recorded error.
type pendingCalls struct {
	mu      sync.Mutex
	pending map[string]chan protocol.Incoming
	err     error
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{pending: map[string]chan protocol.Incoming{}}
}

func (p *pendingCalls) register(id string) (<-chan protocol.Incoming, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan protocol.Incoming, 1)
	p.pending[id] = ch
	return ch, nil
}

func (p *pendingCalls) drop(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

// resolve hands msg to the caller waiting on msg.ID.
func (p *pendingCalls) resolve(msg protocol.Incoming) bool {
	p.mu.Lock()
	ch, ok := p.pending[msg.ID]
	delete(p.pending, msg.ID)
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- msg
	close(ch)
	return true
}

// fail closes every waiting channel. The first error sticks.
func (p *pendingCalls) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	waiting := p.pending
	p.pending = map[string]chan protocol.Incoming{}
	p.mu.Unlock()
	for _, ch := range waiting {
		close(ch)
	}
}

func (p *pendingCalls) failure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
