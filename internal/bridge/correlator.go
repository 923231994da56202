package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/mil-ad/pmbridge/internal/sdk"
)

// pendingCall is the completion token of one outstanding device request.
// The first callback wins; later ones are dropped.
type pendingCall[T any] struct {
	once  sync.Once
	reply chan reply[T]
}

type reply[T any] struct {
	code sdk.ResponseCode
	v    T
}

func newPendingCall[T any]() *pendingCall[T] {
	return &pendingCall[T]{reply: make(chan reply[T], 1)}
}

func (p *pendingCall[T]) complete(code sdk.ResponseCode, v T) {
	p.once.Do(func() { p.reply <- reply[T]{code, v} })
}

// call issues one request and blocks until its callback fires or ctx is done.
// On ctx the request is abandoned: its eventual callback lands in the
// buffered channel and is discarded.
func call[T any](ctx context.Context, issue func(func(sdk.ResponseCode, T))) (sdk.ResponseCode, T, error) {
	p := newPendingCall[T]()
	issue(p.complete)
	select {
	case r := <-p.reply:
		return r.code, r.v, nil
	case <-ctx.Done():
		var zero T
		return 0, zero, ctx.Err()
	}
}

// request is call plus latency accounting.
func request[T any](ctx context.Context, b *Bridge, op string, issue func(func(sdk.ResponseCode, T))) (sdk.ResponseCode, T, error) {
	start := time.Now()
	code, v, err := call(ctx, issue)
	if err == nil {
		b.metrics.ObserveRequest(op, time.Since(start))
	}
	if err == nil && !code.OK() {
		b.log.Debug("device request failed", "operation", op, "code", int(code))
	}
	return code, v, err
}
