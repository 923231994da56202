package bridge

import (
	"context"
	"strconv"
	"time"

	"github.com/mil-ad/pmbridge/internal/infra/tracer"
	"github.com/mil-ad/pmbridge/internal/protocol"
)

// streamArgs reads "[intervalMs] [count]". A token that is not a
// non-negative integer leaves that value and the ones after it at their
// defaults.
func (b *Bridge) streamArgs(args []string) (time.Duration, int) {
	interval, count := b.opts.StreamInterval, b.opts.StreamCount
	if len(args) < 1 {
		return interval, count
	}
	ms, err := strconv.Atoi(args[0])
	if err != nil || ms < 0 {
		return interval, count
	}
	interval = time.Duration(ms) * time.Millisecond
	if len(args) < 2 {
		return interval, count
	}
	if n, err := strconv.Atoi(args[1]); err == nil && n >= 0 {
		count = n
	}
	return interval, count
}

// stream polls monitor data until count attempts are made (0 is unbounded),
// the link drops or ctx is done. Failed polls count as attempts but emit no
// event. A stream ended by ctx is abandoned and has no terminal result.
func (b *Bridge) stream(ctx context.Context, cmd protocol.Command) (protocol.Message, error) {
	if !b.sess.IsConnected() {
		return nil, ErrNotConnected
	}
	interval, count := b.streamArgs(cmd.Args)
	down := b.sess.Done()
	log := b.log.With("id", cmd.ID)
	log.Debug("stream started", "interval", interval, "count", count)

	attempts, emitted := 0, 0
	for ctx.Err() == nil && b.sess.IsConnected() && (count == 0 || attempts < count) {
		ok, err := b.sample(ctx)
		if err != nil {
			return nil, err
		}
		attempts++
		if ok {
			emitted++
		}
		if count != 0 && attempts >= count {
			break
		}
		if !wait(ctx, down, interval) {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Debug("stream finished", "attempts", attempts, "samples", emitted)
	return protocol.OK(cmd.ID, protocol.StreamSummary{Samples: emitted}), nil
}

func (b *Bridge) sample(ctx context.Context) (bool, error) {
	ctx, span := tracer.StartSpan(ctx, "stream.sample")
	defer span.End()

	code, m, err := request(ctx, b, "monitor", b.dev.RequestGetMonitorData)
	if err != nil {
		tracer.RecordError(span, err)
		return false, err
	}
	span.SetAttributes(tracer.IntAttr("code", int(code)))
	b.metrics.RecordSample(code.OK())
	if !code.OK() {
		return false, nil
	}
	b.emit(protocol.NewEvent(protocol.EventMonitor, "data", protocol.NewMonitor(m)))
	return true, nil
}

// wait sleeps for d. It returns false early when ctx is done or the link
// goes down.
func wait(ctx context.Context, down <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-down:
		return false
	}
}
