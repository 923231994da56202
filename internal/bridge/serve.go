package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mil-ad/pmbridge/internal/infra/metrics"
	"github.com/mil-ad/pmbridge/internal/protocol"
)

type ServeOptions struct {
	// CancelOnEOF abandons the running command when input ends. Socket
	// sessions set it; on stdio the command finishes first.
	CancelOnEOF bool
}

// Serve reads commands from r and writes messages to w until input ends,
// quit or exit is received, or ctx is done. It emits the ready event first.
// Only one Serve runs at a time; events go to its writer while it runs.
func (b *Bridge) Serve(ctx context.Context, r io.Reader, w io.Writer, opts ServeOptions) error {
	if !b.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer b.busy.Store(false)

	out := protocol.NewWriter(w)
	b.sink.Store(out)
	defer b.sink.CompareAndSwap(out, nil)

	if err := out.Write(protocol.NewEvent(protocol.EventReady)); err != nil {
		return err
	}

	cmdCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	onEOF := func() {}
	if opts.CancelOnEOF {
		onEOF = cancel
	}

	stop := make(chan struct{})
	defer close(stop)
	lines := make(chan string)
	readErr := make(chan error, 1)
	go readLines(r, lines, stop, readErr, onEOF)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			cmd, ok := protocol.ParseCommand(line)
			if !ok {
				continue
			}
			if cmd.Name == "quit" || cmd.Name == "exit" {
				b.metrics.RecordCommand(cmd.Name, metrics.OutcomeOK)
				return out.Write(protocol.OK(cmd.ID, nil))
			}
			msg := b.Dispatch(cmdCtx, cmd)
			if msg == nil {
				// Abandoned: shutdown or hang-up.
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
			if err := out.Write(msg); err != nil {
				return fmt.Errorf("write response %s: %w", cmd.ID, err)
			}
		}
	}
}

func readLines(r io.Reader, lines chan<- string, stop <-chan struct{}, errc chan<- error, onEOF func()) {
	defer close(lines)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			select {
			case lines <- line:
			case <-stop:
				errc <- nil
				return
			}
		}
		if err != nil {
			onEOF()
			if errors.Is(err, io.EOF) {
				err = nil
			}
			errc <- err
			return
		}
	}
}
