// Package bridgeclient drives a bridge over its line protocol, either as a
// child process on stdio or through the daemon's unix socket.
package bridgeclient

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mil-ad/pmbridge/internal/protocol"
)

const (
	DefaultStartupTimeout = 10 * time.Second
	defaultEventBuffer    = 256
	quitTimeout           = time.Second
)

var (
	ErrClosed         = errors.New("bridgeclient: client closed")
	ErrBridgeExited   = errors.New("bridgeclient: bridge exited")
	ErrStartupTimeout = errors.New("bridgeclient: bridge startup timeout")
)

// CommandError is a command the bridge refused with an error message.
type CommandError struct {
	ID      string
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// FatalError is a fatal message the bridge sent before exiting.
type FatalError struct {
	Message string
}

func (e *FatalError) Error() string { return "bridge fatal: " + e.Message }

type Options struct {
	Logger         *slog.Logger
	StartupTimeout time.Duration
	EventBuffer    int
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = DefaultStartupTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defaultEventBuffer
	}
}

// Client correlates commands with their terminal messages. Everything else,
// including terminal messages of commands sent with Send or Stream, arrives
// on Events.
type Client struct {
	log     *slog.Logger
	pending *pendingCalls
	events  chan protocol.Incoming

	wmu sync.Mutex
	w   io.WriteCloser

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}

	proc    *exec.Cmd
	procErr chan error

	closeOnce sync.Once
}

// New wraps an established stream. It does not wait for the ready event; use
// WaitReady.
func New(r io.Reader, w io.WriteCloser, opts Options) *Client {
	opts.defaults()
	c := &Client{
		log:     opts.Logger,
		pending: newPendingCalls(),
		events:  make(chan protocol.Incoming, opts.EventBuffer),
		w:       w,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// Start runs the bridge binary and waits for it to report ready.
func Start(ctx context.Context, path string, args []string, opts Options) (*Client, error) {
	opts.defaults()
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start bridge: %w", err)
	}

	c := New(stdout, stdin, opts)
	c.proc = cmd
	c.procErr = make(chan error, 1)
	go func() {
		// Wait must follow the last stdout read.
		<-c.done
		c.procErr <- cmd.Wait()
	}()

	if err := c.waitStartup(ctx, opts.StartupTimeout); err != nil {
		_ = cmd.Process.Kill()
		c.Close()
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 && !errors.As(err, new(*FatalError)) {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return c, nil
}

// Dial connects to a daemon socket and waits for ready.
func Dial(ctx context.Context, socket string, opts Options) (*Client, error) {
	opts.defaults()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", socket, err)
	}
	c := New(conn, conn, opts)
	if err := c.waitStartup(ctx, opts.StartupTimeout); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) waitStartup(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := c.WaitReady(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrStartupTimeout
	}
	return err
}

// WaitReady blocks until the ready event, the end of the stream or ctx.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return c.pending.failure()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) readLoop(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			c.handleLine(line)
		}
		if err != nil {
			c.shutdown(err)
			return
		}
	}
}

func (c *Client) handleLine(line []byte) {
	msg, err := protocol.Decode(line)
	if err != nil {
		c.log.Warn("unparseable bridge output", "line", string(line), "err", err)
		return
	}
	switch {
	case msg.Type == protocol.TypeFatal:
		c.log.Error("bridge fatal", "message", msg.Message)
		c.pending.fail(&FatalError{Message: msg.Message})
		return
	case msg.Type == protocol.TypeEvent && msg.Event == protocol.EventReady:
		c.readyOnce.Do(func() { close(c.ready) })
		return
	case msg.Terminal() && c.pending.resolve(msg):
		return
	}
	select {
	case c.events <- msg:
	default:
		c.log.Warn("event dropped, consumer too slow", "type", msg.Type, "event", msg.Event)
	}
}

// shutdown runs once the output stream ends.
func (c *Client) shutdown(cause error) {
	err := ErrBridgeExited
	if cause != nil && !errors.Is(cause, io.EOF) && !errors.Is(cause, net.ErrClosed) {
		err = fmt.Errorf("%w: %v", ErrBridgeExited, cause)
	}
	c.pending.fail(err)
	close(c.events)
	close(c.done)
}

// Events delivers events and unclaimed terminal messages. It is closed when
// the bridge goes away.
func (c *Client) Events() <-chan protocol.Incoming { return c.events }

// Done is closed when the bridge output ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why pending calls were failed, if they were.
func (c *Client) Err() error { return c.pending.failure() }

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(crand.Reader, 0)
)

func newID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return "cmd_" + ulid.MustNew(ulid.Now(), entropy).String()
}

func (c *Client) write(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := io.WriteString(c.w, line+"\n"); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

// Send writes a command without waiting for it and returns its id.
func (c *Client) Send(command string, args ...string) (string, error) {
	if err := c.pending.failure(); err != nil {
		return "", err
	}
	id := newID()
	return id, c.write(protocol.Line(id, command, args...))
}

// Call sends a command and waits for its terminal message. A refused command
// yields a *CommandError. When ctx ends first the late reply is discarded.
func (c *Client) Call(ctx context.Context, command string, args ...string) (protocol.Incoming, error) {
	id := newID()
	ch, err := c.pending.register(id)
	if err != nil {
		return protocol.Incoming{}, err
	}
	if err := c.write(protocol.Line(id, command, args...)); err != nil {
		c.pending.drop(id)
		return protocol.Incoming{}, err
	}
	c.log.Debug("call", "id", id, "command", command)

	select {
	case msg, ok := <-ch:
		if !ok {
			return protocol.Incoming{}, c.pending.failure()
		}
		if msg.Type == protocol.TypeError {
			return msg, &CommandError{ID: id, Command: command, Message: msg.Message}
		}
		return msg, nil
	case <-ctx.Done():
		c.pending.drop(id)
		return protocol.Incoming{}, ctx.Err()
	}
}

// Stream starts a streaming command. Its monitor events and its terminal
// result arrive on Events.
func (c *Client) Stream(interval time.Duration, count int) (string, error) {
	return c.Send("stream", strconv.FormatInt(interval.Milliseconds(), 10), strconv.Itoa(count))
}

// Close asks the bridge to quit, waits briefly for it to hang up and releases
// the stream. A child process that does not exit within a second is killed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		select {
		case <-c.done:
		default:
			ctx, cancel := context.WithTimeout(context.Background(), quitTimeout)
			if _, qerr := c.Call(ctx, "quit"); qerr != nil {
				c.log.Debug("quit", "err", qerr)
			}
			// The bridge ends the stream once its session is over.
			select {
			case <-c.done:
			case <-ctx.Done():
			}
			cancel()
		}
		c.pending.fail(ErrClosed)
		err = c.w.Close()

		if c.proc == nil {
			return
		}
		select {
		case werr := <-c.procErr:
			err = errors.Join(err, ignoreExit(werr))
		case <-time.After(quitTimeout):
			_ = c.proc.Process.Kill()
			<-c.procErr
		}
	})
	return err
}

func ignoreExit(err error) error {
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return nil
	}
	return err
}
