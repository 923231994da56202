package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mil-ad/pmbridge/internal/bridgeclient"
	"github.com/mil-ad/pmbridge/internal/config"
	"github.com/mil-ad/pmbridge/internal/protocol"
)

// runCall sends one command to the daemon and prints every message up to and
// including its terminal one.
func runCall(cfgPath, command string, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bridgeclient.Dial(ctx, cfg.Socket, bridgeclient.Options{})
	if err != nil {
		return fmt.Errorf("%w (is `pmbridge daemon` running?)", err)
	}
	defer c.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	return relay(ctx, c, out, command, args)
}

func relay(ctx context.Context, c *bridgeclient.Client, out *bufio.Writer, command string, args []string) error {
	id, err := c.Send(command, args...)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-c.Events():
			if !ok {
				return c.Err()
			}
			if err := printLine(out, m); err != nil {
				return err
			}
			if m.Terminal() && m.ID == id {
				if m.Type == protocol.TypeError {
					return &bridgeclient.CommandError{ID: id, Command: command, Message: m.Message}
				}
				return nil
			}
		}
	}
}

func printLine(w *bufio.Writer, m protocol.Incoming) error {
	if _, err := w.Write(m.Raw); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

