package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sync/errgroup"

	"github.com/mil-ad/pmbridge/internal/bridge"
	"github.com/mil-ad/pmbridge/internal/protocol"
)

// daemon serves the line protocol on a unix socket. The device connection
// outlives client sessions; one client is served at a time.
type daemon struct {
	b  *bridge.Bridge
	a  *app
	wg sync.WaitGroup
}

func (d *daemon) handleConn(ctx context.Context, conn net.Conn) {
	defer d.wg.Done()
	defer conn.Close()

	err := d.b.Serve(ctx, conn, conn, bridge.ServeOptions{CancelOnEOF: true})
	switch {
	case errors.Is(err, bridge.ErrBusy):
		d.a.log.Info("refusing client, another session is active")
		_ = protocol.NewWriter(conn).Write(protocol.NewFatal("Bridge busy"))
	case err != nil:
		d.a.log.Warn("session ended", "err", err)
	default:
		d.a.log.Debug("session ended")
	}
}

func (d *daemon) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		d.wg.Add(1)
		go d.handleConn(ctx, conn)
	}
}

// watchAdapter keeps the reported BLE availability current.
func (d *daemon) watchAdapter(ctx context.Context, sigCh chan *dbus.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-sigCh:
			if !ok {
				return nil
			}
			powered, ok := poweredChange(sig)
			if !ok {
				continue
			}
			d.a.log.Info("bluetooth adapter changed", "powered", powered)
			d.b.SetBLEAvailable(powered)
		}
	}
}

func runDaemon(cfgPath string) error {
	signal.Ignore(syscall.SIGPIPE)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.close()

	dev, err := openDevice(a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("%s: %w", fatalDevice, err)
	}
	defer dev.Close()

	var (
		ble   bool
		sigCh chan *dbus.Signal
	)
	if a.cfg.BLE.Probe {
		if bz, err := newBluez(); err != nil {
			a.log.Info("bluetooth unavailable", "err", err)
		} else {
			defer bz.close()
			ble, _ = bz.adapterPowered()
			if sigCh, err = bz.subscribeAdapter(); err != nil {
				a.log.Warn("adapter changes not tracked", "err", err)
			}
		}
	}

	d := &daemon{b: bridge.New(dev, a.bridgeOptions(ble)), a: a}

	sock := a.cfg.Socket
	os.Remove(sock) // remove stale socket
	ln, err := net.Listen("unix", sock)
	if err != nil {
		return fmt.Errorf("listen %s: %w", sock, err)
	}
	os.Chmod(sock, 0o700)
	defer os.Remove(sock)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.acceptLoop(gctx, ln) })
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		return ln.Close()
	})
	if addr := a.cfg.Metrics.Addr; addr != "" {
		g.Go(func() error { return a.metrics.Serve(gctx, addr, a.log) })
	}
	if sigCh != nil {
		g.Go(func() error { return d.watchAdapter(gctx, sigCh) })
	}

	a.log.Info("listening", "socket", sock, "ble", ble)
	err = g.Wait()
	d.wg.Wait()

	stop()
	if serr := d.b.Shutdown(context.Background()); serr != nil {
		a.log.Warn("shutdown", "err", serr)
	}
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}
