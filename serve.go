package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mil-ad/pmbridge/internal/bridge"
	"github.com/mil-ad/pmbridge/internal/protocol"
)

// fatalDevice is sent when no driver instance can be created.
const fatalDevice = "Failed to create device instance"

func writeFatal(w io.Writer, message string) {
	_ = protocol.NewWriter(w).Write(protocol.NewFatal(message))
}

func runServe(cfgPath string) error {
	signal.Ignore(syscall.SIGPIPE)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cfgPath)
	if err != nil {
		writeFatal(os.Stdout, err.Error())
		return err
	}
	defer a.close()

	dev, err := openDevice(a.cfg, a.log)
	if err != nil {
		writeFatal(os.Stdout, fatalDevice)
		return err
	}
	defer dev.Close()

	ble := a.cfg.BLE.Probe && probeBLE()
	b := bridge.New(dev, a.bridgeOptions(ble))

	if addr := a.cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, addr, a.log); err != nil {
				a.log.Warn("metrics disabled", "err", err)
			}
		}()
	}

	a.log.Debug("serving stdio", "driver", a.cfg.Driver.Name, "ble", ble)
	serveErr := b.Serve(ctx, os.Stdin, os.Stdout, bridge.ServeOptions{})

	// A second signal during the disconnect wait kills the process.
	stop()
	if err := b.Shutdown(context.Background()); err != nil {
		a.log.Warn("shutdown", "err", err)
	}
	return serveErr
}
