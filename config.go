package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mil-ad/pmbridge/internal/bridge"
	"github.com/mil-ad/pmbridge/internal/config"
	"github.com/mil-ad/pmbridge/internal/infra/logger"
	"github.com/mil-ad/pmbridge/internal/infra/metrics"
	"github.com/mil-ad/pmbridge/internal/infra/tracer"
	"github.com/mil-ad/pmbridge/internal/sdk"
	"github.com/mil-ad/pmbridge/internal/sdk/sim"
)

var errUnknownDriver = errors.New("unknown device driver")

// app is the configured process-wide stack shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Metrics
	closers []func() error
}

func setup(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return shutdownTracer(ctx)
	}, closeLog)
	return a, nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("cleanup", "err", err)
		}
	}
}

// openDevice creates the configured driver instance.
func openDevice(cfg *config.Config, log *slog.Logger) (sdk.Device, error) {
	switch cfg.Driver.Name {
	case "sim":
		return sim.New(sim.Options{
			Latency:  cfg.Driver.Latency,
			Seed:     cfg.Driver.Seed,
			LogFiles: cfg.Driver.LogFiles,
			Logger:   log,
		})
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownDriver, cfg.Driver.Name)
	}
}

func (a *app) bridgeOptions(ble bool) bridge.Options {
	return bridge.Options{
		Logger:          a.log,
		Metrics:         a.metrics,
		Resolver:        a.cfg.ResolveDevice,
		BLEAvailable:    ble,
		StreamInterval:  a.cfg.Stream.Interval,
		StreamCount:     a.cfg.Stream.Count,
		ShutdownTimeout: a.cfg.ShutdownTimeout,
	}
}
