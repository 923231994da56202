package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mil-ad/pmbridge/internal/binding"
	"github.com/mil-ad/pmbridge/internal/logsync"
	"github.com/mil-ad/pmbridge/internal/protocol"
	"github.com/mil-ad/pmbridge/internal/sdk"
)

const connectTimeout = 30 * time.Second

var errConnectTimeout = errors.New("connect timed out")

// sinceTime checks a -since value against the device's 32-bit timestamps.
func sinceTime(v int64) (uint32, error) {
	if v < 0 || v > math.MaxUint32 {
		return 0, fmt.Errorf("-since %d: outside the device time range 0..%d", v, uint32(math.MaxUint32))
	}
	return uint32(v), nil
}

// runSync copies the device's data log through the binding and prints the
// samples as JSON lines.
func runSync(cfgPath string, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	statePath := fs.String("state", "", "sync state file, read and updated")
	since := fs.Int64("since", 0, "only samples after this UNIX time")
	_ = fs.Parse(args)
	if fs.NArg() > 1 {
		return fmt.Errorf("usage: pmbridge sync [-state file] [-since unix] <device|url>")
	}
	sinceTS, err := sinceTime(*since)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.close()

	url, err := a.cfg.ResolveDevice(fs.Arg(0))
	if err != nil {
		return err
	}
	target, ok := binding.ParseAccessURL(url)
	if !ok {
		return fmt.Errorf("invalid access URL")
	}

	drv, err := openDevice(a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("%s: %w", fatalDevice, err)
	}
	loop := binding.NewLoop()
	loopDone := make(chan struct{})
	go func() {
		loop.Run()
		close(loopDone)
	}()
	dev := binding.New(loop, drv, binding.Options{Logger: a.log})
	defer func() {
		_ = dev.Close()
		loop.Close()
		<-loopDone
	}()

	if err := connectAndWait(ctx, dev, target.AccessKey); err != nil {
		return err
	}

	st := logsync.NewState(target.Serial)
	if *statePath != "" {
		if st, err = logsync.LoadState(*statePath, target.Serial); err != nil {
			return err
		}
	}
	opts := logsync.Options{
		Logger: a.log,
		OnProgress: func(p logsync.Progress) {
			a.log.Info("sync", "phase", p.Phase, "files", p.FilesCompleted, "of", p.FilesTotal,
				"samples", p.SamplesRetrieved, "msg", p.Message)
		},
	}

	var res logsync.Result
	if sinceTS > 0 {
		res, err = logsync.SyncSince(ctx, dev, target.Serial, sinceTS, opts)
	} else {
		res, err = logsync.Sync(ctx, dev, st, opts)
	}
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	enc := json.NewEncoder(out)
	for _, s := range res.Samples {
		if err := enc.Encode(protocol.NewLogSample(s)); err != nil {
			return err
		}
	}
	if err := out.Flush(); err != nil {
		return err
	}

	for _, ferr := range res.FileErrors {
		a.log.Warn("file skipped", "err", ferr)
	}
	if *statePath != "" && sinceTS == 0 {
		return logsync.SaveState(*statePath, res.State)
	}
	return nil
}

// connectAndWait blocks until the link is up or has failed.
func connectAndWait(ctx context.Context, dev *binding.Device, key sdk.AccessKey) error {
	up := make(chan struct{}, 1)
	down := make(chan sdk.DisconnectReason, 1)
	onDown := func(r sdk.DisconnectReason) {
		select {
		case down <- r:
		default:
		}
	}
	err := dev.Connect(binding.ConnectOptions{
		AccessKey:    &key,
		OnConnect:    func() { up <- struct{}{} },
		OnDisconnect: onDown,
	})
	if err != nil {
		return err
	}

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()
	select {
	case <-up:
		return nil
	case r := <-down:
		return fmt.Errorf("connect failed: %s", r)
	case <-timer.C:
		return errConnectTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
