package logsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mil-ad/pmbridge/internal/binding"
	"github.com/mil-ad/pmbridge/internal/infra/tracer"
	"github.com/mil-ad/pmbridge/internal/sdk"
)

const DefaultChunkSize = 4096

type Phase string

const (
	PhaseListing  Phase = "listing"
	PhaseReading  Phase = "reading"
	PhaseDecoding Phase = "decoding"
	PhaseComplete Phase = "complete"
	PhaseError    Phase = "error"
)

type Progress struct {
	Phase            Phase
	FilesTotal       int
	FilesCompleted   int
	SamplesRetrieved int
	Message          string
}

type Options struct {
	ChunkSize  uint32
	OnProgress func(Progress)
	Logger     *slog.Logger
	Now        func() time.Time
}

// Result carries the samples in file order and the state to persist.
// FileErrors holds one entry per file that could not be read or decoded.
type Result struct {
	FilesProcessed int
	Samples        []sdk.LogSample
	State          State
	FileErrors     []error
}

// Sync blocks until the device's log has been read. The binding's loop must
// be running on another goroutine. An error is returned only when the file
// list cannot be fetched or ctx ends; the returned state is then unchanged.
func Sync(ctx context.Context, dev *binding.Device, st State, opts Options) (Result, error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger.With("serial", st.DeviceSerial)

	ctx, span := tracer.StartSpan(ctx, "logsync.sync")
	defer span.End()

	var p Progress
	report := func(phase Phase, msg string) {
		p.Phase, p.Message = phase, msg
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
	}
	fail := func(err error) (Result, error) {
		tracer.RecordError(span, err)
		report(PhaseError, err.Error())
		return Result{State: st, Samples: []sdk.LogSample{}}, err
	}

	report(PhaseListing, "Getting log file list...")
	list, err := await(ctx, dev.GetLogFileList)
	if err != nil {
		return fail(err)
	}
	if !list.Success {
		return fail(fmt.Errorf("get log file list: code %d", list.Code))
	}

	files := FilesToSync(list.Data, st)
	p.FilesTotal = len(files)
	span.SetAttributes(tracer.IntAttr("files", len(files)))
	if len(files) == 0 {
		report(PhaseComplete, "Already up to date")
		return Result{State: st, Samples: []sdk.LogSample{}}, nil
	}
	report(PhaseReading, fmt.Sprintf("%d files to sync", len(files)))

	res := Result{Samples: []sdk.LogSample{}}
	next := st
	for i, f := range files {
		p.FilesCompleted = i
		report(PhaseReading, fmt.Sprintf("Reading file %d/%d (%d bytes)", i+1, len(files), f.Size))

		data, err := readFile(ctx, dev, f, opts.ChunkSize)
		if err != nil {
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			log.Warn("read log file", "file", f.ID, "err", err)
			res.FileErrors = append(res.FileErrors, err)
			continue
		}

		report(PhaseDecoding, fmt.Sprintf("Decoding %d bytes...", len(data)))
		decoded := binding.DecodeLogData(data)
		if !decoded.Success {
			err := fmt.Errorf("decode log file %d: status %d", f.ID, decoded.Code)
			log.Warn("decode log file", "file", f.ID, "code", decoded.Code)
			res.FileErrors = append(res.FileErrors, err)
			continue
		}

		fresh := 0
		for _, s := range decoded.Samples {
			if s.Time <= st.LastSampleTime {
				continue
			}
			res.Samples = append(res.Samples, s)
			next.LastSampleTime = max(next.LastSampleTime, s.Time)
			fresh++
		}
		next.LastFileID = f.ID
		next.LastFileOffset = uint32(len(data))
		p.SamplesRetrieved = len(res.Samples)
		p.FilesCompleted = i + 1
		log.Debug("log file synced", "file", f.ID, "samples", fresh)
	}

	res.FilesProcessed = len(files)
	next.LastSyncTime = opts.Now().UnixMilli()
	next.TotalSamplesSynced += len(res.Samples)
	res.State = next

	p.FilesCompleted = len(files)
	report(PhaseComplete, fmt.Sprintf("Synced %d samples from %d files", len(res.Samples), len(files)))
	tracer.SetOK(span)
	return res, nil
}

// SyncSince reads only samples taken after ts (UNIX seconds).
func SyncSince(ctx context.Context, dev *binding.Device, serial string, ts uint32, opts Options) (Result, error) {
	st := NewState(serial)
	st.LastSampleTime = ts
	return Sync(ctx, dev, st, opts)
}

// readFile reads the whole file in chunks. The header is needed to decode,
// so a file is always read from its start.
func readFile(ctx context.Context, dev *binding.Device, f sdk.LogFileDescriptor, chunk uint32) ([]byte, error) {
	data := make([]byte, 0, f.Size)
	for uint32(len(data)) < f.Size {
		offset := uint32(len(data))
		size := min(chunk, f.Size-offset)
		r, err := await(ctx, func(cb func(binding.Result[[]byte])) error {
			return dev.ReadLogFile(f.ID, offset, size, cb)
		})
		if err != nil {
			return nil, err
		}
		if !r.Success {
			return nil, fmt.Errorf("read log file %d at %d: code %d", f.ID, offset, r.Code)
		}
		if len(r.Data) == 0 {
			break
		}
		data = append(data, r.Data...)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("read log file %d: %w", f.ID, errEmpty)
	}
	return data, nil
}

var errEmpty = errors.New("no data")

// await turns one binding callback into a blocking call.
func await[T any](ctx context.Context, issue func(func(binding.Result[T])) error) (binding.Result[T], error) {
	ch := make(chan binding.Result[T], 1)
	if err := issue(func(r binding.Result[T]) { ch <- r }); err != nil {
		return binding.Result[T]{}, err
	}
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return binding.Result[T]{}, ctx.Err()
	}
}
