// Package logsync copies the on-device data log incrementally, remembering
// per device how far the previous run got.
package logsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mil-ad/pmbridge/internal/sdk"
)

// bytesPerSample is a rough average across field masks.
const bytesPerSample = 7

// State records the progress of earlier syncs for one device.
type State struct {
	DeviceSerial       string `json:"deviceSerial"`
	LastSyncTime       int64  `json:"lastSyncTime"` // UNIX ms
	LastFileID         uint32 `json:"lastFileId"`
	LastFileOffset     uint32 `json:"lastFileOffset"`
	LastSampleTime     uint32 `json:"lastSampleTime"`
	TotalSamplesSynced int    `json:"totalSamplesSynced"`
}

func NewState(serial string) State {
	return State{DeviceSerial: serial}
}

// FilesToSync returns, oldest first, the files that may hold samples the
// state has not seen. The file named by LastFileID is included again only if
// it has grown past LastFileOffset. A file is skipped when the next one
// starts no later than LastSampleTime.
func FilesToSync(files []sdk.LogFileDescriptor, st State) []sdk.LogFileDescriptor {
	sorted := append([]sdk.LogFileDescriptor(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	out := []sdk.LogFileDescriptor{}
	for i, f := range sorted {
		switch {
		case f.ID < st.LastFileID:
			continue
		case st.LastFileID != 0 && f.ID == st.LastFileID && st.LastFileOffset >= f.Size:
			continue
		}
		if st.LastSampleTime != 0 && i+1 < len(sorted) && sorted[i+1].ID <= st.LastSampleTime {
			continue
		}
		out = append(out, f)
	}
	return out
}

// TimeRange summarises a file list without reading it.
type TimeRange struct {
	Oldest           time.Time
	Newest           time.Time
	TotalBytes       uint64
	EstimatedSamples uint64
}

// EstimateTimeRange reports zero times for an empty list.
func EstimateTimeRange(files []sdk.LogFileDescriptor) TimeRange {
	var r TimeRange
	if len(files) == 0 {
		return r
	}
	lo, hi := files[0].ID, files[0].ID
	for _, f := range files {
		lo, hi = min(lo, f.ID), max(hi, f.ID)
		r.TotalBytes += uint64(f.Size)
	}
	r.Oldest = time.Unix(int64(lo), 0)
	r.Newest = time.Unix(int64(hi), 0)
	r.EstimatedSamples = r.TotalBytes / bytesPerSample
	return r
}

// LoadState reads a state file. A missing file yields NewState(serial).
func LoadState(path, serial string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewState(serial), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read sync state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parse sync state %s: %w", path, err)
	}
	if serial != "" && st.DeviceSerial != serial {
		return State{}, fmt.Errorf("sync state %s belongs to device %s, not %s", path, st.DeviceSerial, serial)
	}
	return st, nil
}

// SaveState replaces path atomically.
func SaveState(path string, st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write sync state: %w", err)
	}
	return os.Rename(tmp, path)
}
