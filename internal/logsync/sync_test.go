package logsync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mil-ad/pmbridge/internal/binding"
	"github.com/mil-ad/pmbridge/internal/sdk"
	"github.com/mil-ad/pmbridge/internal/sdk/sim"
)

var testID = sdk.DeviceIdentifier{
	Name:             "van",
	Serial:           0xBEEF,
	HardwareRevision: sdk.FamilyPowermonW | 1,
	AccessKey:        sdk.AccessKey{ChannelID: [16]byte{1}, EncryptionKey: [32]byte{2}},
}

func TestFilesToSync(t *testing.T) {
	files := []sdk.LogFileDescriptor{{ID: 300, Size: 50}, {ID: 100, Size: 70}, {ID: 200, Size: 60}}

	all := FilesToSync(files, NewState("s"))
	assert.Equal(t, []uint32{100, 200, 300}, ids(all))

	st := State{LastFileID: 200, LastFileOffset: 60}
	assert.Equal(t, []uint32{300}, ids(FilesToSync(files, st)))

	st.LastFileOffset = 40
	assert.Equal(t, []uint32{200, 300}, ids(FilesToSync(files, st)))

	assert.Empty(t, FilesToSync(files, State{LastFileID: 300, LastFileOffset: 50}))
	assert.NotNil(t, FilesToSync(nil, State{}))

	// 100 ends where 200 starts, so nothing after 250 can be in it.
	assert.Equal(t, []uint32{200, 300}, ids(FilesToSync(files, State{LastSampleTime: 250})))
}

func TestEstimateTimeRange(t *testing.T) {
	assert.Equal(t, TimeRange{}, EstimateTimeRange(nil))

	r := EstimateTimeRange([]sdk.LogFileDescriptor{{ID: 200, Size: 10}, {ID: 100, Size: 25}})
	assert.Equal(t, time.Unix(100, 0), r.Oldest)
	assert.Equal(t, time.Unix(200, 0), r.Newest)
	assert.Equal(t, uint64(35), r.TotalBytes)
	assert.Equal(t, uint64(5), r.EstimatedSamples)
}

func TestStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "dev.json")

	st, err := LoadState(path, "A")
	require.NoError(t, err)
	assert.Equal(t, NewState("A"), st)

	st.LastFileID, st.TotalSamplesSynced = 42, 7
	require.NoError(t, SaveState(path, st))

	got, err := LoadState(path, "A")
	require.NoError(t, err)
	assert.Equal(t, st, got)

	_, err = LoadState(path, "B")
	assert.Error(t, err)
}

type rig struct {
	sim *sim.Device
	dev *binding.Device
}

func newRig(t *testing.T, files int) rig {
	t.Helper()
	loop := binding.NewLoop()
	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()
	t.Cleanup(func() {
		loop.Close()
		<-done
	})

	s, err := sim.New(sim.Options{Identity: testID, Seed: 3, LogFiles: files})
	require.NoError(t, err)
	dev := binding.New(loop, s, binding.Options{})
	t.Cleanup(func() { _ = dev.Close() })

	up := make(chan struct{})
	require.NoError(t, dev.Connect(binding.ConnectOptions{URL: testID.URL(), OnConnect: func() { close(up) }}))
	select {
	case <-up:
	case <-time.After(time.Second):
		t.Fatal("connect timed out")
	}
	return rig{sim: s, dev: dev}
}

func TestSyncFromScratchThenIncremental(t *testing.T) {
	r := newRig(t, 2)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	var phases []Phase
	res, err := Sync(ctx, r.dev, NewState("beef"), Options{
		ChunkSize:  1000,
		Now:        func() time.Time { return now },
		OnProgress: func(p Progress) { phases = append(phases, p.Phase) },
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.FilesProcessed)
	assert.Len(t, res.Samples, 720)
	assert.Empty(t, res.FileErrors)
	assert.Equal(t, now.UnixMilli(), res.State.LastSyncTime)
	assert.Equal(t, 720, res.State.TotalSamplesSynced)
	assert.Equal(t, res.Samples[719].Time, res.State.LastSampleTime)
	assert.Equal(t, PhaseListing, phases[0])
	assert.Contains(t, phases, PhaseDecoding)
	assert.Equal(t, PhaseComplete, phases[len(phases)-1])

	again, err := Sync(ctx, r.dev, res.State, Options{})
	require.NoError(t, err)
	assert.Zero(t, again.FilesProcessed)
	assert.Empty(t, again.Samples)
	assert.Equal(t, res.State, again.State)
}

func TestSyncContinuesPastBadFile(t *testing.T) {
	r := newRig(t, 1)
	r.sim.AddLogFile(1, []byte("not a log file at all"))

	res, err := Sync(context.Background(), r.dev, NewState("beef"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.FilesProcessed)
	assert.Len(t, res.FileErrors, 1)
	assert.Len(t, res.Samples, 360)
}

func TestSyncListFailure(t *testing.T) {
	r := newRig(t, 1)
	r.sim.SetResponse(sim.OpLogFiles, sdk.RspTimeout)

	var last Progress
	st := State{DeviceSerial: "beef", LastFileID: 9}
	res, err := Sync(context.Background(), r.dev, st, Options{OnProgress: func(p Progress) { last = p }})
	require.Error(t, err)
	assert.Equal(t, st, res.State)
	assert.Equal(t, PhaseError, last.Phase)
}

func TestSyncSince(t *testing.T) {
	r := newRig(t, 2)
	all, err := Sync(context.Background(), r.dev, NewState("beef"), Options{})
	require.NoError(t, err)
	cut := all.Samples[500].Time

	res, err := SyncSince(context.Background(), r.dev, "beef", cut, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesProcessed)
	assert.Len(t, res.Samples, 219)
	for _, s := range res.Samples {
		assert.Greater(t, s.Time, cut)
	}
}

func TestSyncNotConnected(t *testing.T) {
	r := newRig(t, 1)
	r.sim.DropLink(sdk.ReasonReadError)
	require.Eventually(t, func() bool { return !r.dev.IsConnected() }, time.Second, time.Millisecond)

	_, err := Sync(context.Background(), r.dev, NewState("beef"), Options{})
	assert.ErrorIs(t, err, binding.ErrNotConnected)
}

func ids(files []sdk.LogFileDescriptor) []uint32 {
	out := make([]uint32, len(files))
	for i, f := range files {
		out[i] = f.ID
	}
	return out
}
