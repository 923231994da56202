package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mil-ad/pmbridge/internal/sdk"
)

func TestLifecycle(t *testing.T) {
	var seen []Transition
	s := New(Options{Observer: func(tr Transition) { seen = append(seen, tr) }})

	assert.Equal(t, sdk.StateDisconnected, s.State())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed while disconnected")
	}

	require.True(t, s.BeginConnect())
	assert.False(t, s.BeginConnect(), "connect while connecting")
	done := s.Done()

	require.True(t, s.HandleConnected())
	assert.True(t, s.IsConnected())
	assert.False(t, s.BeginConnect(), "connect while connected")
	assert.False(t, s.HandleConnected())

	require.True(t, s.HandleDisconnected(sdk.ReasonReadError))
	<-done
	assert.False(t, s.Active())
	reason, ok := s.LastReason()
	assert.True(t, ok)
	assert.Equal(t, sdk.ReasonReadError, reason)

	assert.Equal(t, []Transition{
		{From: sdk.StateDisconnected, To: sdk.StateConnecting},
		{From: sdk.StateConnecting, To: sdk.StateConnected},
		{From: sdk.StateConnected, To: sdk.StateDisconnected, Reason: sdk.ReasonReadError},
	}, seen)
}

func TestConnectFailure(t *testing.T) {
	s := New(Options{})
	require.True(t, s.BeginConnect())
	require.True(t, s.HandleDisconnected(sdk.ReasonNoRoute))
	assert.False(t, s.HandleDisconnected(sdk.ReasonClosed))
	assert.False(t, s.HandleConnected(), "late connect after failure")
	assert.Equal(t, sdk.StateDisconnected, s.State())
	assert.True(t, s.BeginConnect(), "a new attempt is allowed")
}

func TestConcurrentConnectOnlyOneWins(t *testing.T) {
	s := New(Options{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginConnect() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
