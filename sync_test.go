package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinceTime(t *testing.T) {
	for _, v := range []int64{0, 1700000000, math.MaxUint32} {
		got, err := sinceTime(v)
		require.NoError(t, err)
		assert.Equal(t, uint32(v), got)
	}
	for _, v := range []int64{-1, math.MaxUint32 + 1, 1 << 40} {
		_, err := sinceTime(v)
		assert.Error(t, err, "since %d", v)
	}
}
