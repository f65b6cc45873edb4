package mhs5200

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/mhs5200/internal/sim"
)

func ramp() []int {
	s := make([]int, ArbitrarySamples)
	for i := range s {
		s[i] = i % 4096
	}
	return s
}

func TestArbitraryChunkCmd(t *testing.T) {
	cmd := arbitraryChunkCmd(10, 15, []int{0, 1, 4095})
	assert.Equal(t, ":aaf0,1,4095\n", cmd)
}

func TestUploadArbitrary(t *testing.T) {
	g := sim.New()
	var progress []int
	d := connectSim(t, g, WithUploadProgress(func(slot, chunk, total int) {
		assert.Equal(t, 3, slot)
		assert.Equal(t, 16, total)
		progress = append(progress, chunk)
	}))

	samples := ramp()
	require.NoError(t, d.UploadArbitrary(3, samples))

	cmds := g.Commands()
	require.Len(t, cmds, 16)
	for i, cmd := range cmds {
		assert.True(t, strings.HasPrefix(cmd, fmt.Sprintf(":a3%x", i)), cmd)
		assert.Len(t, strings.Split(cmd[4:], ","), 64)
	}
	assert.Equal(t, samples, g.ArbitraryWave(3))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, progress)
}

func TestUploadArbitrary_StopsAtFailedChunk(t *testing.T) {
	g := sim.New()
	d := connectSim(t, g)
	g.SetHook(func(cmd string) (string, bool) {
		if strings.HasPrefix(cmd, ":a07") {
			return ":err\r\n", true
		}
		return "", false
	})

	err := d.UploadArbitrary(0, ramp())
	require.Error(t, err)

	var uerr *UploadError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, 0, uerr.Slot)
	assert.Equal(t, 7, uerr.Chunk)
	assert.ErrorIs(t, err, ErrProtocol)

	cmds := g.Commands()
	require.Len(t, cmds, 8)
	for i, cmd := range cmds {
		assert.True(t, strings.HasPrefix(cmd, fmt.Sprintf(":a0%x", i)), cmd)
	}

	// Chunks 0-6 were committed, the rest of the slot is untouched.
	stored := g.ArbitraryWave(0)
	assert.Equal(t, ramp()[:7*64], stored[:7*64])
	assert.Equal(t, make([]int, 9*64), stored[7*64:])
}

func TestUploadArbitrary_Validation(t *testing.T) {
	g := sim.New()
	d := connectSim(t, g)

	assert.ErrorIs(t, d.UploadArbitrary(0, make([]int, 1023)), ErrOutOfRange)
	assert.ErrorIs(t, d.UploadArbitrary(0, make([]int, 1025)), ErrOutOfRange)
	assert.ErrorIs(t, d.UploadArbitrary(16, ramp()), ErrOutOfRange)
	assert.ErrorIs(t, d.UploadArbitrary(-1, ramp()), ErrOutOfRange)
	assert.Empty(t, g.Commands())
}
