package mhs5200

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// ArbitrarySamples is the length of one arbitrary waveform.
	ArbitrarySamples = 1024
	arbitraryChunks  = 16
	chunkSamples     = ArbitrarySamples / arbitraryChunks
)

// arbitraryChunkCmd builds ":a<slot><chunk><v0>,...,<v63>\n" with slot and
// chunk as single hex digits.
func arbitraryChunkCmd(slot, chunk int, samples []int) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":a%x%x", slot, chunk)
	for i, v := range samples {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	b.WriteByte('\n')
	return b.String()
}

// UploadArbitrary programs arbitrary waveform slot 0..15 with exactly
// ArbitrarySamples samples, sent as 16 chunks of 64 that must each be
// acknowledged before the next goes out. Sample bit depth is not checked.
//
// The upload is not atomic. On failure the returned *UploadError names the
// chunk that failed; every earlier chunk is already stored, so the slot
// holds a mix of the old and new waveform until a full upload succeeds.
func (d *Driver) UploadArbitrary(slot int, samples []int) error {
	if slot < 0 || slot >= arbitrarySlots {
		return outOfRange("arbitrary slot", slot)
	}
	if len(samples) != ArbitrarySamples {
		return outOfRange("sample count", len(samples))
	}

	return d.locked(func() error {
		for chunk := 0; chunk < arbitraryChunks; chunk++ {
			part := samples[chunk*chunkSamples : (chunk+1)*chunkSamples]
			if err := d.command(arbitraryChunkCmd(slot, chunk, part)); err != nil {
				d.log.Warnf("arbitrary slot %d: chunk %d failed, %d chunks already stored: %v", slot, chunk, chunk, err)
				return &UploadError{Slot: slot, Chunk: chunk, Err: err}
			}
			if d.progress != nil {
				d.progress(slot, chunk+1, arbitraryChunks)
			}
		}
		d.log.Infof("arbitrary slot %d: uploaded %d samples", slot, len(samples))
		return nil
	})
}
