package mhs5200

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrequency(t *testing.T) {
	tests := []struct {
		hz      float64
		want    string
		wantErr bool
	}{
		{150012.861, "0015001286", false}, // truncated, not rounded
		{150012.869, "0015001286", false},
		{0.29, "0000000029", false},
		{0.01, "0000000001", false},
		{25e6, "2500000000", false},
		{24999999.99999, "2499999999", false}, // no rounding up near the top
		{12345678.91, "1234567891", false},
		{1e8, "", true},
		{-1, "", true},
		{math.NaN(), "", true},
	}
	for _, tt := range tests {
		got, err := encodeFrequency(tt.hz)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrOutOfRange, "hz=%v", tt.hz)
			continue
		}
		require.NoError(t, err, "hz=%v", tt.hz)
		assert.Equal(t, tt.want, got, "hz=%v", tt.hz)
	}
}

func TestEncodeAmplitude(t *testing.T) {
	tests := []struct {
		volts     float64
		attenuate bool
		want      string
	}{
		{1.999, true, "1999"},
		{2.5, false, "0250"},
		{2.0, false, "0200"},
		{0.005, true, "0005"},
		{1.245, true, "1245"},
		{19.99, false, "1999"},
		{20, false, "2000"},
	}
	for _, tt := range tests {
		att, got, err := encodeAmplitude(tt.volts)
		require.NoError(t, err, "volts=%v", tt.volts)
		assert.Equal(t, tt.attenuate, att, "volts=%v", tt.volts)
		assert.Equal(t, tt.want, got, "volts=%v", tt.volts)
	}

	_, _, err := encodeAmplitude(-0.1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, _, err = encodeAmplitude(100)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestEncodeScalars(t *testing.T) {
	v, err := encodeDuty(15)
	require.NoError(t, err)
	assert.Equal(t, "150", v)

	v, err = encodeDuty(99.9)
	require.NoError(t, err)
	assert.Equal(t, "999", v)

	v, err = encodeOffset(-120)
	require.NoError(t, err)
	assert.Equal(t, "000", v)

	v, err = encodeOffset(120)
	require.NoError(t, err)
	assert.Equal(t, "240", v)

	_, err = encodeOffset(-121)
	assert.ErrorIs(t, err, ErrOutOfRange)

	v, err = encodePhase(5)
	require.NoError(t, err)
	assert.Equal(t, "005", v)

	_, err = encodePhase(1000)
	assert.ErrorIs(t, err, ErrOutOfRange)

	v, err = encodeWave(Arbitrary15)
	require.NoError(t, err)
	assert.Equal(t, "47", v)

	_, err = encodeWave(Unknown)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestChannelAddressing(t *testing.T) {
	a, err := Channel1.addr()
	require.NoError(t, err)
	assert.Equal(t, "1", a)

	a, err = Channel2.letterAddr()
	require.NoError(t, err)
	assert.Equal(t, "b", a)

	_, err = Channel(3).addr()
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = Channel(0).letterAddr()
	assert.ErrorIs(t, err, ErrOutOfRange)

	assert.Equal(t, ":r1f\n", queryCmd("1", opFrequency))
	assert.Equal(t, ":sab1\n", setCmd("a", opStatus, "1"))
}

func TestParseValue(t *testing.T) {
	const cmd = ":r1d\n"
	tests := []struct {
		name    string
		frame   Frame
		want    int
		wantErr bool
	}{
		{"three digits", "r1d150", 150, false},
		{"one digit", "r1d5", 5, false},
		{"ok instead of value", FrameOK, 0, true},
		{"wrong echo", "r2d150", 0, true},
		{"wrong op", "r1f150", 0, true},
		{"too many digits", "r1d1500", 0, true},
		{"no digits", "r1d", 0, true},
		{"non-digit", "r1d1x0", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInt(cmd, tt.frame, "r1d", 1, 3)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrProtocol)
				var perr *ProtocolError
				require.True(t, errors.As(err, &perr))
				assert.Equal(t, ":r1d", perr.Command)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeFrequency(t *testing.T) {
	hz, err := decodeFrequency(":r2f\n", "r2f0015001286", "r2f")
	require.NoError(t, err)
	assert.InDelta(t, 150012.86, hz, 1e-9)

	_, err = decodeFrequency(":r2f\n", "r2f15001286", "r2f")
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeAttenuation(t *testing.T) {
	on, err := decodeAttenuation(":r1y\n", "r1y0", "r1y")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = decodeAttenuation(":r1y\n", "r1y1", "r1y")
	require.NoError(t, err)
	assert.False(t, on)

	_, err = decodeAttenuation(":r1y\n", "r1y7", "r1y")
	assert.ErrorIs(t, err, ErrProtocol)
}
