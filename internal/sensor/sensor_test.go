package sensor

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reference CRC from the SCD30 datasheet: 0xBEEF -> 0x92.
func TestCRC8DatasheetVector(t *testing.T) {
	assert.Equal(t, byte(0x92), crc8([]byte{0xBE, 0xEF}))
}

func encodeFloat(v float32) []byte {
	bits := math.Float32bits(v)
	hi := []byte{byte(bits >> 24), byte(bits >> 16)}
	lo := []byte{byte(bits >> 8), byte(bits)}

	return []byte{hi[0], hi[1], crc8(hi), lo[0], lo[1], crc8(lo)}
}

func TestDecodeFloat(t *testing.T) {
	for _, want := range []float32{0, 512.25, 21.3, -1.5, 1999.9} {
		got, err := decodeFloat(encodeFloat(want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeFloatRejectsBadCRC(t *testing.T) {
	buf := encodeFloat(512.25)
	buf[2] ^= 0xFF

	_, err := decodeFloat(buf)
	assert.ErrorIs(t, err, ErrBadCRC)
}

func TestSimulatedStaysInBand(t *testing.T) {
	s := NewSimulated(1)
	require.NoError(t, s.Init())

	for i := 0; i < 1000; i++ {
		r, err := s.Read(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r.CO2, 400)
		assert.LessOrEqual(t, r.CO2, 2000)
	}
}

func TestSimulatedForceCalibrate(t *testing.T) {
	s := NewSimulated(1)
	require.NoError(t, s.ForceCalibrate(400))

	r, err := s.Read(context.Background())
	require.NoError(t, err)

	// One random-walk step away from the fresh-air reference.
	assert.InDelta(t, 400, r.CO2, 41)
}

func TestSimulatedDeterministicForSeed(t *testing.T) {
	a := NewSimulated(7)
	b := NewSimulated(7)

	ra, err := a.Read(context.Background())
	require.NoError(t, err)
	rb, err := b.Read(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ra, rb)
}
