package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLayout(t *testing.T) {
	c := Config{
		NotifyRateHz:        0x0102,
		ActiveTimeoutMs:     0x0304,
		AccelRange:          Range8G,
		MotionThreshold:     0x55,
		AdvIntervalIdleMs:   0x0506,
		AdvIntervalActiveMs: 0x0708,
		StreamMode:          StreamEvents,
	}
	want := []byte{0x02, 0x01, 0x04, 0x03, 0x02, 0x55, 0x06, 0x05, 0x08, 0x07, 0x02, 0x00}
	assert.Equal(t, want, Encode(c))
}

func TestDecodeEncode(t *testing.T) {
	c := Defaults()
	got, err := Decode(Encode(c))
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestDecodeIgnoresReserved(t *testing.T) {
	b := Encode(Defaults())
	b[11] = 0xFF
	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
}

func TestDecodeShort(t *testing.T) {
	_, err := Decode(make([]byte, 11))
	require.ErrorIs(t, err, ErrShortRecord)
}

func TestAssemblerTwoChunks(t *testing.T) {
	want := Defaults()
	want.NotifyRateHz = 20
	rec := Encode(want)

	var a Assembler
	_, done, err := a.Write(rec[0:6], 0)
	require.NoError(t, err)
	assert.False(t, done, "must not complete after first chunk")
	assert.Equal(t, 6, a.Pending())

	got, done, err := a.Write(rec[6:12], 6)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, want, got)
	assert.Equal(t, 0, a.Pending(), "assembler restarts after a complete record")
}

func TestAssemblerOutOfOrder(t *testing.T) {
	rec := Encode(Defaults())

	var a Assembler
	_, done, err := a.Write(rec[8:], 8)
	require.NoError(t, err)
	assert.False(t, done)

	_, done, err = a.Write(rec[:4], 0)
	require.NoError(t, err)
	assert.False(t, done)

	got, done, err := a.Write(rec[4:8], 4)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, Defaults(), got)
}

func TestAssemblerTailAloneDoesNotComplete(t *testing.T) {
	rec := Encode(Defaults())

	var a Assembler
	_, done, err := a.Write(rec[6:], 6)
	require.NoError(t, err)
	assert.False(t, done)

	// Rewriting the same bytes does not count twice.
	_, done, err = a.Write(rec[6:], 6)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 6, a.Pending())
}

func TestAssemblerSingleWrite(t *testing.T) {
	var a Assembler
	got, done, err := a.Write(Encode(Defaults()), 0)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, Defaults(), got)
}

func TestAssemblerRejectsOutOfRange(t *testing.T) {
	var a Assembler
	_, _, err := a.Write(make([]byte, 4), 10)
	require.ErrorIs(t, err, ErrInvalidOffset)

	_, _, err = a.Write(make([]byte, 1), -1)
	require.ErrorIs(t, err, ErrInvalidOffset)

	_, _, err = a.Write(make([]byte, 13), 0)
	require.ErrorIs(t, err, ErrInvalidOffset)
	assert.Equal(t, 0, a.Pending())
}
