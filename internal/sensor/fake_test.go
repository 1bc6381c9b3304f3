package sensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/logic"
)

func TestNearestODR(t *testing.T) {
	tests := []struct{ in, want uint16 }{
		{0, 1},
		{1, 1},
		{2, 10},
		{50, 50},
		{51, 100},
		{100, 100},
		{401, 1600},
		{5000, 1600},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NearestODR(tt.in), "hz=%d", tt.in)
	}
}

func TestThresholdMilliG(t *testing.T) {
	assert.Equal(t, 0, ThresholdMilliG(0))
	assert.Equal(t, 800, ThresholdMilliG(50))
	assert.Equal(t, 4080, ThresholdMilliG(255))
}

func TestFakeReadSample(t *testing.T) {
	f := NewFake(logic.Sample{X: 1}, logic.Sample{X: 2})

	s, err := f.ReadSample()
	require.NoError(t, err)
	assert.Equal(t, int16(1), s.X)

	s, err = f.ReadSample()
	require.NoError(t, err)
	assert.Equal(t, int16(2), s.X)

	// Exhausted: last sample repeats.
	s, err = f.ReadSample()
	require.NoError(t, err)
	assert.Equal(t, int16(2), s.X)
	assert.Equal(t, 3, f.Reads)
}

func TestFakeSetSamplesRestarts(t *testing.T) {
	f := NewFake(logic.Sample{X: 1}, logic.Sample{X: 2})
	_, _ = f.ReadSample()

	f.SetSamples(logic.Sample{Z: 9})

	s, err := f.ReadSample()
	require.NoError(t, err)
	assert.Equal(t, logic.Sample{Z: 9}, s)
}

func TestFakeNoSamples(t *testing.T) {
	_, err := NewFake().ReadSample()
	assert.Error(t, err)
}

func TestFakeReadError(t *testing.T) {
	f := NewFake(logic.Sample{})
	f.ReadError = errors.New("bus timeout")
	_, err := f.ReadSample()
	assert.EqualError(t, err, "bus timeout")
}

func TestFakeSettings(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.SetRange(config.Range4G))
	odr, err := f.SetOutputDataRate(30)
	require.NoError(t, err)
	assert.Equal(t, uint16(50), odr)
	require.NoError(t, f.SetMotionThreshold(9))

	r, o, th := f.Settings()
	assert.Equal(t, config.Range4G, r)
	assert.Equal(t, uint16(50), o)
	assert.Equal(t, uint8(9), th)

	f.SetError = errors.New("nack")
	assert.Error(t, f.SetRange(config.Range2G))
	_, err = f.SetOutputDataRate(1)
	assert.Error(t, err)
}

func TestFakeFireOnlyWhenArmed(t *testing.T) {
	f := NewFake()
	fired := 0
	f.OnMotion(func() { fired++ })

	assert.False(t, f.Fire())
	require.NoError(t, f.ArmMotionInterrupt(true))
	assert.True(t, f.Fire())
	require.NoError(t, f.ArmMotionInterrupt(false))
	assert.False(t, f.Fire())

	assert.Equal(t, 1, fired)
	assert.Equal(t, []bool{true, false}, f.ArmCalls)
}

func TestFakeClose(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Close())
	assert.True(t, f.Closed)
}
