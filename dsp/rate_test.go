package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateProfile(t *testing.T) {
	p, err := NewRateProfile(250000, 11025)
	require.NoError(t, err)
	assert.Equal(t, 22, p.Decimation)
	assert.InDelta(t, 1.0307, p.Ratio, 0.0001)
	assert.InDelta(t, 11363.6, p.IntermediateRate, 0.1)
	assert.False(t, p.FractionalSkipped())
}

func TestRateProfileExact(t *testing.T) {
	p, err := NewRateProfile(48000, 12000)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Decimation)
	assert.Equal(t, 1.0, p.Ratio)
	assert.True(t, p.FractionalSkipped())
}

func TestRateProfileBound(t *testing.T) {
	rates := []struct{ in, out int }{
		{250000, 11025},
		{2400000, 48000},
		{1024000, 12000},
		{192000, 44100},
		{96000, 11025},
		{12000, 12000},
		{12001, 12000},
	}
	for _, r := range rates {
		p, err := NewRateProfile(r.in, r.out)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, float64(r.in)/float64(p.Decimation), float64(r.out),
			"%d/%d", r.in, r.out)
		assert.Less(t, float64(r.in)/float64(p.Decimation+1), float64(r.out),
			"%d/%d", r.in, r.out)
	}
}

func TestRateProfileBadInput(t *testing.T) {
	_, err := NewRateProfile(0, 12000)
	assert.ErrorIs(t, err, ErrBadRate)
	_, err = NewRateProfile(250000, -1)
	assert.ErrorIs(t, err, ErrBadRate)
}

func TestAudioRate(t *testing.T) {
	for _, m := range []Mode{ModeDMR, ModeDStar, ModeNXDN, ModeYSF} {
		assert.Equal(t, 48000, AudioRate(m, SecondaryNone, 11025), string(m))
	}
	for _, s := range []SecondaryMode{SecondaryFT8, SecondaryFT4, SecondaryJT65, SecondaryJT9, SecondaryWSPR} {
		assert.Equal(t, 12000, AudioRate(ModeSSB, s, 11025), string(s))
	}
	assert.Equal(t, 11025, AudioRate(ModeNFM, SecondaryNone, 11025))
	assert.Equal(t, 11025, AudioRate(ModeSSB, SecondaryBPSK31, 11025))
}
