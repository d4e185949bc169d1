package rxdsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chzchzchz/rxdsp/dsp"
	"github.com/chzchzchz/rxdsp/pipeline"
)

type nopOutput struct {
	added  []string
	resets int
}

func (o *nopOutput) AddOutput(name string, read ReadFunc) { o.added = append(o.added, name) }
func (o *nopOutput) Reset()                               { o.resets++ }

func newTestController() *Controller {
	return NewController(DefaultConfig(), &nopOutput{}, nil, nil)
}

func TestActualSquelch(t *testing.T) {
	c := newTestController()
	c.cfg.SquelchLevel = -60

	for _, m := range []dsp.Mode{dsp.ModeNFM, dsp.ModeAM, dsp.ModeSSB} {
		c.cfg.Mode = m
		assert.Equal(t, -60.0, c.actualSquelch(), m)
	}
	// digital voice decoders carry their own sync detection
	for _, m := range []dsp.Mode{dsp.ModeDMR, dsp.ModeDStar, dsp.ModeNXDN, dsp.ModeYSF} {
		c.cfg.Mode = m
		assert.Equal(t, 0.0, c.actualSquelch(), m)
	}
}

func TestBuildParamsAudioRate(t *testing.T) {
	c := newTestController()

	p, err := c.buildParams()
	require.NoError(t, err)
	assert.Equal(t, c.cfg.OutputRate, p.AudioRate)

	c.cfg.Mode = dsp.ModeSSB
	c.cfg.Secondary = dsp.SecondaryFT8
	p, err = c.buildParams()
	require.NoError(t, err)
	assert.Equal(t, 12000, p.AudioRate)

	c.cfg.Mode = dsp.ModeDMR
	c.cfg.Secondary = dsp.SecondaryNone
	p, err = c.buildParams()
	require.NoError(t, err)
	assert.Equal(t, 48000, p.AudioRate)
}

func TestBuildParamsProfileTracksAudioRate(t *testing.T) {
	c := newTestController()
	c.cfg.Mode = dsp.ModeSSB
	c.cfg.Secondary = dsp.SecondaryFT8

	p, err := c.buildParams()
	require.NoError(t, err)
	want, err := dsp.NewRateProfile(c.cfg.SampleRate, 12000)
	require.NoError(t, err)
	assert.Equal(t, want, p.Profile)
}

func TestBuildParamsBadRate(t *testing.T) {
	c := newTestController()
	c.cfg.SampleRate = 0
	_, err := c.buildParams()
	assert.Error(t, err)
}

func TestSettersWhileStopped(t *testing.T) {
	c := newTestController()

	require.NoError(t, c.SetMode(dsp.ModeSSB))
	require.NoError(t, c.SetSecondaryMode(dsp.SecondaryFT8))
	require.NoError(t, c.SetSampleRate(2400000))
	c.SetOutputRate(12000)
	require.NoError(t, c.SetFFTSize(4096))

	cfg := c.Config()
	assert.Equal(t, dsp.ModeSSB, cfg.Mode)
	assert.Equal(t, dsp.SecondaryFT8, cfg.Secondary)
	assert.Equal(t, 2400000, cfg.SampleRate)
	assert.Equal(t, 12000, cfg.OutputRate)
	assert.Equal(t, 4096, cfg.FFTSize)
	assert.False(t, c.Running())
}

func TestControlWritesWhileStopped(t *testing.T) {
	// No chain means no control fifos; setters record the value for the next
	// start instead of failing.
	c := newTestController()
	require.NoError(t, c.SetOffsetFreq(-12500))
	require.NoError(t, c.SetBandpass(-4000, 4000))
	require.NoError(t, c.SetSquelchLevel(-70))
	require.NoError(t, c.SetDMRFilter("1"))

	cfg := c.Config()
	assert.Equal(t, -12500.0, cfg.OffsetFreq)
	assert.Equal(t, -70.0, cfg.SquelchLevel)
}

func TestFFTModeUsesAudioStream(t *testing.T) {
	// fft frames replace the audio stream rather than adding a stream name
	c := newTestController()
	c.cfg.Mode = dsp.ModeFFT
	p, err := c.buildParams()
	require.NoError(t, err)
	c.params = p
	c.chain = &pipeline.Chain{}

	c.attachOutputsLocked()
	out := c.out.(*nopOutput)
	assert.Equal(t, []string{OutputAudio}, out.added)
}

func TestStopIdempotent(t *testing.T) {
	c := newTestController()
	c.Stop()
	c.Stop()
	assert.False(t, c.Running())
}

func TestRestartWhileStopped(t *testing.T) {
	c := newTestController()
	assert.NoError(t, c.Restart())
	assert.False(t, c.Running())
}
