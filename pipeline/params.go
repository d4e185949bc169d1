package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/chzchzchz/rxdsp/dsp"
)

type Compression string

const (
	CompressionNone  Compression = "none"
	CompressionADPCM Compression = "adpcm"
)

var ErrNoInput = errors.New("chain needs an input feed host and port")

// Params is the configuration snapshot a chain is built from. All derived
// quantities (transition bandwidths, block sizes, meter intervals) are
// computed here so the stage builders stay declarative.
type Params struct {
	Mode      dsp.Mode
	Secondary dsp.SecondaryMode

	SampleRate int
	OutputRate int
	AudioRate  int
	Profile    dsp.RateProfile

	FFTSize          int
	FFTFps           int
	FFTAverages      int
	SecondaryFFTSize int

	AudioCompression Compression
	FFTCompression   Compression

	DynamicBufsize bool
	BaseBufsize    int
	Passthrough    bool

	NCHost string
	NCPort int

	UnvoicedQuality int
}

func (p Params) validate() error {
	if p.SampleRate <= 0 || p.OutputRate <= 0 {
		return dsp.ErrBadRate
	}
	if p.NCHost == "" || p.NCPort == 0 {
		return ErrNoInput
	}
	if p.Profile.Decimation < 1 {
		return fmt.Errorf("rate profile not resolved for %d -> %d", p.SampleRate, p.AudioRate)
	}
	return nil
}

// IFRate is the sample rate between the integer decimator and the demodulator.
func (p Params) IFRate() float64 { return float64(p.SampleRate) / float64(p.Profile.Decimation) }

// bpfTransitionBW is a constant 320Hz expressed as a fraction of the IF rate.
func (p Params) bpfTransitionBW() float64 { return 320.0 / p.IFRate() }

// ddcTransitionBW scales a fixed 0.15 of the IF rate down to the input rate
// the decimating filter runs at.
func (p Params) ddcTransitionBW() float64 {
	return 0.15 * (p.IFRate() / float64(p.SampleRate))
}

func (p Params) smeterReportEvery() int { return int(p.IFRate() / 6000) }

func (p Params) fftBlockSize() float64 {
	if p.FFTAverages == 0 {
		return float64(p.SampleRate) / float64(p.FFTFps)
	}
	return float64(p.SampleRate) / float64(p.FFTFps) / float64(p.FFTAverages)
}

// secondaryFFTBlockSize doubles the fps divisor because the secondary FFT runs
// on a real signal.
func (p Params) secondaryFFTBlockSize() float64 {
	return p.IFRate() / float64(p.FFTFps*2)
}

func (p Params) startBufsize() int { return p.BaseBufsize * p.Profile.Decimation }

// FFTBytesToRead is the output chunk size of one FFT frame.
func (p Params) FFTBytesToRead() int {
	if p.FFTCompression == CompressionADPCM {
		return p.FFTSize/2 + 5
	}
	return p.FFTSize * 4
}

func (p Params) SecondaryFFTBytesToRead() int {
	if p.FFTCompression == CompressionADPCM {
		return p.SecondaryFFTSize/2 + 5
	}
	return p.SecondaryFFTSize * 4
}

const bpsk31Rate = 31.25

func (p Params) bpsk31Cutoff() float64 { return bpsk31Rate / p.IFRate() }

// bpsk31SamplesPerBit is rounded to a multiple of four for the timing
// recovery stage.
func (p Params) bpsk31SamplesPerBit() int {
	return int(math.Round(p.IFRate()/bpsk31Rate)) &^ 3
}

// Env returns the process environment switches shared by every stage of the
// chain.
func (p Params) Env(printBufsizes bool) []string {
	var env []string
	if p.DynamicBufsize {
		env = append(env, "CSDR_DYNAMIC_BUFSIZE_ON=1")
	}
	if printBufsizes {
		env = append(env, "CSDR_PRINT_BUFSIZES=1")
	}
	return env
}
