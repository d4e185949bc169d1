package dsp

// Mode identifies a primary demodulator.
type Mode string

const (
	ModeNFM   Mode = "nfm"
	ModeAM    Mode = "am"
	ModeSSB   Mode = "ssb"
	ModeDMR   Mode = "dmr"
	ModeDStar Mode = "dstar"
	ModeNXDN  Mode = "nxdn"
	ModeYSF   Mode = "ysf"
	// ModeFFT runs the spectrum display chain instead of a demodulator.
	ModeFFT Mode = "fft"
)

func (m Mode) DigitalVoice() bool {
	switch m {
	case ModeDMR, ModeDStar, ModeNXDN, ModeYSF:
		return true
	}
	return false
}

// DSDVoice reports modes handled by the external dsd decoder; the rest of the
// digital voice modes run through the rrc/gfsk demodulator chain.
func (m Mode) DSDVoice() bool { return m == ModeDStar || m == ModeNXDN }

// SecondaryMode identifies a demodulator run off the IF tee taps.
type SecondaryMode string

const (
	SecondaryNone   SecondaryMode = ""
	SecondaryBPSK31 SecondaryMode = "bpsk31"
	SecondaryFT8    SecondaryMode = "ft8"
	SecondaryFT4    SecondaryMode = "ft4"
	SecondaryJT65   SecondaryMode = "jt65"
	SecondaryJT9    SecondaryMode = "jt9"
	SecondaryWSPR   SecondaryMode = "wspr"
)

// WeakSignal reports modes decoded in batches from chopped audio windows.
func (m SecondaryMode) WeakSignal() bool {
	switch m {
	case SecondaryFT8, SecondaryFT4, SecondaryJT65, SecondaryJT9, SecondaryWSPR:
		return true
	}
	return false
}

// AudioRate is the rate the demodulator chain must produce. Digital voice
// synthesis runs at a fixed 48kHz and the weak-signal batch decoders expect
// 12kHz input; everything else uses the configured output rate.
func AudioRate(m Mode, secondary SecondaryMode, outputRate int) int {
	if m.DigitalVoice() {
		return 48000
	}
	if secondary.WeakSignal() {
		return 12000
	}
	return outputRate
}
