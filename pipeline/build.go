package pipeline

import (
	"fmt"

	"github.com/chzchzchz/rxdsp/dsp"
)

// BuildPrimary resolves the stage list for the primary chain. The returned
// ChannelSet keeps only the paths the stages reference; the caller creates
// exactly those FIFOs.
func BuildPrimary(p Params, ch ChannelSet) ([]Stage, ChannelSet, error) {
	if err := p.validate(); err != nil {
		return nil, ChannelSet{}, err
	}
	var used ChannelSet
	stages := []Stage{{Name: "nc", Args: []string{"-v", p.NCHost, itoa(p.NCPort)}}}
	if p.DynamicBufsize {
		stages = append(stages, csdr("setbuf", itoa(p.startBufsize())))
	}
	if p.Passthrough {
		stages = append(stages, csdr("through"))
	}

	if p.Mode == dsp.ModeFFT {
		stages = append(stages, csdr("fft_cc", itoa(p.FFTSize), ftoa(p.fftBlockSize())))
		if p.FFTAverages == 0 {
			stages = append(stages, csdr("logpower_cf", "-70"))
		} else {
			stages = append(stages, csdr("logaveragepower_cf", "-70", itoa(p.FFTSize), itoa(p.FFTAverages)))
		}
		stages = append(stages, csdr("fft_exchange_sides_ff", itoa(p.FFTSize)))
		if p.FFTCompression == CompressionADPCM {
			stages = append(stages, csdr("compress_fft_adpcm_f_u8", itoa(p.FFTSize)))
		}
		return stages, used, nil
	}

	// Common front end: tunable shift, integer decimation, tunable bandpass,
	// squelch with the s-meter report tap.
	used.Shift, used.Bandpass = ch.Shift, ch.Bandpass
	used.Squelch, used.SMeter = ch.Squelch, ch.SMeter
	stages = append(stages,
		csdr("shift_addition_cc", "--fifo", ch.Shift),
		csdr("fir_decimate_cc", itoa(p.Profile.Decimation), ftoa(p.ddcTransitionBW()), "HAMMING"),
		csdr("bandpass_fir_fft_cc", "--fifo", ch.Bandpass, ftoa(p.bpfTransitionBW()), "HAMMING"),
		csdr("squelch_and_smeter_cc", "--fifo", ch.Squelch, "--outfifo", ch.SMeter,
			"5", itoa(p.smeterReportEvery())),
	)
	if p.Secondary != dsp.SecondaryNone {
		used.Tee, used.Tee2 = ch.Tee, ch.Tee2
		stages = append(stages, csdr("tee", ch.Tee), csdr("tee", ch.Tee2))
	}

	tail, tailUsed, err := backendStages(p, ch)
	if err != nil {
		return nil, ChannelSet{}, err
	}
	used.Meta, used.DMRControl = tailUsed.Meta, tailUsed.DMRControl
	stages = append(stages, tail...)

	if p.AudioCompression == CompressionADPCM {
		stages = append(stages, csdr("encode_ima_adpcm_i16_u8"))
	}
	return stages, used, nil
}

func backendStages(p Params, ch ChannelSet) ([]Stage, ChannelSet, error) {
	// No fractional stage when the integer decimation already hits the rate.
	var frac []Stage
	if !p.Profile.FractionalSkipped() {
		frac = []Stage{csdr("fractional_decimator_ff", ftoa(p.Profile.Ratio))}
	}
	var used ChannelSet

	switch {
	case p.Mode == dsp.ModeNFM:
		stages := []Stage{csdr("fmdemod_quadri_cf"), csdr("limit_ff")}
		stages = append(stages, frac...)
		stages = append(stages,
			csdr("deemphasis_nfm_ff", itoa(p.OutputRate)),
			csdr("convert_f_s16"))
		return stages, used, nil

	case p.Mode.DigitalVoice():
		stages := []Stage{csdr("fmdemod_quadri_cf"), {Name: "dc_block"}}
		stages = append(stages, frac...)
		maxGain := 0.0005
		if p.Mode.DSDVoice() {
			maxGain = 5
			flag := "-fd"
			if p.Mode == dsp.ModeNXDN {
				flag = "-fi"
			}
			stages = append(stages,
				csdr("limit_ff"),
				csdr("convert_f_s16"),
				Stage{Name: "dsd", Args: []string{flag, "-i", "-", "-o", "-", "-u", itoa(p.UnvoicedQuality), "-g", "-1"}},
				fixedBuf(32, csdr("convert_s16_f")))
		} else {
			stages = append(stages, Stage{Name: "rrc_filter"}, Stage{Name: "gfsk_demodulator"})
			switch p.Mode {
			case dsp.ModeDMR:
				used.Meta, used.DMRControl = ch.Meta, ch.DMRControl
				stages = append(stages,
					Stage{Name: "dmr_decoder", Args: []string{"--fifo", ch.Meta, "--control-fifo", ch.DMRControl}},
					Stage{Name: "mbe_synthesizer", Args: []string{"-f", "-u", itoa(p.UnvoicedQuality)}})
			case dsp.ModeYSF:
				used.Meta = ch.Meta
				stages = append(stages,
					Stage{Name: "ysf_decoder", Args: []string{"--fifo", ch.Meta}},
					Stage{Name: "mbe_synthesizer", Args: []string{"-y", "-f", "-u", itoa(p.UnvoicedQuality)}})
			}
		}
		stages = append(stages,
			Stage{Name: "digitalvoice_filter", Args: []string{"-f"}},
			fixedBuf(32, csdr("agc_ff", "160000", "0.8", "1", "0.0000001", ftoa(maxGain))),
			soxStage(8000, p.OutputRate))
		return stages, used, nil

	case p.Mode == dsp.ModeAM:
		stages := []Stage{csdr("amdemod_cf"), csdr("fastdcblock_ff")}
		stages = append(stages, frac...)
		stages = append(stages, csdr("agc_ff"), csdr("limit_ff"), csdr("convert_f_s16"))
		return stages, used, nil

	case p.Mode == dsp.ModeSSB:
		stages := []Stage{csdr("realpart_cf")}
		stages = append(stages, frac...)
		stages = append(stages, csdr("agc_ff"), csdr("limit_ff"))
		// The batch decoders demand a fixed audio rate; match it to the
		// configured output rate with sox.
		if p.Secondary.WeakSignal() && p.AudioRate != p.OutputRate {
			stages = append(stages, soxStage(p.AudioRate, p.OutputRate))
		} else {
			stages = append(stages, csdr("convert_f_s16"))
		}
		return stages, used, nil
	}
	return nil, used, fmt.Errorf("unknown demodulator %q", p.Mode)
}

func soxStage(inRate, outRate int) Stage {
	return Stage{Name: "sox", Args: []string{
		"-t", "raw", "-r", itoa(inRate), "-e", "floating-point", "-b", "32", "-c", "1", "--buffer", "32", "-",
		"-t", "raw", "-r", itoa(outRate), "-e", "signed-integer", "-b", "16", "-c", "1", "-",
	}}
}

// BuildSecondaryFFT is the spectrum display chain reading the first tee tap.
func BuildSecondaryFFT(p Params, inputPipe string) ([]Stage, error) {
	if inputPipe == "" {
		return nil, fmt.Errorf("secondary fft chain needs a tee tap")
	}
	stages := []Stage{
		{Name: "cat", Args: []string{inputPipe}},
		csdr("realpart_cf"),
		csdr("fft_fc", itoa(p.SecondaryFFTSize), ftoa(p.secondaryFFTBlockSize())),
		csdr("logpower_cf", "-70"),
	}
	if p.FFTCompression == CompressionADPCM {
		stages = append(stages, csdr("compress_fft_adpcm_f_u8", itoa(p.SecondaryFFTSize)))
	}
	return stages, nil
}

// BuildSecondaryDemod resolves the demodulator chain reading the second tee
// tap, reporting which secondary channels it references.
func BuildSecondaryDemod(p Params, inputPipe string, ch SecondaryChannelSet) ([]Stage, SecondaryChannelSet, error) {
	if inputPipe == "" {
		return nil, SecondaryChannelSet{}, fmt.Errorf("secondary demod chain needs a tee tap")
	}
	var used SecondaryChannelSet
	stages := []Stage{{Name: "cat", Args: []string{inputPipe}}}

	switch {
	case p.Secondary == dsp.SecondaryBPSK31:
		used.Shift = ch.Shift
		cutoff := ftoa(p.bpsk31Cutoff())
		stages = append(stages,
			csdr("shift_addition_cc", "--fifo", ch.Shift),
			csdr("bandpass_fir_fft_cc", "-"+cutoff, cutoff, cutoff),
			csdr("simple_agc_cc", "0.001", "0.5"),
			csdr("timing_recovery_cc", "GARDNER", itoa(p.bpsk31SamplesPerBit()), "0.5", "2", "--add_q"),
			fixedBuf(1, csdr("dbpsk_decoder_c_u8")),
			fixedBuf(1, csdr("psk31_varicode_decoder_u8_u8")))
		return stages, used, nil

	case p.Secondary.WeakSignal():
		stages = append(stages, csdr("realpart_cf"))
		if !p.Profile.FractionalSkipped() {
			stages = append(stages, csdr("fractional_decimator_ff", ftoa(p.Profile.Ratio)))
		}
		stages = append(stages, csdr("agc_ff"), csdr("limit_ff"), csdr("convert_f_s16"))
		return stages, used, nil
	}
	return nil, used, fmt.Errorf("unknown secondary demodulator %q", p.Secondary)
}
