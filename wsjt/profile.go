package wsjt

import (
	"strconv"
	"time"

	"github.com/chzchzchz/rxdsp/dsp"
)

// Profile parameterizes the chopper for one weak-signal mode: the window
// length, the buffer file timestamp layout and the batch decoder invocation.
// The rotation and dispatch machinery is identical across modes.
type Profile struct {
	Mode            string
	Interval        time.Duration
	TimestampLayout string
	DecoderArgs     func(depth int, file string) []string
}

func jt9Args(flag string) func(int, string) []string {
	return func(depth int, file string) []string {
		return []string{"jt9", flag, "-d", strconv.Itoa(depth), file}
	}
}

// ProfileFor maps a secondary demodulator to its chopper profile.
func ProfileFor(m dsp.SecondaryMode) (Profile, bool) {
	switch m {
	case dsp.SecondaryFT8:
		return Profile{
			Mode:            "FT8",
			Interval:        15 * time.Second,
			TimestampLayout: "060102_150405",
			DecoderArgs:     jt9Args("--ft8"),
		}, true
	case dsp.SecondaryFT4:
		return Profile{
			Mode:            "FT4",
			Interval:        7500 * time.Millisecond,
			TimestampLayout: "060102_150405",
			DecoderArgs:     jt9Args("--ft4"),
		}, true
	case dsp.SecondaryJT65:
		return Profile{
			Mode:            "JT65",
			Interval:        60 * time.Second,
			TimestampLayout: "060102_1504",
			DecoderArgs:     jt9Args("--jt65"),
		}, true
	case dsp.SecondaryJT9:
		return Profile{
			Mode:            "JT9",
			Interval:        60 * time.Second,
			TimestampLayout: "060102_1504",
			DecoderArgs:     jt9Args("--jt9"),
		}, true
	case dsp.SecondaryWSPR:
		return Profile{
			Mode:            "WSPR",
			Interval:        120 * time.Second,
			TimestampLayout: "060102_1504",
			DecoderArgs: func(depth int, file string) []string {
				return []string{"wsprd", "-d", file}
			},
		}, true
	}
	return Profile{}, false
}
