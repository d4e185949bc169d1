package dsp

import "errors"

var ErrBadRate = errors.New("sample rates must be positive")

// RateProfile splits a rate conversion into an integer decimation and a
// residual fractional resampling ratio. Decimation is the largest integer that
// keeps the decimated rate at or above the output rate, so the cheap integer
// decimator does as much of the reduction as possible.
type RateProfile struct {
	Decimation       int
	Ratio            float64
	IntermediateRate float64
}

func NewRateProfile(inputRate, outputRate int) (RateProfile, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return RateProfile{}, ErrBadRate
	}
	decimation := 1
	for float64(inputRate)/float64(decimation+1) >= float64(outputRate) {
		decimation++
	}
	intermediate := float64(inputRate) / float64(decimation)
	return RateProfile{
		Decimation:       decimation,
		Ratio:            intermediate / float64(outputRate),
		IntermediateRate: intermediate,
	}, nil
}

// FractionalSkipped reports whether the fractional resampler stage can be
// left out of the chain.
func (p RateProfile) FractionalSkipped() bool { return p.Ratio == 1.0 }
