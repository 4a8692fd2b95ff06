package resampler

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Soxr resamples with github.com/tphakala/go-audio-resampling. Unlike Box it
// carries filter state between blocks, so consecutive blocks must belong to
// the same stream.
type Soxr struct {
	passthrough bool
	resampler   resampling.Resampler
	input       []float64
}

// NewSoxr creates a high-quality mono resampler from srcRate to dstRate.
func NewSoxr(srcRate, dstRate int) (*Soxr, error) {
	if srcRate == dstRate {
		return &Soxr{passthrough: true}, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	return &Soxr{resampler: r}, nil
}

// Resample implements Resampler. The output length varies from block to
// block as the filter fills and drains.
func (s *Soxr) Resample(block []float32) ([]float32, error) {
	if s.passthrough {
		return block, nil
	}
	if cap(s.input) < len(block) {
		s.input = make([]float64, len(block))
	}
	s.input = s.input[:len(block)]
	for i, v := range block {
		s.input[i] = float64(v)
	}

	output, err := s.resampler.Process(s.input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	out := make([]float32, len(output))
	for i, v := range output {
		out[i] = float32(v)
	}
	return out, nil
}
