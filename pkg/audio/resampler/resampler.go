package resampler

import "fmt"

// TargetRate is the wire sample rate in Hz.
const TargetRate = 16000

// Mode selects a resampler implementation.
type Mode string

const (
	// ModeBox selects the stateless box-filter decimator.
	ModeBox Mode = "box"
	// ModeSoxr selects the stateful high-quality resampler.
	ModeSoxr Mode = "soxr"
)

// Resampler converts one block of mono samples from its source rate to its
// destination rate. Implementations are not safe for concurrent use.
type Resampler interface {
	Resample(block []float32) ([]float32, error)
}

// New creates a Resampler for the given mode. An empty mode selects ModeBox.
func New(mode Mode, srcRate, dstRate int) (Resampler, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid rates %d -> %d", srcRate, dstRate)
	}
	switch mode {
	case ModeBox, "":
		return NewBox(srcRate, dstRate), nil
	case ModeSoxr:
		return NewSoxr(srcRate, dstRate)
	}
	return nil, fmt.Errorf("resampler: unknown mode %q", mode)
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBox, "":
		return ModeBox, nil
	case ModeSoxr:
		return ModeSoxr, nil
	}
	return "", fmt.Errorf("resampler: unknown mode %q (want box or soxr)", s)
}
