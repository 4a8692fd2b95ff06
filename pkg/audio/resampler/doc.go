// Package resampler converts blocks of mono float PCM between sample rates.
//
// Two implementations are provided:
//   - Box: a stateless box-filter decimator. Each block is resampled on its
//     own; no fractional position or filter history crosses block boundaries.
//     This is the default used by the capture pipeline.
//   - Soxr: a stateful high-quality resampler backed by
//     github.com/tphakala/go-audio-resampling (pure Go, no CGO). It keeps
//     filter state between blocks, so block boundaries do not introduce
//     alignment error.
//
// Example usage:
//
//	r, err := resampler.New(resampler.ModeBox, 48000, resampler.TargetRate)
//	if err != nil {
//	    return err
//	}
//	out, err := r.Resample(block)
package resampler
