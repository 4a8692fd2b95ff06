package resampler

// Box is a stateless box-filter decimator.
//
// For ratio = src/dst, the output has floor(len(in)/ratio) samples and
// sample i is the mean of in[floor(i*ratio) : floor((i+1)*ratio)], or 0 when
// that window is empty. Equal rates pass blocks through unchanged.
//
// Blocks are resampled independently, so up to one window of alignment is
// lost or repeated at each block boundary.
type Box struct {
	srcRate int
	dstRate int
}

// NewBox creates a box decimator from srcRate to dstRate.
func NewBox(srcRate, dstRate int) *Box {
	return &Box{srcRate: srcRate, dstRate: dstRate}
}

// Resample implements Resampler. It never returns an error.
func (b *Box) Resample(block []float32) ([]float32, error) {
	return Downsample(block, b.srcRate, b.dstRate), nil
}

// Downsample resamples one block with the box filter. When the rates are
// equal the input slice itself is returned.
func Downsample(in []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate {
		return in
	}
	ratio := float64(srcRate) / float64(dstRate)
	n := int(float64(len(in)) / ratio)
	out := make([]float32, n)
	for i := range out {
		start := int(float64(i) * ratio)
		end := int(float64(i+1) * ratio)
		if end > len(in) {
			end = len(in)
		}
		if end <= start {
			continue
		}
		var sum float64
		for _, s := range in[start:end] {
			sum += float64(s)
		}
		out[i] = float32(sum / float64(end-start))
	}
	return out
}
