package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Float32Chunk encodes samples as little-endian 32-bit floats. It panics if
// the format does not use EncodingF32LE.
func (f Format) Float32Chunk(samples []float32) *DataChunk {
	if f.Encoding != EncodingF32LE {
		panic("pcm: Float32Chunk on non-float format")
	}
	return f.DataChunk(EncodeFloat32(samples))
}

// EncodeFloat32 encodes samples as little-endian 32-bit floats.
func EncodeFloat32(samples []float32) []byte {
	data := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
	return data
}

// DecodeFloat32 decodes little-endian 32-bit floats. A trailing partial
// sample is an error.
func DecodeFloat32(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("pcm: %d bytes is not a whole number of f32 samples", len(data))
	}
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples, nil
}

