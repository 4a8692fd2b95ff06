package pcm

import (
	"fmt"
	"io"
)

// Encoding names the sample encoding of a PCM stream.
type Encoding string

const (
	// EncodingF32LE is 32-bit IEEE float, little-endian.
	EncodingF32LE Encoding = "f32le"
	// EncodingS16LE is 16-bit signed integer, little-endian.
	EncodingS16LE Encoding = "s16le"
)

// Depth returns the bit depth of a single sample.
func (e Encoding) Depth() int {
	switch e {
	case EncodingF32LE:
		return 32
	case EncodingS16LE:
		return 16
	}
	panic("pcm: invalid encoding")
}

var (
	// F32Mono16K is audio/f32le; rate=16000; channels=1. This is the wire
	// format for outbound and inbound binary frames.
	F32Mono16K = Format{SampleRate: 16000, Channels: 1, Encoding: EncodingF32LE}
	// L16Mono16K is audio/L16; rate=16000; channels=1
	L16Mono16K = Format{SampleRate: 16000, Channels: 1, Encoding: EncodingS16LE}
)

// Chunk is a chunk of audio data.
type Chunk interface {
	Len() int64
	Format() Format
	WriteTo(w io.Writer) (int64, error)
}

// Format represents an audio format configuration.
type Format struct {
	SampleRate int
	Channels   int
	Encoding   Encoding
}

// Depth returns the bit depth for this format.
func (f Format) Depth() int {
	return f.Encoding.Depth()
}

// FrameBytes returns the size of one frame (one sample for every channel).
func (f Format) FrameBytes() int {
	return f.Channels * f.Depth() / 8
}

// DataChunk returns a chunk of audio data.
func (f Format) DataChunk(data []byte) *DataChunk {
	return &DataChunk{
		Data: data,
		fmt:  f,
	}
}

// String returns a human-readable string representation of the format.
func (f Format) String() string {
	return fmt.Sprintf("audio/%s; rate=%d; channels=%d", f.Encoding, f.SampleRate, f.Channels)
}

// DataChunk is a chunk of audio data.
type DataChunk struct {
	Data []byte
	fmt  Format
}

// Len returns the length of the audio data in bytes.
func (c *DataChunk) Len() int64 {
	return int64(len(c.Data))
}

// Format returns the audio format of this chunk.
func (c *DataChunk) Format() Format {
	return c.fmt
}

// WriteTo writes the audio data to the writer.
func (c *DataChunk) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c.Data)
	return int64(n), err
}
