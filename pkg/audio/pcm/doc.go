// Package pcm provides types and utilities for working with raw PCM audio.
//
// The package defines the formats used on the capture side (32-bit float at
// the device rate) and on the wire (32-bit float, mono, 16 kHz, little-endian),
// and a small Chunk/Writer vocabulary for moving blocks between them.
//
// Key types:
//   - Format: sample rate, channel count and sample encoding
//   - Chunk: a block of encoded audio
//   - DataChunk: Chunk backed by a byte slice
//   - Writer: sink for chunks
//
// Example usage:
//
//	// Encode a resampled block for transmission
//	chunk := pcm.F32Mono16K.Float32Chunk(samples)
//
//	// A block is whole frames only
//	ok := chunk.Len()%int64(pcm.F32Mono16K.FrameBytes()) == 0
package pcm
