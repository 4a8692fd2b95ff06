package pcm

// Writer consumes audio chunks. The capture pipeline hands every resampled
// block to one.
type Writer interface {
	Write(Chunk) error
}

// WriteFunc adapts a function to Writer.
type WriteFunc func(Chunk) error

func (f WriteFunc) Write(c Chunk) error { return f(c) }

// Discard accepts and drops every chunk.
var Discard Writer = WriteFunc(func(Chunk) error { return nil })
