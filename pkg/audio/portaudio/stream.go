package portaudio

import (
	"sync"
)

// InputStream captures mono float32 audio at the device's native rate in
// fixed-size blocks.
type InputStream struct {
	stream     *stream
	device     DeviceInfo
	sampleRate int

	mu     sync.Mutex
	closed bool
}

// OpenInput opens the input device at index (negative for the default
// device) at its default sample rate. Each ReadBlock returns exactly
// blockSize frames regardless of the rate.
//
// Errors wrap ErrNoDevice or ErrPermissionDenied when the cause is known.
func OpenInput(index int, blockSize int) (*InputStream, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	dev, err := lookupDevice(index)
	if err != nil {
		Terminate()
		return nil, err
	}

	s, err := openInput(dev, dev.DefaultSampleRate, blockSize)
	if err != nil {
		Terminate()
		return nil, err
	}

	return &InputStream{
		stream:     s,
		device:     dev,
		sampleRate: int(dev.DefaultSampleRate),
	}, nil
}

// Device returns the device the stream was opened on.
func (is *InputStream) Device() DeviceInfo {
	return is.device
}

// SampleRate returns the capture rate in Hz.
func (is *InputStream) SampleRate() int {
	return is.sampleRate
}

// BlockSize returns the number of frames per block.
func (is *InputStream) BlockSize() int {
	return is.stream.frames
}

// ReadBlock blocks until the next block is captured and copies it into buf,
// which must hold at least BlockSize frames.
func (is *InputStream) ReadBlock(buf []float32) error {
	return is.stream.read(buf)
}

// Close stops the stream, releases the device and drops this stream's
// reference on the PortAudio library. Close is idempotent.
func (is *InputStream) Close() error {
	is.mu.Lock()
	defer is.mu.Unlock()

	if is.closed {
		return nil
	}
	is.closed = true

	err := is.stream.close()
	if terr := Terminate(); err == nil {
		err = terr
	}
	return err
}
