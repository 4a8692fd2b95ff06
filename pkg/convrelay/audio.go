package convrelay

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haivivi/convrelay/pkg/audio/pcm"
	"github.com/haivivi/convrelay/pkg/audio/resampler"
)

// DefaultBlockSize is the number of source frames pulled per block,
// independent of the device rate.
const DefaultBlockSize = 4096

// Device is a mono float capture source.
type Device interface {
	// SampleRate is the native capture rate in Hz.
	SampleRate() int

	// ReadBlock fills buf, blocking on the device cadence.
	ReadBlock(buf []float32) error

	// Close releases the device. A ReadBlock blocked in another goroutine
	// returns an error once the device is closed.
	Close() error
}

// AudioSession pulls blocks from a Device, resamples them to the wire rate
// and writes them to a sink. It exists only while capture is active.
type AudioSession struct {
	dev  Device
	rs   resampler.Resampler
	sink pcm.Writer
	buf  []float32

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	err      error
}

// StartAudio starts capturing from dev. A blockSize of zero selects
// DefaultBlockSize and a nil rs selects the box resampler. Chunks the sink
// rejects with ErrNotOpen are dropped silently.
func StartAudio(dev Device, blockSize int, rs resampler.Resampler, sink pcm.Writer) (*AudioSession, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	rate := dev.SampleRate()
	if rate <= 0 {
		return nil, fmt.Errorf("convrelay: invalid device sample rate %d", rate)
	}
	if rs == nil {
		rs = resampler.NewBox(rate, resampler.TargetRate)
	}
	s := &AudioSession{
		dev:    dev,
		rs:     rs,
		sink:   sink,
		buf:    make([]float32, blockSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.loop()
	slog.Info("convrelay: audio capture started", "rate", rate, "block", blockSize)
	return s, nil
}

func (s *AudioSession) loop() {
	defer close(s.done)
	format := pcm.F32Mono16K
	for {
		if err := s.dev.ReadBlock(s.buf); err != nil {
			select {
			case <-s.stopCh:
			default:
				s.err = err
				slog.Warn("convrelay: audio capture failed", "error", err)
			}
			return
		}
		select {
		case <-s.stopCh:
			return
		default:
		}

		out, err := s.rs.Resample(s.buf)
		if err != nil {
			s.err = err
			slog.Warn("convrelay: resample failed", "error", err)
			return
		}
		if len(out) == 0 {
			continue
		}
		if err := s.sink.Write(format.Float32Chunk(out)); err != nil && !errors.Is(err, ErrNotOpen) {
			slog.Debug("convrelay: audio frame not sent", "error", err)
		}
	}
}

// Done is closed when the capture loop has exited.
func (s *AudioSession) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended capture, or nil after Stop.
func (s *AudioSession) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Stop ends capture and closes the device. No sink write happens after Stop
// returns. Stop is idempotent.
func (s *AudioSession) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if err := s.dev.Close(); err != nil {
			slog.Debug("convrelay: close audio device", "error", err)
		}
		<-s.done
		slog.Info("convrelay: audio capture stopped")
	})
}
