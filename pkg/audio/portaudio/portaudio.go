// Package portaudio provides Go bindings for the PortAudio library.
//
// This package uses CGO to interface with the PortAudio C library and exposes
// only what the capture pipeline needs: device enumeration and a blocking
// float32 input stream.
//
// For go build: requires portaudio installed via pkg-config (brew install portaudio)
package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

// Wrapper functions using void* to avoid CGO type issues with PaStream
static PaError pa_open_stream(void **stream,
                              const PaStreamParameters *inputParams,
                              double sampleRate,
                              unsigned long framesPerBuffer,
                              PaStreamFlags streamFlags) {
    return Pa_OpenStream((PaStream**)stream, inputParams, NULL, sampleRate,
                         framesPerBuffer, streamFlags, NULL, NULL);
}

static PaError pa_start_stream(void *stream) {
    return Pa_StartStream((PaStream*)stream);
}

static PaError pa_stop_stream(void *stream) {
    return Pa_StopStream((PaStream*)stream);
}

static PaError pa_close_stream(void *stream) {
    return Pa_CloseStream((PaStream*)stream);
}

static PaError pa_read_stream(void *stream, void *buffer, unsigned long frames) {
    return Pa_ReadStream((PaStream*)stream, buffer, frames);
}

static const char *pa_last_host_error(void) {
    const PaHostErrorInfo *info = Pa_GetLastHostErrorInfo();
    if (info == NULL || info->errorText == NULL) {
        return "";
    }
    return info->errorText;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"
)

var (
	// ErrNoDevice is returned when no usable input device exists.
	ErrNoDevice = errors.New("portaudio: no input device")

	// ErrPermissionDenied is returned when the host refuses access to the
	// input device.
	ErrPermissionDenied = errors.New("portaudio: input device permission denied")

	// ErrStreamClosed is returned by operations on a closed stream.
	ErrStreamClosed = errors.New("portaudio: stream closed")
)

var (
	initMu   sync.Mutex
	initRefs int
)

// paError converts a PortAudio error code to a Go error, classifying the
// codes the capture pipeline reports distinctly.
func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	text := C.GoString(C.Pa_GetErrorText(code))
	switch code {
	case C.paInvalidDevice, C.paInvalidChannelCount:
		return fmt.Errorf("%w: %s", ErrNoDevice, text)
	case C.paUnanticipatedHostError:
		host := C.GoString(C.pa_last_host_error())
		if strings.Contains(strings.ToLower(host), "permission") || strings.Contains(strings.ToLower(host), "access denied") {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, host)
		}
		if host != "" {
			text += ": " + host
		}
	}
	return errors.New(text)
}

// Initialize initializes the PortAudio library. Every successful call must
// be paired with Terminate; the library is torn down when the last
// reference is released.
func Initialize() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		if err := paError(C.Pa_Initialize()); err != nil {
			return err
		}
	}
	initRefs++
	return nil
}

// Terminate releases one reference taken by Initialize.
func Terminate() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		return nil
	}
	initRefs--
	if initRefs > 0 {
		return nil
	}
	return paError(C.Pa_Terminate())
}

// DeviceInfo contains information about an audio device.
type DeviceInfo struct {
	Index                   int
	Name                    string
	MaxInputChannels        int
	DefaultLowInputLatency  float64
	DefaultHighInputLatency float64
	DefaultSampleRate       float64
	IsDefaultInput          bool
}

// Devices returns the available input devices.
func Devices() ([]DeviceInfo, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	defer Terminate()

	count := int(C.Pa_GetDeviceCount())
	if count < 0 {
		return nil, paError(C.PaError(count))
	}

	defaultInput := int(C.Pa_GetDefaultInputDevice())

	var devices []DeviceInfo
	for i := 0; i < count; i++ {
		info := C.Pa_GetDeviceInfo(C.PaDeviceIndex(i))
		if info == nil || info.maxInputChannels <= 0 {
			continue
		}
		devices = append(devices, deviceInfo(i, info, i == defaultInput))
	}
	return devices, nil
}

// lookupDevice resolves a device index, or the default input device when
// index is negative. The library must be initialized.
func lookupDevice(index int) (DeviceInfo, error) {
	idx := C.PaDeviceIndex(index)
	if index < 0 {
		idx = C.Pa_GetDefaultInputDevice()
		if idx == C.paNoDevice {
			return DeviceInfo{}, ErrNoDevice
		}
	}
	if int(idx) >= int(C.Pa_GetDeviceCount()) {
		return DeviceInfo{}, fmt.Errorf("%w: index %d", ErrNoDevice, index)
	}
	info := C.Pa_GetDeviceInfo(idx)
	if info == nil || info.maxInputChannels <= 0 {
		return DeviceInfo{}, fmt.Errorf("%w: index %d has no input channels", ErrNoDevice, index)
	}
	return deviceInfo(int(idx), info, idx == C.Pa_GetDefaultInputDevice()), nil
}

func deviceInfo(i int, info *C.PaDeviceInfo, isDefault bool) DeviceInfo {
	return DeviceInfo{
		Index:                   i,
		Name:                    C.GoString(info.name),
		MaxInputChannels:        int(info.maxInputChannels),
		DefaultLowInputLatency:  float64(info.defaultLowInputLatency),
		DefaultHighInputLatency: float64(info.defaultHighInputLatency),
		DefaultSampleRate:       float64(info.defaultSampleRate),
		IsDefaultInput:          isDefault,
	}
}

// stream is an open PortAudio input stream with a C-side sample buffer.
type stream struct {
	stream unsafe.Pointer
	buffer unsafe.Pointer
	frames int
	closed bool
	mu     sync.Mutex
}

// openInput opens and starts a mono float32 input stream.
func openInput(dev DeviceInfo, sampleRate float64, framesPerBuffer int) (*stream, error) {
	params := &C.PaStreamParameters{
		device:                    C.PaDeviceIndex(dev.Index),
		channelCount:              1,
		sampleFormat:              C.paFloat32,
		suggestedLatency:          C.PaTime(dev.DefaultLowInputLatency),
		hostApiSpecificStreamInfo: nil,
	}

	var paStream unsafe.Pointer
	err := paError(C.pa_open_stream(
		&paStream,
		params,
		C.double(sampleRate),
		C.ulong(framesPerBuffer),
		C.paClipOff,
	))
	if err != nil {
		return nil, err
	}

	s := &stream{
		stream: paStream,
		buffer: C.malloc(C.size_t(framesPerBuffer * 4)),
		frames: framesPerBuffer,
	}
	if err := paError(C.pa_start_stream(paStream)); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// read blocks until one buffer of frames is available and copies it to dst.
func (s *stream) read(dst []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if len(dst) < s.frames {
		return fmt.Errorf("portaudio: read buffer %d < %d frames", len(dst), s.frames)
	}
	if err := paError(C.pa_read_stream(s.stream, s.buffer, C.ulong(s.frames))); err != nil {
		// Overflow only means frames were lost on the host side.
		if !strings.Contains(err.Error(), "overflow") {
			return err
		}
	}
	C.memcpy(unsafe.Pointer(&dst[0]), s.buffer, C.size_t(s.frames*4))
	return nil
}

// close stops and closes the stream. It waits for an in-progress read.
func (s *stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	C.pa_stop_stream(s.stream)
	err := paError(C.pa_close_stream(s.stream))
	C.free(s.buffer)
	return err
}
