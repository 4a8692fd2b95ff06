package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haivivi/convrelay/pkg/audio/portaudio"
	"github.com/haivivi/convrelay/pkg/convrelay"
)

// deviceOpener opens the capture device named by spec with PortAudio.
func deviceOpener(spec string, blockSize int) convrelay.DeviceOpener {
	if blockSize <= 0 {
		blockSize = convrelay.DefaultBlockSize
	}
	return func() (convrelay.Device, error) {
		index, err := resolveDevice(spec)
		if err != nil {
			return nil, classifyDeviceError(err)
		}
		in, err := portaudio.OpenInput(index, blockSize)
		if err != nil {
			return nil, classifyDeviceError(err)
		}
		return in, nil
	}
}

// resolveDevice maps a device index or name substring to an index, -1
// meaning the default input.
func resolveDevice(spec string) (int, error) {
	if index, ok := deviceIndex(spec); ok {
		return index, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return 0, err
	}
	return matchDevice(devices, spec)
}

func matchDevice(devices []portaudio.DeviceInfo, name string) (int, error) {
	name = strings.ToLower(name)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), name) {
			return d.Index, nil
		}
	}
	return 0, fmt.Errorf("%w: no input device matches %q", portaudio.ErrNoDevice, name)
}

// classifyDeviceError maps PortAudio failures onto the client's device
// error classes.
func classifyDeviceError(err error) error {
	switch {
	case errors.Is(err, portaudio.ErrNoDevice):
		return fmt.Errorf("%w: %v", convrelay.ErrNoDevice, err)
	case errors.Is(err, portaudio.ErrPermissionDenied):
		return fmt.Errorf("%w: %v", convrelay.ErrPermissionDenied, err)
	}
	return err
}
