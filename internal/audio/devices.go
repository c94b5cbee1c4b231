// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"

	"vizpipe/internal/config"

	"github.com/gordonklaus/portaudio"
)

// PortAudio entry points, replaceable in tests.
var (
	paLibInitialize             = portaudio.Initialize
	paLibTerminate              = portaudio.Terminate
	paLibDevicesFunc            = portaudio.Devices
	paLibDefaultInputDeviceFunc = portaudio.DefaultInputDevice
	paDevicesFunc               = paDevices
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// InputDevice retrieves the audio input device for the given device ID.
// config.MinDeviceID (-1) selects the system default input device.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	if deviceID == config.MinDeviceID {
		device, err := paLibDefaultInputDeviceFunc()
		if err != nil {
			return nil, err
		}
		return device, nil
	}

	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	if devices[deviceID].MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %d (%s) does not support input", deviceID, devices[deviceID].Name)
	}
	return devices[deviceID], nil
}

// ListDevices writes a description of every audio device to w.
func ListDevices(w io.Writer) error {
	devices, err := paDevicesFunc()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")

	for i, device := range devices {
		inputChannels := device.MaxInputChannels
		outputChannels := device.MaxOutputChannels

		deviceType := ""
		switch {
		case inputChannels > 0 && outputChannels > 0:
			deviceType = "Input/Output"
		case inputChannels > 0:
			deviceType = "Input"
		case outputChannels > 0:
			deviceType = "Output"
		}

		fmt.Fprintf(w, "[%d] %s (%s)\n", i, device.Name, deviceType)
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", inputChannels, outputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n\n",
			device.DefaultLowInputLatency.Seconds()*1000,
			device.DefaultHighInputLatency.Seconds()*1000)
	}

	return nil
}

// paDevices returns all available PortAudio devices, never a nil slice on
// success.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []*portaudio.DeviceInfo{}
	}
	return devices, nil
}
