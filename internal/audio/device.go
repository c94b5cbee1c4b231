// SPDX-License-Identifier: MIT
package audio

// Device describes an audio device for listings and the device picker.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// HostDevices returns all audio devices. PortAudio must be initialized.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		}
	}

	return devices, nil
}

// InputDevices returns the devices that can capture audio.
func InputDevices() ([]Device, error) {
	all, err := HostDevices()
	if err != nil {
		return nil, err
	}
	inputs := all[:0:0]
	for _, d := range all {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return inputs, nil
}
