package audioio

import (
	"errors"
	"strings"
)

// ErrNoInputDevice is returned when no capture device is available.
var ErrNoInputDevice = errors.New("audioio: no input device available")

// usbKeywords identify USB microphones by device name.
var usbKeywords = []string{"usb", "microphone", "mic", "webcam", "headset"}

// InputDevice describes a capture-capable device.
type InputDevice struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	Channels int     `json:"channels"`
	Rate     float64 `json:"default_sample_rate"`
}

// IsUSB reports whether the device name looks like a USB microphone.
func (d InputDevice) IsUSB() bool {
	name := strings.ToLower(d.Name)
	for _, k := range usbKeywords {
		if strings.Contains(name, k) {
			return true
		}
	}
	return false
}

// SelectInput picks the capture device. A non-empty preferred name wins
// when it matches; otherwise the first USB microphone, then def.
// Devices without input channels are ignored.
func SelectInput(devices []InputDevice, preferred string, def *InputDevice) (InputDevice, error) {
	var inputs []InputDevice
	for _, d := range devices {
		if d.Channels > 0 {
			inputs = append(inputs, d)
		}
	}

	if p := strings.ToLower(strings.TrimSpace(preferred)); p != "" {
		for _, d := range inputs {
			if strings.Contains(strings.ToLower(d.Name), p) {
				return d, nil
			}
		}
	}
	for _, d := range inputs {
		if d.IsUSB() {
			return d, nil
		}
	}
	if def != nil && def.Channels > 0 {
		return *def, nil
	}
	if len(inputs) > 0 {
		return inputs[0], nil
	}
	return InputDevice{}, ErrNoInputDevice
}
