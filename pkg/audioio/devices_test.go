package audioio

import (
	"errors"
	"testing"
)

func TestSelectInput(t *testing.T) {
	builtin := InputDevice{Index: 0, Name: "bcm2835 Headphones", Channels: 0}
	hdmi := InputDevice{Index: 1, Name: "vc4-hdmi", Channels: 2}
	usb := InputDevice{Index: 2, Name: "USB PnP Sound Device: Audio (hw:2,0)", Channels: 1}
	cam := InputDevice{Index: 3, Name: "HD Webcam C270", Channels: 1}
	def := hdmi

	tests := []struct {
		name      string
		devices   []InputDevice
		preferred string
		def       *InputDevice
		want      int
		err       error
	}{
		{"first usb wins", []InputDevice{builtin, hdmi, usb, cam}, "", &def, 2, nil},
		{"preferred name", []InputDevice{hdmi, usb, cam}, "webcam", &def, 3, nil},
		{"preferred missing falls back", []InputDevice{hdmi, usb}, "blue yeti", &def, 2, nil},
		{"default without usb", []InputDevice{builtin, hdmi}, "", &def, 1, nil},
		{"first input without default", []InputDevice{builtin, hdmi}, "", nil, 1, nil},
		{"output only", []InputDevice{builtin}, "", nil, 0, ErrNoInputDevice},
		{"none", nil, "", nil, 0, ErrNoInputDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectInput(tt.devices, tt.preferred, tt.def)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Index != tt.want {
				t.Errorf("expected device %d, got %d (%s)", tt.want, got.Index, got.Name)
			}
		})
	}
}

func TestInputDevice_IsUSB(t *testing.T) {
	for name, want := range map[string]bool{
		"USB Audio":            true,
		"Jabra Headset":        true,
		"Blue Microphone":      true,
		"vc4-hdmi":             false,
		"bcm2835 Headphones":   false,
		"Logitech Webcam C920": true,
	} {
		if got := (InputDevice{Name: name}).IsUSB(); got != want {
			t.Errorf("IsUSB(%q) = %v, want %v", name, got, want)
		}
	}
}
