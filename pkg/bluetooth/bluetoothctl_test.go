package bluetooth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-assistant/internal/log"
)

// fakeRunner answers commands from a table keyed by the joined command line.
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeRunner) on(cmd, out string, err error) {
	f.outputs[cmd] = out
	if err != nil {
		f.errs[cmd] = err
	}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	return f.outputs[cmd], f.errs[cmd]
}

func (f *fakeRunner) called(cmd string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == cmd {
			return true
		}
	}
	return false
}

func TestBluetoothctlInitialize(t *testing.T) {
	t.Run("power failure is fatal", func(t *testing.T) {
		r := newFakeRunner()
		r.on("bluetoothctl power on", "Failed to set power on: org.bluez.Error.Blocked", nil)
		b := NewBluetoothctl(r, log.Discard())

		err := b.Initialize(context.Background())
		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, "power on", cmdErr.Command)
	})

	t.Run("service and rfkill failures are tolerated", func(t *testing.T) {
		r := newFakeRunner()
		r.on("systemctl start bluetooth", "", errors.New("exit status 1"))
		r.on("rfkill unblock bluetooth", "", errors.New("not found"))
		r.on("bluetoothctl power on", "Changing power on succeeded", nil)
		b := NewBluetoothctl(r, log.Discard())

		require.NoError(t, b.Initialize(context.Background()))
		assert.True(t, r.called("bluetoothctl agent on"))
		assert.True(t, r.called("bluetoothctl default-agent"))
	})
}

func TestBluetoothctlScan(t *testing.T) {
	r := newFakeRunner()
	r.on("bluetoothctl --timeout 15 scan on", "Discovery started", nil)
	r.on("bluetoothctl devices", "Device AA:BB:CC:DD:EE:FF JBL Flip 5\n", nil)
	b := NewBluetoothctl(r, log.Discard())

	found, err := b.Scan(context.Background(), 15*time.Second)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "JBL Flip 5", found[0].Name)
}

func TestBluetoothctlInfo(t *testing.T) {
	r := newFakeRunner()
	r.on("bluetoothctl info 11:22:33:44:55:66", "Device 11:22:33:44:55:66 not available", errors.New("exit status 1"))
	r.on("bluetoothctl info AA:BB:CC:DD:EE:FF", "Name: JBL\nPaired: yes\nConnected: yes\n", nil)
	b := NewBluetoothctl(r, log.Discard())

	_, err := b.Info(context.Background(), "11:22:33:44:55:66")
	assert.ErrorIs(t, err, ErrUnknownDevice)

	info, err := b.Info(context.Background(), "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	assert.True(t, info.Paired)
	assert.True(t, info.Connected)
}

func TestBluetoothctlOutputMarkers(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		err     error
		wantErr bool
	}{
		{"success word", "Attempting to connect\nConnection successful", nil, false},
		{"failure despite exit zero", "Failed to connect: org.bluez.Error.Failed", nil, true},
		{"already connected", "Already connected", errors.New("exit status 1"), false},
		{"silent failure", "", errors.New("exit status 1"), true},
		{"no marker at all", "Attempting to connect", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeRunner()
			r.on("bluetoothctl connect AA:BB:CC:DD:EE:FF", tt.out, tt.err)
			b := NewBluetoothctl(r, log.Discard())

			err := b.Connect(context.Background(), "AA:BB:CC:DD:EE:FF")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBluetoothctlRemoveUnknown(t *testing.T) {
	r := newFakeRunner()
	r.on("bluetoothctl remove AA:BB:CC:DD:EE:FF", "Device AA:BB:CC:DD:EE:FF not available", errors.New("exit status 1"))
	b := NewBluetoothctl(r, log.Discard())

	assert.NoError(t, b.Remove(context.Background(), "AA:BB:CC:DD:EE:FF"))
}

func TestPactl(t *testing.T) {
	r := newFakeRunner()
	r.on("pactl list sinks short", "1\tbluez_sink.AA_BB_CC_DD_EE_FF.a2dp_sink\tmodule-bluez5-device.c\ts16le 2ch 44100Hz\tIDLE\n", nil)
	p := NewPactl(r, log.Discard())

	sinks, err := p.ListSinks(context.Background())
	require.NoError(t, err)
	require.Len(t, sinks, 1)

	require.NoError(t, p.SetDefaultSink(context.Background(), sinks[0].Name))
	assert.True(t, r.called("pactl set-default-sink bluez_sink.AA_BB_CC_DD_EE_FF.a2dp_sink"))
}
