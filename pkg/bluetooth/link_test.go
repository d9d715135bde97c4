package bluetooth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-assistant/internal/log"
)

const speakerAddr Address = "AA:BB:CC:DD:EE:FF"

// testLink builds a Link whose sleeps are recorded instead of waited.
func testLink(surface ControlSurface, sinks SinkRegistry) (*Link, *[]time.Duration) {
	var mu sync.Mutex
	slept := []time.Duration{}
	cfg := LinkConfig{
		ScanDuration: 50 * time.Millisecond,
		ScanGrace:    50 * time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			slept = append(slept, d)
			mu.Unlock()
			return ctx.Err()
		},
		Logger: log.Discard(),
	}
	return NewLink(surface, sinks, cfg), &slept
}

func speaker() *MockSurface {
	return NewMockSurface(
		Discovered{Address: "11:22:33:44:55:66", Name: "Galaxy Buds"},
		Discovered{Address: speakerAddr, Name: "JBL Flip 5"},
	)
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()

	t.Run("matches name case-insensitively", func(t *testing.T) {
		link, _ := testLink(speaker(), nil)
		dev, err := link.Discover(ctx, "jbl", 0)
		require.NoError(t, err)
		assert.Equal(t, speakerAddr, dev.Address)
		assert.Equal(t, "JBL Flip 5", dev.Name)
	})

	t.Run("no match", func(t *testing.T) {
		link, _ := testLink(speaker(), nil)
		_, err := link.Discover(ctx, "bose", 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty pattern never matches", func(t *testing.T) {
		link, _ := testLink(speaker(), nil)
		_, err := link.Discover(ctx, "  ", 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unresponsive surface times out", func(t *testing.T) {
		m := speaker()
		m.ScanDelay = time.Second
		link, _ := testLink(m, nil)
		_, err := link.Discover(ctx, "jbl", 10*time.Millisecond)
		assert.ErrorIs(t, err, ErrScanTimeout)
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		m := speaker()
		m.ScanDelay = time.Second
		link, _ := testLink(m, nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := link.Discover(cctx, "jbl", 10*time.Millisecond)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrScanTimeout)
	})

	t.Run("missing target is invalidated", func(t *testing.T) {
		m := speaker()
		link, _ := testLink(m, NewMockSinks())
		_, err := link.SetupTargetSpeaker(ctx, "jbl")
		require.NoError(t, err)
		_, ok := link.Target()
		require.True(t, ok)

		m.Devices = m.Devices[:1]
		_, err = link.Discover(ctx, "jbl", 0)
		assert.ErrorIs(t, err, ErrNotFound)
		_, ok = link.Target()
		assert.False(t, ok)
	})
}

func TestEnsurePaired(t *testing.T) {
	ctx := context.Background()
	dev := DeviceRecord{Address: speakerAddr}

	t.Run("already paired issues no pair command", func(t *testing.T) {
		m := speaker()
		m.SetPaired(speakerAddr, true)
		link, _ := testLink(m, nil)
		require.NoError(t, link.EnsurePaired(ctx, dev))
		assert.Zero(t, m.CallCount("Pair"))
		assert.Zero(t, m.CallCount("Remove"))
	})

	t.Run("removes stale pairing then pairs and trusts", func(t *testing.T) {
		m := speaker()
		link, _ := testLink(m, nil)
		require.NoError(t, link.EnsurePaired(ctx, dev))

		var order []string
		for _, c := range m.Calls() {
			if c.Method != "Info" {
				order = append(order, c.Method)
			}
		}
		assert.Equal(t, []string{"Remove", "Pair", "Trust"}, order)
		rec, _ := link.Record(speakerAddr)
		assert.Equal(t, Paired, rec.Pairing)
	})

	t.Run("failure", func(t *testing.T) {
		m := speaker()
		m.PairErr = errors.New("org.bluez.Error.AuthenticationFailed")
		link, _ := testLink(m, nil)
		err := link.EnsurePaired(ctx, dev)
		assert.ErrorIs(t, err, ErrPairFailed)
		rec, _ := link.Record(speakerAddr)
		assert.Equal(t, Unpaired, rec.Pairing)
	})
}

func TestConnect(t *testing.T) {
	ctx := context.Background()
	dev := DeviceRecord{Address: speakerAddr}

	t.Run("idempotent when already connected", func(t *testing.T) {
		m := speaker()
		m.SetConnected(speakerAddr, true)
		link, _ := testLink(m, nil)
		require.NoError(t, link.Connect(ctx, dev))
		require.NoError(t, link.Connect(ctx, dev))
		assert.Zero(t, m.CallCount("Connect"))

		rec, _ := link.Record(speakerAddr)
		assert.Equal(t, Connected, rec.Connection)
		assert.False(t, rec.ProbedAt.IsZero())
	})

	t.Run("connects once", func(t *testing.T) {
		m := speaker()
		link, _ := testLink(m, nil)
		require.NoError(t, link.Connect(ctx, dev))
		require.NoError(t, link.Connect(ctx, dev))
		assert.Equal(t, 1, m.CallCount("Connect"))
	})

	t.Run("failure leaves record disconnected", func(t *testing.T) {
		m := speaker()
		m.ConnectErr = errors.New("br-connection-page-timeout")
		link, _ := testLink(m, nil)
		err := link.Connect(ctx, dev)
		assert.ErrorIs(t, err, ErrConnectFailed)
		rec, _ := link.Record(speakerAddr)
		assert.Equal(t, Disconnected, rec.Connection)
	})

	t.Run("mutations on one device never overlap", func(t *testing.T) {
		m := speaker()
		m.OpDelay = 5 * time.Millisecond
		link, _ := testLink(m, nil)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					link.Disconnect(ctx, dev)
				} else {
					_ = link.Connect(ctx, dev)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, m.MaxConcurrentMutations())
	})
}

func TestIsConnected(t *testing.T) {
	ctx := context.Background()
	dev := DeviceRecord{Address: speakerAddr}
	m := speaker()
	link, _ := testLink(m, nil)

	m.SetConnected(speakerAddr, true)
	assert.True(t, link.IsConnected(ctx, dev))

	m.SetFailures(errors.New("bluetoothd not running"), nil)
	assert.False(t, link.IsConnected(ctx, dev))
	rec, _ := link.Record(speakerAddr)
	assert.Equal(t, Disconnected, rec.Connection)
}

func TestBindAsAudioSink(t *testing.T) {
	ctx := context.Background()
	dev := DeviceRecord{Address: speakerAddr}

	t.Run("binds matching sink after settle delay", func(t *testing.T) {
		sinks := NewMockSinks(Sink{Index: "0", Name: "alsa_output.platform-bcm2835_audio.analog-stereo"})
		sinks.AddBluezSink(speakerAddr)
		link, slept := testLink(speaker(), sinks)

		assert.True(t, link.BindAsAudioSink(ctx, dev))
		assert.Equal(t, "bluez_sink.AA_BB_CC_DD_EE_FF.a2dp_sink", sinks.Default())
		require.Len(t, *slept, 1)
		assert.GreaterOrEqual(t, (*slept)[0], MinSettleDelay)
	})

	t.Run("configured delay below minimum is raised", func(t *testing.T) {
		link := NewLink(speaker(), NewMockSinks(), LinkConfig{SettleDelay: time.Millisecond})
		assert.Equal(t, MinSettleDelay, link.cfg.SettleDelay)
	})

	t.Run("no sink", func(t *testing.T) {
		sinks := NewMockSinks(Sink{Index: "0", Name: "alsa_output.platform-bcm2835_audio.analog-stereo"})
		link, _ := testLink(speaker(), sinks)
		assert.False(t, link.BindAsAudioSink(ctx, dev))
		assert.Empty(t, sinks.Default())
	})
}

func TestSetupTargetSpeaker(t *testing.T) {
	ctx := context.Background()

	t.Run("full sequence", func(t *testing.T) {
		m := speaker()
		sinks := NewMockSinks()
		sinks.AddBluezSink(speakerAddr)
		link, _ := testLink(m, sinks)

		rec, err := link.SetupTargetSpeaker(ctx, "flip")
		require.NoError(t, err)
		assert.Equal(t, speakerAddr, rec.Address)
		assert.Equal(t, Paired, rec.Pairing)
		assert.Equal(t, Connected, rec.Connection)
		assert.NotEmpty(t, sinks.Default())

		target, ok := link.Target()
		require.True(t, ok)
		assert.Equal(t, speakerAddr, target.Address)
	})

	t.Run("connected without sink still succeeds", func(t *testing.T) {
		link, _ := testLink(speaker(), NewMockSinks())
		rec, err := link.SetupTargetSpeaker(ctx, "jbl")
		require.NoError(t, err)
		assert.Equal(t, Connected, rec.Connection)
	})

	t.Run("skips pairing for paired device", func(t *testing.T) {
		m := speaker()
		m.SetPaired(speakerAddr, true)
		link, _ := testLink(m, NewMockSinks())
		_, err := link.SetupTargetSpeaker(ctx, "jbl")
		require.NoError(t, err)
		assert.Zero(t, m.CallCount("Pair"))
	})

	t.Run("initialize failure stops the sequence", func(t *testing.T) {
		m := speaker()
		m.InitErr = errors.New("no adapter")
		link, _ := testLink(m, nil)
		_, err := link.SetupTargetSpeaker(ctx, "jbl")
		require.Error(t, err)
		assert.Zero(t, m.CallCount("Scan"))
	})

	t.Run("connect failure", func(t *testing.T) {
		m := speaker()
		m.ConnectErr = errors.New("page timeout")
		link, _ := testLink(m, NewMockSinks())
		_, err := link.SetupTargetSpeaker(ctx, "jbl")
		assert.ErrorIs(t, err, ErrConnectFailed)
	})
}

func TestConnectedWithin(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := DeviceRecord{Connection: Connected, ProbedAt: now.Add(-20 * time.Second)}
	assert.True(t, rec.ConnectedWithin(now, 30*time.Second))
	assert.False(t, rec.ConnectedWithin(now, 10*time.Second))

	rec.Connection = Disconnected
	assert.False(t, rec.ConnectedWithin(now, time.Minute))
}
