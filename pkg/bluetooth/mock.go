package bluetooth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockSurface is an in-memory ControlSurface for tests. Connect and Pair
// change the state Info reports.
type MockSurface struct {
	// Devices is returned by Scan.
	Devices []Discovered

	// Injected failures.
	InitErr       error
	ScanErr       error
	InfoErr       error
	PairErr       error
	ConnectErr    error
	DisconnectErr error

	// ScanDelay makes Scan block (honouring ctx) before returning.
	ScanDelay time.Duration

	// OpDelay makes every mutating call block for the given time.
	OpDelay time.Duration

	mu        sync.Mutex
	paired    map[Address]bool
	connected map[Address]bool
	calls     []MockCall

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method  string
	Address Address
	Time    time.Time
}

// NewMockSurface creates a mock that discovers the given devices.
func NewMockSurface(devices ...Discovered) *MockSurface {
	return &MockSurface{
		Devices:   devices,
		paired:    make(map[Address]bool),
		connected: make(map[Address]bool),
	}
}

// SetConnected forces the connection state Info reports.
func (m *MockSurface) SetConnected(addr Address, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected[addr.Normalize()] = v
}

// SetPaired forces the pairing state Info reports.
func (m *MockSurface) SetPaired(addr Address, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paired[addr.Normalize()] = v
}

// SetFailures replaces the injected Info and Connect errors under the lock.
func (m *MockSurface) SetFailures(infoErr, connectErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InfoErr = infoErr
	m.ConnectErr = connectErr
}

func (m *MockSurface) record(method string, addr Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Address: addr, Time: time.Now()})
}

// mutate tracks concurrent mutating calls so tests can assert exclusion.
func (m *MockSurface) mutate(ctx context.Context) func() {
	n := m.inflight.Add(1)
	for {
		cur := m.maxInflight.Load()
		if n <= cur || m.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.OpDelay > 0 {
		select {
		case <-time.After(m.OpDelay):
		case <-ctx.Done():
		}
	}
	return func() { m.inflight.Add(-1) }
}

// Initialize implements ControlSurface.
func (m *MockSurface) Initialize(ctx context.Context) error {
	m.record("Initialize", "")
	return m.InitErr
}

// Scan implements ControlSurface.
func (m *MockSurface) Scan(ctx context.Context, d time.Duration) ([]Discovered, error) {
	m.record("Scan", "")
	if m.ScanDelay > 0 {
		select {
		case <-time.After(m.ScanDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.ScanErr != nil {
		return nil, m.ScanErr
	}
	out := make([]Discovered, len(m.Devices))
	copy(out, m.Devices)
	return out, nil
}

// Info implements ControlSurface.
func (m *MockSurface) Info(ctx context.Context, addr Address) (Info, error) {
	m.record("Info", addr)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InfoErr != nil {
		return Info{Address: addr}, m.InfoErr
	}
	addr = addr.Normalize()
	info := Info{
		Address:   addr,
		Paired:    m.paired[addr],
		Connected: m.connected[addr],
	}
	for _, d := range m.Devices {
		if d.Address.Normalize() == addr {
			info.Name = d.Name
		}
	}
	return info, nil
}

// Pair implements ControlSurface.
func (m *MockSurface) Pair(ctx context.Context, addr Address) error {
	defer m.mutate(ctx)()
	m.record("Pair", addr)
	if m.PairErr != nil {
		return m.PairErr
	}
	m.SetPaired(addr, true)
	return nil
}

// Trust implements ControlSurface.
func (m *MockSurface) Trust(ctx context.Context, addr Address) error {
	m.record("Trust", addr)
	return nil
}

// Remove implements ControlSurface.
func (m *MockSurface) Remove(ctx context.Context, addr Address) error {
	defer m.mutate(ctx)()
	m.record("Remove", addr)
	m.SetPaired(addr, false)
	m.SetConnected(addr, false)
	return nil
}

// Connect implements ControlSurface.
func (m *MockSurface) Connect(ctx context.Context, addr Address) error {
	defer m.mutate(ctx)()
	m.record("Connect", addr)
	m.mu.Lock()
	err := m.ConnectErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.SetConnected(addr, true)
	return nil
}

// Disconnect implements ControlSurface.
func (m *MockSurface) Disconnect(ctx context.Context, addr Address) error {
	defer m.mutate(ctx)()
	m.record("Disconnect", addr)
	m.SetConnected(addr, false)
	return m.DisconnectErr
}

// Calls returns all recorded method calls.
func (m *MockSurface) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of times a method was called.
func (m *MockSurface) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// MaxConcurrentMutations is the highest number of overlapping mutating calls seen.
func (m *MockSurface) MaxConcurrentMutations() int {
	return int(m.maxInflight.Load())
}

// Reset clears all recorded calls.
func (m *MockSurface) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// MockSinks is an in-memory SinkRegistry for tests.
type MockSinks struct {
	ListErr error

	mu    sync.Mutex
	sinks []Sink
	def   string
	lists int
}

// NewMockSinks creates a registry holding sinks.
func NewMockSinks(sinks ...Sink) *MockSinks {
	return &MockSinks{sinks: sinks}
}

// AddBluezSink registers the sink PulseAudio creates for addr.
func (m *MockSinks) AddBluezSink(addr Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, Sink{
		Index:  fmt.Sprint(len(m.sinks) + 1),
		Name:   "bluez_sink." + addr.SinkToken() + ".a2dp_sink",
		Driver: "module-bluez5-device.c",
		State:  "IDLE",
	})
}

// ListSinks implements SinkRegistry.
func (m *MockSinks) ListSinks(ctx context.Context) ([]Sink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]Sink, len(m.sinks))
	copy(out, m.sinks)
	return out, nil
}

// SetDefaultSink implements SinkRegistry.
func (m *MockSinks) SetDefaultSink(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.def = name
	return nil
}

// Default returns the sink last made default.
func (m *MockSinks) Default() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.def
}

// Lists returns how many times ListSinks was called.
func (m *MockSinks) Lists() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

// Verify mocks implement the capability interfaces at compile time.
var (
	_ ControlSurface = (*MockSurface)(nil)
	_ SinkRegistry   = (*MockSinks)(nil)
)
