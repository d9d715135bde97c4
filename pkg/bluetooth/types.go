// Package bluetooth owns pairing and connection state for the target speaker.
//
// The host Bluetooth stack is driven through two narrow capability sets:
// ControlSurface (scan, pair, connect, query) and SinkRegistry (audio sinks).
// Link layers discovery, idempotent connection and sink binding on top of
// them and serializes every mutating operation per device.
package bluetooth

import (
	"strings"
	"time"
)

// Address is a Bluetooth hardware address (AA:BB:CC:DD:EE:FF).
type Address string

// Normalize returns the upper-case form used as map key.
func (a Address) Normalize() Address {
	return Address(strings.ToUpper(strings.TrimSpace(string(a))))
}

// SinkToken is the address as it appears in PulseAudio sink names.
func (a Address) SinkToken() string {
	return strings.ReplaceAll(string(a.Normalize()), ":", "_")
}

func (a Address) String() string {
	return string(a)
}

// PairingState is the last known pairing status.
type PairingState int

const (
	PairingUnknown PairingState = iota
	Paired
	Unpaired
)

func (p PairingState) String() string {
	switch p {
	case Paired:
		return "paired"
	case Unpaired:
		return "unpaired"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its name.
func (p PairingState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ConnectionState is the last known link status.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (c ConnectionState) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// MarshalText renders the state as its name.
func (c ConnectionState) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// DeviceRecord is what the Link knows about one peripheral.
type DeviceRecord struct {
	Address    Address         `json:"address"`
	Name       string          `json:"name"`
	Pairing    PairingState    `json:"pairing"`
	Connection ConnectionState `json:"connection"`
	ProbedAt   time.Time       `json:"probed_at"`
}

// ConnectedWithin reports whether the record says Connected and was
// confirmed by a probe no older than maxAge.
func (r DeviceRecord) ConnectedWithin(now time.Time, maxAge time.Duration) bool {
	if r.Connection != Connected || r.ProbedAt.IsZero() {
		return false
	}
	return now.Sub(r.ProbedAt) <= maxAge
}

// Discovered is one entry of a scan result.
type Discovered struct {
	Address Address
	Name    string
}

// Info is the parsed result of a point-in-time device query.
type Info struct {
	Address   Address
	Name      string
	Paired    bool
	Trusted   bool
	Connected bool
}

// Sink is an audio output endpoint registered with the host audio server.
type Sink struct {
	Index  string
	Name   string
	Driver string
	State  string
}
