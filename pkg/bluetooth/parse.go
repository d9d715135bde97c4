package bluetooth

import (
	"regexp"
	"strings"
)

var (
	macPattern  = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
)

// failureMarkers mark bluetoothctl output as failed regardless of exit code.
var failureMarkers = []string{"failed", "not available", "org.bluez.error"}

func cleanOutput(out string) string {
	return ansiPattern.ReplaceAllString(out, "")
}

// ValidAddress reports whether s is a well-formed hardware address.
func ValidAddress(s string) bool {
	return macPattern.MatchString(s)
}

// parseDevices reads "Device <MAC> <Name>" lines. Prefixes such as
// "[NEW]" or "[CHG]" are ignored.
func parseDevices(out string) []Discovered {
	var devices []Discovered
	seen := make(map[Address]bool)

	for _, line := range strings.Split(cleanOutput(out), "\n") {
		idx := strings.Index(line, "Device ")
		if idx < 0 {
			continue
		}
		fields := strings.Fields(line[idx+len("Device "):])
		if len(fields) == 0 || !ValidAddress(fields[0]) {
			continue
		}
		addr := Address(fields[0]).Normalize()
		if seen[addr] {
			continue
		}
		seen[addr] = true
		devices = append(devices, Discovered{
			Address: addr,
			Name:    strings.Join(fields[1:], " "),
		})
	}
	return devices
}

// parseInfo reads the key: value block printed by "bluetoothctl info".
func parseInfo(addr Address, out string) Info {
	info := Info{Address: addr.Normalize()}
	for _, line := range strings.Split(cleanOutput(out), "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch key {
		case "Name":
			info.Name = val
		case "Paired":
			info.Paired = val == "yes"
		case "Trusted":
			info.Trusted = val == "yes"
		case "Connected":
			info.Connected = val == "yes"
		}
	}
	return info
}

// parseSinks reads "pactl list sinks short" output:
// index, name, driver, sample spec, state separated by tabs.
func parseSinks(out string) []Sink {
	var sinks []Sink
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		s := Sink{Index: fields[0], Name: fields[1]}
		if len(fields) > 2 {
			s.Driver = fields[2]
		}
		if len(fields) > 4 {
			s.State = fields[len(fields)-1]
		}
		sinks = append(sinks, s)
	}
	return sinks
}

// hasFailure reports whether output contains a failure marker.
func hasFailure(out string) bool {
	lower := strings.ToLower(cleanOutput(out))
	for _, m := range failureMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// hasAny reports whether output contains one of the words, case-insensitive.
func hasAny(out string, words ...string) bool {
	lower := strings.ToLower(cleanOutput(out))
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// matchSink finds the bluez sink that belongs to addr.
func matchSink(sinks []Sink, addr Address) (Sink, bool) {
	token := addr.SinkToken()
	for _, s := range sinks {
		if strings.Contains(s.Name, "bluez") && strings.Contains(strings.ToUpper(s.Name), token) {
			return s, true
		}
	}
	return Sink{}, false
}
