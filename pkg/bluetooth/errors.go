package bluetooth

import (
	"errors"
	"fmt"
)

// Sentinel errors for Link operations.
var (
	// ErrNotFound is returned when no scanned device matches the pattern.
	ErrNotFound = errors.New("bluetooth: no matching device found")

	// ErrScanTimeout is returned when the control surface does not answer
	// within the scan duration plus grace period.
	ErrScanTimeout = errors.New("bluetooth: scan timed out")

	// ErrPairFailed is returned when pairing was attempted and failed.
	ErrPairFailed = errors.New("bluetooth: pairing failed")

	// ErrConnectFailed is returned when connecting was attempted and failed.
	ErrConnectFailed = errors.New("bluetooth: connect failed")

	// ErrUnknownDevice is returned by Info when the stack does not know the address.
	ErrUnknownDevice = errors.New("bluetooth: device not available")

	// ErrNoTarget is returned when an operation needs a resolved target.
	ErrNoTarget = errors.New("bluetooth: target speaker not resolved")
)

// CommandError describes a control command whose output reported failure.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bluetooth: %s: %v: %s", e.Command, e.Err, e.Output)
	}
	return fmt.Sprintf("bluetooth: %s: %s", e.Command, e.Output)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}
