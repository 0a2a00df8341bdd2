package memory

import (
	"errors"
	"fmt"
)

// ErrRunning is returned by Start when the monitor is already running.
var ErrRunning = errors.New("memory: monitor already running")

// Severity grades a PressureError.
type Severity string

// SeverityFatal marks an error the host must act on.
const SeverityFatal Severity = "fatal"

// PressureError is reported to the host when pressure reaches Critical.
// Caches have already been cleared when it is delivered.
type PressureError struct {
	Severity    Severity
	Recoverable bool
	Pressure    Pressure
	Percentage  float64
	Used        uint64
	Limit       uint64

	// Cleared is the number of entries dropped from all caches.
	Cleared int
}

func (e *PressureError) Error() string {
	return fmt.Sprintf("memory: %s pressure at %.1f%% (%d of %d bytes), cleared %d cache entries",
		e.Pressure, e.Percentage, e.Used, e.Limit, e.Cleared)
}
