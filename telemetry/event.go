package telemetry

import "time"

// Kind classifies an Event.
type Kind uint8

// Event kinds.
const (
	// KindPressure reports a memory-pressure level transition.
	KindPressure Kind = iota + 1

	// KindQuality reports a render quality change.
	KindQuality

	// KindFrame reports a rendered frame.
	KindFrame

	// KindFrameSkipped reports a frame skipped for arriving early.
	KindFrameSkipped

	// KindEviction reports entries evicted from a cache.
	KindEviction

	// KindWorkerFailure reports a worker terminated after an error or timeout.
	KindWorkerFailure
)

// String returns the kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindPressure:
		return "pressure"
	case KindQuality:
		return "quality"
	case KindFrame:
		return "frame"
	case KindFrameSkipped:
		return "frame_skipped"
	case KindEviction:
		return "eviction"
	case KindWorkerFailure:
		return "worker_failure"
	}
	return "unknown"
}

// Event is a single notification.
type Event struct {
	Kind Kind
	Time time.Time

	// Source names the emitting component or cache.
	Source string

	// Level is the pressure level name for KindPressure.
	Level string

	// Value is kind specific: memory percentage, quality level, or the
	// number of evicted entries.
	Value float64

	// Duration is the paint time for KindFrame.
	Duration time.Duration

	// Err is the failure for KindWorkerFailure and critical pressure.
	Err error
}
