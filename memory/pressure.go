package memory

import "fmt"

// Pressure is a memory pressure level.
type Pressure uint8

// Pressure levels in ascending order.
const (
	Low Pressure = iota
	Medium
	High
	Critical
)

// String returns the lower-case level name.
func (p Pressure) String() string {
	switch p {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	}
	return fmt.Sprintf("Pressure(%d)", uint8(p))
}

// Thresholds are usage percentages (0-100) separating pressure levels.
type Thresholds struct {
	// Low is the recovery mark: usage must drop below it to return to Low.
	Low float64

	Medium   float64
	High     float64
	Critical float64
}

// DefaultThresholds returns 50/70/85/95.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 50, Medium: 70, High: 85, Critical: 95}
}

func (t Thresholds) valid() bool {
	return t.Low > 0 && t.Low <= t.Medium && t.Medium < t.High && t.High < t.Critical
}

// Classify returns the level for pct given the current level prev.
// Between Low and Medium the level does not fall back from an elevated prev.
func (t Thresholds) Classify(pct float64, prev Pressure) Pressure {
	switch {
	case pct >= t.Critical:
		return Critical
	case pct >= t.High:
		return High
	case pct >= t.Medium:
		return Medium
	case pct >= t.Low && prev > Low:
		return Medium
	}
	return Low
}
