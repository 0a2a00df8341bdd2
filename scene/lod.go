package scene

// LOD is a discrete rendering-quality tier.
type LOD uint8

// Detail tiers, from coarsest to finest.
const (
	LODLow LOD = iota
	LODMedium
	LODHigh
)

// String returns the tier name.
func (l LOD) String() string {
	switch l {
	case LODLow:
		return "low"
	case LODMedium:
		return "medium"
	case LODHigh:
		return "high"
	}
	return "unknown"
}
