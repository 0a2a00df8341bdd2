package cache

// Policy selects eviction victims.
type Policy uint8

// Eviction policies.
const (
	LRU Policy = iota
	LFU
	FIFO
	TTLFirst
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case LRU:
		return "lru"
	case LFU:
		return "lfu"
	case FIFO:
		return "fifo"
	case TTLFirst:
		return "ttl"
	}
	return "unknown"
}

// Reason tells an OnEvict hook why an entry left the tier.
type Reason uint8

// Eviction reasons.
const (
	// ReasonCapacity is a budget or entry-count eviction during Set.
	ReasonCapacity Reason = iota + 1

	// ReasonExpired is a TTL expiry.
	ReasonExpired

	// ReasonPressure is an eviction requested by the memory monitor.
	ReasonPressure

	// ReasonCleared is a Clear.
	ReasonCleared
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonCapacity:
		return "capacity"
	case ReasonExpired:
		return "expired"
	case ReasonPressure:
		return "pressure"
	case ReasonCleared:
		return "cleared"
	}
	return "unknown"
}
