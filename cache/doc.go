// Package cache provides byte-budgeted key/value tiers with pluggable
// eviction, and their composition into a multi-tier cache.
//
// A Tier measures every value with SizeOf and keeps its total under
// MaxBytes. When an insertion would overflow the budget, the tier evicts
// ahead of time down to 90% of MaxBytes, so a burst of inserts does not pay
// for one eviction each. Victims are chosen by the tier's Policy:
//
//   - LRU evicts the least recently accessed entry.
//   - LFU evicts the entry with the fewest accesses.
//   - FIFO evicts the oldest insertion.
//   - TTLFirst evicts an expired entry if there is one, else falls back to LRU.
//
// Expired entries are removed lazily on access, or in bulk by PurgeExpired.
// Every Tier satisfies the memory package's Evictable interface so the
// pressure monitor can shed a fraction of its entries or clear it.
//
// Thread safety: Tier and MultiTier are safe for concurrent use.
package cache
