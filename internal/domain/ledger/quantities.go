package ledger

import (
	"maps"
	"slices"

	"stockledger/internal/domain/location"
)

// Quantities is the per-location breakdown of an item. Keys are canonical
// location keys after Canonical; every accessor also canonicalizes the
// stored keys, so labels loaded from storage ("Shelf (A1)") resolve to A1.
// Zero entries are kept so sync can zero the matching snapshot record.
type Quantities map[string]int64

// Get returns the explicit quantity stored at a location.
func (q Quantities) Get(key string) int64 {
	want := location.CanonicalKey(key)
	var total int64
	for k, v := range q {
		if location.CanonicalKey(k) == want {
			total += v
		}
	}
	return total
}

// Has reports whether the location has an explicit entry.
func (q Quantities) Has(key string) bool {
	want := location.CanonicalKey(key)
	for k := range q {
		if location.CanonicalKey(k) == want {
			return true
		}
	}
	return false
}

// Set stores an explicit quantity, replacing labelled aliases of the key.
func (q Quantities) Set(key string, v int64) {
	want := location.CanonicalKey(key)
	for k := range q {
		if k != want && location.CanonicalKey(k) == want {
			delete(q, k)
		}
	}
	q[want] = v
}

// SumExcept sums every location other than key.
func (q Quantities) SumExcept(key string) int64 {
	skip := location.CanonicalKey(key)
	var total int64
	for k, v := range q {
		if location.CanonicalKey(k) != skip {
			total += v
		}
	}
	return total
}

// IsCanonical reports whether every key is already canonical.
func (q Quantities) IsCanonical() bool {
	for k := range q {
		if k == "" || location.CanonicalKey(k) != k {
			return false
		}
	}
	return true
}

// Total sums every location.
func (q Quantities) Total() int64 {
	var total int64
	for _, v := range q {
		total += v
	}
	return total
}

// Keys returns the location keys in sorted order.
func (q Quantities) Keys() []string {
	return slices.Sorted(maps.Keys(q))
}

// Clone returns a copy safe for independent mutation.
func (q Quantities) Clone() Quantities {
	out := make(Quantities, len(q))
	maps.Copy(out, q)
	return out
}

// Canonical re-keys a map loaded from storage, merging labels that resolve
// to the same location.
func (q Quantities) Canonical() Quantities {
	return Quantities(location.MergeCounts(q, nil))
}

// Available returns what can be sourced from target. The explicit quantity
// wins; when it is zero or absent and target is the primary location, the
// residual max(0, aggregate - sum of the other locations) is inferred.
func Available(aggregate int64, locs Quantities, primary, target string) int64 {
	key := location.CanonicalKey(target)
	if explicit := locs.Get(key); explicit > 0 {
		return explicit
	}
	if key == "" || key != location.CanonicalKey(primary) {
		return 0
	}
	return max(0, aggregate-locs.SumExcept(key))
}
