// Package dedup implements the Dedup Ring (spec §4.2): suppression of
// content-identical repeats seen on either the egress or ingress path
// within a bounded recent-history window.
//
// A fixed-size FIFO of exactly 1024 recent content hashes, backed by a map
// for O(1) membership and a slice for eviction order. No probabilistic
// structure: the spec's contract is exact membership over the last 1024
// hashes, and a false-positive-tolerant filter would silently drop
// genuinely fresh packets that happen to collide, which this component
// must never do.
package dedup

import (
	"sync"

	"github.com/natak-mesh/relayd/internal/envelope"
	"github.com/natak-mesh/relayd/internal/metrics"
)

const Capacity = 1024

type Result int

const (
	Fresh Result = iota
	Duplicate
)

type Ring struct {
	mu    sync.Mutex
	seen  map[envelope.ContentHash]struct{}
	order []envelope.ContentHash // FIFO, oldest first
	head  int                    // index of oldest in order (ring-indexed)
	count int
}

func New() *Ring {
	return &Ring{
		seen:  make(map[envelope.ContentHash]struct{}, Capacity),
		order: make([]envelope.ContentHash, Capacity),
	}
}

// Observe is atomic: a Fresh return guarantees the hash was not present and
// is now present, per spec §4.2's contract. Capacity is fixed; once full,
// the oldest entry is evicted to make room (FIFO).
func (r *Ring) Observe(hash envelope.ContentHash) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.seen[hash]; dup {
		metrics.DedupHitsTotal.Inc()
		return Duplicate
	}

	if r.count == Capacity {
		oldest := r.order[r.head]
		delete(r.seen, oldest)
		r.head = (r.head + 1) % Capacity
		r.count--
	}

	r.seen[hash] = struct{}{}
	idx := (r.head + r.count) % Capacity
	r.order[idx] = hash
	r.count++
	return Fresh
}

// Len reports the current number of tracked hashes, for tests/metrics.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
