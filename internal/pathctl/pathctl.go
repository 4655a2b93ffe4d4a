// Package pathctl implements the Path Controller (spec §4.6): the system's
// decision core. One hysteretic two-state machine per remote hostname,
// fed by the Observer's link-state feed at 1 Hz, deciding PRIMARY vs
// OVERLAY. Path State is exclusively owned and mutated here — no other
// component ever writes it (spec §3's ownership rule).
package pathctl

import (
	"sync"
	"time"

	"github.com/natak-mesh/relayd/internal/metrics"
)

type Mode int

const (
	Primary Mode = iota
	Overlay
)

func (m Mode) String() string {
	if m == Overlay {
		return "OVERLAY"
	}
	return "PRIMARY"
}

const (
	FailureThreshold = 3 * time.Second
	FailureCount     = 3
	RecoveryCount    = 10
)

type state struct {
	mode         Mode
	failureCount int
	goodCount    int
	modeSince    time.Time // derived-only field, see SPEC_FULL.md's C6 supplement
}

// Controller owns the Path State map (spec §3's Path State invariant:
// failure_count == 0 || good_count == 0 at all times).
type Controller struct {
	mu     sync.Mutex
	states map[string]*state
	now    func() time.Time // overridable for deterministic tests
}

func New() *Controller {
	return &Controller{states: map[string]*state{}, now: time.Now}
}

// Tick applies one observation to hostname's state machine, per spec
// §4.6's transition table. heartbeat == nil means "no observation arrived
// this tick" (§4.6: absence of an observation counts as a failure). A
// previously-unknown hostname starts in PRIMARY with both counters zero.
func (c *Controller) Tick(hostname string, heartbeat *time.Duration) Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[hostname]
	if !ok {
		st = &state{mode: Primary, modeSince: c.now()}
		c.states[hostname] = st
	}

	failed := heartbeat == nil || *heartbeat > FailureThreshold

	switch st.mode {
	case Primary:
		if failed {
			st.failureCount++
			st.goodCount = 0
			if st.failureCount >= FailureCount {
				st.mode = Overlay
				st.modeSince = c.now()
				st.failureCount, st.goodCount = 0, 0
				metrics.ModeTransitionsTotal.WithLabelValues(hostname, st.mode.String()).Inc()
			}
		} else {
			st.goodCount++
			st.failureCount = 0
		}
	case Overlay:
		if !failed {
			st.goodCount++
			st.failureCount = 0
			if st.goodCount >= RecoveryCount {
				st.mode = Primary
				st.modeSince = c.now()
				st.failureCount, st.goodCount = 0, 0
				metrics.ModeTransitionsTotal.WithLabelValues(hostname, st.mode.String()).Inc()
			}
		} else {
			st.failureCount++
			st.goodCount = 0
		}
	}
	return st.mode
}

// Modes returns a consistent snapshot of hostname -> mode, queried by the
// Reliable Sender on every fan-out attempt (spec §4.6).
func (c *Controller) Modes() map[string]Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Mode, len(c.states))
	for h, st := range c.states {
		out[h] = st.mode
	}
	return out
}

// Snapshot is the Ops UI / Observer-export view of one remote's state,
// including the non-authoritative derived ModeSince field.
type Snapshot struct {
	Mode         Mode
	FailureCount int
	GoodCount    int
	ModeSince    time.Time
}

func (c *Controller) Snapshots() map[string]Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Snapshot, len(c.states))
	for h, st := range c.states {
		out[h] = Snapshot{Mode: st.mode, FailureCount: st.failureCount, GoodCount: st.goodCount, ModeSince: st.modeSince}
	}
	return out
}

// Clone returns a deep copy usable for replaying a transition twice and
// comparing results (spec §8's L3 determinism law); it is test-only
// machinery, not used by production code paths.
func (c *Controller) Clone() *Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := New()
	out.now = c.now
	for h, st := range c.states {
		cp := *st
		out.states[h] = &cp
	}
	return out
}
