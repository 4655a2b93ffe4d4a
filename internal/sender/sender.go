// Package sender implements the Reliable Sender (spec §4.7): fan-out of
// spooled packets to every OVERLAY remote, with a per-packet Delivery
// Ledger, globally paced sends, and exponential-backoff retry driven by
// the Overlay Transport's delivery-proof callbacks.
package sender

import (
	"context"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/natak-mesh/relayd/internal/metrics"
	"github.com/natak-mesh/relayd/internal/overlay"
	"github.com/natak-mesh/relayd/internal/pathctl"
	"github.com/natak-mesh/relayd/internal/peerdir"
	"github.com/natak-mesh/relayd/internal/rlog"
	"github.com/natak-mesh/relayd/internal/spool"
)

const (
	SendSpacing    = 5 * time.Second
	InitialDelay   = 12 * time.Second
	Backoff        = 2
	MaxDelay       = 120 * time.Second
	Jitter         = 0.30
	MaxAttempts    = 5
	RetryRateLimit = 1 // per second

	// PacketTimeout bounds how long the Reliable Sender waits for a
	// delivery proof on one send attempt before treating it as lost
	// (spec §4.7 bullet 3, §6's receipt.set_timeout(seconds)).
	PacketTimeout = 300 * time.Second

	tickInterval    = 250 * time.Millisecond
	purgeCheckEvery = 30 * time.Second
	maxInFlight     = 64 // bounds ledger growth: claimIfRoom claims nothing while this many packets are in flight
)

type targetState struct {
	attempts    int
	nextAttempt time.Time
	sent        bool // dispatched at least once, for the promote gate
	delivered   bool
	cancelled   bool
}

func (t *targetState) terminal() bool {
	return t.delivered || t.cancelled || t.attempts >= MaxAttempts
}

// ledgerEntry is keyed by the spool Handle's Name, not PacketID: two
// packets staged in the same millisecond share a PacketID (spec §4.3's
// tie-break sequence disambiguates the filename, not the id) so only
// Name is a safe ledger key.
//
// targetOrder is the deterministic iteration order spec §5 requires:
// hostnames in sorted order as of ledger-creation time, with hostnames
// that join OVERLAY later appended (also sorted among themselves) rather
// than interleaved by Go's randomized map iteration.
type ledgerEntry struct {
	handle      spool.Handle
	data        []byte
	promoted    bool
	targets     map[string]*targetState
	targetOrder []string
}

// addTargets appends hosts (sorted) to the entry's deterministic order and
// creates their targetState, skipping any already present.
func (e *ledgerEntry) addTargets(hosts []string, now time.Time) {
	sort.Strings(hosts)
	for _, host := range hosts {
		if _, ok := e.targets[host]; ok {
			continue
		}
		e.targets[host] = &targetState{nextAttempt: now}
		e.targetOrder = append(e.targetOrder, host)
	}
}

// allDispatched reports whether every target has been sent to at least
// once; a target cancelled before its first send no longer counts.
func (e *ledgerEntry) allDispatched() bool {
	for _, t := range e.targets {
		if !t.sent && !t.cancelled {
			return false
		}
	}
	return len(e.targets) > 0
}

func (e *ledgerEntry) allTerminal() bool {
	for _, t := range e.targets {
		if !t.terminal() {
			return false
		}
	}
	return len(e.targets) > 0
}

type eventKind int

const (
	eventDelivered eventKind = iota
	eventTimeout
)

type event struct {
	kind     eventKind
	name     string
	hostname string
}

// Sender runs T-sender: one goroutine owns the ledger outright, including
// applying delivery-proof callbacks, which only ever post an event rather
// than mutate ledger state from the transport's own goroutine (spec §5).
type Sender struct {
	spool    *spool.Spool
	overlayT overlay.Transport
	pathCtl  *pathctl.Controller
	peerDir  *peerdir.Directory

	sendLimiter  *rate.Limiter
	retryLimiter *rate.Limiter

	ledger   map[string]*ledgerEntry
	events   chan event
	inFlight int64 // atomic, mirrors len(ledger) for InFlight's cross-goroutine reads
}

func New(sp *spool.Spool, overlayT overlay.Transport, pathCtl *pathctl.Controller, peerDir *peerdir.Directory) *Sender {
	return &Sender{
		spool:        sp,
		overlayT:     overlayT,
		pathCtl:      pathCtl,
		peerDir:      peerDir,
		sendLimiter:  rate.NewLimiter(rate.Every(SendSpacing), 1),
		retryLimiter: rate.NewLimiter(rate.Limit(RetryRateLimit), 1),
		ledger:       map[string]*ledgerEntry{},
		events:       make(chan event, 256),
	}
}

// Run drives T-sender until ctx is cancelled.
func (s *Sender) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	purgeTicker := time.NewTicker(purgeCheckEvery)
	defer purgeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			s.applyEvent(ev)
		case <-purgeTicker.C:
			s.purgeIfNoOverlayPeers()
		case <-ticker.C:
			s.claimIfRoom()
			s.driveLedger()
		}
	}
}

func (s *Sender) overlayTargets() map[string]overlay.DestinationHash {
	modes := s.pathCtl.Modes()
	peers := s.peerDir.Peers()
	out := map[string]overlay.DestinationHash{}
	for host, dest := range peers {
		if modes[host] == pathctl.Overlay {
			out[host] = dest
		}
	}
	return out
}

// purgeIfNoOverlayPeers drops every in-flight ledger entry and purges the
// whole spool once no remote is reachable via OVERLAY: there is nowhere
// for a spooled packet to go (spec §4.7's housekeeping rule).
func (s *Sender) purgeIfNoOverlayPeers() {
	if len(s.overlayTargets()) > 0 {
		return
	}
	if len(s.ledger) == 0 {
		return
	}
	s.ledger = map[string]*ledgerEntry{}
	atomic.StoreInt64(&s.inFlight, 0)
	s.updateDepthMetrics()
	if err := s.spool.PurgeAll(); err != nil {
		rlog.ErrorfEvery("sender:purge", "sender: purge_all failed: %v", err)
		return
	}
	rlog.LogEvent("sender", "no OVERLAY peers reachable, spool purged")
}

func (s *Sender) claimIfRoom() {
	if len(s.ledger) >= maxInFlight {
		return
	}
	targets := s.overlayTargets()
	if len(targets) == 0 {
		return
	}
	h, data, ok, err := s.spool.ClaimOldest()
	if err != nil {
		rlog.ErrorfEvery("sender:claim", "sender: claim_oldest failed: %v", err)
		return
	}
	if !ok {
		return
	}
	entry := &ledgerEntry{handle: h, data: data, targets: map[string]*targetState{}}
	hosts := make([]string, 0, len(targets))
	for host := range targets {
		hosts = append(hosts, host)
	}
	entry.addTargets(hosts, time.Now())
	s.ledger[h.Name] = entry
	atomic.StoreInt64(&s.inFlight, int64(len(s.ledger)))
	s.updateDepthMetrics()
}

// driveLedger runs one scheduling pass over every in-flight entry: syncs
// target sets against current OVERLAY reachability, sends whatever is due
// and within pacing, and settles entries whose lifecycle state changed.
func (s *Sender) driveLedger() {
	known := s.overlayTargets()
	now := time.Now()

	for _, e := range s.ledger {
		s.syncTargets(e, known)

		for _, host := range e.targetOrder {
			t := e.targets[host]
			if t.terminal() || t.nextAttempt.After(now) {
				continue
			}
			if t.attempts > 0 && !s.retryLimiter.Allow() {
				continue
			}
			if !s.sendLimiter.Allow() {
				break
			}
			dest, ok := known[host]
			if !ok {
				continue
			}
			s.attemptSend(e, host, dest, t)
		}

		s.settleEntry(e)
	}
}

func (s *Sender) syncTargets(e *ledgerEntry, known map[string]overlay.DestinationHash) {
	var newHosts []string
	for host := range known {
		if _, ok := e.targets[host]; !ok {
			newHosts = append(newHosts, host)
		}
	}
	e.addTargets(newHosts, time.Now())

	for _, host := range e.targetOrder {
		t := e.targets[host]
		if _, ok := known[host]; !ok && !t.terminal() {
			t.cancelled = true
			rlog.LogEvent("sender", "target %s cancelled for %s (left OVERLAY)", host, e.handle.Name)
		}
	}
}

func (s *Sender) attemptSend(e *ledgerEntry, host string, dest overlay.DestinationHash, t *targetState) {
	isRetry := t.attempts > 0
	receipt, err := s.overlayT.Send(dest, e.data)
	t.attempts++
	t.sent = true
	if isRetry {
		metrics.RetriesTotal.WithLabelValues(host).Inc()
	}
	if err != nil {
		metrics.SendsTotal.WithLabelValues(host, "error").Inc()
		rlog.WarningfEvery("sender:send:"+host, "sender: send to %s failed (attempt %d): %v", host, t.attempts, err)
		t.nextAttempt = time.Now().Add(backoffDelay(t.attempts))
		return
	}
	metrics.SendsTotal.WithLabelValues(host, "ok").Inc()
	// No resend while this attempt awaits proof: the timeout event sets
	// the retry time, and PacketTimeout is the fallback if it never comes.
	t.nextAttempt = time.Now().Add(PacketTimeout)
	receipt.SetTimeout(PacketTimeout)
	name, hostname := e.handle.Name, host
	receipt.OnDelivery(func() {
		select {
		case s.events <- event{kind: eventDelivered, name: name, hostname: hostname}:
		default:
		}
	})
	receipt.OnTimeout(func() {
		select {
		case s.events <- event{kind: eventTimeout, name: name, hostname: hostname}:
		default:
		}
	})
}

// backoffDelay is the exponential retry schedule (spec §4.7): INITIAL_DELAY
// doubling each attempt up to MAX_DELAY, with +/-JITTER randomization so
// concurrently-retrying targets don't thunder together.
func backoffDelay(attempts int) time.Duration {
	d := float64(InitialDelay)
	for i := 1; i < attempts; i++ {
		d *= Backoff
	}
	if d > float64(MaxDelay) {
		d = float64(MaxDelay)
	}
	d += d * Jitter * (2*rand.Float64() - 1)
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// applyEvent is the only place a delivery-proof callback's outcome
// touches ledger state, keeping every mutation on T-sender's own
// goroutine.
func (s *Sender) applyEvent(ev event) {
	e, ok := s.ledger[ev.name]
	if !ok {
		return
	}
	t, ok := e.targets[ev.hostname]
	if !ok {
		return
	}
	switch ev.kind {
	case eventDelivered:
		t.delivered = true
	case eventTimeout:
		if t.attempts < MaxAttempts {
			t.nextAttempt = time.Now().Add(backoffDelay(t.attempts))
		}
	}
}

func (s *Sender) settleEntry(e *ledgerEntry) {
	if !e.promoted && e.allDispatched() {
		if err := s.spool.PromoteToBuffer(e.handle); err != nil {
			rlog.ErrorfEvery("sender:promote", "sender: promote %s failed: %v", e.handle.Name, err)
			return
		}
		e.promoted = true
	}
	if e.promoted && e.allTerminal() {
		if err := s.spool.Release(e.handle); err != nil {
			rlog.ErrorfEvery("sender:release", "sender: release %s failed: %v", e.handle.Name, err)
			return
		}
		delete(s.ledger, e.handle.Name)
		atomic.StoreInt64(&s.inFlight, int64(len(s.ledger)))
	}
	s.updateDepthMetrics()
}

// updateDepthMetrics reports the ledger's view of spool occupancy: entries
// not yet fully dispatched are still sitting in processing/, entries
// promoted but not yet fully terminal are in sent_buffer/ awaiting proof.
func (s *Sender) updateDepthMetrics() {
	var processing, buffered int
	for _, e := range s.ledger {
		if e.promoted {
			buffered++
		} else {
			processing++
		}
	}
	metrics.SpoolDepth.WithLabelValues("processing").Set(float64(processing))
	metrics.SpoolDepth.WithLabelValues("sent_buffer").Set(float64(buffered))
	metrics.SenderInFlight.Set(float64(len(s.ledger)))
}

// InFlight reports the number of packets currently tracked by the ledger.
// Safe to call from another goroutine (the Ops UI), unlike the ledger map
// itself which T-sender owns exclusively.
func (s *Sender) InFlight() int { return int(atomic.LoadInt64(&s.inFlight)) }
