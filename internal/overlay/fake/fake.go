// Package fake is an in-memory Overlay Transport double, per spec §9's
// redesign note ("define a small trait/interface for the overlay... so the
// core is testable against an in-memory fake"). Several fake.Transport
// instances sharing the same *Switchboard simulate a small mesh: announces
// and sends are delivered synchronously to every other node registered on
// the switchboard, with injectable send rejection and manually driven
// proof/timeout callbacks for exercising the Reliable Sender's
// retry/backoff logic.
package fake

import (
	"sync"
	"time"

	"github.com/natak-mesh/relayd/internal/overlay"
)

// Switchboard is the shared medium several fake.Transport nodes register on.
type Switchboard struct {
	mu    sync.Mutex
	nodes map[overlay.DestinationHash]*Transport
}

func NewSwitchboard() *Switchboard {
	return &Switchboard{nodes: map[overlay.DestinationHash]*Transport{}}
}

// Transport is one node's view of the fake overlay.
type Transport struct {
	sb   *Switchboard
	self overlay.DestinationHash

	mu          sync.Mutex
	announceCb  overlay.AnnounceCallback
	receiveCb   overlay.ReceiveCallback
	dropSend    bool // if true, Send always fails (SendRejected)
	deliverFunc func() error // per-test hook; not read by Send, Ack or any other method
}

// NewTransport registers a node at the given destination hash.
func NewTransport(sb *Switchboard, self overlay.DestinationHash) *Transport {
	t := &Transport{sb: sb, self: self}
	sb.mu.Lock()
	sb.nodes[self] = t
	sb.mu.Unlock()
	return t
}

func (t *Transport) SetDropSend(drop bool) {
	t.mu.Lock()
	t.dropSend = drop
	t.mu.Unlock()
}

func (t *Transport) Announce(appData []byte) error {
	t.sb.mu.Lock()
	peers := make([]*Transport, 0, len(t.sb.nodes))
	for dest, n := range t.sb.nodes {
		if dest != t.self {
			peers = append(peers, n)
		}
	}
	t.sb.mu.Unlock()

	for _, p := range peers {
		p.mu.Lock()
		cb := p.announceCb
		p.mu.Unlock()
		if cb != nil {
			cb(t.self, t.self, appData)
		}
	}
	return nil
}

func (t *Transport) RegisterAnnounceHandler(cb overlay.AnnounceCallback) {
	t.mu.Lock()
	t.announceCb = cb
	t.mu.Unlock()
}

func (t *Transport) SetReceiveCallback(cb overlay.ReceiveCallback) {
	t.mu.Lock()
	t.receiveCb = cb
	t.mu.Unlock()
}

// Send delivers data to the node registered at identity (which, in this
// fake, is the peer's own DestinationHash) and returns a receipt the test
// controls via Ack/Expire.
func (t *Transport) Send(identity overlay.Identity, data []byte) (overlay.Receipt, error) {
	t.mu.Lock()
	rejected := t.dropSend
	t.mu.Unlock()
	if rejected {
		return nil, errSendRejected
	}

	dest, _ := identity.(overlay.DestinationHash)
	t.sb.mu.Lock()
	peer := t.sb.nodes[dest]
	t.sb.mu.Unlock()

	r := &Receipt{}
	if peer != nil {
		peer.mu.Lock()
		cb := peer.receiveCb
		peer.mu.Unlock()
		if cb != nil {
			buf := make([]byte, len(data))
			copy(buf, data)
			cb(buf, overlay.PacketMeta{From: t.self})
		}
	}
	return r, nil
}

var errSendRejected = sendRejectedErr{}

type sendRejectedErr struct{}

func (sendRejectedErr) Error() string { return "fake overlay: send rejected" }

// Receipt is a manually-driven overlay.Receipt: tests call Ack() or
// Expire() to fire the registered callback, simulating proof arrival or
// timeout.
type Receipt struct {
	mu        sync.Mutex
	onDeliver func()
	onTimeout func()
	timeout   time.Duration
	timer     *time.Timer
}

func (r *Receipt) OnDelivery(f func()) {
	r.mu.Lock()
	r.onDeliver = f
	r.mu.Unlock()
}

func (r *Receipt) OnTimeout(f func()) {
	r.mu.Lock()
	r.onTimeout = f
	r.mu.Unlock()
}

func (r *Receipt) SetTimeout(d time.Duration) {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

// Ack simulates delivery proof arriving.
func (r *Receipt) Ack() {
	r.mu.Lock()
	f := r.onDeliver
	r.mu.Unlock()
	if f != nil {
		f()
	}
}

// Expire simulates the proof timeout firing.
func (r *Receipt) Expire() {
	r.mu.Lock()
	f := r.onTimeout
	r.mu.Unlock()
	if f != nil {
		f()
	}
}
