// Package ingress implements the Ingress Router (C8, spec §4.8): the
// receive side of the overlay path. A packet arriving via the Overlay
// Transport is deduped (against the same Dedup Ring egress populates, so
// an echo of our own earlier send is recognized and dropped), decompressed,
// and written back onto the bus's ingress-only ports — never egress ports,
// which structurally closes Open Question #1.
package ingress

import (
	"github.com/natak-mesh/relayd/internal/codec"
	"github.com/natak-mesh/relayd/internal/dedup"
	"github.com/natak-mesh/relayd/internal/overlay"
	"github.com/natak-mesh/relayd/internal/rlog"
)

// Injector is the Bus Bridge surface the router needs; *bus.Bridge
// satisfies it. Kept as an interface so this pipeline is testable without
// a live multicast socket.
type Injector interface {
	InjectIngress(data []byte, groupIdx int) error
	GroupIndexForEgressPort(port int) int
}

type Router struct {
	codec  *codec.Codec
	dedup  *dedup.Ring
	bridge Injector
}

func New(c *codec.Codec, d *dedup.Ring, bridge Injector) *Router {
	return &Router{codec: c, dedup: d, bridge: bridge}
}

// OnReceive is the overlay.ReceiveCallback this router registers: this is
// T-ingress's entire body (spec §5 calls out that it runs synchronously on
// whatever goroutine the transport invokes it from, so it never blocks).
func (r *Router) OnReceive(data []byte, _ overlay.PacketMeta) {
	hash := codec.ContentHash(data)
	if r.dedup.Observe(hash) == dedup.Duplicate {
		return
	}

	raw, originPort, err := r.codec.Decompress(data)
	if err != nil {
		rlog.WarningfEvery("ingress:decompress", "ingress: decompress failed: %v", err)
		return
	}

	groupIdx := r.bridge.GroupIndexForEgressPort(originPort)
	if groupIdx < 0 {
		rlog.WarningfEvery("ingress:unknownport", "ingress: no channel for origin port %d", originPort)
		return
	}

	if err := r.bridge.InjectIngress(raw, groupIdx); err != nil {
		rlog.ErrorfEvery("ingress:inject", "ingress: inject failed for channel %d: %v", groupIdx, err)
	}
}
