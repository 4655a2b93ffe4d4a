// Package egress wires the Bus Bridge's received datagrams through the
// Codec and Dedup Ring into the Spool, i.e. everything that happens on
// T-bus between a multicast read and a staged spool file (spec §4.1-§4.3).
// It exists as its own package so the pipeline is unit-testable without a
// live multicast socket: tests call OnEgress directly with bus.ReceiveFunc's
// exact signature.
package egress

import (
	"strconv"

	"github.com/natak-mesh/relayd/internal/codec"
	"github.com/natak-mesh/relayd/internal/dedup"
	"github.com/natak-mesh/relayd/internal/rlog"
	"github.com/natak-mesh/relayd/internal/spool"
	"github.com/natak-mesh/relayd/internal/xerr"
)

type Pipeline struct {
	codec *codec.Codec
	dedup *dedup.Ring
	spool *spool.Spool
}

func New(c *codec.Codec, d *dedup.Ring, sp *spool.Spool) *Pipeline {
	return &Pipeline{codec: c, dedup: d, spool: sp}
}

// OnEgress matches bus.ReceiveFunc: compress, dedup, stage. A packet too
// large to compress under MaxCompressed is dropped and logged, never
// truncated (spec §4.1). A duplicate (already seen on egress or ingress
// within the dedup window) is silently dropped.
func (p *Pipeline) OnEgress(data []byte, port int) {
	compressed, err := p.codec.Compress(data, port)
	if err != nil {
		if xerr.Is(err, xerr.CodecTooLarge) {
			rlog.WarningfEvery("egress:toolarge:"+strconv.Itoa(port), "egress: dropping oversized packet from port %d: %v", port, err)
		} else {
			rlog.ErrorfEvery("egress:compress", "egress: compress failed for port %d: %v", port, err)
		}
		return
	}

	hash := codec.ContentHash(compressed)
	if p.dedup.Observe(hash) == dedup.Duplicate {
		return
	}

	if _, err := p.spool.Stage(compressed); err != nil {
		rlog.ErrorfEvery("egress:stage", "egress: stage failed: %v", err)
	}
}
