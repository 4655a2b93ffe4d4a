// Package envelope holds the few scalar types shared across the pipeline
// stages (Bus -> Codec -> Dedup -> Spool -> Sender, and symmetrically
// Overlay -> Ingress -> Dedup -> Codec -> Bus), so neither side imports the
// other just to agree on a hash or packet ID format.
package envelope

import "time"

// ContentHash is the 128-bit digest used for dedup and ledger tracking
// (internal/codec + internal/dedup produce and consume it).
type ContentHash [16]byte

// NewPacketID returns the current time as milliseconds since epoch. It is
// monotonic in practice (wall clock only moves forward across a single
// process's lifetime on a field node; see spool package for the tie-break
// sequence counter that handles same-millisecond collisions).
func NewPacketID() int64 {
	return time.Now().UnixMilli()
}
