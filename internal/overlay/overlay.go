// Package overlay defines the small interface this daemon consumes from the
// external Overlay Transport library (spec §6) — identities, routing, and
// proof mechanics are explicitly out of scope (spec §1); we only define
// what we call and what calls us back. Keeping this as an interface (per
// spec §9's redesign note, replacing the source's duck-typed callbacks)
// makes the whole core testable against overlay/fake's in-memory double.
package overlay

import "time"

// DestinationHash is the opaque fixed-width address used to send to a
// remote node.
type DestinationHash [16]byte

func (d DestinationHash) String() string {
	const hex = "0123456789abcdef"
	b := make([]byte, len(d)*2)
	for i, c := range d {
		b[i*2] = hex[c>>4]
		b[i*2+1] = hex[c&0xf]
	}
	return string(b)
}

// Identity is an opaque handle owned by the Overlay Transport; we never
// introspect it, only hold it and pass it back to Send.
type Identity any

// Receipt is returned by Send on a successful unicast attempt and drives
// the Reliable Sender's retry state machine via its two callbacks.
type Receipt interface {
	OnDelivery(func())
	OnTimeout(func())
	SetTimeout(d time.Duration)
}

// AnnounceCallback receives (destination_hash, identity, app_data) tuples
// from inbound announce traffic (spec §4.5/§6).
type AnnounceCallback func(dest DestinationHash, identity Identity, appData []byte)

// PacketMeta carries whatever non-payload metadata the transport attaches
// to an inbound packet; the core does not interpret its fields, only
// forwards the payload.
type PacketMeta struct {
	From DestinationHash
}

// ReceiveCallback delivers inbound overlay payloads, bound once at startup.
type ReceiveCallback func(data []byte, meta PacketMeta)

// Transport is the whole of what we consume from the Overlay Transport
// collaborator.
type Transport interface {
	Announce(appData []byte) error
	RegisterAnnounceHandler(cb AnnounceCallback)
	Send(identity Identity, data []byte) (Receipt, error)
	SetReceiveCallback(cb ReceiveCallback)
}

// ErrSendRejected-style transient failures are reported by Send as a plain
// error; the Reliable Sender treats any Send error as transient, logs it and
// schedules a retry on its backoff schedule (the interface itself stays
// collaborator-agnostic, per spec §1's scoping).
