// Package peerdir implements the Peer Directory (spec §4.5): hostname <->
// overlay-identity mappings sourced from announce traffic, exported as
// JSON for the Ops UI.
//
// Record storage is github.com/tidwall/buntdb opened against ":memory:"
// (there is no cross-restart persistence requirement — spec §4.5's startup
// invariant is that the directory begins empty regardless of prior state)
// with a per-key TTL equal to PeerTimeout. buntdb's TTL expiry turns the
// "Peer Record exists iff announced within PEER_TIMEOUT" invariant (spec
// §3) into a storage-level guarantee instead of a hand-rolled sweep;
// CleanStale remains the explicit, spec-mandated entry point that a
// housekeeping tick calls, and additionally force-evicts anything TTL
// missed due to clock skew between Set and eviction.
package peerdir

import (
	"math/rand"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/natak-mesh/relayd/internal/atomicfile"
	"github.com/natak-mesh/relayd/internal/overlay"
	"github.com/natak-mesh/relayd/internal/rlog"
	"github.com/natak-mesh/relayd/internal/xerr"
)

const PeerTimeout = 5 * time.Minute
const announceInterval = 60 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type record struct {
	Hostname    string `json:"hostname"`
	DestHashHex string `json:"destination_hash"`
	LastAnnoUTC int64  `json:"last_seen"` // unix seconds, also the Ops UI field name
}

type Directory struct {
	db       *buntdb.DB
	overlayT overlay.Transport
	self     string

	mu      sync.Mutex
	newPeer chan struct{}
}

// Open wires a fresh (always-empty) directory against overlayT, registering
// the announce handler. selfHostname is what AnnounceSelf advertises.
func Open(overlayT overlay.Transport, selfHostname string) (*Directory, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, xerr.Wrap(xerr.ConfigInvalid, err, "open peer directory store")
	}
	d := &Directory{db: db, overlayT: overlayT, self: selfHostname, newPeer: make(chan struct{}, 1)}
	overlayT.RegisterAnnounceHandler(d.onAnnounce)
	return d, nil
}

func (d *Directory) Close() error { return d.db.Close() }

// onAnnounce is the overlay.AnnounceCallback: appData carries the remote's
// hostname as UTF-8 (spec §4.5).
func (d *Directory) onAnnounce(dest overlay.DestinationHash, _ overlay.Identity, appData []byte) {
	hostname := string(appData)
	if hostname == "" || hostname == d.self {
		return
	}

	rec := record{Hostname: hostname, DestHashHex: dest.String(), LastAnnoUTC: time.Now().Unix()}
	buf, err := json.Marshal(rec)
	if err != nil {
		rlog.ErrorfEvery("peerdir:marshal", "peerdir: marshal record for %s: %v", hostname, err)
		return
	}

	var isNew bool
	err = d.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Get(hostname)
		isNew = err == buntdb.ErrNotFound
		_, _, err = tx.Set(hostname, string(buf), &buntdb.SetOptions{Expires: true, TTL: PeerTimeout})
		return err
	})
	if err != nil {
		rlog.ErrorfEvery("peerdir:set", "peerdir: store record for %s: %v", hostname, err)
		return
	}

	if isNew {
		select {
		case d.newPeer <- struct{}{}:
		default:
		}
		rlog.LogEvent("peerdir", "new peer %s (%s)", hostname, dest)
	}
}

// Peers returns a consistent snapshot of hostname -> destination hash
// (which this daemon also uses as the overlay.Identity passed to Send,
// since the fake and most overlay identity handles are keyed by the same
// address; see DESIGN.md).
func (d *Directory) Peers() map[string]overlay.DestinationHash {
	out := map[string]overlay.DestinationHash{}
	d.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			var rec record
			if err := json.UnmarshalFromString(value, &rec); err != nil {
				return true
			}
			out[rec.Hostname] = hexToDest(rec.DestHashHex)
			return true
		})
	})
	return out
}

// CleanStale removes records older than PeerTimeout. buntdb's own TTL
// eviction does most of this work lazily; this is the explicit trigger
// spec §4.5 requires the Path Controller's housekeeping tick to invoke.
func (d *Directory) CleanStale() {
	cutoff := time.Now().Add(-PeerTimeout).Unix()
	var stale []string
	d.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			var rec record
			if err := json.UnmarshalFromString(value, &rec); err == nil && rec.LastAnnoUTC < cutoff {
				stale = append(stale, key)
			}
			return true
		})
	})
	if len(stale) == 0 {
		return
	}
	d.db.Update(func(tx *buntdb.Tx) error {
		for _, k := range stale {
			tx.Delete(k)
		}
		return nil
	})
}

// AnnounceSelf runs the periodic (60s) plus jittered one-shot (on new peer)
// announce loop; this is T-peerdir's announce half.
func (d *Directory) AnnounceSelf(stop <-chan struct{}) {
	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()
	announce := func() {
		if err := d.overlayT.Announce([]byte(d.self)); err != nil {
			rlog.ErrorfEvery("peerdir:announce", "peerdir: announce failed: %v", err)
		}
	}
	announce()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			announce()
		case <-d.newPeer:
			delay := 500*time.Millisecond + time.Duration(rand.Int63n(int64(time.Second)))
			t := time.NewTimer(delay)
			select {
			case <-stop:
				t.Stop()
				return
			case <-t.C:
				announce()
			}
		}
	}
}

// exportPeer is the Ops UI's view of one peer (spec §4.5/§6): no private
// identity material, only the public destination hash and last-seen time.
type exportPeer struct {
	DestHash string `json:"destination_hash"`
	LastSeen int64  `json:"last_seen"`
}

type exportDoc struct {
	Timestamp int64                 `json:"timestamp"`
	Peers     map[string]exportPeer `json:"peers"`
}

// Export atomically writes the Ops UI JSON snapshot (spec §4.5's export()).
func (d *Directory) Export(path string) error {
	doc := exportDoc{Timestamp: time.Now().Unix(), Peers: map[string]exportPeer{}}
	d.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			var rec record
			if err := json.UnmarshalFromString(value, &rec); err == nil {
				doc.Peers[rec.Hostname] = exportPeer{DestHash: rec.DestHashHex, LastSeen: rec.LastAnnoUTC}
			}
			return true
		})
	})
	buf, err := json.Marshal(doc)
	if err != nil {
		return xerr.Wrap(xerr.SpoolIO, err, "marshal peer export")
	}
	if err := atomicfile.WriteJSON(path, buf); err != nil {
		return xerr.Wrap(xerr.SpoolIO, err, "write peer export %s", path)
	}
	return nil
}

func hexToDest(s string) overlay.DestinationHash {
	var out overlay.DestinationHash
	if len(s) != len(out)*2 {
		return out
	}
	for i := range out {
		hi := unhex(s[i*2])
		lo := unhex(s[i*2+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}
