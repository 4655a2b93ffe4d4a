// Package observer implements the Observer interface (spec §6): a JSON
// file read by the Path Controller as its once-per-second link-state
// feed, and also written by the Path Controller to export its own
// decisions for the Ops UI. Both directions share one document shape, so
// one codec (jsoniter, json-iterator/go) and one atomic-write path
// (internal/atomicfile) serve both.
//
// The external feed keys nodes by a hardware identifier (MAC, in the
// original link-state source); this daemon has no such identifier for
// overlay-only remotes, so both Read and Write key by hostname instead —
// the same surrogate-key choice internal/peerdir makes for overlay
// identities. See DESIGN.md.
package observer

import (
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/natak-mesh/relayd/internal/atomicfile"
	"github.com/natak-mesh/relayd/internal/xerr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NodeInfo is one remote's entry in the shared document.
type NodeInfo struct {
	Hostname     string `json:"hostname"`
	Mode         string `json:"mode"`
	LastSeen     int64  `json:"last_seen"`
	FailureCount int    `json:"failure_count"`
	GoodCount    int    `json:"good_count"`
}

type Document struct {
	Nodes map[string]NodeInfo `json:"nodes"`
}

// Read loads the feed at path. A missing file is not an error: the feed
// may not exist yet on a cold start, and the Path Controller treats an
// empty document the same as "no observations this tick" for every
// remote (every tick becomes an implicit failure until the feed appears).
func Read(path string) (Document, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{Nodes: map[string]NodeInfo{}}, nil
		}
		return Document{}, xerr.Wrap(xerr.BusIOTransient, err, "read observer feed %s", path)
	}
	var doc Document
	if err := json.Unmarshal(buf, &doc); err != nil {
		return Document{}, xerr.Wrap(xerr.CodecMalformed, err, "parse observer feed %s", path)
	}
	if doc.Nodes == nil {
		doc.Nodes = map[string]NodeInfo{}
	}
	return doc, nil
}

// Write atomically exports doc to path, for the Ops UI and for any
// external consumer mirroring this daemon's own link-state view.
func Write(path string, doc Document) error {
	buf, err := json.Marshal(doc)
	if err != nil {
		return xerr.Wrap(xerr.SpoolIO, err, "marshal observer export")
	}
	if err := atomicfile.WriteJSON(path, buf); err != nil {
		return xerr.Wrap(xerr.SpoolIO, err, "write observer export %s", path)
	}
	return nil
}
