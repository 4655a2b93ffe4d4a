package sender

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/natak-mesh/relayd/internal/overlay"
	"github.com/natak-mesh/relayd/internal/overlay/fake"
	"github.com/natak-mesh/relayd/internal/pathctl"
	"github.com/natak-mesh/relayd/internal/peerdir"
	"github.com/natak-mesh/relayd/internal/spool"
)

// TestPurgeIfNoOverlayPeers drives the housekeeping check directly rather
// than waiting out purgeCheckEvery's real-time ticker.
func TestPurgeIfNoOverlayPeers(t *testing.T) {
	sb := fake.NewSwitchboard()
	selfT := fake.NewTransport(sb, overlay.DestinationHash{1})

	dir, err := peerdir.Open(selfT, "self-host")
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()

	root := t.TempDir()
	sp, err := spool.Open(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sp.Stage([]byte("payload")); err != nil {
		t.Fatal(err)
	}

	s := New(sp, selfT, pathctl.New(), dir)
	s.ledger["fake-entry"] = &ledgerEntry{targets: map[string]*targetState{}}

	s.purgeIfNoOverlayPeers()

	if len(s.ledger) != 0 {
		t.Fatalf("expected ledger cleared, got %d entries", len(s.ledger))
	}
	entries, err := os.ReadDir(filepath.Join(root, "pending"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected pending/ purged, found %d files", len(entries))
	}
}
