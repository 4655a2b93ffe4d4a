package pathctl_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/natak-mesh/relayd/internal/observer"
	"github.com/natak-mesh/relayd/internal/pathctl"
)

func TestApplyFeedDrivesKnownHostnames(t *testing.T) {
	c := pathctl.New()
	now := time.Now()
	doc := observer.Document{Nodes: map[string]observer.NodeInfo{
		"aa:bb": {Hostname: "node-a", LastSeen: now.Unix()},
	}}
	c.ApplyFeed(doc, now)
	if m := c.Modes()["node-a"]; m != pathctl.Primary {
		t.Fatalf("expected PRIMARY on first fresh observation, got %v", m)
	}
}

func TestApplyFeedTreatsOmissionAsFailure(t *testing.T) {
	c := pathctl.New()
	now := time.Now()
	doc := observer.Document{Nodes: map[string]observer.NodeInfo{
		"aa:bb": {Hostname: "node-a", LastSeen: now.Unix()},
	}}
	c.ApplyFeed(doc, now)

	empty := observer.Document{Nodes: map[string]observer.NodeInfo{}}
	for i := 0; i < 3; i++ {
		c.ApplyFeed(empty, now.Add(time.Duration(i+1)*time.Second))
	}
	if m := c.Modes()["node-a"]; m != pathctl.Overlay {
		t.Fatalf("expected OVERLAY after 3 omitted ticks, got %v", m)
	}
}

func TestExportAndReadRoundTrip(t *testing.T) {
	c := pathctl.New()
	now := time.Now()
	c.Tick("node-a", nil)

	path := filepath.Join(t.TempDir(), "path_state.json")
	if err := c.Export(path, now); err != nil {
		t.Fatal(err)
	}
	doc, err := observer.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	node, ok := doc.Nodes["node-a"]
	if !ok {
		t.Fatalf("expected node-a in exported document, got %+v", doc.Nodes)
	}
	if node.Mode != "PRIMARY" {
		t.Fatalf("expected PRIMARY, got %s", node.Mode)
	}
}

func TestReadMissingFileIsEmptyNotError(t *testing.T) {
	doc, err := observer.Read(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Nodes) != 0 {
		t.Fatalf("expected empty document, got %+v", doc.Nodes)
	}
}
