package observer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/natak-mesh/relayd/internal/observer"
	"github.com/natak-mesh/relayd/internal/xerr"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "path_state.json")
	doc := observer.Document{Nodes: map[string]observer.NodeInfo{
		"node-a": {Hostname: "node-a", Mode: "PRIMARY", LastSeen: 1234, FailureCount: 0, GoodCount: 4},
	}}
	if err := observer.Write(path, doc); err != nil {
		t.Fatal(err)
	}

	got, err := observer.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	node, ok := got.Nodes["node-a"]
	if !ok {
		t.Fatalf("expected node-a, got %+v", got.Nodes)
	}
	if node.Mode != "PRIMARY" || node.GoodCount != 4 {
		t.Fatalf("round trip mismatch: %+v", node)
	}
}

func TestReadMissingFileReturnsEmptyDocument(t *testing.T) {
	doc, err := observer.Read(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Nodes == nil || len(doc.Nodes) != 0 {
		t.Fatalf("expected empty non-nil map, got %+v", doc.Nodes)
	}
}

func TestReadMalformedFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := observer.Read(path)
	if !xerr.Is(err, xerr.CodecMalformed) {
		t.Fatalf("expected CodecMalformed, got %v", err)
	}
}
