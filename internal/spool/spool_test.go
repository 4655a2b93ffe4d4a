package spool_test

import (
	"os"
	"testing"

	"github.com/natak-mesh/relayd/internal/spool"
)

func TestStageClaimPromoteRelease(t *testing.T) {
	dir := t.TempDir()
	s, err := spool.Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	id, err := s.Stage([]byte("compressed-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("expected non-zero packet id")
	}

	h, data, ok, err := s.ClaimOldest()
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if string(data) != "compressed-bytes" {
		t.Fatalf("unexpected data: %q", data)
	}

	if _, _, ok, _ := s.ClaimOldest(); ok {
		t.Fatal("expected pending to be empty after claim")
	}

	if err := s.PromoteToBuffer(h); err != nil {
		t.Fatal(err)
	}
	if err := s.Release(h); err != nil {
		t.Fatal(err)
	}
	// idempotent
	if err := s.Release(h); err != nil {
		t.Fatalf("release should be idempotent: %v", err)
	}
}

func TestRecoverProcessingOnStartup(t *testing.T) {
	dir := t.TempDir()
	s, err := spool.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Stage([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	h, _, ok, err := s.ClaimOldest()
	if err != nil || !ok {
		t.Fatal(err, ok)
	}
	_ = id

	// simulate a crash: file is sitting in processing/ only.
	s2, err := spool.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	h2, _, ok, err := s2.ClaimOldest()
	if err != nil || !ok {
		t.Fatalf("expected recovered file to be claimable: ok=%v err=%v", ok, err)
	}
	if h2.Name != h.Name {
		t.Fatalf("expected same file name recovered, got %s vs %s", h2.Name, h.Name)
	}
}

func TestPurgeAll(t *testing.T) {
	dir := t.TempDir()
	s, err := spool.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := s.Stage([]byte("p")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.PurgeAll(); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{"pending", "processing", "sent_buffer"} {
		entries, err := os.ReadDir(dir + "/" + d)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Fatalf("expected %s empty after purge, found %d entries", d, len(entries))
		}
	}
}

func TestSortOrderRecoversSendOrder(t *testing.T) {
	dir := t.TempDir()
	s, err := spool.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.Stage([]byte("p"))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	for _, want := range ids {
		h, _, ok, err := s.ClaimOldest()
		if err != nil || !ok {
			t.Fatal(err, ok)
		}
		if h.PacketID < want-1 { // allow same-ms ties; ordering by claim sequence still holds
			t.Fatalf("claimed out of order: got packet_id=%d", h.PacketID)
		}
	}
}
