package ingress_test

import (
	"testing"

	"github.com/natak-mesh/relayd/internal/codec"
	"github.com/natak-mesh/relayd/internal/dedup"
	"github.com/natak-mesh/relayd/internal/ingress"
	"github.com/natak-mesh/relayd/internal/overlay"
)

type fakeInjector struct {
	groups    map[int]int // egress port -> group index
	injected  [][]byte
	groupIdxs []int
}

func (f *fakeInjector) GroupIndexForEgressPort(port int) int {
	idx, ok := f.groups[port]
	if !ok {
		return -1
	}
	return idx
}

func (f *fakeInjector) InjectIngress(data []byte, groupIdx int) error {
	f.injected = append(f.injected, data)
	f.groupIdxs = append(f.groupIdxs, groupIdx)
	return nil
}

func TestOnReceiveInjectsDecompressedPayload(t *testing.T) {
	c, err := codec.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	compressed, err := c.Compress([]byte("remote cot"), 17012)
	if err != nil {
		t.Fatal(err)
	}

	inj := &fakeInjector{groups: map[int]int{17012: 0}}
	r := ingress.New(c, dedup.New(), inj)

	r.OnReceive(compressed, overlay.PacketMeta{})

	if len(inj.injected) != 1 {
		t.Fatalf("expected 1 injection, got %d", len(inj.injected))
	}
	if string(inj.injected[0]) != "remote cot" {
		t.Fatalf("got %q", inj.injected[0])
	}
	if inj.groupIdxs[0] != 0 {
		t.Fatalf("expected group 0, got %d", inj.groupIdxs[0])
	}
}

func TestOnReceiveDropsDuplicates(t *testing.T) {
	c, err := codec.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	compressed, err := c.Compress([]byte("repeat"), 6969)
	if err != nil {
		t.Fatal(err)
	}

	inj := &fakeInjector{groups: map[int]int{6969: 1}}
	r := ingress.New(c, dedup.New(), inj)

	r.OnReceive(compressed, overlay.PacketMeta{})
	r.OnReceive(compressed, overlay.PacketMeta{})

	if len(inj.injected) != 1 {
		t.Fatalf("expected duplicate suppressed, got %d injections", len(inj.injected))
	}
}

func TestOnReceiveDropsUnknownOriginPort(t *testing.T) {
	c, err := codec.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	compressed, err := c.Compress([]byte("orphan"), 9999)
	if err != nil {
		t.Fatal(err)
	}

	inj := &fakeInjector{groups: map[int]int{17012: 0}}
	r := ingress.New(c, dedup.New(), inj)
	r.OnReceive(compressed, overlay.PacketMeta{})

	if len(inj.injected) != 0 {
		t.Fatalf("expected no injection for unknown port, got %d", len(inj.injected))
	}
}
