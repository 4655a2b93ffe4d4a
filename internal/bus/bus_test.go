package bus_test

import (
	"testing"

	"github.com/natak-mesh/relayd/internal/bus"
)

func TestDefaultGroupsDisjointPorts(t *testing.T) {
	groups := bus.DefaultGroups()
	seen := map[int]bool{}
	for _, g := range groups {
		if seen[g.EgressPort] || seen[g.IngressPort] {
			t.Fatalf("egress/ingress ports must be disjoint across and within groups: %+v", g)
		}
		if g.EgressPort == g.IngressPort {
			t.Fatalf("group %+v has identical egress/ingress ports", g)
		}
		seen[g.EgressPort] = true
		seen[g.IngressPort] = true
	}
}

func TestGroupIndexForEgressPort(t *testing.T) {
	b := bus.New("lo", bus.DefaultGroups(), func([]byte, int) {})
	if idx := b.GroupIndexForEgressPort(17012); idx != 0 {
		t.Fatalf("expected index 0, got %d", idx)
	}
	if idx := b.GroupIndexForEgressPort(9999); idx != -1 {
		t.Fatalf("expected -1 for unknown port, got %d", idx)
	}
}
