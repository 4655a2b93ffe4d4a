package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/natak-mesh/relayd/internal/metrics"
)

func TestDiskCollectorGathersWithoutError(t *testing.T) {
	metrics.SetSpoolPath(".")
	// CollectAndCount exercises Describe+Collect end to end; "." always
	// resolves to a real mounted filesystem so this should yield exactly
	// one sample.
	if n := testutil.CollectAndCount(metrics.NewDiskCollector()); n != 1 {
		t.Fatalf("expected 1 sample, got %d", n)
	}
}

func TestSpoolDepthGaugeVecIsSettable(t *testing.T) {
	metrics.SpoolDepth.WithLabelValues("pending").Set(3)
	if got := testutil.ToFloat64(metrics.SpoolDepth.WithLabelValues("pending")); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
}
