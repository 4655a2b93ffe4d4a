// DiskCollector reports free-space pressure on the spool's filesystem.
// Grounded in the teacher's own ios/diskstats_linux.go: that package reads
// kernel-exposed stats directly (bufio over /sys/block/.../stat) rather
// than through a third-party iostat wrapper, because sysfs/statfs is
// itself the OS's stable interface here — there is no retrieved pack
// example of a third-party diskstat library actually being used, so this
// follows the teacher's own idiom instead of introducing one blind (see
// DESIGN.md).
package metrics

import (
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	diskPathMu sync.Mutex
	diskPath   = "."
)

// SetSpoolPath points the disk-pressure collector at the spool's root,
// called once after config load (spec §6's SPOOL_DIR).
func SetSpoolPath(path string) {
	diskPathMu.Lock()
	diskPath = path
	diskPathMu.Unlock()
}

type DiskCollector struct {
	freeRatio *prometheus.Desc
}

func NewDiskCollector() *DiskCollector {
	return &DiskCollector{
		freeRatio: prometheus.NewDesc("relayd_spool_disk_free_ratio",
			"Fraction of free space remaining on the spool's filesystem.", nil, nil),
	}
}

func (d *DiskCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- d.freeRatio
}

func (d *DiskCollector) Collect(ch chan<- prometheus.Metric) {
	diskPathMu.Lock()
	path := diskPath
	diskPathMu.Unlock()

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return // best-effort gauge: a transient stat failure just skips this scrape
	}
	if stat.Blocks == 0 {
		return
	}
	ratio := float64(stat.Bavail) / float64(stat.Blocks)
	ch <- prometheus.MustNewConstMetric(d.freeRatio, prometheus.GaugeValue, ratio)
}
