package pathctl

import (
	"time"

	"github.com/natak-mesh/relayd/internal/observer"
)

// ApplyFeed runs one 1Hz tick of T-path: every hostname present in doc
// gets a real observation (time since its reported last_seen); every
// hostname this Controller already knows about but doc omits gets an
// implicit-failure tick (nil heartbeat), per spec §4.6.
func (c *Controller) ApplyFeed(doc observer.Document, now time.Time) {
	seen := map[string]bool{}
	for _, node := range doc.Nodes {
		if node.Hostname == "" {
			continue
		}
		seen[node.Hostname] = true
		age := now.Sub(time.Unix(node.LastSeen, 0))
		c.Tick(node.Hostname, &age)
	}

	c.mu.Lock()
	var missing []string
	for h := range c.states {
		if !seen[h] {
			missing = append(missing, h)
		}
	}
	c.mu.Unlock()
	for _, h := range missing {
		c.Tick(h, nil)
	}
}

// ExportDocument renders this Controller's current decisions in the
// shared Observer document shape, keyed by hostname (see package doc).
func (c *Controller) ExportDocument(now time.Time) observer.Document {
	snaps := c.Snapshots()
	doc := observer.Document{Nodes: make(map[string]observer.NodeInfo, len(snaps))}
	for h, s := range snaps {
		doc.Nodes[h] = observer.NodeInfo{
			Hostname:     h,
			Mode:         s.Mode.String(),
			LastSeen:     now.Unix(),
			FailureCount: s.FailureCount,
			GoodCount:    s.GoodCount,
		}
	}
	return doc
}

// Export atomically writes ExportDocument's result to path.
func (c *Controller) Export(path string, now time.Time) error {
	return observer.Write(path, c.ExportDocument(now))
}
