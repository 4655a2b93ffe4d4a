// Package rcfg loads the daemon's flat KEY=value configuration file (§6).
// Adapted from the teacher's layered cmn config conventions but specialized
// to the simple format this daemon actually uses: no YAML, no env override
// tower, just a file read once at startup that either parses clean or is
// ConfigInvalid (fatal).
package rcfg

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/natak-mesh/relayd/internal/xerr"
)

type Config struct {
	BridgeIface      string        // BRIDGE_IFACE, default "br0"
	MeshChannel      string        // MESH_CHANNEL, opaque passthrough to Ops UI
	StartupDelay     time.Duration // STARTUP_DELAY_SECS, default 10s
	LogLevel         string        // LOG_LEVEL
	SpoolDir         string        // SPOOL_DIR, default "./spool"
	DictPath         string        // DICT_PATH, pretrained zstd dictionary
	ObserverPath     string        // OBSERVER_PATH, link-state feed JSON
	PeerExportPath   string        // PEER_EXPORT_PATH, Ops UI peer snapshot
	PathExportPath   string        // PATH_EXPORT_PATH, Ops UI path-state snapshot
	StatusAddr       string        // STATUS_ADDR, fasthttp Ops UI server, "" disables
	MetricsAddr      string        // METRICS_ADDR, Prometheus exporter, "" disables
	NodeHostname     string        // NODE_HOSTNAME, announced to the overlay
}

func defaults() Config {
	return Config{
		BridgeIface:    "br0",
		StartupDelay:   10 * time.Second,
		LogLevel:       "info",
		SpoolDir:       "./spool",
		PeerExportPath: "./peers.json",
		PathExportPath: "./path_state.json",
	}
}

// Load parses the flat key=value file at path. Blank lines and lines
// starting with '#' are ignored. An unreadable file or a malformed
// STARTUP_DELAY_SECS value is ConfigInvalid — fatal at startup per §6/§7.
func Load(path string) (Config, error) {
	cfg := defaults()
	f, err := os.Open(path)
	if err != nil {
		return cfg, xerr.Wrap(xerr.ConfigInvalid, err, "open config %q", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return cfg, xerr.New(xerr.ConfigInvalid, "%s:%d: expected KEY=value, got %q", path, lineNo, line)
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if err := apply(&cfg, k, v); err != nil {
			return cfg, xerr.Wrap(xerr.ConfigInvalid, err, "%s:%d", path, lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return cfg, xerr.Wrap(xerr.ConfigInvalid, err, "read config %q", path)
	}
	if cfg.NodeHostname == "" {
		return cfg, xerr.New(xerr.ConfigInvalid, "%s: NODE_HOSTNAME is required", path)
	}
	return cfg, nil
}

func apply(cfg *Config, k, v string) error {
	switch k {
	case "BRIDGE_IFACE":
		cfg.BridgeIface = v
	case "MESH_CHANNEL":
		cfg.MeshChannel = v
	case "STARTUP_DELAY_SECS":
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STARTUP_DELAY_SECS: %w", err)
		}
		cfg.StartupDelay = time.Duration(secs) * time.Second
	case "LOG_LEVEL":
		cfg.LogLevel = v
	case "SPOOL_DIR":
		cfg.SpoolDir = v
	case "DICT_PATH":
		cfg.DictPath = v
	case "OBSERVER_PATH":
		cfg.ObserverPath = v
	case "PEER_EXPORT_PATH":
		cfg.PeerExportPath = v
	case "PATH_EXPORT_PATH":
		cfg.PathExportPath = v
	case "STATUS_ADDR":
		cfg.StatusAddr = v
	case "METRICS_ADDR":
		cfg.MetricsAddr = v
	case "NODE_HOSTNAME":
		cfg.NodeHostname = v
	default:
		// unknown keys are ignored, not fatal: the Ops UI's config editor
		// writes forward-compatible files across daemon versions.
	}
	return nil
}
