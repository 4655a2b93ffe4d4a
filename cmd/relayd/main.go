// Command relayd runs the mesh relay daemon: six cooperating long-lived
// tasks (T-bus, T-ingress, T-sender, T-path, T-peerdir, T-iface) supervised
// by a single errgroup, shut down together on SIGINT/SIGTERM, per spec §5.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/natak-mesh/relayd/internal/bus"
	"github.com/natak-mesh/relayd/internal/codec"
	"github.com/natak-mesh/relayd/internal/dedup"
	"github.com/natak-mesh/relayd/internal/egress"
	"github.com/natak-mesh/relayd/internal/ingress"
	"github.com/natak-mesh/relayd/internal/instanceid"
	"github.com/natak-mesh/relayd/internal/metrics"
	"github.com/natak-mesh/relayd/internal/observer"
	"github.com/natak-mesh/relayd/internal/overlay"
	"github.com/natak-mesh/relayd/internal/overlay/fake"
	"github.com/natak-mesh/relayd/internal/pathctl"
	"github.com/natak-mesh/relayd/internal/peerdir"
	"github.com/natak-mesh/relayd/internal/rcfg"
	"github.com/natak-mesh/relayd/internal/rlog"
	"github.com/natak-mesh/relayd/internal/sched"
	"github.com/natak-mesh/relayd/internal/sender"
	"github.com/natak-mesh/relayd/internal/spool"
	"github.com/natak-mesh/relayd/internal/statussrv"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "/etc/relayd/relayd.conf", "path to the relayd configuration file")
	flag.Parse()

	cfg, err := rcfg.Load(*configPath)
	if err != nil {
		// ConfigInvalid is the one startup failure mode; there is no
		// logger configured yet to route this through, so stderr directly.
		os.Stderr.WriteString("relayd: " + err.Error() + "\n")
		return 1
	}

	rlog.SetTitle(instanceid.New(uint64(time.Now().UnixNano())))
	defer rlog.Flush()

	if cfg.StartupDelay > 0 {
		rlog.Infof("relayd: waiting %s before binding (STARTUP_DELAY_SECS)", cfg.StartupDelay)
		time.Sleep(cfg.StartupDelay)
	}

	dict, err := loadDict(cfg.DictPath)
	if err != nil {
		rlog.Errorf("relayd: load dictionary: %v", err)
		return 1
	}
	cdc, err := codec.New(dict)
	if err != nil {
		rlog.Errorf("relayd: init codec: %v", err)
		return 1
	}
	defer cdc.Close()

	sp, err := spool.Open(cfg.SpoolDir)
	if err != nil {
		rlog.Errorf("relayd: open spool: %v", err)
		return 1
	}
	metrics.SetSpoolPath(cfg.SpoolDir)

	// The Overlay Transport is an external collaborator (spec §1's
	// scoping): production wiring to a real mesh identity stack happens
	// outside this repo. This process runs against the same in-memory
	// fake the test suites use, registered on a switchboard of one, until
	// a real transport is plugged in at this call site.
	sb := fake.NewSwitchboard()
	overlayT := fake.NewTransport(sb, selfDestination(cfg.NodeHostname))

	dedupRing := dedup.New()
	egressPipeline := egress.New(cdc, dedupRing, sp)

	bridge := bus.New(cfg.BridgeIface, bus.DefaultGroups(), egressPipeline.OnEgress)

	peerDir, err := peerdir.Open(overlayT, cfg.NodeHostname)
	if err != nil {
		rlog.Errorf("relayd: open peer directory: %v", err)
		return 1
	}
	defer peerDir.Close()

	pathCtl := pathctl.New()
	sdr := sender.New(sp, overlayT, pathCtl, peerDir)

	ingressRouter := ingress.New(cdc, dedupRing, bridge)
	overlayT.SetReceiveCallback(ingressRouter.OnReceive)

	housekeeping := sched.New()
	registerHousekeeping(housekeeping, cfg, peerDir, pathCtl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return bridge.Run(gctx) })
	g.Go(func() error { bridge.WatchInterface(gctx); return nil })
	g.Go(func() error { return sdr.Run(gctx) })
	g.Go(func() error { peerDir.AnnounceSelf(gctx.Done()); return nil })
	g.Go(func() error { housekeeping.Run(gctx.Done()); return nil })
	g.Go(func() error { runPathController(gctx, cfg, pathCtl) })

	if cfg.StatusAddr != "" {
		statusSrv := statussrv.New(peerDir, pathCtl, sdr)
		g.Go(func() error { return statusSrv.Serve(cfg.StatusAddr) })
	}
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return metrics.Serve(cfg.MetricsAddr) })
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			rlog.Infof("relayd: received %s, shutting down", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		rlog.Errorf("relayd: task group exited with error: %v", err)
		return 1
	}
	return 0
}

func loadDict(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

func selfDestination(hostname string) (dest overlay.DestinationHash) {
	copy(dest[:], hostname)
	return dest
}

// runPathController is T-path: once a second, read the Observer's feed
// and advance every remote's hysteretic state machine, then export the
// decisions back out for the Ops UI (spec §4.6).
func runPathController(ctx context.Context, cfg rcfg.Config, pathCtl *pathctl.Controller) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			doc, err := observer.Read(cfg.ObserverPath)
			if err != nil {
				rlog.WarningfEvery("main:observer:read", "relayd: read observer feed: %v", err)
				continue
			}
			now := time.Now()
			pathCtl.ApplyFeed(doc, now)
			if cfg.PathExportPath != "" {
				if err := pathCtl.Export(cfg.PathExportPath, now); err != nil {
					rlog.ErrorfEvery("main:path:export", "relayd: export path state: %v", err)
				}
			}
		}
	}
}

func registerHousekeeping(s *sched.Scheduler, cfg rcfg.Config, peerDir *peerdir.Directory, pathCtl *pathctl.Controller) {
	s.Reg("peerdir-clean-stale", peerdir.PeerTimeout/5, func() time.Duration {
		peerDir.CleanStale()
		return 0
	})
	if cfg.PeerExportPath != "" {
		s.Reg("peerdir-export", 5*time.Second, func() time.Duration {
			if err := peerDir.Export(cfg.PeerExportPath); err != nil {
				rlog.ErrorfEvery("main:peerdir:export", "relayd: export peer directory: %v", err)
			}
			return 0
		})
	}
	s.Reg("log-flush", 5*time.Second, func() time.Duration {
		rlog.Flush()
		return 0
	})
}
