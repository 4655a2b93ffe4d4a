// Package statussrv implements the Ops UI's read-only status server (spec
// §6): one JSON endpoint combining peer directory, path state, and the
// recent packet event log, served over valyala/fasthttp rather than
// net/http, matching the rest of the pack's HTTP stack choice for this
// kind of lightweight status endpoint.
package statussrv

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"

	"github.com/natak-mesh/relayd/internal/pathctl"
	"github.com/natak-mesh/relayd/internal/peerdir"
	"github.com/natak-mesh/relayd/internal/rlog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sender is the subset of internal/sender.Sender the status page reports.
type Sender interface {
	InFlight() int
}

type Server struct {
	peerDir *peerdir.Directory
	pathCtl *pathctl.Controller
	sender  Sender
}

func New(peerDir *peerdir.Directory, pathCtl *pathctl.Controller, sender Sender) *Server {
	return &Server{peerDir: peerDir, pathCtl: pathCtl, sender: sender}
}

type peerView struct {
	Hostname string `json:"hostname"`
	DestHash string `json:"destination_hash"`
}

type pathView struct {
	Hostname     string `json:"hostname"`
	Mode         string `json:"mode"`
	FailureCount int    `json:"failure_count"`
	GoodCount    int    `json:"good_count"`
	ModeSince    string `json:"mode_since"`
}

type statusDoc struct {
	Timestamp             int64        `json:"timestamp"`
	Peers                 []peerView   `json:"peers"`
	Paths                 []pathView   `json:"paths"`
	SenderInFlightPackets int          `json:"sender_inflight_packets"`
	RecentEvents          []rlog.Event `json:"recent_events"`
}

func (s *Server) buildDoc() statusDoc {
	doc := statusDoc{Timestamp: time.Now().Unix()}
	for host, dest := range s.peerDir.Peers() {
		doc.Peers = append(doc.Peers, peerView{Hostname: host, DestHash: dest.String()})
	}
	for host, snap := range s.pathCtl.Snapshots() {
		doc.Paths = append(doc.Paths, pathView{
			Hostname:     host,
			Mode:         snap.Mode.String(),
			FailureCount: snap.FailureCount,
			GoodCount:    snap.GoodCount,
			ModeSince:    snap.ModeSince.UTC().Format(time.RFC3339),
		})
	}
	doc.SenderInFlightPackets = s.sender.InFlight()
	doc.RecentEvents = rlog.RecentEvents()
	return doc
}

func (s *Server) handler(ctx *fasthttp.RequestCtx) {
	if string(ctx.Path()) != "/status" {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	buf, err := json.Marshal(s.buildDoc())
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(buf)
}

// Handler exposes the request handler directly, for tests that don't want
// to bind a real listener.
func (s *Server) Handler() fasthttp.RequestHandler { return s.handler }

// Serve blocks, running the status server on addr until it fails.
func (s *Server) Serve(addr string) error {
	return fasthttp.ListenAndServe(addr, s.handler)
}
