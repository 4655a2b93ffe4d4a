package statussrv_test

import (
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/natak-mesh/relayd/internal/overlay"
	"github.com/natak-mesh/relayd/internal/overlay/fake"
	"github.com/natak-mesh/relayd/internal/pathctl"
	"github.com/natak-mesh/relayd/internal/peerdir"
	"github.com/natak-mesh/relayd/internal/statussrv"
)

type fakeSender struct{ n int }

func (f fakeSender) InFlight() int { return f.n }

func newServer(t *testing.T) *statussrv.Server {
	t.Helper()
	sb := fake.NewSwitchboard()
	self := fake.NewTransport(sb, overlay.DestinationHash{1})
	dir, err := peerdir.Open(self, "self-host")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dir.Close() })
	return statussrv.New(dir, pathctl.New(), fakeSender{n: 2})
}

// TestStatusHandlerShape exercises the fasthttp.RequestCtx handler
// directly rather than binding a real listener, the standard way to unit
// test a fasthttp handler.
func TestStatusHandlerShape(t *testing.T) {
	s := newServer(t)

	var ctx fasthttp.RequestCtx
	var req fasthttp.Request
	req.SetRequestURI("/status")
	ctx.Init(&req, nil, nil)

	s.Handler()(&ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}
	body := ctx.Response.Body()
	if len(body) == 0 {
		t.Fatal("expected non-empty JSON body")
	}
}

func TestStatusHandlerRejectsUnknownPath(t *testing.T) {
	s := newServer(t)

	var ctx fasthttp.RequestCtx
	var req fasthttp.Request
	req.SetRequestURI("/nope")
	ctx.Init(&req, nil, nil)

	s.Handler()(&ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("expected 404, got %d", ctx.Response.StatusCode())
	}
}
