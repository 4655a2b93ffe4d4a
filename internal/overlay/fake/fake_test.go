package fake_test

import (
	"testing"

	"github.com/natak-mesh/relayd/internal/overlay"
	"github.com/natak-mesh/relayd/internal/overlay/fake"
)

func TestAnnounceDeliversToPeers(t *testing.T) {
	sb := fake.NewSwitchboard()
	a := fake.NewTransport(sb, overlay.DestinationHash{1})
	b := fake.NewTransport(sb, overlay.DestinationHash{2})

	var got []byte
	b.RegisterAnnounceHandler(func(_ overlay.DestinationHash, _ overlay.Identity, appData []byte) {
		got = appData
	})

	if err := a.Announce([]byte("node-a")); err != nil {
		t.Fatal(err)
	}
	if string(got) != "node-a" {
		t.Fatalf("got %q", got)
	}
}

func TestSendAndAck(t *testing.T) {
	sb := fake.NewSwitchboard()
	a := fake.NewTransport(sb, overlay.DestinationHash{1})
	b := fake.NewTransport(sb, overlay.DestinationHash{2})

	var delivered []byte
	b.SetReceiveCallback(func(data []byte, _ overlay.PacketMeta) { delivered = data })

	r, err := a.Send(overlay.DestinationHash{2}, []byte("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if string(delivered) != "hi" {
		t.Fatalf("delivered = %q", delivered)
	}

	acked := false
	r.OnDelivery(func() { acked = true })
	r.(*fake.Receipt).Ack()
	if !acked {
		t.Fatal("expected OnDelivery callback to fire")
	}
}

func TestSendRejected(t *testing.T) {
	sb := fake.NewSwitchboard()
	a := fake.NewTransport(sb, overlay.DestinationHash{1})
	a.SetDropSend(true)

	_, err := a.Send(overlay.DestinationHash{2}, []byte("hi"))
	if err == nil {
		t.Fatal("expected send rejection")
	}
}
