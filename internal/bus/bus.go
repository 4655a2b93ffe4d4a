// Package bus implements the Bus Bridge (spec §4.4): joins a fixed set of
// multicast groups on a named interface, receives from app-egress ports,
// and writes re-injected packets to app-ingress ports only — the two port
// sets are kept structurally disjoint (separate Group values) so nothing
// in this package can accidentally echo onto an egress port (Open
// Question #1 in spec §9, resolved as "never").
//
// golang.org/x/net/ipv4 is used instead of the stdlib's
// net.ListenMulticastUDP because the spec requires explicit control over
// multicast TTL (2) and disabling loopback, which ipv4.PacketConn exposes
// directly (SetMulticastTTL, SetMulticastLoopback) and the stdlib does not.
package bus

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/natak-mesh/relayd/internal/rlog"
	"github.com/natak-mesh/relayd/internal/xerr"
)

// Group pairs one application channel's egress multicast address/port with
// its disjoint ingress port, e.g. 224.10.10.1:17012 (egress) / 17013
// (ingress), per spec §4.4's three default channel triples.
type Group struct {
	Addr        net.IP
	EgressPort  int
	IngressPort int
}

func DefaultGroups() []Group {
	return []Group{
		{Addr: net.ParseIP("224.10.10.1"), EgressPort: 17012, IngressPort: 17013},
		{Addr: net.ParseIP("239.2.3.1"), EgressPort: 6969, IngressPort: 6971},
		{Addr: net.ParseIP("239.5.5.55"), EgressPort: 7171, IngressPort: 7172},
	}
}

const (
	multicastTTL  = 2
	pollTimeout   = 100 * time.Millisecond
	readBufSize   = 65507
	ifaceWatchTTL = 2 * time.Second
)

// ReceiveFunc is invoked synchronously, on T-bus, for every datagram
// received on an egress port — the Bus Bridge does not buffer.
type ReceiveFunc func(data []byte, port int)

type egressSocket struct {
	group Group
	pc    *ipv4.PacketConn
	raw   *net.UDPConn
}

type Bridge struct {
	ifaceName string
	groups    []Group
	onReceive ReceiveFunc

	mu      sync.Mutex
	iface   *net.Interface
	sockets []*egressSocket
}

func New(ifaceName string, groups []Group, onReceive ReceiveFunc) *Bridge {
	return &Bridge{ifaceName: ifaceName, groups: groups, onReceive: onReceive}
}

// bind resolves the interface and (re)opens every egress socket, joining
// its multicast group with TTL=2 and loopback disabled.
func (b *Bridge) bind() error {
	iface, err := net.InterfaceByName(b.ifaceName)
	if err != nil {
		return xerr.Wrap(xerr.BusIOTransient, err, "resolve bridge interface %s", b.ifaceName)
	}

	sockets := make([]*egressSocket, 0, len(b.groups))
	for _, g := range b.groups {
		sock, err := openEgress(iface, g)
		if err != nil {
			for _, s := range sockets {
				s.raw.Close()
			}
			return err
		}
		sockets = append(sockets, sock)
	}

	b.mu.Lock()
	b.iface = iface
	b.sockets = sockets
	b.mu.Unlock()
	return nil
}

func openEgress(iface *net.Interface, g Group) (*egressSocket, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: g.EgressPort})
	if err != nil {
		return nil, xerr.Wrap(xerr.BusIOTransient, err, "listen egress port %d", g.EgressPort)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.JoinGroup(iface, &net.UDPAddr{IP: g.Addr}); err != nil {
		conn.Close()
		return nil, xerr.Wrap(xerr.BusIOTransient, err, "join group %s on %s", g.Addr, iface.Name)
	}
	if err := pc.SetMulticastTTL(multicastTTL); err != nil {
		conn.Close()
		return nil, xerr.Wrap(xerr.BusIOTransient, err, "set multicast ttl")
	}
	if err := pc.SetMulticastLoopback(false); err != nil {
		conn.Close()
		return nil, xerr.Wrap(xerr.BusIOTransient, err, "disable multicast loopback")
	}
	return &egressSocket{group: g, pc: pc, raw: conn}, nil
}

// Run is T-bus: a single thread polling all egress sockets with a short
// non-blocking cycle (spec §4.4/§5). A per-socket read failure closes and
// rebuilds that one socket; the loop otherwise continues.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.bind(); err != nil {
		return err
	}
	buf := make([]byte, readBufSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		b.mu.Lock()
		sockets := append([]*egressSocket(nil), b.sockets...)
		b.mu.Unlock()

		for i, sock := range sockets {
			sock.raw.SetReadDeadline(time.Now().Add(pollTimeout))
			n, _, err := sock.pc.ReadFrom(buf)
			if err != nil {
				if isTimeout(err) {
					continue
				}
				rlog.WarningfEvery("bus:read:"+sock.group.Addr.String(),
					"bus: read failed on port %d, rebuilding socket: %v", sock.group.EgressPort, err)
				b.rebuildSocket(i, sock)
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			b.onReceive(data, sock.group.EgressPort)
		}
	}
}

func (b *Bridge) rebuildSocket(idx int, old *egressSocket) {
	old.raw.Close()
	b.mu.Lock()
	iface := b.iface
	b.mu.Unlock()
	if iface == nil {
		return
	}
	sock, err := openEgress(iface, old.group)
	if err != nil {
		rlog.WarningfEvery("bus:rebuild:"+old.group.Addr.String(), "bus: rebuild failed: %v", err)
		return
	}
	b.mu.Lock()
	if idx < len(b.sockets) {
		b.sockets[idx] = sock
	}
	b.mu.Unlock()
}

// InjectIngress writes a decompressed payload to the ingress port paired
// with groupIdx's channel. Only ever called from internal/ingress — never
// from anything handling egress-received data, which structurally prevents
// loopback re-injection.
func (b *Bridge) InjectIngress(data []byte, groupIdx int) error {
	if groupIdx < 0 || groupIdx >= len(b.groups) {
		return xerr.New(xerr.BusIOTransient, "unknown ingress channel %d", groupIdx)
	}
	g := b.groups[groupIdx]
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: g.Addr, Port: g.IngressPort})
	if err != nil {
		return xerr.Wrap(xerr.BusIOTransient, err, "dial ingress port %d", g.IngressPort)
	}
	defer conn.Close()
	if _, err := conn.Write(data); err != nil {
		return xerr.Wrap(xerr.BusIOTransient, err, "write ingress port %d", g.IngressPort)
	}
	return nil
}

// GroupIndexForEgressPort maps a received egress port back to its channel
// index, used by the Ingress Router to pick the matching ingress port.
func (b *Bridge) GroupIndexForEgressPort(port int) int {
	for i, g := range b.groups {
		if g.EgressPort == port {
			return i
		}
	}
	return -1
}

// WatchInterface is T-iface: polls the bridge interface's presence every 2s
// and rebuilds all sockets if it disappears and returns (spec §4.4).
func (b *Bridge) WatchInterface(ctx context.Context) {
	ticker := time.NewTicker(ifaceWatchTTL)
	defer ticker.Stop()
	present := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := net.InterfaceByName(b.ifaceName)
			switch {
			case err != nil && present:
				present = false
				rlog.LogEvent("iface", "bridge interface %s disappeared", b.ifaceName)
			case err == nil && !present:
				present = true
				rlog.LogEvent("iface", "bridge interface %s returned, rebuilding sockets", b.ifaceName)
				if err := b.bind(); err != nil {
					rlog.ErrorfEvery("bus:rebind", "bus: rebind after interface return failed: %v", err)
				}
			}
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
