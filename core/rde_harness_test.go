package core

import (
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/lsdb"
	"github.com/encodeous/ospf6rde/state"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock only moves when told to, firing due timers in order.
type fakeClock struct {
	now    time.Time
	seq    int
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) lsdb.Timer {
	t := &fakeTimer{at: c.now.Add(d), seq: c.seq, fn: fn}
	c.seq++
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) next(end time.Time) *fakeTimer {
	var best *fakeTimer
	for _, t := range c.timers {
		if t.stopped || t.fired || t.at.After(end) {
			continue
		}
		if best == nil || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (c *fakeClock) Advance(d time.Duration) {
	end := c.now.Add(d)
	for {
		t := c.next(end)
		if t == nil {
			break
		}
		c.now = t.at
		t.fired = true
		t.fn()
	}
	c.now = end
	c.timers = slices.DeleteFunc(c.timers, func(t *fakeTimer) bool {
		return t.stopped || t.fired
	})
}

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

func (h HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range h {
		if event.Message != msg || len(event.Args) < len(args) {
			continue
		}
		match := true
		for i, arg := range args {
			if !cmp.Equal(event.Args[i], arg, cmpopts.EquateComparable(netip.Prefix{}, netip.Addr{})) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (h HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if h.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in\n", h)
}

func (h HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if h.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in\n", h)
	}
}

// Count returns the number of events with the given message.
func (h HarnessEvents) Count(msg string) int {
	n := 0
	for _, event := range h {
		if event.Message == msg {
			n++
		}
	}
	return n
}

// desc renders an LSA the way the harness records it.
func desc(l *lsa.LSA) string {
	return fmt.Sprintf("%s seq 0x%08x age %d", l.Key(), l.SeqNum, l.Age)
}

// withAge returns a copy of l carrying the given age.
func withAge(l *lsa.LSA, age uint16) *lsa.LSA {
	c := l.Clone()
	c.Age = age
	return c
}

func hopsString(routes []imsg.KRoute) string {
	hops := make([]string, 0, len(routes))
	for _, kr := range routes {
		hops = append(hops, fmt.Sprintf("%s%%%d", kr.Nexthop, kr.IfIndex))
	}
	slices.Sort(hops)
	return strings.Join(hops, ",")
}

// RdeHarness records everything the engine sends to its peers and the FIB.
type RdeHarness struct {
	actions []HarnessEvent
	msgs    []*imsg.Msg
}

func (h *RdeHarness) ToEngine(t imsg.Type, peerID uint32, data []byte) {
	h.msgs = append(h.msgs, &imsg.Msg{Header: imsg.Header{Type: t, PeerID: peerID}, Data: data})
	switch t {
	case imsg.LSFlood, imsg.LSUpd, imsg.LSSnap:
		l, err := lsa.Parse(data)
		if err != nil {
			h.actions = append(h.actions, MakeEvent(t.String(), peerID, "invalid: "+err.Error()))
			return
		}
		h.actions = append(h.actions, MakeEvent(t.String(), peerID, desc(l)))
	case imsg.LSAck, imsg.DD, imsg.DBSnapshot:
		var keys []string
		for off := 0; off+lsa.HeaderLen <= len(data); off += lsa.HeaderLen {
			hdr, _ := lsa.DecodeHeader(data[off:])
			keys = append(keys, hdr.Key().String())
		}
		h.actions = append(h.actions, MakeEvent(t.String(), peerID, strings.Join(keys, ",")))
	default:
		h.actions = append(h.actions, MakeEvent(t.String(), peerID))
	}
}

func (h *RdeHarness) ToParent(t imsg.Type, data []byte) {
	h.actions = append(h.actions, MakeEvent(t.String()))
}

func (h *RdeHarness) Change(routes []imsg.KRoute) error {
	h.actions = append(h.actions, MakeEvent("KROUTE_CHANGE", routes[0].Prefix, hopsString(routes), routes[0].Metric))
	return nil
}

func (h *RdeHarness) Delete(route imsg.KRoute) error {
	h.actions = append(h.actions, MakeEvent("KROUTE_DELETE", route.Prefix))
	return nil
}

// GetActions returns and clears the recorded events.
func (h *RdeHarness) GetActions() HarnessEvents {
	x := h.actions
	h.actions = make([]HarnessEvent, 0)
	h.msgs = nil
	return x
}

// Messages returns the raw messages recorded since the last GetActions.
func (h *RdeHarness) Messages() []*imsg.Msg {
	return h.msgs
}

func rid(s string) uint32 {
	id, err := lsa.ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

const (
	peerSelf  uint32 = 2
	peerSelf2 uint32 = 3
	peerR2    uint32 = 10
	peerR3    uint32 = 11
)

type testRig struct {
	t     *testing.T
	e     *Engine
	h     *RdeHarness
	clock *fakeClock
}

func newRig(t *testing.T) *testRig {
	clock := newFakeClock()
	h := &RdeHarness{}
	e := NewEngine(Conf{
		RouterID: rid("1.1.1.1"),
		SpfDelay: time.Second,
		SpfHold:  5 * time.Second,
		Redist:   Redistribute{Metric: 100, Type: 2},
	}, h, h, clock, slog.New(slog.DiscardHandler))
	t.Cleanup(e.Close)
	return &testRig{t: t, e: e, h: h, clock: clock}
}

// iface configures an interface in area 0.0.0.0, creating the area.
func (r *testRig) iface(index uint32, typ state.IfaceType, addrs ...string) *state.Interface {
	area := r.e.AddArea(0, false)
	iface := state.NewInterface(index, fmt.Sprintf("eth%d", index), area.ID, typ)
	for _, a := range addrs {
		iface.AddAddr(netip.MustParsePrefix(a))
	}
	r.e.Ifaces[index] = iface
	area.AddIface(index)
	return iface
}

func (r *testRig) engine(t imsg.Type, peer uint32, data []byte) {
	r.t.Helper()
	require.NoError(r.t, r.e.HandleEngine(&imsg.Msg{Header: imsg.Header{Type: t, PeerID: peer}, Data: data}))
}

func (r *testRig) parent(t imsg.Type, data []byte) {
	r.t.Helper()
	require.NoError(r.t, r.e.HandleParent(&imsg.Msg{Header: imsg.Header{Type: t}, Data: data}))
}

func (r *testRig) selfUp(peer, ifindex uint32) {
	r.t.Helper()
	up := imsg.NbrUp{RouterID: r.e.RouterID, IfIndex: ifindex, IfaceID: ifindex, Self: true}
	r.engine(imsg.NeighborUp, peer, up.Marshal())
}

// nbrFull brings a neighbor up and straight to Full.
func (r *testRig) nbrFull(peer uint32, router string, ifindex, ifaceID uint32) {
	r.t.Helper()
	up := imsg.NbrUp{RouterID: rid(router), IfIndex: ifindex, IfaceID: ifaceID, Addr: netip.MustParseAddr("fe80::1")}
	r.engine(imsg.NeighborUp, peer, up.Marshal())
	r.engine(imsg.NeighborChange, peer, imsg.EncodeUint32(uint32(state.NbrStateFull)))
}

func (r *testRig) ifaceUp(index uint32, st state.IfaceState) {
	r.t.Helper()
	s := imsg.IfaceStatus{IfIndex: index, State: uint32(st), Up: true}
	r.engine(imsg.IfaceInfo, 0, s.Marshal())
}

func (r *testRig) update(peer uint32, l *lsa.LSA) {
	r.t.Helper()
	r.engine(imsg.LSUpd, peer, l.Marshal())
}

func (r *testRig) area() *state.Area {
	return r.e.Area(0)
}

func mkLSA(adv string, id uint32, seq uint32, body lsa.Body) *lsa.LSA {
	l := lsa.New(lsa.Header{ID: id, AdvRouter: rid(adv), SeqNum: seq}, body)
	l.Marshal()
	return l
}

func p2p(metric uint16, ifaceID, nbrIfaceID uint32, nbr string) lsa.RouterLink {
	return lsa.RouterLink{Type: lsa.LinkPointToPoint, Metric: metric, IfaceID: ifaceID, NbrIfaceID: nbrIfaceID, NbrRouterID: rid(nbr)}
}

func transit(metric uint16, ifaceID, drIfaceID uint32, dr string) lsa.RouterLink {
	return lsa.RouterLink{Type: lsa.LinkTransit, Metric: metric, IfaceID: ifaceID, NbrIfaceID: drIfaceID, NbrRouterID: rid(dr)}
}

func routerLSA(adv string, seq uint32, flags uint8, links ...lsa.RouterLink) *lsa.LSA {
	return mkLSA(adv, 0, seq, &lsa.Router{Flags: flags, Links: links})
}

func networkLSA(adv string, id, seq uint32, attached ...string) *lsa.LSA {
	n := &lsa.Network{}
	for _, a := range attached {
		n.AttachedRouters = append(n.AttachedRouters, rid(a))
	}
	return mkLSA(adv, id, seq, n)
}

func linkLSA(adv string, id, seq uint32, ll string, prefixes ...string) *lsa.LSA {
	body := &lsa.Link{Priority: 1, LinkLocal: netip.MustParseAddr(ll)}
	for _, p := range prefixes {
		body.Prefixes = append(body.Prefixes, lsa.Prefix{Prefix: netip.MustParsePrefix(p)})
	}
	return mkLSA(adv, id, seq, body)
}

func intraRtrLSA(adv string, seq uint32, metric uint16, prefixes ...string) *lsa.LSA {
	body := &lsa.IntraAreaPrefix{RefType: lsa.TypeRouter, RefAdvRouter: rid(adv)}
	for _, p := range prefixes {
		body.Prefixes = append(body.Prefixes, lsa.Prefix{Prefix: netip.MustParsePrefix(p), Aux: metric})
	}
	return mkLSA(adv, 0, seq, body)
}

func asextLSA(adv string, id, seq uint32, prefix string, metric uint32, type2 bool) *lsa.LSA {
	body := &lsa.ASExternal{Metric: metric, Prefix: lsa.Prefix{Prefix: netip.MustParsePrefix(prefix)}}
	if type2 {
		body.Flags |= lsa.ExternalFlagE
	}
	return mkLSA(adv, id, seq, body)
}

func krouteMsg(prefix string, metric uint32) []byte {
	return imsg.EncodeKRoutes(imsg.KRoute{Prefix: netip.MustParsePrefix(prefix), Metric: metric})
}

const seq1 = lsa.InitialSequenceNumber
