package core

import (
	"net/netip"
	"testing"
	"time"

	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/lsdb"
	"github.com/encodeous/ospf6rde/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// p2pTopology connects 1.1.1.1 to 2.2.2.2 over ifindex 1. The remote side
// uses interface id 5 and announces 2001:db8:2::/64 with metric 10.
func p2pTopology(r *testRig) {
	r.iface(1, state.IfacePointToPoint, "fe80::1/64")
	r.selfUp(peerSelf, 1)
	r.update(peerSelf, routerLSA("1.1.1.1", seq1, 0, p2p(10, 1, 5, "2.2.2.2")))
	r.nbrFull(peerR2, "2.2.2.2", 1, 5)
	r.update(peerR2, routerLSA("2.2.2.2", seq1, lsa.RouterFlagE, p2p(10, 5, 1, "1.1.1.1")))
	r.update(peerR2, linkLSA("2.2.2.2", 5, seq1, "fe80::2"))
	r.update(peerR2, intraRtrLSA("2.2.2.2", seq1, 10, "2001:db8:2::/64"))
}

func TestSpfPointToPoint(t *testing.T) {
	r := newRig(t)
	p2pTopology(r)
	r.h.GetActions()

	r.clock.Advance(time.Second)
	a := r.h.GetActions()
	a.AssertContains(t, "KROUTE_CHANGE", netip.MustParsePrefix("2001:db8:2::/64"), "fe80::2%1", uint32(20))

	rt := r.e.Rib.Find(netip.MustParsePrefix("2001:db8:2::/64"), DestNetwork)
	require.NotNil(t, rt)
	assert.Equal(t, PathIntraArea, rt.PType)
	assert.Equal(t, uint32(20), rt.Cost)
	hops := rt.ValidHops()
	require.Len(t, hops, 1)
	assert.Equal(t, netip.MustParseAddr("fe80::2"), hops[0].Addr)
	assert.Equal(t, uint32(1), hops[0].IfIndex)
	assert.Equal(t, rid("2.2.2.2"), hops[0].AdvRouter)
	assert.False(t, hops[0].Connected)

	// the AS boundary router is kept as a destination
	asbr := r.e.Rib.LookupRouter(rid("2.2.2.2"))
	require.NotNil(t, asbr)
	assert.Equal(t, uint32(10), asbr.Cost)
	assert.Equal(t, uint8(lsa.RouterFlagE), asbr.Flags)
	assert.Equal(t, uint64(1), r.e.SpfRuns)
}

func TestSpfMissingLinkLSA(t *testing.T) {
	r := newRig(t)
	r.iface(1, state.IfacePointToPoint)
	r.selfUp(peerSelf, 1)
	r.update(peerSelf, routerLSA("1.1.1.1", seq1, 0, p2p(10, 1, 5, "2.2.2.2")))
	r.nbrFull(peerR2, "2.2.2.2", 1, 5)
	r.update(peerR2, routerLSA("2.2.2.2", seq1, 0, p2p(10, 5, 1, "1.1.1.1")))
	r.update(peerR2, intraRtrLSA("2.2.2.2", seq1, 10, "2001:db8:2::/64"))
	r.h.GetActions()

	r.clock.Advance(time.Second)
	a := r.h.GetActions()
	assert.Equal(t, 0, a.Count("KROUTE_CHANGE"))
	assert.Nil(t, r.e.Rib.Find(netip.MustParsePrefix("2001:db8:2::/64"), DestNetwork))
}

func TestSpfUnidirectionalLink(t *testing.T) {
	r := newRig(t)
	r.iface(1, state.IfacePointToPoint)
	r.selfUp(peerSelf, 1)
	r.update(peerSelf, routerLSA("1.1.1.1", seq1, 0, p2p(10, 1, 5, "2.2.2.2")))
	r.nbrFull(peerR2, "2.2.2.2", 1, 5)
	// no link back towards 1.1.1.1
	r.update(peerR2, routerLSA("2.2.2.2", seq1, 0, p2p(10, 5, 9, "3.3.3.3")))
	r.update(peerR2, linkLSA("2.2.2.2", 5, seq1, "fe80::2"))
	r.update(peerR2, intraRtrLSA("2.2.2.2", seq1, 10, "2001:db8:2::/64"))

	r.clock.Advance(time.Second)
	assert.Nil(t, r.e.Rib.Find(netip.MustParsePrefix("2001:db8:2::/64"), DestNetwork))
	v := r.area().LSAs.Find(lsa.Key{Type: lsa.TypeRouter, AdvRouter: rid("2.2.2.2")})
	require.NotNil(t, v)
	assert.Equal(t, uint32(lsa.LSInfinity), v.Cost)
}

func TestSpfEqualCostMultipath(t *testing.T) {
	r := newRig(t)
	r.iface(1, state.IfacePointToPoint)
	r.iface(2, state.IfacePointToPoint)
	r.selfUp(peerSelf, 1)
	r.update(peerSelf, routerLSA("1.1.1.1", seq1, 0,
		p2p(10, 1, 5, "2.2.2.2"),
		p2p(10, 2, 6, "3.3.3.3")))
	r.nbrFull(peerR2, "2.2.2.2", 1, 5)
	r.nbrFull(peerR3, "3.3.3.3", 2, 6)
	r.update(peerR2, routerLSA("2.2.2.2", seq1, 0,
		p2p(10, 5, 1, "1.1.1.1"),
		p2p(10, 7, 8, "4.4.4.4")))
	r.update(peerR3, routerLSA("3.3.3.3", seq1, 0,
		p2p(10, 6, 2, "1.1.1.1"),
		p2p(10, 9, 10, "4.4.4.4")))
	r.update(peerR2, routerLSA("4.4.4.4", seq1, lsa.RouterFlagE,
		p2p(10, 8, 7, "2.2.2.2"),
		p2p(10, 10, 9, "3.3.3.3")))
	r.update(peerR2, linkLSA("2.2.2.2", 5, seq1, "fe80::2"))
	r.update(peerR3, linkLSA("3.3.3.3", 6, seq1, "fe80::3"))
	r.update(peerR2, intraRtrLSA("4.4.4.4", seq1, 0, "2001:db8:4::/64"))
	r.h.GetActions()

	r.clock.Advance(time.Second)
	a := r.h.GetActions()
	a.AssertContains(t, "KROUTE_CHANGE", netip.MustParsePrefix("2001:db8:4::/64"), "fe80::2%1,fe80::3%2", uint32(20))

	asbr := r.e.Rib.LookupRouter(rid("4.4.4.4"))
	require.NotNil(t, asbr)
	assert.Equal(t, uint32(20), asbr.Cost)
	assert.Len(t, asbr.ValidHops(), 2)
}

// TestSpfTransitNetwork has 1.1.1.1 as designated router of a broadcast
// link shared with 2.2.2.2.
func TestSpfTransitNetwork(t *testing.T) {
	r := newRig(t)
	r.iface(1, state.IfaceBroadcast, "2001:db8:a::1/64", "fe80::1/64")
	r.selfUp(peerSelf, 1)
	r.nbrFull(peerR2, "2.2.2.2", 1, 5)
	r.update(peerR2, linkLSA("2.2.2.2", 5, seq1, "fe80::2", "2001:db8:a::/64"))
	r.ifaceUp(1, state.IfaceStateDR)

	r.update(peerSelf, routerLSA("1.1.1.1", seq1, 0, transit(10, 1, 1, "1.1.1.1")))
	r.update(peerSelf, networkLSA("1.1.1.1", 1, seq1, "1.1.1.1", "2.2.2.2"))
	r.update(peerR2, routerLSA("2.2.2.2", seq1, 0, transit(10, 5, 1, "1.1.1.1")))
	r.update(peerR2, intraRtrLSA("2.2.2.2", seq1, 0, "2001:db8:2::1/128"))
	r.h.GetActions()

	r.clock.Advance(time.Second)
	a := r.h.GetActions()
	a.AssertContains(t, "KROUTE_CHANGE", netip.MustParsePrefix("2001:db8:2::1/128"), "fe80::2%1", uint32(10))
	// the transit prefix is on-link and never programmed
	a.AssertNotContains(t, "KROUTE_CHANGE", netip.MustParsePrefix("2001:db8:a::/64"))

	stub := r.e.Rib.Find(netip.MustParsePrefix("2001:db8:2::1/128"), DestNetwork)
	require.NotNil(t, stub)
	assert.Equal(t, uint32(state.DefaultMetric), stub.Cost)

	onLink := r.e.Rib.Find(netip.MustParsePrefix("2001:db8:a::/64"), DestNetwork)
	require.NotNil(t, onLink)
	assert.Equal(t, uint32(10), onLink.Cost)
	hops := onLink.ValidHops()
	require.Len(t, hops, 1)
	assert.True(t, hops[0].Connected)
}

func TestSpfIdempotent(t *testing.T) {
	r := newRig(t)
	p2pTopology(r)
	r.clock.Advance(time.Second)
	r.h.GetActions()

	before := r.e.Rib.Find(netip.MustParsePrefix("2001:db8:2::/64"), DestNetwork).String()
	r.area().Dirty = true
	r.e.runSpf()
	r.e.runSpf()

	a := r.h.GetActions()
	assert.Equal(t, 0, a.Count("KROUTE_CHANGE"))
	assert.Equal(t, 0, a.Count("KROUTE_DELETE"))
	assert.Equal(t, before, r.e.Rib.Find(netip.MustParsePrefix("2001:db8:2::/64"), DestNetwork).String())
}

func TestSpfKernelDiff(t *testing.T) {
	r := newRig(t)
	p2pTopology(r)
	r.clock.Advance(time.Second)
	r.h.GetActions()

	r.clock.Advance(time.Second)
	r.update(peerR2, intraRtrLSA("2.2.2.2", seq1+1, 10, "2001:db8:3::/64"))
	// the run is queued behind the hold timer
	assert.Equal(t, spfHoldQueue, r.e.spf)
	r.clock.Advance(4 * time.Second)

	a := r.h.GetActions()
	a.AssertContains(t, "KROUTE_DELETE", netip.MustParsePrefix("2001:db8:2::/64"))
	a.AssertContains(t, "KROUTE_CHANGE", netip.MustParsePrefix("2001:db8:3::/64"), "fe80::2%1", uint32(20))
	a.AssertNotContains(t, "KROUTE_CHANGE", netip.MustParsePrefix("2001:db8:2::/64"))
}

func TestSpfExternal(t *testing.T) {
	r := newRig(t)
	p2pTopology(r)
	r.update(peerR2, asextLSA("2.2.2.2", 0, seq1, "2001:db8:100::/48", 30, false))
	r.update(peerR2, asextLSA("2.2.2.2", 1, seq1, "2001:db8:200::/48", 30, true))
	r.h.GetActions()

	r.clock.Advance(time.Second)
	a := r.h.GetActions()
	a.AssertContains(t, "KROUTE_CHANGE", netip.MustParsePrefix("2001:db8:100::/48"), "fe80::2%1", uint32(40))
	a.AssertContains(t, "KROUTE_CHANGE", netip.MustParsePrefix("2001:db8:200::/48"), "fe80::2%1", uint32(10))

	t1 := r.e.Rib.Find(netip.MustParsePrefix("2001:db8:100::/48"), DestNetwork)
	require.NotNil(t, t1)
	assert.Equal(t, PathType1Ext, t1.PType)
	t2 := r.e.Rib.Find(netip.MustParsePrefix("2001:db8:200::/48"), DestNetwork)
	require.NotNil(t, t2)
	assert.Equal(t, PathType2Ext, t2.PType)
	assert.Equal(t, uint32(30), t2.Cost2)
}

func TestRtUpdatePrecedence(t *testing.T) {
	r := newRig(t)
	p := netip.MustParsePrefix("2001:db8:9::/64")
	via2 := []lsdb.NextHop{{Addr: netip.MustParseAddr("fe80::2"), IfIndex: 1}}
	via3 := []lsdb.NextHop{{Addr: netip.MustParseAddr("fe80::3"), IfIndex: 2}}

	r.e.rtUpdate(p, via2, lsa.TypeASExternal, 10, 5, 0, rid("2.2.2.2"), PathType2Ext, DestNetwork, 0, 0)
	rt := r.e.Rib.Find(p, DestNetwork)
	require.NotNil(t, rt)
	assert.Equal(t, PathType2Ext, rt.PType)

	// an intra-area path beats any external one regardless of cost
	r.e.rtUpdate(p, via3, lsa.TypeIntraAreaPrefix, 100, 0, 0, rid("3.3.3.3"), PathIntraArea, DestNetwork, 0, 0)
	assert.Equal(t, PathIntraArea, rt.PType)
	assert.Equal(t, uint32(100), rt.Cost)
	hops := rt.ValidHops()
	require.Len(t, hops, 1)
	assert.Equal(t, netip.MustParseAddr("fe80::3"), hops[0].Addr)

	// equal cost in the same area adds a next hop
	r.e.rtUpdate(p, via2, lsa.TypeIntraAreaPrefix, 100, 0, 0, rid("2.2.2.2"), PathIntraArea, DestNetwork, 0, 0)
	assert.Len(t, rt.ValidHops(), 2)

	// worse kinds of path are ignored
	r.e.rtUpdate(p, via2, lsa.TypeInterAreaPrefix, 1, 0, 0, rid("2.2.2.2"), PathInterArea, DestNetwork, 0, 0)
	assert.Equal(t, PathIntraArea, rt.PType)
	assert.Equal(t, uint32(100), rt.Cost)

	q := netip.MustParsePrefix("2001:db8:a::/64")
	r.e.rtUpdate(q, via2, lsa.TypeASExternal, 10, 20, 0, rid("2.2.2.2"), PathType2Ext, DestNetwork, 0, 0)
	ext := r.e.Rib.Find(q, DestNetwork)
	require.NotNil(t, ext)
	// the type 2 metric is compared first
	r.e.rtUpdate(q, via3, lsa.TypeASExternal, 5, 30, 0, rid("3.3.3.3"), PathType2Ext, DestNetwork, 0, 0)
	assert.Equal(t, uint32(20), ext.Cost2)
	assert.Equal(t, uint32(10), ext.Cost)
	// then the distance to the boundary router
	r.e.rtUpdate(q, via3, lsa.TypeASExternal, 5, 20, 0, rid("3.3.3.3"), PathType2Ext, DestNetwork, 0, 7)
	assert.Equal(t, uint32(5), ext.Cost)
	assert.Equal(t, uint32(7), ext.ExtTag)
	hops = ext.ValidHops()
	require.Len(t, hops, 1)
	assert.Equal(t, netip.MustParseAddr("fe80::3"), hops[0].Addr)
}

func TestRtInvalidateDropsStaleHops(t *testing.T) {
	r := newRig(t)
	area := r.e.AddArea(0, false)
	p := netip.MustParsePrefix("2001:db8:9::/64")
	via2 := []lsdb.NextHop{{Addr: netip.MustParseAddr("fe80::2"), IfIndex: 1}}

	r.e.rtUpdate(p, via2, lsa.TypeIntraAreaPrefix, 10, 0, 0, rid("2.2.2.2"), PathIntraArea, DestNetwork, 0, 0)
	r.e.rtInvalidate(area)
	rt := r.e.Rib.Find(p, DestNetwork)
	require.NotNil(t, rt)
	assert.True(t, rt.Invalid)
	assert.Empty(t, rt.ValidHops())

	// a second pass without recomputation removes the route
	r.e.rtInvalidate(area)
	assert.Nil(t, r.e.Rib.Find(p, DestNetwork))
}

func TestSpfTimerStates(t *testing.T) {
	r := newRig(t)
	assert.Equal(t, spfIdle, r.e.spf)

	r.e.startSpfTimer()
	assert.Equal(t, spfDelay, r.e.spf)
	r.e.startSpfTimer()
	assert.Equal(t, spfDelay, r.e.spf)

	r.clock.Advance(time.Second)
	assert.Equal(t, spfHold, r.e.spf)
	assert.Equal(t, uint64(1), r.e.SpfRuns)

	r.e.startSpfTimer()
	assert.Equal(t, spfHoldQueue, r.e.spf)
	r.clock.Advance(5 * time.Second)
	assert.Equal(t, uint64(2), r.e.SpfRuns)
	assert.Equal(t, spfHold, r.e.spf)

	r.clock.Advance(5 * time.Second)
	assert.Equal(t, spfIdle, r.e.spf)
	assert.Equal(t, uint64(2), r.e.SpfRuns)
}

// TestSpfShorterPathReplacesDirectLink has a direct link of cost 10 to
// 2.2.2.2 and a path of cost 2 through 3.3.3.3.
func TestSpfShorterPathReplacesDirectLink(t *testing.T) {
	r := newRig(t)
	r.iface(1, state.IfacePointToPoint)
	r.iface(2, state.IfacePointToPoint)
	r.selfUp(peerSelf, 1)
	r.update(peerSelf, routerLSA("1.1.1.1", seq1, 0,
		p2p(10, 1, 5, "2.2.2.2"),
		p2p(1, 2, 6, "3.3.3.3")))
	r.nbrFull(peerR2, "2.2.2.2", 1, 5)
	r.nbrFull(peerR3, "3.3.3.3", 2, 6)
	r.update(peerR2, routerLSA("2.2.2.2", seq1, 0,
		p2p(10, 5, 1, "1.1.1.1"),
		p2p(1, 7, 8, "3.3.3.3")))
	r.update(peerR3, routerLSA("3.3.3.3", seq1, 0,
		p2p(1, 6, 2, "1.1.1.1"),
		p2p(1, 8, 7, "2.2.2.2")))
	r.update(peerR2, linkLSA("2.2.2.2", 5, seq1, "fe80::2"))
	r.update(peerR3, linkLSA("3.3.3.3", 6, seq1, "fe80::3"))
	r.update(peerR2, intraRtrLSA("2.2.2.2", seq1, 10, "2001:db8:2::/64"))
	r.h.GetActions()

	r.clock.Advance(time.Second)
	a := r.h.GetActions()
	a.AssertContains(t, "KROUTE_CHANGE", netip.MustParsePrefix("2001:db8:2::/64"), "fe80::3%2", uint32(12))

	v := r.area().LSAs.Find(lsa.Key{Type: lsa.TypeRouter, AdvRouter: rid("2.2.2.2")})
	require.NotNil(t, v)
	assert.Equal(t, uint32(2), v.Cost)
	require.Len(t, v.NextHops, 1)
	assert.Equal(t, netip.MustParseAddr("fe80::3"), v.NextHops[0].Addr)
	assert.Equal(t, uint32(2), v.NextHops[0].IfIndex)

	b := r.area().LSAs.Find(lsa.Key{Type: lsa.TypeRouter, AdvRouter: rid("3.3.3.3")})
	require.NotNil(t, b)
	assert.Equal(t, uint32(1), b.Cost)
}

func TestCandidatesOrder(t *testing.T) {
	now := time.Now()
	vertex := func(l *lsa.LSA, cost uint32) *lsdb.Vertex {
		v := lsdb.NewVertex(l, now)
		v.Cost = cost
		return v
	}
	net5 := vertex(networkLSA("2.2.2.2", 5, seq1, "2.2.2.2", "3.3.3.3"), 5)
	rtr5 := vertex(routerLSA("3.3.3.3", seq1, 0), 5)
	net3 := vertex(networkLSA("4.4.4.4", 6, seq1, "4.4.4.4"), 3)
	rtr7 := vertex(routerLSA("5.5.5.5", seq1, 0), 7)

	c := newCandidates()
	for _, v := range []*lsdb.Vertex{net5, rtr5, net3, rtr7} {
		c.add(v)
	}
	// a shorter path to 5.5.5.5 ties with the network at cost 3
	rtr7.Cost = 3
	c.fix(rtr7)

	var order []lsa.Key
	for v := c.pop(); v != nil; v = c.pop() {
		order = append(order, v.Key)
	}
	// routers win ties against networks
	assert.Equal(t, []lsa.Key{rtr7.Key, net3.Key, rtr5.Key, net5.Key}, order)
	assert.False(t, c.present(net5))
	assert.Zero(t, c.Len())
}
