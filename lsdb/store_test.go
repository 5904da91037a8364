package lsdb

import (
	"net/netip"
	"testing"
	"time"

	"github.com/encodeous/ospf6rde/lsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func external(adv, id uint32, prefix string) *Vertex {
	l := lsa.New(lsa.Header{ID: id, AdvRouter: adv, SeqNum: lsa.InitialSequenceNumber}, &lsa.ASExternal{
		Prefix: lsa.Prefix{Prefix: netip.MustParsePrefix(prefix)},
	})
	return NewVertex(l, epoch)
}

func TestStoreOrdering(t *testing.T) {
	s := NewStore()
	s.Insert(external(2, 0, "2001:db8:2::/48"))
	s.Insert(external(1, 1, "2001:db8:1::/48"))
	s.Insert(external(1, 0, "2001:db8::/48"))
	link := NewVertex(lsa.New(lsa.Header{ID: 9, AdvRouter: 3}, &lsa.Link{LinkLocal: netip.MustParseAddr("fe80::3")}), epoch)
	s.Insert(link)

	var keys []lsa.Key
	s.Ascend(func(v *Vertex) bool {
		keys = append(keys, v.Key)
		return true
	})
	assert.Equal(t, []lsa.Key{
		{Type: lsa.TypeLink, ID: 9, AdvRouter: 3},
		{Type: lsa.TypeASExternal, ID: 0, AdvRouter: 1},
		{Type: lsa.TypeASExternal, ID: 1, AdvRouter: 1},
		{Type: lsa.TypeASExternal, ID: 0, AdvRouter: 2},
	}, keys)

	n := 0
	s.AscendAdv(lsa.TypeASExternal, 1, func(v *Vertex) bool {
		n++
		return true
	})
	assert.Equal(t, 2, n)

	n = 0
	s.AscendType(lsa.TypeLink, func(v *Vertex) bool {
		n++
		return true
	})
	assert.Equal(t, 1, n)
}

func TestStoreReplaceAndDelete(t *testing.T) {
	s := NewStore()
	a := external(1, 0, "2001:db8::/48")
	assert.Nil(t, s.Insert(a))
	b := external(1, 0, "2001:db8::/48")
	assert.Same(t, a, s.Insert(b))
	assert.Same(t, b, s.Find(a.Key))
	assert.Equal(t, 1, s.Len())

	assert.Same(t, b, s.Delete(a.Key))
	assert.Nil(t, s.Find(a.Key))
	assert.Nil(t, s.Delete(a.Key))
}

func TestFindLSID(t *testing.T) {
	s := NewStore()
	body := func(p string) lsa.Body {
		return &lsa.ASExternal{Prefix: lsa.Prefix{Prefix: netip.MustParsePrefix(p)}}
	}
	assert.Equal(t, uint32(0), s.FindLSID(1, body("2001:db8::/48")))

	s.Insert(external(1, 0, "2001:db8::/48"))
	s.Insert(external(1, 1, "2001:db8:1::/48"))
	s.Insert(external(1, 3, "2001:db8:3::/48"))
	// other routers do not influence the allocation
	s.Insert(external(2, 2, "2001:db8:9::/48"))

	assert.Equal(t, uint32(1), s.FindLSID(1, body("2001:db8:1::/48")), "same destination reuses its id")
	assert.Equal(t, uint32(3), s.FindLSID(1, body("2001:db8:3::/48")))
	assert.Equal(t, uint32(2), s.FindLSID(1, body("2001:db8:7::/48")), "first gap is used")

	s.Insert(external(1, 2, "2001:db8:2::/48"))
	assert.Equal(t, uint32(4), s.FindLSID(1, body("2001:db8:7::/48")))
	// a different prefix length is a different destination
	assert.Equal(t, uint32(4), s.FindLSID(1, body("2001:db8::/32")))
}

func TestVertexAge(t *testing.T) {
	v := external(1, 0, "2001:db8::/48")
	v.LSA.Age = 10
	now := epoch.Add(2500 * time.Millisecond)
	assert.Equal(t, uint16(12), v.Age(now))
	assert.Equal(t, uint16(12), v.UpdateAge(now))
	assert.Equal(t, epoch.Add(2*time.Second), v.Stamp)
	assert.Equal(t, uint16(13), v.Age(epoch.Add(3*time.Second)))

	assert.True(t, v.MaxAged(epoch.Add(lsa.MaxAge*time.Second)))
	assert.Equal(t, uint16(lsa.MaxAge), v.Age(epoch.Add(10*lsa.MaxAge*time.Second)))
}

func TestVertexNextHops(t *testing.T) {
	v := external(1, 0, "2001:db8::/48")
	v.AddNextHop(NextHop{Addr: netip.MustParseAddr("fe80::1"), IfIndex: 1})
	v.AddNextHop(NextHop{Addr: netip.MustParseAddr("fe80::1"), IfIndex: 1})
	v.AddNextHop(NextHop{Addr: netip.MustParseAddr("fe80::1"), IfIndex: 2})
	require.Len(t, v.NextHops, 2)

	v.Cost = 10
	v.ResetSPF()
	assert.Empty(t, v.NextHops)
	assert.Equal(t, uint32(lsa.LSInfinity), v.Cost)
}

type stopCounter struct{ n *int }

func (s stopCounter) Stop() bool {
	*s.n++
	return true
}

func TestStoreClearStopsTimers(t *testing.T) {
	s := NewStore()
	stopped := 0
	for i := uint32(0); i < 3; i++ {
		v := external(1, i, "2001:db8::/48")
		v.Timer = stopCounter{&stopped}
		s.Insert(v)
	}
	s.Clear()
	assert.Equal(t, 3, stopped)
	assert.Equal(t, 0, s.Len())
}
