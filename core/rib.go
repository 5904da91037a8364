package core

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/encodeous/ospf6rde/lsa"
	"github.com/gaissmai/bart"
)

type DestType uint8

const (
	DestNetwork DestType = iota + 1
	DestRouter
)

func (t DestType) String() string {
	switch t {
	case DestNetwork:
		return "Network"
	case DestRouter:
		return "Router"
	default:
		return fmt.Sprintf("DestType(%d)", uint8(t))
	}
}

// PathType orders the kinds of paths, a lower value always wins.
type PathType uint8

const (
	PathIntraArea PathType = iota
	PathInterArea
	PathType1Ext
	PathType2Ext
)

func (t PathType) String() string {
	switch t {
	case PathIntraArea:
		return "Intra-Area"
	case PathInterArea:
		return "Inter-Area"
	case PathType1Ext:
		return "Type 1 ext"
	case PathType2Ext:
		return "Type 2 ext"
	default:
		return fmt.Sprintf("PathType(%d)", uint8(t))
	}
}

func (t PathType) External() bool {
	return t == PathType1Ext || t == PathType2Ext
}

type RouteNextHop struct {
	Addr      netip.Addr
	AdvRouter uint32
	IfIndex   uint32
	// Connected is informational, it marks destinations on a directly
	// attached link.
	Connected bool
	Invalid   bool
	Uptime    time.Time
}

func (n *RouteNextHop) String() string {
	s := fmt.Sprintf("%s if %d adv %s", n.Addr, n.IfIndex, lsa.IDString(n.AdvRouter))
	if n.Connected {
		s += " connected"
	}
	if n.Invalid {
		s += " invalid"
	}
	return s
}

// RouteNode is one RIB entry. There is at most one node per destination
// and destination type.
type RouteNode struct {
	Prefix   netip.Prefix
	RouterID uint32
	DType    DestType
	PType    PathType
	Cost     uint32
	// Cost2 is the type 2 external metric.
	Cost2    uint32
	Area     uint32
	Flags    uint8
	ExtTag   uint32
	NextHops []*RouteNextHop
	Invalid  bool
}

func (r *RouteNode) String() string {
	var dst string
	if r.DType == DestRouter {
		dst = "rtr " + lsa.IDString(r.RouterID)
	} else {
		dst = r.Prefix.String()
	}
	hops := make([]string, 0, len(r.NextHops))
	for _, nh := range r.NextHops {
		hops = append(hops, nh.String())
	}
	s := fmt.Sprintf("%s %s cost %d", dst, r.PType, r.Cost)
	if r.PType == PathType2Ext {
		s += fmt.Sprintf(" cost2 %d", r.Cost2)
	}
	s += fmt.Sprintf(" area %s via [%s]", lsa.IDString(r.Area), strings.Join(hops, ", "))
	if r.Invalid {
		s += " invalid"
	}
	return s
}

// ValidHops returns the next hops that survived the last computation.
func (r *RouteNode) ValidHops() []*RouteNextHop {
	out := make([]*RouteNextHop, 0, len(r.NextHops))
	for _, nh := range r.NextHops {
		if !nh.Invalid {
			out = append(out, nh)
		}
	}
	return out
}

type routeKey struct {
	prefix netip.Prefix
	dtype  DestType
}

// Rib is the routing table computed by SPF. Network destinations are also
// indexed in a prefix table for longest match lookups of forwarding
// addresses.
type Rib struct {
	routes map[routeKey]*RouteNode
	nets   bart.Table[*RouteNode]
}

func NewRib() *Rib {
	return &Rib{routes: make(map[routeKey]*RouteNode)}
}

// RouterPrefix maps a router id onto the /128 used to key router
// destinations.
func RouterPrefix(id uint32) netip.Prefix {
	var a [16]byte
	binary.BigEndian.PutUint32(a[12:], id)
	return netip.PrefixFrom(netip.AddrFrom16(a), 128)
}

func (r *Rib) Len() int {
	return len(r.routes)
}

func (r *Rib) Find(p netip.Prefix, t DestType) *RouteNode {
	return r.routes[routeKey{p.Masked(), t}]
}

func (r *Rib) FindRouter(id uint32) *RouteNode {
	return r.Find(RouterPrefix(id), DestRouter)
}

func (r *Rib) insert(rn *RouteNode) {
	r.routes[routeKey{rn.Prefix, rn.DType}] = rn
	if rn.DType == DestNetwork {
		r.nets.Insert(rn.Prefix, rn)
	}
}

func (r *Rib) remove(rn *RouteNode) {
	delete(r.routes, routeKey{rn.Prefix, rn.DType})
	if rn.DType == DestNetwork {
		r.nets.Delete(rn.Prefix)
	}
}

// LookupRouter returns the valid route to a router.
func (r *Rib) LookupRouter(id uint32) *RouteNode {
	rn := r.FindRouter(id)
	if rn == nil || rn.Invalid {
		return nil
	}
	return rn
}

// LookupAddr returns the longest matching valid intra or inter area route
// covering addr.
func (r *Rib) LookupAddr(addr netip.Addr) *RouteNode {
	for _, rn := range r.nets.Supernets(netip.PrefixFrom(addr, addr.BitLen())) {
		if rn.Invalid || rn.PType.External() {
			continue
		}
		return rn
	}
	return nil
}

// Routes returns every node ordered by destination type, then prefix.
func (r *Rib) Routes() []*RouteNode {
	out := make([]*RouteNode, 0, len(r.routes))
	for _, rn := range r.routes {
		out = append(out, rn)
	}
	slices.SortFunc(out, func(a, b *RouteNode) int {
		if c := cmp.Compare(a.DType, b.DType); c != 0 {
			return c
		}
		if c := a.Prefix.Addr().Compare(b.Prefix.Addr()); c != 0 {
			return c
		}
		return cmp.Compare(a.Prefix.Bits(), b.Prefix.Bits())
	})
	return out
}

func (r *Rib) Clear() {
	clear(r.routes)
	r.nets = bart.Table[*RouteNode]{}
}

func (r *Rib) String() string {
	lines := make([]string, 0, len(r.routes))
	for _, rn := range r.Routes() {
		lines = append(lines, rn.String())
	}
	return strings.Join(lines, "\n")
}
