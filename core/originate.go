package core

import (
	"cmp"
	"net/netip"
	"slices"

	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/lsdb"
	"github.com/encodeous/ospf6rde/state"
)

// newSelfLSA builds a fresh self-originated instance. The sequence number
// is taken over from the database copy when the LSA is merged.
func (e *Engine) newSelfLSA(id uint32, body lsa.Body) *lsa.LSA {
	l := lsa.New(lsa.Header{
		Age:       lsa.DefaultAge,
		ID:        id,
		AdvRouter: e.RouterID,
		SeqNum:    lsa.InitialSequenceNumber,
	}, body)
	l.Marshal()
	return l
}

// flushSelf ages a self-originated instance out of the routing domain. An
// instance already being flushed is left alone.
func (e *Engine) flushSelf(self *state.Neighbor, v *lsdb.Vertex) {
	if v == nil || v.Deleted || v.LSA.Age >= lsa.MaxAge {
		return
	}
	l := v.LSA.Clone()
	l.Age = lsa.MaxAge
	l.Marshal()
	e.lsaMerge(self, l, v)
}

// origIntraAreaPrefix re-originates the Intra-Area-Prefix LSAs of area
// after a change of its interfaces, neighbors or Link-LSAs.
func (e *Engine) origIntraAreaPrefix(area *state.Area) {
	self := e.areaSelf(area)
	if self == nil {
		return
	}
	for _, idx := range area.Ifaces {
		iface := e.Iface(idx)
		if iface == nil || !iface.Type.Multiaccess() {
			continue
		}
		e.origIntraNet(area, iface, self)
	}
	e.origIntraRtr(area, self)
}

// fullNbrs lists the fully adjacent neighbors on an interface.
func (e *Engine) fullNbrs(area *state.Area, iface *state.Interface) []*state.Neighbor {
	var out []*state.Neighbor
	for _, h := range area.Nbrs {
		n := e.Nbrs.Get(h)
		if n == nil || n.Self || n.IfIndex != iface.Index || !n.Full() {
			continue
		}
		out = append(out, n)
	}
	return out
}

type prefixSet map[netip.Prefix]*lsa.Prefix

// add merges p into the set. Duplicates have their options or'ed.
func (s prefixSet) add(p netip.Prefix, opts uint8, metric uint16) {
	p = p.Masked()
	if o, ok := s[p]; ok {
		o.Options |= opts
		return
	}
	s[p] = &lsa.Prefix{Prefix: p, Options: opts, Aux: metric}
}

// sorted returns the prefixes ordered by length, then address.
func (s prefixSet) sorted() []lsa.Prefix {
	out := make([]lsa.Prefix, 0, len(s))
	for _, p := range s {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b lsa.Prefix) int {
		if c := cmp.Compare(a.Prefix.Bits(), b.Prefix.Bits()); c != 0 {
			return c
		}
		return a.Prefix.Addr().Compare(b.Prefix.Addr())
	})
	return out
}

func (s prefixSet) addLink(v *lsdb.Vertex) {
	if v == nil || v.Deleted {
		return
	}
	link, ok := v.LSA.Body.(*lsa.Link)
	if !ok {
		return
	}
	for _, p := range link.Prefixes {
		if p.Prefix.Addr().IsLinkLocalUnicast() {
			continue
		}
		if p.Options&(lsa.PrefixOptNU|lsa.PrefixOptLA) != 0 {
			continue
		}
		s.add(p.Prefix, p.Options, 0)
	}
}

// origIntraNet originates the network referenced Intra-Area-Prefix LSA of
// a transit link on which this router is the designated router.
func (e *Engine) origIntraNet(area *state.Area, iface *state.Interface, self *state.Neighbor) {
	key := lsa.Key{Type: lsa.TypeIntraAreaPrefix, ID: iface.Index, AdvRouter: e.RouterID}
	old := area.LSAs.Find(key)

	nbrs := e.fullNbrs(area, iface)
	if iface.State&state.IfaceStateDR == 0 || len(nbrs) == 0 {
		e.flushSelf(self, old)
		return
	}

	set := make(prefixSet)
	for _, n := range nbrs {
		set.addLink(iface.LSAs.Find(lsa.Key{Type: lsa.TypeLink, ID: n.IfaceID, AdvRouter: n.RouterID}))
	}
	iface.LSAs.AscendAdv(lsa.TypeLink, e.RouterID, func(v *lsdb.Vertex) bool {
		set.addLink(v)
		return true
	})
	if len(set) == 0 {
		e.flushSelf(self, old)
		return
	}

	l := e.newSelfLSA(iface.Index, &lsa.IntraAreaPrefix{
		RefType:      lsa.TypeNetwork,
		RefID:        iface.Index,
		RefAdvRouter: e.RouterID,
		Prefixes:     set.sorted(),
	})
	e.lsaMerge(self, l, old)
}

// origIntraRtr originates the router referenced Intra-Area-Prefix LSA
// carrying the prefixes of every non-transit link of area.
func (e *Engine) origIntraRtr(area *state.Area, self *state.Neighbor) {
	key := lsa.Key{Type: lsa.TypeIntraAreaPrefix, ID: 0, AdvRouter: e.RouterID}
	old := area.LSAs.Find(key)

	set := make(prefixSet)
	for _, idx := range area.Ifaces {
		iface := e.Iface(idx)
		if iface == nil || !iface.Up || iface.State&state.IfaceStateDown != 0 {
			continue
		}
		switch {
		case iface.State&state.IfaceStateLoopback != 0, iface.Type == state.IfacePointToMultipoint:
			// host routes to the local addresses
			for _, a := range iface.Addrs {
				if a.Addr().IsLinkLocalUnicast() {
					continue
				}
				set.add(netip.PrefixFrom(a.Addr(), 128), lsa.PrefixOptLA, 0)
			}
		case iface.Type.Multiaccess() && len(e.fullNbrs(area, iface)) > 0:
			// transit link, announced by the designated router
		default:
			for _, a := range iface.Addrs {
				if a.Addr().IsLinkLocalUnicast() {
					continue
				}
				set.add(a, 0, iface.Metric)
			}
		}
	}

	if len(set) == 0 {
		e.flushSelf(self, old)
		return
	}
	l := e.newSelfLSA(0, &lsa.IntraAreaPrefix{
		RefType:      lsa.TypeRouter,
		RefAdvRouter: e.RouterID,
		Prefixes:     set.sorted(),
	})
	e.lsaMerge(self, l, old)
}

// ifaceCovers reports whether p is one of the prefixes already announced
// through an interface address.
func (e *Engine) ifaceCovers(p netip.Prefix) bool {
	for _, iface := range e.Ifaces {
		for _, a := range iface.Addrs {
			if a.Addr().IsLinkLocalUnicast() {
				continue
			}
			if a.Bits() == p.Bits() && a.Masked() == p.Masked() {
				return true
			}
		}
	}
	return false
}

// redistributed splits a kernel route into the prefixes left once the
// excluded ranges are removed.
func (e *Engine) redistributed(kr imsg.KRoute) []netip.Prefix {
	if e.ifaceCovers(kr.Prefix) {
		return nil
	}
	if len(e.Redist.Exclude) == 0 {
		return []netip.Prefix{kr.Prefix.Masked()}
	}
	return state.SubtractPrefix([]netip.Prefix{kr.Prefix.Masked()}, e.Redist.Exclude)
}

// asextLSA builds the AS-External LSA announcing kr. With withdraw set the
// instance is built at MaxAge, reusing the metric and tag of the current
// copy.
func (e *Engine) asextLSA(p netip.Prefix, kr imsg.KRoute, withdraw bool) (*lsa.LSA, *lsdb.Vertex) {
	body := &lsa.ASExternal{
		Metric:   kr.Metric,
		Prefix:   lsa.Prefix{Prefix: p},
		RouteTag: kr.ExtTag,
	}
	if body.Metric == 0 {
		body.Metric = e.Redist.Metric
	}
	if body.RouteTag == 0 {
		body.RouteTag = e.Redist.Tag
	}
	if e.Redist.Type != 1 {
		body.Flags |= lsa.ExternalFlagE
	}
	body.Metric &= lsa.LSInfinity

	id := e.AS.FindLSID(e.RouterID, body)
	old := e.AS.Find(lsa.Key{Type: lsa.TypeASExternal, ID: id, AdvRouter: e.RouterID})
	if withdraw && old != nil {
		if ob, ok := old.LSA.Body.(*lsa.ASExternal); ok {
			body = ob
		}
	}
	l := e.newSelfLSA(id, body)
	if withdraw {
		l.Age = lsa.MaxAge
	}
	l.Marshal()
	return l, old
}

// networkAdd announces a redistributed kernel route.
func (e *Engine) networkAdd(kr imsg.KRoute) {
	for _, p := range e.redistributed(kr) {
		l, old := e.asextLSA(p, kr, false)
		e.lsaMerge(e.self, l, old)
	}
}

// networkDel withdraws a redistributed kernel route.
func (e *Engine) networkDel(kr imsg.KRoute) {
	for _, p := range e.redistributed(kr) {
		l, old := e.asextLSA(p, kr, true)
		if old == nil || old.Deleted || old.LSA.Age >= lsa.MaxAge {
			continue
		}
		e.lsaMerge(e.self, l, old)
	}
}
