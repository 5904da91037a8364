package core

import (
	"container/heap"
	"fmt"
	"net/netip"

	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/lsdb"
	"github.com/encodeous/ospf6rde/state"
)

// candidates is the SPF frontier, a binary heap ordered by cost with router
// vertices ahead of network vertices of the same cost.
type candidates struct {
	items []*lsdb.Vertex
	index map[*lsdb.Vertex]int
}

func newCandidates() *candidates {
	return &candidates{index: make(map[*lsdb.Vertex]int)}
}

func (c *candidates) Len() int { return len(c.items) }

func (c *candidates) Less(i, j int) bool {
	a, b := c.items[i], c.items[j]
	if a.Cost != b.Cost {
		return a.Cost < b.Cost
	}
	return a.Key.Type == lsa.TypeRouter && b.Key.Type != lsa.TypeRouter
}

func (c *candidates) Swap(i, j int) {
	c.items[i], c.items[j] = c.items[j], c.items[i]
	c.index[c.items[i]] = i
	c.index[c.items[j]] = j
}

func (c *candidates) Push(x any) {
	v := x.(*lsdb.Vertex)
	c.index[v] = len(c.items)
	c.items = append(c.items, v)
}

func (c *candidates) Pop() any {
	n := len(c.items) - 1
	v := c.items[n]
	c.items[n] = nil
	c.items = c.items[:n]
	delete(c.index, v)
	return v
}

func (c *candidates) present(v *lsdb.Vertex) bool {
	_, ok := c.index[v]
	return ok
}

func (c *candidates) add(v *lsdb.Vertex) {
	heap.Push(c, v)
}

// fix restores the heap order after the cost of v decreased.
func (c *candidates) fix(v *lsdb.Vertex) {
	heap.Fix(c, c.index[v])
}

func (c *candidates) pop() *lsdb.Vertex {
	if len(c.items) == 0 {
		return nil
	}
	return heap.Pop(c).(*lsdb.Vertex)
}

// findRouter returns the first live Router-LSA fragment of a router.
func (e *Engine) findRouter(area *state.Area, rid uint32) *lsdb.Vertex {
	var out *lsdb.Vertex
	area.LSAs.AscendAdv(lsa.TypeRouter, rid, func(v *lsdb.Vertex) bool {
		if v.Deleted {
			return true
		}
		out = v
		return false
	})
	return out
}

// routerLinks concatenates the links of every live Router-LSA fragment
// originated by the router of v.
func routerLinks(area *state.Area, v *lsdb.Vertex) []lsa.RouterLink {
	var links []lsa.RouterLink
	area.LSAs.AscendAdv(lsa.TypeRouter, v.Key.AdvRouter, func(w *lsdb.Vertex) bool {
		if !w.Deleted {
			links = append(links, w.LSA.Body.(*lsa.Router).Links...)
		}
		return true
	})
	return links
}

func numLinks(area *state.Area, v *lsdb.Vertex) int {
	switch v.Key.Type {
	case lsa.TypeRouter:
		return len(routerLinks(area, v))
	case lsa.TypeNetwork:
		return v.LSA.NumLinks()
	}
	return 0
}

// linked checks that w describes a link back to v.
func linked(area *state.Area, w, v *lsdb.Vertex) bool {
	switch w.Key.Type {
	case lsa.TypeRouter:
		for _, l := range routerLinks(area, w) {
			switch v.Key.Type {
			case lsa.TypeRouter:
				if (l.Type == lsa.LinkPointToPoint || l.Type == lsa.LinkVirtual) && l.NbrRouterID == v.Key.AdvRouter {
					return true
				}
			case lsa.TypeNetwork:
				if l.Type == lsa.LinkTransit && l.NbrRouterID == v.Key.AdvRouter && l.NbrIfaceID == v.Key.ID {
					return true
				}
			default:
				panic(fmt.Sprintf("linked: invalid vertex type %s", v.Key.Type))
			}
		}
		return false
	case lsa.TypeNetwork:
		if v.Key.Type != lsa.TypeRouter {
			panic(fmt.Sprintf("linked: invalid vertex type %s", v.Key.Type))
		}
		for _, rid := range w.LSA.Body.(*lsa.Network).AttachedRouters {
			if rid == v.Key.AdvRouter {
				return true
			}
		}
		return false
	default:
		panic(fmt.Sprintf("linked: invalid lsa type %s", w.Key.Type))
	}
}

// spfCalc builds the shortest path tree of one area rooted at this router.
func (e *Engine) spfCalc(area *state.Area) {
	now := e.Clock.Now()
	area.LSAs.Ascend(func(v *lsdb.Vertex) bool {
		v.ResetSPF()
		return true
	})
	cand := newCandidates()

	v := e.findRouter(area, e.RouterID)
	e.root = v
	if v == nil {
		// no interface of the area is active
		return
	}
	area.Transit = false
	v.Cost = 0

	for v != nil {
		type edge struct {
			w    *lsdb.Vertex
			link *lsa.RouterLink
		}
		var edges []edge
		switch body := v.LSA.Body.(type) {
		case *lsa.Router:
			links := routerLinks(area, v)
			for i := range links {
				l := &links[i]
				var w *lsdb.Vertex
				switch l.Type {
				case lsa.LinkPointToPoint, lsa.LinkVirtual:
					w = e.findRouter(area, l.NbrRouterID)
				case lsa.LinkTransit:
					w = area.LSAs.Find(lsa.Key{Type: lsa.TypeNetwork, ID: l.NbrIfaceID, AdvRouter: l.NbrRouterID})
				default:
					panic(fmt.Sprintf("spf: invalid link type %d in %s", l.Type, v.Key))
				}
				edges = append(edges, edge{w, l})
			}
		case *lsa.Network:
			for _, rid := range body.AttachedRouters {
				edges = append(edges, edge{e.findRouter(area, rid), nil})
			}
		default:
			panic(fmt.Sprintf("spf: invalid lsa type %s", v.Key.Type))
		}

		for _, ed := range edges {
			w := ed.w
			if w == nil {
				continue
			}
			if w.MaxAged(now) {
				continue
			}
			if numLinks(area, w) == 0 {
				continue
			}
			if !linked(area, w, v) {
				if state.DBG_log_spf {
					e.Log.Debug("spf: vertices not linked", "v", v.Key, "w", w.Key)
				}
				continue
			}
			d := v.Cost
			if ed.link != nil {
				d += uint32(ed.link.Metric)
			}
			if cand.present(w) {
				if d > w.Cost {
					continue
				}
				if d < w.Cost {
					w.Cost = d
					w.NextHops = w.NextHops[:0]
					e.calcNexthop(area, w, v, ed.link)
					cand.fix(w)
				} else {
					// equal cost path
					e.calcNexthop(area, w, v, ed.link)
				}
			} else if w.Cost == lsa.LSInfinity && d < lsa.LSInfinity {
				w.Cost = d
				w.NextHops = w.NextHops[:0]
				e.calcNexthop(area, w, v, ed.link)
				cand.add(w)
			}
		}
		v = cand.pop()
	}
	area.NumSpfCalc++
	if state.DBG_log_spf {
		area.LSAs.Ascend(func(v *lsdb.Vertex) bool {
			if v.Cost < lsa.LSInfinity {
				e.Log.Debug("spf: vertex", "area", lsa.IDString(area.ID), "vertex", v, "nexthops", v.NextHops)
			}
			return true
		})
	}
}

// linkLocal returns the link-local address announced in a neighbor's
// Link-LSA on the given interface.
func (e *Engine) linkLocal(ifindex, nbrIfaceID, rid uint32) (netip.Addr, bool) {
	iface := e.Iface(ifindex)
	if iface == nil {
		e.Log.Warn("spf: interface not found", "ifindex", ifindex)
		return netip.Addr{}, false
	}
	link := iface.LSAs.Find(lsa.Key{Type: lsa.TypeLink, ID: nbrIfaceID, AdvRouter: rid})
	if link == nil || link.Deleted {
		e.Log.Warn("spf: link lsa missing", "iface", iface.Name, "id", nbrIfaceID, "adv", lsa.IDString(rid))
		return netip.Addr{}, false
	}
	return link.LSA.Body.(*lsa.Link).LinkLocal, true
}

// calcNexthop derives the next hops of dst reached from parent.
func (e *Engine) calcNexthop(area *state.Area, dst, parent *lsdb.Vertex, link *lsa.RouterLink) {
	if parent == e.root {
		switch dst.Key.Type {
		case lsa.TypeRouter:
			addr, ok := e.linkLocal(link.IfaceID, link.NbrIfaceID, dst.Key.AdvRouter)
			if !ok {
				return
			}
			dst.AddNextHop(lsdb.NextHop{Addr: addr, IfIndex: link.IfaceID, Prev: parent})
		case lsa.TypeNetwork:
			// directly attached transit network
			dst.AddNextHop(lsdb.NextHop{Addr: netip.IPv6Unspecified(), IfIndex: link.IfaceID, Prev: parent})
		default:
			panic(fmt.Sprintf("calc nexthop: invalid dst type %s", dst.Key.Type))
		}
		return
	}

	if parent.Key.Type == lsa.TypeNetwork && dst.Key.Type == lsa.TypeRouter {
		for _, vn := range parent.NextHops {
			if vn.Prev != e.root {
				dst.AddNextHop(lsdb.NextHop{Addr: vn.Addr, IfIndex: vn.IfIndex, Prev: parent})
				continue
			}
			// the network is attached to us, the neighbor's own link towards
			// it names the Link-LSA holding its address
			for _, l := range routerLinks(area, dst) {
				if l.Type != lsa.LinkTransit || l.NbrRouterID != parent.Key.AdvRouter || l.NbrIfaceID != parent.Key.ID {
					continue
				}
				addr, ok := e.linkLocal(vn.IfIndex, l.IfaceID, dst.Key.AdvRouter)
				if ok {
					dst.AddNextHop(lsdb.NextHop{Addr: addr, IfIndex: vn.IfIndex, Prev: parent})
				}
				break
			}
		}
		return
	}

	for _, vn := range parent.NextHops {
		dst.AddNextHop(lsdb.NextHop{Addr: vn.Addr, IfIndex: vn.IfIndex, Prev: parent})
	}
}
