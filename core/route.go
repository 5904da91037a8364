package core

import (
	"encoding/binary"
	"net/netip"

	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/lsdb"
	"github.com/encodeous/ospf6rde/state"
)

// rtUpdate offers a path to the RIB. Paths of a better kind or lower cost
// replace the entry, equal paths add their next hops to it.
func (e *Engine) rtUpdate(prefix netip.Prefix, vnh []lsdb.NextHop, vtype lsa.Type, cost, cost2, area, advRtr uint32,
	ptype PathType, dtype DestType, flags uint8, tag uint32) {
	if len(vnh) == 0 {
		return
	}
	prefix = prefix.Masked()
	rte := e.Rib.Find(prefix, dtype)
	if rte == nil {
		rte = &RouteNode{
			Prefix: prefix,
			DType:  dtype,
			PType:  ptype,
			Cost:   cost,
			Cost2:  cost2,
			Area:   area,
			Flags:  flags,
			ExtTag: tag,
		}
		if dtype == DestRouter {
			a := prefix.Addr().As16()
			rte.RouterID = binary.BigEndian.Uint32(a[12:])
		}
		e.rtNexthopAdd(rte, vnh, vtype, advRtr)
		e.Rib.insert(rte)
		return
	}

	better, equal := false, false
	switch {
	case rte.Invalid:
		better = true
	case ptype < rte.PType:
		better = true
	case ptype == rte.PType:
		switch ptype {
		case PathIntraArea, PathInterArea:
			if cost < rte.Cost {
				better = true
			} else if cost == rte.Cost && rte.Area == area {
				equal = true
			}
		case PathType1Ext:
			if cost < rte.Cost {
				better = true
			} else if cost == rte.Cost {
				equal = true
			}
		case PathType2Ext:
			if cost2 < rte.Cost2 {
				better = true
			} else if cost2 == rte.Cost2 && cost < rte.Cost {
				better = true
			} else if cost2 == rte.Cost2 && cost == rte.Cost {
				equal = true
			}
		}
	}

	if better {
		for _, nh := range rte.NextHops {
			nh.Invalid = true
		}
		rte.Area = area
		rte.Cost = cost
		rte.Cost2 = cost2
		rte.PType = ptype
		rte.Flags = flags
		rte.ExtTag = tag
	}
	if better || equal {
		e.rtNexthopAdd(rte, vnh, vtype, advRtr)
	}
	if state.DBG_log_rib {
		e.Log.Debug("rt update", "route", rte, "better", better, "equal", equal)
	}
}

func (e *Engine) rtNexthopAdd(r *RouteNode, vnh []lsdb.NextHop, vtype lsa.Type, advRtr uint32) {
	for _, vn := range vnh {
		connected := (vtype == lsa.TypeNetwork && vn.Prev != nil && vn.Prev == e.root) ||
			!vn.Addr.IsValid() || vn.Addr.IsUnspecified()
		var found *RouteNextHop
		for _, rn := range r.NextHops {
			if rn.Addr == vn.Addr && rn.IfIndex == vn.IfIndex {
				found = rn
				break
			}
		}
		if found == nil {
			found = &RouteNextHop{
				Addr:    vn.Addr,
				IfIndex: vn.IfIndex,
				Uptime:  e.Clock.Now(),
			}
			r.NextHops = append(r.NextHops, found)
		}
		found.AdvRouter = advRtr
		found.Connected = connected
		found.Invalid = false
		r.Invalid = false
	}
}

// rtInvalidate marks the routes of one area, or every external route when
// area is nil, as invalid ahead of their recomputation. Next hops that were
// already invalid are dropped together with routes left without any.
func (e *Engine) rtInvalidate(area *state.Area) {
	for _, r := range e.Rib.Routes() {
		if area == nil {
			if !r.PType.External() {
				continue
			}
		} else {
			if r.PType.External() || r.Area != area.ID {
				continue
			}
		}
		r.Invalid = true
		kept := r.NextHops[:0]
		for _, nh := range r.NextHops {
			if nh.Invalid {
				continue
			}
			nh.Invalid = true
			kept = append(kept, nh)
		}
		clear(r.NextHops[len(kept):])
		r.NextHops = kept
		if len(r.NextHops) == 0 {
			e.Rib.remove(r)
		}
	}
}

// rtFlushArea withdraws and drops the routes of an area that no longer
// exists. No later SPF run would touch them.
func (e *Engine) rtFlushArea(id uint32) {
	for _, r := range e.Rib.Routes() {
		if r.PType.External() || r.Area != id {
			continue
		}
		if r.DType == DestNetwork {
			e.sendDeleteKroute(r)
		}
		e.Rib.remove(r)
	}
}

// rtCalc installs the destinations described by one vertex of an area
// after SPF has run.
func (e *Engine) rtCalc(v *lsdb.Vertex, area *state.Area) {
	now := e.Clock.Now()
	if v.UpdateAge(now) >= lsa.MaxAge {
		return
	}
	switch body := v.LSA.Body.(type) {
	case *lsa.Router:
		if v.Cost >= lsa.LSInfinity || len(v.NextHops) == 0 {
			return
		}
		// only border and AS boundary routers are needed as destinations
		if body.Flags&(lsa.RouterFlagB|lsa.RouterFlagE) == 0 {
			return
		}
		e.rtUpdate(RouterPrefix(v.Key.AdvRouter), v.NextHops, v.Key.Type, v.Cost, 0, area.ID, v.Key.AdvRouter,
			PathIntraArea, DestRouter, body.Flags, 0)
	case *lsa.IntraAreaPrefix:
		var (
			w     *lsdb.Vertex
			flags uint8
		)
		switch body.RefType {
		case lsa.TypeRouter:
			w = e.findRouter(area, body.RefAdvRouter)
			if w == nil {
				e.Log.Warn("intra-area-prefix lsa references non-existent router", "lsa", v.Key, "router", lsa.IDString(body.RefAdvRouter))
				return
			}
			flags = w.LSA.Body.(*lsa.Router).Flags
		case lsa.TypeNetwork:
			w = area.LSAs.Find(lsa.Key{Type: lsa.TypeNetwork, ID: body.RefID, AdvRouter: body.RefAdvRouter})
			if w == nil {
				e.Log.Warn("intra-area-prefix lsa references non-existent network", "lsa", v.Key, "id", body.RefID)
				return
			}
		default:
			e.Log.Warn("intra-area-prefix lsa has invalid reference type", "lsa", v.Key, "ref", body.RefType)
			return
		}
		if w.Cost >= lsa.LSInfinity || len(w.NextHops) == 0 {
			return
		}
		for _, p := range body.Prefixes {
			if p.Options&lsa.PrefixOptNU != 0 {
				continue
			}
			e.rtUpdate(p.Prefix, w.NextHops, v.Key.Type, w.Cost+uint32(p.Aux), 0, area.ID, w.Key.AdvRouter,
				PathIntraArea, DestNetwork, flags, 0)
		}
	case *lsa.InterAreaPrefix:
		if v.Self {
			return
		}
		w := e.findRouter(area, v.Key.AdvRouter)
		if w == nil || w.Cost >= lsa.LSInfinity {
			return
		}
		if body.Metric >= lsa.LSInfinity || body.Prefix.Options&lsa.PrefixOptNU != 0 {
			return
		}
		e.rtUpdate(body.Prefix.Prefix, w.NextHops, v.Key.Type, w.Cost+body.Metric, 0, area.ID, v.Key.AdvRouter,
			PathInterArea, DestNetwork, 0, 0)
	case *lsa.InterAreaRouter:
		if v.Self {
			return
		}
		w := e.findRouter(area, v.Key.AdvRouter)
		if w == nil || w.Cost >= lsa.LSInfinity {
			return
		}
		if body.Metric >= lsa.LSInfinity {
			return
		}
		e.rtUpdate(RouterPrefix(body.DestRouterID), w.NextHops, v.Key.Type, w.Cost+body.Metric, 0, area.ID, v.Key.AdvRouter,
			PathInterArea, DestRouter, 0, 0)
	}
}

// asextCalc resolves one AS-External LSA against the routes computed for
// the areas.
func (e *Engine) asextCalc(v *lsdb.Vertex) {
	now := e.Clock.Now()
	ext, ok := v.LSA.Body.(*lsa.ASExternal)
	if !ok {
		return
	}
	if v.UpdateAge(now) >= lsa.MaxAge || ext.Metric >= lsa.LSInfinity {
		return
	}
	if v.Self {
		return
	}
	var r *RouteNode
	fwd := ext.ForwardingAddress
	if fwd.IsValid() && !fwd.IsUnspecified() {
		r = e.Rib.LookupAddr(fwd)
	} else {
		fwd = netip.Addr{}
		r = e.Rib.LookupRouter(v.Key.AdvRouter)
	}
	if r == nil {
		return
	}
	if ext.Prefix.Options&lsa.PrefixOptNU != 0 {
		return
	}

	var (
		cost, cost2 uint32
		ptype       PathType
	)
	if ext.Type2() {
		ptype = PathType2Ext
		cost = r.Cost
		cost2 = ext.Metric
	} else {
		ptype = PathType1Ext
		cost = r.Cost + ext.Metric
	}

	v.NextHops = v.NextHops[:0]
	for _, rn := range r.NextHops {
		if rn.Invalid {
			continue
		}
		addr := rn.Addr
		// a forwarding address on a directly attached link is the next hop
		if rn.Connected && r.DType == DestNetwork && fwd.IsValid() {
			addr = fwd
		}
		v.AddNextHop(lsdb.NextHop{Addr: addr, IfIndex: rn.IfIndex})
	}
	e.rtUpdate(ext.Prefix.Prefix, v.NextHops, v.Key.Type, cost, cost2, 0, v.Key.AdvRouter,
		ptype, DestNetwork, 0, ext.RouteTag)
}
