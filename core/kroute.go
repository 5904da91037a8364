package core

import (
	"slices"

	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/perf"
)

// kroutes lists the forwarding entries of a network route. Next hops on
// directly attached links are already present in the kernel.
func kroutes(r *RouteNode) []imsg.KRoute {
	var out []imsg.KRoute
	for _, nh := range r.NextHops {
		if nh.Invalid || nh.Connected {
			continue
		}
		out = append(out, imsg.KRoute{
			Prefix:  r.Prefix,
			Nexthop: nh.Addr,
			IfIndex: nh.IfIndex,
			ExtTag:  r.ExtTag,
			Metric:  r.Cost,
		})
	}
	return out
}

// sendChangeKroute installs r unless the same entries were announced
// already. force re-sends them regardless.
func (e *Engine) sendChangeKroute(r *RouteNode, force bool) {
	krs := kroutes(r)
	if len(krs) == 0 {
		// no usable next hop, the prefix is reachable on a local link
		e.sendDeleteKroute(r)
		return
	}
	if !force && slices.Equal(e.announced[r.Prefix], krs) {
		return
	}
	if err := e.Fib.Change(krs); err != nil {
		e.Log.Error("kroute change failed", "prefix", r.Prefix, "error", err)
		return
	}
	e.announced[r.Prefix] = krs
	perf.KRouteChanges.Add(1)
}

func (e *Engine) sendDeleteKroute(r *RouteNode) {
	if _, ok := e.announced[r.Prefix]; !ok {
		return
	}
	e.deleteKroute(imsg.KRoute{Prefix: r.Prefix})
}

func (e *Engine) deleteKroute(kr imsg.KRoute) {
	if err := e.Fib.Delete(kr); err != nil {
		e.Log.Error("kroute delete failed", "prefix", kr.Prefix, "error", err)
		return
	}
	delete(e.announced, kr.Prefix)
}
