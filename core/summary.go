package core

import (
	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/state"
)

// summaryUpdate would announce a route into the areas it was not learned
// from when this router is an area border router.
func (e *Engine) summaryUpdate(r *RouteNode, area *state.Area) {
	if r.Invalid || r.Area == area.ID || r.PType.External() {
		return
	}
	self := e.areaSelf(area)
	if self == nil {
		return
	}
	l := e.origSumLSA(r, area)
	if l == nil {
		return
	}
	e.lsaMerge(self, l, area.LSAs.Find(l.Key()))
}

// origSumLSA builds the Inter-Area-Prefix or Inter-Area-Router LSA that
// summarizes r into area.
//
// Summary origination is not implemented, no summary LSA is ever built.
// Inter-area routes learned from other border routers are still
// installed.
func (e *Engine) origSumLSA(r *RouteNode, area *state.Area) *lsa.LSA {
	return nil
}
