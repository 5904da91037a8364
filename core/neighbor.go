package core

import (
	"fmt"
	"slices"

	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/state"
)

// areaSelf returns a neighbor record standing for this router inside area,
// nil if no interface of the area has been announced yet.
func (e *Engine) areaSelf(area *state.Area) *state.Neighbor {
	for _, h := range area.Nbrs {
		if n := e.Nbrs.Get(h); n != nil && n.Self {
			return n
		}
	}
	return nil
}

// selfFor picks the self neighbor owning the scope of an LSA of type t
// received from n.
func (e *Engine) selfFor(n *state.Neighbor, t lsa.Type) *state.Neighbor {
	switch t.Scope() {
	case lsa.ScopeAS:
		return e.self
	case lsa.ScopeLink:
		area := e.nbrArea(n)
		if area == nil {
			return nil
		}
		for _, h := range area.Nbrs {
			if s := e.Nbrs.Get(h); s != nil && s.Self && s.IfIndex == n.IfIndex {
				return s
			}
		}
		return nil
	default:
		area := e.nbrArea(n)
		if area == nil {
			return nil
		}
		return e.areaSelf(area)
	}
}

// areaSyncing reports whether a database exchange is running with any
// neighbor of area.
func (e *Engine) areaSyncing(area *state.Area) bool {
	if area == nil {
		return false
	}
	for _, h := range area.Nbrs {
		if n := e.Nbrs.Get(h); n != nil && n.State&state.NbrStateSyncing != 0 {
			return true
		}
	}
	return false
}

// areaTrack recounts the fully adjacent neighbors of area.
func (e *Engine) areaTrack(area *state.Area) {
	active := 0
	for _, h := range area.Nbrs {
		if n := e.Nbrs.Get(h); n != nil && !n.Self && n.Full() {
			active++
		}
	}
	if active != area.Active {
		e.Log.Info("area adjacency count changed", "area", lsa.IDString(area.ID), "active", active)
	}
	area.Active = active
}

func (e *Engine) nbrUp(peer uint32, up imsg.NbrUp) error {
	area := e.Area(up.AreaID)
	if area == nil {
		return fmt.Errorf("neighbor up: unknown area %s", lsa.IDString(up.AreaID))
	}
	if e.Iface(up.IfIndex) == nil {
		return fmt.Errorf("neighbor up: unknown interface %d", up.IfIndex)
	}
	n := &state.Neighbor{
		PeerID:   peer,
		RouterID: up.RouterID,
		AreaID:   up.AreaID,
		IfIndex:  up.IfIndex,
		IfaceID:  up.IfaceID,
		Addr:     up.Addr,
		State:    state.NbrStateDown,
		Self:     up.Self,
	}
	if up.Self {
		n.RouterID = e.RouterID
		n.State = state.NbrStateFull
	}
	if _, err := e.Nbrs.Add(n); err != nil {
		return fmt.Errorf("neighbor up: %w", err)
	}
	area.Nbrs = append(area.Nbrs, n.Handle)
	e.Log.Info("neighbor up", "nbr", n, "area", lsa.IDString(area.ID), "ifindex", n.IfIndex)
	return nil
}

func (e *Engine) nbrDown(peer uint32) {
	n := e.Nbrs.ByPeer(peer)
	if n == nil || n == e.self {
		return
	}
	full := n.Full()
	area := e.Area(n.AreaID)
	if area != nil {
		area.Nbrs = slices.DeleteFunc(area.Nbrs, func(h state.NbrHandle) bool {
			return h == n.Handle
		})
	}
	e.Nbrs.Remove(n.Handle)
	e.Log.Info("neighbor down", "nbr", n)
	if full && area != nil {
		e.areaTrack(area)
		e.origIntraAreaPrefix(area)
	}
}

func (e *Engine) nbrChange(peer uint32, st state.NbrState) {
	n := e.Nbrs.ByPeer(peer)
	if n == nil || n == e.self {
		return
	}
	wasFull := n.Full()
	n.State = st
	if n.Full() {
		n.ReqClear()
	}
	if wasFull == n.Full() {
		return
	}
	e.Log.Debug("neighbor state", "nbr", n, "state", st)
	if area := e.Area(n.AreaID); area != nil {
		e.areaTrack(area)
		e.origIntraAreaPrefix(area)
	}
}
