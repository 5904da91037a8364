package core

import (
	"time"

	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/lsdb"
	"github.com/encodeous/ospf6rde/perf"
	"github.com/encodeous/ospf6rde/state"
)

// lsaCheck decodes and validates an LSA received from n. A nil result means
// the LSA has to be dropped.
func (e *Engine) lsaCheck(n *state.Neighbor, raw []byte) *lsa.LSA {
	l, err := lsa.Parse(raw)
	if err != nil {
		e.Log.Warn("dropping invalid lsa", "nbr", n, "error", err)
		return nil
	}
	area := e.nbrArea(n)
	if l.Type.Scope() == lsa.ScopeAS && area != nil && area.Stub {
		e.Log.Warn("dropping as-external lsa received in stub area", "nbr", n, "lsa", l.Key(), "area", lsa.IDString(area.ID))
		return nil
	}
	if l.Type.Scope() == lsa.ScopeLink && e.Iface(n.IfIndex) == nil {
		e.Log.Warn("dropping link lsa from neighbor without interface", "nbr", n, "lsa", l.Key())
		return nil
	}
	if l.Age == lsa.MaxAge && !n.Self && e.find(n, l.Key()) == nil && !e.areaSyncing(area) {
		// nothing to flush, acknowledge directly
		e.Out.ToEngine(imsg.LSAck, n.PeerID, imsg.EncodeHeaders(l.Header))
		return nil
	}
	return l
}

// checkHeader validates a header announced in a database description.
func (e *Engine) checkHeader(n *state.Neighbor, h *lsa.Header) bool {
	if !h.Type.Known() {
		e.Log.Warn("unknown lsa type in database description", "nbr", n, "type", h.Type)
		return false
	}
	if h.Type.Scope() == lsa.ScopeAS {
		if area := e.nbrArea(n); area != nil && area.Stub {
			e.Log.Warn("as-external lsa announced in stub area", "nbr", n, "lsa", h.Key())
			return false
		}
	}
	if h.Age > lsa.MaxAge || h.SeqNum == lsa.ReservedSequenceNumber {
		e.Log.Warn("bad lsa header in database description", "nbr", n, "lsa", h)
		return false
	}
	return true
}

// lsaSelf reports whether a received LSA claims to be originated by this
// router.
func (e *Engine) lsaSelf(n *state.Neighbor, l *lsa.LSA) bool {
	return !n.Self && l.AdvRouter == e.RouterID
}

// lsaSelfConflict deals with a newer copy of one of our own LSAs. If we
// still originate it our instance is re-originated past the received
// sequence number, otherwise the received copy is flushed.
func (e *Engine) lsaSelfConflict(n *state.Neighbor, l *lsa.LSA, v *lsdb.Vertex) {
	if v == nil {
		self := e.selfFor(n, l.Type)
		if self == nil {
			return
		}
		dummy := l.Clone()
		dummy.Age = lsa.MaxAge
		// added as not freshly originated, the timeout handler refloods it
		e.lsaAdd(self, dummy)
		return
	}
	v.LSA.SeqNum = l.SeqNum
	e.lsaRefresh(v)
}

// lsaAdd installs l as received from n. It reports whether the installation
// is delayed because a deleted instance of the LSA is still held.
func (e *Engine) lsaAdd(n *state.Neighbor, l *lsa.LSA) bool {
	area := e.nbrArea(n)
	s := e.nbrStore(n, l.Type)
	if s == nil {
		e.Log.Warn("no scope for lsa", "nbr", n, "lsa", l.Key())
		return false
	}
	now := e.Clock.Now()
	v := lsdb.NewVertex(l, now)
	v.PeerID = n.PeerID
	v.Self = n.Self
	if area != nil {
		v.Area = area.ID
	}
	if l.Type.Scope() == lsa.ScopeLink {
		v.IfIndex = n.IfIndex
	}

	old := s.Find(v.Key)
	if old != nil && old.Deleted && old.Timer != nil {
		// the hold time of the deleted instance has not expired yet
		remaining := old.Expiry.Sub(now)
		old.StopTimer()
		v.Deleted = true
		s.Insert(v)
		e.lsaTimer(v, max(remaining, 0))
		return true
	}
	changed := old == nil || !lsa.Equal(old.LSA, l)
	if old != nil {
		old.StopTimer()
	}
	s.Insert(v)

	if changed {
		if l.Type == lsa.TypeLink && area != nil {
			e.origIntraAreaPrefix(area)
		}
		if l.Type != lsa.TypeASExternal && area != nil {
			area.Dirty = true
		}
		e.startSpfTimer()
	}

	if n.Self && l.Age == lsa.DefaultAge {
		e.lsaTimer(v, state.LSRefreshTime)
	} else {
		e.lsaTimer(v, time.Duration(lsa.MaxAge-int(l.Age))*time.Second)
	}
	return false
}

// lsaDel marks an instance deleted. It is kept for MinLSInterval so that
// an older copy arriving late is not installed again.
func (e *Engine) lsaDel(n *state.Neighbor, k lsa.Key) {
	v := e.find(n, k)
	if v == nil {
		return
	}
	v.Deleted = true
	v.UpdateAge(e.Clock.Now())
	v.LSA.Age = lsa.MaxAge
	e.lsaTimer(v, state.MinLSInterval)
}

// lsaTimer (re)arms the timeout of a vertex.
func (e *Engine) lsaTimer(v *lsdb.Vertex, d time.Duration) {
	v.StopTimer()
	v.Expiry = e.Clock.Now().Add(d)
	v.Timer = e.Clock.AfterFunc(d, func() {
		v.Timer = nil
		e.lsaTimeout(v)
	})
}

func (e *Engine) vertexStore(v *lsdb.Vertex) *lsdb.Store {
	return e.store(v.Key.Type, e.Area(v.Area), e.Iface(v.IfIndex))
}

func (e *Engine) lsaTimeout(v *lsdb.Vertex) {
	now := e.Clock.Now()
	v.UpdateAge(now)

	if v.Deleted {
		if v.LSA.Age >= lsa.MaxAge {
			e.lsaFree(v)
			return
		}
		// a newer instance arrived during the hold time
		v.Deleted = false
		area := e.Area(v.Area)
		if v.Key.Type == lsa.TypeLink && area != nil {
			e.origIntraAreaPrefix(area)
		}
		if v.Key.Type != lsa.TypeASExternal && area != nil {
			area.Dirty = true
		}
		e.startSpfTimer()
		e.flood(v)
		if v.Self {
			e.lsaTimer(v, state.LSRefreshTime)
		} else {
			e.lsaTimer(v, time.Duration(lsa.MaxAge-int(v.LSA.Age))*time.Second)
		}
		return
	}

	if v.Self && v.LSA.Age < lsa.MaxAge {
		e.lsaRefresh(v)
	}
	e.flood(v)
}

// lsaFree removes a deleted vertex. An instance that was flushed because
// its sequence number wrapped is originated again from the start.
func (e *Engine) lsaFree(v *lsdb.Vertex) {
	s := e.vertexStore(v)
	if s == nil || s.Find(v.Key) != v {
		return
	}
	v.StopTimer()
	s.Delete(v.Key)
	if !v.Wrap {
		return
	}
	n := e.Nbrs.ByPeer(v.PeerID)
	if n == nil || !n.Self {
		return
	}
	l := v.LSA.Clone()
	l.Age = lsa.DefaultAge
	l.SeqNum = lsa.InitialSequenceNumber
	l.Marshal()
	e.Log.Info("re-originating lsa after sequence number wrap", "lsa", v.Key)
	e.lsaMerge(n, l, nil)
}

// lsaRefresh re-originates a self-originated instance with the next
// sequence number.
func (e *Engine) lsaRefresh(v *lsdb.Vertex) {
	now := e.Clock.Now()
	if v.Self && v.LSA.Age >= lsa.MaxAge {
		// being flushed
		v.LSA.Age = lsa.MaxAge
	} else {
		v.LSA.Age = lsa.DefaultAge
	}
	v.Stamp = now
	v.Changed = now
	if v.LSA.SeqNum == lsa.MaxSequenceNumber {
		// flush first, the instance is originated again with the initial
		// sequence number once it is gone
		v.LSA.Age = lsa.MaxAge
		v.Wrap = true
		v.LSA.Marshal()
		v.StopTimer()
		return
	}
	v.LSA.SeqNum++
	v.LSA.Marshal()
	e.lsaTimer(v, state.LSRefreshTime)
}

// lsaMerge folds a freshly built self-originated LSA into the database.
// The sequence number is bumped by the refresh that follows.
func (e *Engine) lsaMerge(n *state.Neighbor, l *lsa.LSA, v *lsdb.Vertex) {
	if v == nil {
		if e.lsaAdd(n, l) {
			return
		}
		e.Out.ToEngine(imsg.LSFlood, n.PeerID, l.Bytes())
		if nv := e.find(n, l.Key()); nv != nil {
			nv.Flooded = true
		}
		return
	}

	l.SeqNum = v.LSA.SeqNum
	l.Marshal()
	if !v.Deleted && lsa.Equal(l, v.LSA) {
		return
	}

	now := e.Clock.Now()
	v.SetLSA(l, now)
	v.Deleted = false
	v.Wrap = false
	v.Self = true
	v.PeerID = n.PeerID
	e.startSpfTimer()
	if l.Type != lsa.TypeASExternal {
		if area := e.nbrArea(n); area != nil {
			area.Dirty = true
		}
	}
	var d time.Duration
	if now.Sub(v.Changed) <= state.MinLSInterval {
		d = state.MinLSInterval
	}
	e.lsaTimer(v, d)
}

// flood hands the current instance of v to the adjacency engine.
func (e *Engine) flood(v *lsdb.Vertex) {
	v.UpdateAge(e.Clock.Now())
	if state.DBG_log_flood {
		e.Log.Debug("flood", "lsa", v.LSA.Header.String(), "peer", v.PeerID)
	}
	e.Out.ToEngine(imsg.LSFlood, v.PeerID, v.LSA.Bytes())
	v.Flooded = true
	perf.LSAsFlooded.Add(1)
}
