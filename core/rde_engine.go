package core

import (
	"encoding/binary"
	"fmt"

	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/lsdb"
	"github.com/encodeous/ospf6rde/perf"
	"github.com/encodeous/ospf6rde/state"
	"github.com/jellydator/ttlcache/v3"
)

// HandleEngine processes one message from the adjacency engine. A returned
// error is a local protocol violation and is fatal.
func (e *Engine) HandleEngine(m *imsg.Msg) error {
	perf.EngineMsgs.Add(1)
	switch m.Type {
	case imsg.NeighborUp:
		up, err := imsg.DecodeNbrUp(m)
		if err != nil {
			return err
		}
		return e.nbrUp(m.PeerID, up)
	case imsg.NeighborDown:
		e.nbrDown(m.PeerID)
		return nil
	case imsg.NeighborChange:
		st, err := imsg.DecodeUint32(m)
		if err != nil {
			return err
		}
		e.nbrChange(m.PeerID, state.NbrState(st))
		return nil
	case imsg.IfaceInfo:
		st, err := imsg.DecodeIfaceStatus(m)
		if err != nil {
			return err
		}
		return e.ifaceInfo(st)
	}

	n := e.Nbrs.ByPeer(m.PeerID)
	if n == nil {
		// the neighbor went away while the message was queued
		return nil
	}

	switch m.Type {
	case imsg.DBSnapshot:
		e.dbSnapshot(n)
	case imsg.DD:
		e.dbDescription(n, m.Data)
	case imsg.LSReq:
		e.lsRequest(n, m.Data)
	case imsg.LSUpd, imsg.LSSnap:
		l := e.lsaCheck(n, m.Data)
		if l == nil {
			return nil
		}
		perf.LSAsReceived.Add(1)
		e.lsUpdate(n, l)
	case imsg.LSMaxAge:
		if err := m.Expect(lsa.HeaderLen); err != nil {
			return err
		}
		h, err := lsa.DecodeHeader(m.Data)
		if err != nil {
			return fmt.Errorf("%s: %w", m.Type, err)
		}
		e.lsMaxAge(n, &h)
	default:
		e.Log.Debug("unexpected message from engine", "type", m.Type)
	}
	return nil
}

func (e *Engine) ifaceInfo(st imsg.IfaceStatus) error {
	iface := e.Iface(st.IfIndex)
	if iface == nil {
		return fmt.Errorf("interface info: unknown interface %d", st.IfIndex)
	}
	ns := state.IfaceState(st.State)
	if iface.State == ns && iface.Up == st.Up {
		return nil
	}
	iface.State = ns
	iface.Up = st.Up
	e.Log.Debug("interface state", "iface", iface.Name, "state", ns, "up", st.Up)
	if area := e.Area(iface.AreaID); area != nil {
		e.origIntraAreaPrefix(area)
	}
	return nil
}

// dbSnapshot sends every LSA visible to n. Instances at MaxAge are sent in
// full so that the neighbor learns about the pending flush.
func (e *Engine) dbSnapshot(n *state.Neighbor) {
	now := e.Clock.Now()
	send := func(v *lsdb.Vertex) bool {
		if v.Deleted {
			return true
		}
		if v.UpdateAge(now) >= lsa.MaxAge {
			e.Out.ToEngine(imsg.LSSnap, n.PeerID, v.LSA.Bytes())
		} else {
			e.Out.ToEngine(imsg.DBSnapshot, n.PeerID, imsg.EncodeHeaders(v.LSA.Header))
		}
		return true
	}
	if iface := e.Iface(n.IfIndex); iface != nil {
		iface.LSAs.Ascend(send)
	}
	area := e.nbrArea(n)
	if area != nil {
		area.LSAs.Ascend(send)
	}
	if area == nil || !area.Stub {
		e.AS.Ascend(send)
	}
	e.Out.ToEngine(imsg.DBEnd, n.PeerID, nil)
}

// dbDescription compares the announced headers with the database and
// requests every instance the neighbor has a newer copy of.
func (e *Engine) dbDescription(n *state.Neighbor, data []byte) {
	if len(data)%lsa.HeaderLen != 0 {
		e.Log.Warn("database description with trailing bytes", "nbr", n, "len", len(data))
	}
	for off := 0; off+lsa.HeaderLen <= len(data); off += lsa.HeaderLen {
		h, err := lsa.DecodeHeader(data[off:])
		if err != nil || !e.checkHeader(n, &h) {
			e.Out.ToEngine(imsg.DDBadLSA, n.PeerID, nil)
			return
		}
		v := e.find(n, h.Key())
		if v == nil || lsa.Compare(&h, &v.LSA.Header) > 0 {
			n.ReqAdd(h.Key())
			e.Out.ToEngine(imsg.DD, n.PeerID, imsg.EncodeHeaders(h))
		}
	}
	e.Out.ToEngine(imsg.DDEnd, n.PeerID, nil)
}

func (e *Engine) lsRequest(n *state.Neighbor, data []byte) {
	if len(data)%imsg.ReqLen != 0 {
		e.Log.Warn("ls request with trailing bytes", "nbr", n, "len", len(data))
	}
	now := e.Clock.Now()
	for off := 0; off+imsg.ReqLen <= len(data); off += imsg.ReqLen {
		b := data[off:]
		k := lsa.Key{
			Type:      lsa.Type(binary.BigEndian.Uint32(b[0:])),
			ID:        binary.BigEndian.Uint32(b[4:]),
			AdvRouter: binary.BigEndian.Uint32(b[8:]),
		}
		v := e.find(n, k)
		if v == nil {
			e.Log.Debug("ls request for unknown lsa", "nbr", n, "lsa", k)
			e.Out.ToEngine(imsg.LSBadReq, n.PeerID, nil)
			continue
		}
		v.UpdateAge(now)
		e.Out.ToEngine(imsg.LSUpd, n.PeerID, v.LSA.Bytes())
	}
}

// lsUpdate implements the reception of one LSA from n.
func (e *Engine) lsUpdate(n *state.Neighbor, l *lsa.LSA) {
	v := e.find(n, l.Key())
	if n.Self {
		e.lsaMerge(n, l, v)
		return
	}

	now := e.Clock.Now()
	var r int
	if v == nil {
		r = 1
	} else {
		v.UpdateAge(now)
		r = lsa.Compare(&l.Header, &v.LSA.Header)
	}

	switch {
	case r > 0:
		if v != nil && v.Flooded && now.Sub(v.Changed) < state.MinLSArrival {
			// arrived too soon after the previous instance
			return
		}
		n.ReqDel(l.Key())
		if e.lsaSelf(n, l) {
			// the received copy goes out first so the sender is acknowledged,
			// our own instance follows
			e.Out.ToEngine(imsg.LSFlood, n.PeerID, l.Bytes())
			e.lsaSelfConflict(n, l, v)
			if v != nil {
				e.flood(v)
			}
			return
		}
		if e.lsaAdd(n, l) {
			return
		}
		e.Out.ToEngine(imsg.LSFlood, n.PeerID, l.Bytes())
		if nv := e.find(n, l.Key()); nv != nil {
			nv.Flooded = true
		}
	case r < 0:
		if n.ReqExists(l.Key()) {
			e.Out.ToEngine(imsg.LSBadReq, n.PeerID, nil)
			return
		}
		if v.LSA.SeqNum == lsa.MaxSequenceNumber && v.LSA.Age >= lsa.MaxAge {
			// being flushed before a wrap, the neighbor gets it through flooding
			return
		}
		if now.Sub(v.Changed) < state.MinLSArrival {
			return
		}
		rk := replyKey{peer: n.PeerID, key: l.Key()}
		if item := e.replies.Get(rk); item != nil && now.Sub(item.Value()) < state.MinLSArrival {
			return
		}
		e.replies.Set(rk, now, ttlcache.DefaultTTL)
		e.Out.ToEngine(imsg.LSUpd, n.PeerID, v.LSA.Bytes())
	default:
		e.Out.ToEngine(imsg.LSAck, n.PeerID, imsg.EncodeHeaders(l.Header))
	}
}

// lsMaxAge is sent by the adjacency engine once a MaxAge instance has been
// acknowledged by every neighbor.
func (e *Engine) lsMaxAge(n *state.Neighbor, h *lsa.Header) {
	if e.areaSyncing(e.nbrArea(n)) {
		return
	}
	v := e.find(n, h.Key())
	if v == nil {
		return
	}
	v.UpdateAge(e.Clock.Now())
	if lsa.Compare(&v.LSA.Header, h) > 0 {
		return
	}
	e.lsaDel(n, h.Key())
}
