package core

import (
	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/lsdb"
)

// ReplyFunc sends one control reply record.
type ReplyFunc func(t imsg.Type, data []byte)

// HandleCtl answers a control query. Every answer is terminated by CtlEnd,
// unknown queries get CtlFail.
func (e *Engine) HandleCtl(m *imsg.Msg, reply ReplyFunc) {
	switch m.Type {
	case imsg.CtlShowDatabase:
		e.ctlDatabase(reply)
	case imsg.CtlShowRib:
		e.ctlRib(reply)
	case imsg.CtlShowSummary:
		e.ctlSummary(reply)
	default:
		reply(imsg.CtlFail, nil)
		return
	}
	reply(imsg.CtlEnd, nil)
}

func (e *Engine) ctlArea(reply ReplyFunc, idx int) {
	area := e.Areas[idx]
	nbrs := 0
	for _, h := range area.Nbrs {
		if n := e.Nbrs.Get(h); n != nil && !n.Self {
			nbrs++
		}
	}
	rec := imsg.CtlAreaRec{
		AreaID:     area.ID,
		NumSpfCalc: area.NumSpfCalc,
		NumLSA:     uint32(area.LSAs.Len()),
		NumNbr:     uint32(nbrs),
		NumIface:   uint32(len(area.Ifaces)),
		Stub:       area.Stub,
		Active:     area.Active > 0,
	}
	reply(imsg.CtlArea, rec.Marshal())
}

func (e *Engine) ctlDatabase(reply ReplyFunc) {
	now := e.Clock.Now()
	dump := func(area, ifindex uint32, scope lsa.Scope) func(v *lsdb.Vertex) bool {
		return func(v *lsdb.Vertex) bool {
			v.UpdateAge(now)
			rec := imsg.CtlLSARec{AreaID: area, IfIndex: ifindex, Scope: scope, LSA: v.LSA.Bytes()}
			reply(imsg.CtlLSA, rec.Marshal())
			return true
		}
	}
	for i, area := range e.Areas {
		e.ctlArea(reply, i)
		area.LSAs.Ascend(dump(area.ID, 0, lsa.ScopeArea))
		for _, idx := range area.Ifaces {
			if iface := e.Iface(idx); iface != nil {
				iface.LSAs.Ascend(dump(area.ID, idx, lsa.ScopeLink))
			}
		}
	}
	e.AS.Ascend(dump(0, 0, lsa.ScopeAS))
}

func (e *Engine) ctlRib(reply ReplyFunc) {
	now := e.Clock.Now()
	for _, r := range e.Rib.Routes() {
		if r.Invalid {
			continue
		}
		for _, nh := range r.ValidHops() {
			rec := imsg.CtlRibRec{
				DestType:  uint8(r.DType),
				PathType:  uint8(r.PType),
				Nexthop:   nh.Addr,
				IfIndex:   nh.IfIndex,
				AdvRouter: nh.AdvRouter,
				AreaID:    r.Area,
				Cost:      r.Cost,
				Cost2:     r.Cost2,
				ExtTag:    r.ExtTag,
				Uptime:    now.Sub(nh.Uptime),
			}
			if r.DType == DestRouter {
				rec.RouterID = r.RouterID
			} else {
				rec.Prefix = r.Prefix
			}
			if nh.Connected {
				rec.Flags |= imsg.RibConnected
			}
			reply(imsg.CtlRib, rec.Marshal())
		}
	}
}

func (e *Engine) ctlSummary(reply ReplyFunc) {
	rec := imsg.CtlSummaryRec{
		RouterID:  e.RouterID,
		SpfDelay:  e.SpfDelay,
		SpfHold:   e.SpfHold,
		NumExtLSA: uint32(e.AS.Len()),
		NumArea:   uint32(len(e.Areas)),
		Uptime:    e.Clock.Now().Sub(e.started),
	}
	reply(imsg.CtlSummary, rec.Marshal())
	for i := range e.Areas {
		e.ctlArea(reply, i)
	}
}
