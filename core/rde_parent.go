package core

import (
	"fmt"
	"slices"

	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/perf"
	"github.com/encodeous/ospf6rde/state"
)

// reconf stages a configuration reload until ReconfEnd arrives.
type reconf struct {
	conf  imsg.Conf
	areas []imsg.AreaConf
}

// HandleParent processes one message from the privileged parent.
func (e *Engine) HandleParent(m *imsg.Msg) error {
	perf.ParentMsgs.Add(1)
	switch m.Type {
	case imsg.NetworkAdd, imsg.NetworkDel:
		kr, err := imsg.DecodeKRoute(m)
		if err != nil {
			return err
		}
		if m.Type == imsg.NetworkAdd {
			e.networkAdd(kr)
		} else {
			e.networkDel(kr)
		}
	case imsg.KRouteGet:
		kr, err := imsg.DecodeKRoute(m)
		if err != nil {
			return err
		}
		if r := e.Rib.Find(kr.Prefix, DestNetwork); r != nil && !r.Invalid {
			e.sendChangeKroute(r, true)
		} else {
			e.deleteKroute(kr)
		}
	case imsg.IfaceAdd:
		d, err := imsg.DecodeIfaceDesc(m)
		if err != nil {
			return err
		}
		return e.ifaceAdd(d)
	case imsg.IfaceDelete:
		idx, err := imsg.DecodeUint32(m)
		if err != nil {
			return err
		}
		return e.ifaceDelete(idx)
	case imsg.IfaceAddrNew, imsg.IfaceAddrDel:
		a, err := imsg.DecodeIfaceAddr(m)
		if err != nil {
			return err
		}
		return e.ifaceAddr(a, m.Type == imsg.IfaceAddrNew)
	case imsg.ReconfConf:
		c, err := imsg.DecodeConf(m)
		if err != nil {
			return err
		}
		e.reconf = &reconf{conf: c}
	case imsg.ReconfArea:
		a, err := imsg.DecodeAreaConf(m)
		if err != nil {
			return err
		}
		if e.reconf == nil {
			return fmt.Errorf("%s without %s", imsg.ReconfArea, imsg.ReconfConf)
		}
		e.reconf.areas = append(e.reconf.areas, a)
	case imsg.ReconfEnd:
		if e.reconf == nil {
			return fmt.Errorf("%s without %s", imsg.ReconfEnd, imsg.ReconfConf)
		}
		e.mergeConfig(e.reconf)
		e.reconf = nil
	default:
		e.Log.Debug("unexpected message from parent", "type", m.Type)
	}
	return nil
}

func (e *Engine) ifaceAdd(d imsg.IfaceDesc) error {
	area := e.Area(d.AreaID)
	if area == nil {
		return fmt.Errorf("interface %s: unknown area %s", d.Name, lsa.IDString(d.AreaID))
	}
	iface := e.Iface(d.IfIndex)
	if iface == nil {
		iface = state.NewInterface(d.IfIndex, d.Name, area.ID, state.IfaceType(d.Type))
		e.Ifaces[iface.Index] = iface
	} else if iface.AreaID != area.ID {
		return fmt.Errorf("interface %s moved from area %s to %s", d.Name, lsa.IDString(iface.AreaID), lsa.IDString(area.ID))
	}
	iface.Name = d.Name
	iface.Type = state.IfaceType(d.Type)
	iface.Passive = d.Passive
	iface.Up = d.Up
	iface.State = state.IfaceState(d.State)
	if d.Metric != 0 {
		iface.Metric = d.Metric
	}
	area.AddIface(iface.Index)
	e.Log.Info("interface added", "iface", iface.Name, "ifindex", iface.Index, "area", lsa.IDString(area.ID))
	e.origIntraAreaPrefix(area)
	return nil
}

func (e *Engine) ifaceDelete(idx uint32) error {
	iface := e.Iface(idx)
	if iface == nil {
		return fmt.Errorf("interface delete: unknown interface %d", idx)
	}
	iface.LSAs.Clear()
	delete(e.Ifaces, idx)
	e.Log.Info("interface deleted", "iface", iface.Name, "ifindex", idx)
	if area := e.Area(iface.AreaID); area != nil {
		area.DelIface(idx)
		area.Dirty = true
		e.startSpfTimer()
		e.origIntraAreaPrefix(area)
	}
	return nil
}

func (e *Engine) ifaceAddr(a imsg.IfaceAddr, add bool) error {
	iface := e.Iface(a.IfIndex)
	if iface == nil {
		return fmt.Errorf("interface address %s: unknown interface %d", a.Prefix, a.IfIndex)
	}
	var changed bool
	if add {
		changed = iface.AddAddr(a.Prefix)
	} else {
		changed = iface.DelAddr(a.Prefix)
	}
	if !changed {
		return nil
	}
	if area := e.Area(iface.AreaID); area != nil {
		e.origIntraAreaPrefix(area)
	}
	return nil
}

// mergeConfig applies a staged reload. The router id cannot change at
// runtime.
func (e *Engine) mergeConfig(rc *reconf) {
	if rc.conf.RouterID != e.RouterID {
		e.Log.Warn("router id change requires a restart", "current", lsa.IDString(e.RouterID), "new", lsa.IDString(rc.conf.RouterID))
	}
	e.SpfDelay = rc.conf.SpfDelay
	e.SpfHold = rc.conf.SpfHold
	e.Redist.Metric = rc.conf.RedistMetric
	e.Redist.Tag = rc.conf.RedistTag
	e.Redist.Type = rc.conf.RedistType

	for _, ac := range rc.areas {
		area := e.Area(ac.AreaID)
		if area == nil {
			e.AddArea(ac.AreaID, ac.Stub)
			e.Log.Info("area added", "area", lsa.IDString(ac.AreaID))
			continue
		}
		if area.Stub != ac.Stub {
			area.Stub = ac.Stub
			area.Dirty = true
			e.startSpfTimer()
			e.Log.Info("area stub flag changed", "area", lsa.IDString(area.ID), "stub", ac.Stub)
		}
	}

	for _, area := range slices.Clone(e.Areas) {
		if slices.ContainsFunc(rc.areas, func(ac imsg.AreaConf) bool { return ac.AreaID == area.ID }) {
			continue
		}
		if len(area.Ifaces) > 0 || len(area.Nbrs) > 0 {
			e.Log.Warn("area still in use, not removed", "area", lsa.IDString(area.ID))
			continue
		}
		area.LSAs.Clear()
		e.Areas = slices.DeleteFunc(e.Areas, func(a *state.Area) bool { return a == area })
		e.rtFlushArea(area.ID)
		e.startSpfTimer()
		e.Log.Info("area removed", "area", lsa.IDString(area.ID))
	}
}
