package core

import (
	"fmt"
	"time"

	"github.com/encodeous/ospf6rde/lsdb"
	"github.com/encodeous/ospf6rde/perf"
	"github.com/encodeous/ospf6rde/state"
)

type spfState int

const (
	spfIdle spfState = iota
	spfDelay
	spfHold
	spfHoldQueue
)

func (s spfState) String() string {
	switch s {
	case spfIdle:
		return "IDLE"
	case spfDelay:
		return "DELAY"
	case spfHold:
		return "HOLD"
	case spfHoldQueue:
		return "HOLDQUEUE"
	default:
		return fmt.Sprintf("spfState(%d)", int(s))
	}
}

// startSpfTimer requests a recomputation. Requests are coalesced by the
// delay timer, a request during the hold time runs once the hold expires.
func (e *Engine) startSpfTimer() {
	switch e.spf {
	case spfIdle:
		e.spfTimer = e.Clock.AfterFunc(e.SpfDelay, e.spfTimeout)
		e.spf = spfDelay
	case spfHold:
		e.spf = spfHoldQueue
	case spfDelay, spfHoldQueue:
	}
}

func (e *Engine) startSpfHoldTimer() {
	if e.spf != spfDelay {
		panic(fmt.Sprintf("spf hold timer started in state %s", e.spf))
	}
	e.spfTimer = e.Clock.AfterFunc(e.SpfHold, e.spfTimeout)
	e.spf = spfHold
}

func (e *Engine) spfTimeout() {
	e.spfTimer = nil
	switch e.spf {
	case spfIdle:
		panic("spf timer fired in state IDLE")
	case spfHoldQueue:
		e.spf = spfDelay
		e.runSpf()
		e.startSpfHoldTimer()
	case spfDelay:
		e.runSpf()
		e.startSpfHoldTimer()
	case spfHold:
		e.spf = spfIdle
	}
}

// runSpf recomputes every dirty area and the external routes, then brings
// the forwarding table in line with the RIB.
func (e *Engine) runSpf() {
	start := time.Now()
	for _, area := range e.Areas {
		if !area.Dirty {
			continue
		}
		e.rtInvalidate(area)
		e.spfCalc(area)
		area.LSAs.Ascend(func(v *lsdb.Vertex) bool {
			e.rtCalc(v, area)
			return true
		})
		area.Dirty = false
	}

	e.rtInvalidate(nil)
	e.AS.Ascend(func(v *lsdb.Vertex) bool {
		e.asextCalc(v)
		return true
	})

	for _, r := range e.Rib.Routes() {
		for _, area := range e.Areas {
			e.summaryUpdate(r, area)
		}
		if r.DType != DestNetwork {
			continue
		}
		if r.Invalid {
			e.sendDeleteKroute(r)
		} else {
			e.sendChangeKroute(r, false)
		}
	}
	e.root = nil
	e.SpfRuns++
	perf.SpfRuns.Add(1)
	perf.SpfDuration.Add(float64(time.Since(start).Microseconds()))
	if state.DBG_log_spf {
		e.Log.Debug("spf run complete", "routes", e.Rib.Len(), "elapsed", time.Since(start))
	}
}
