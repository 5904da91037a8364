package core

import (
	"cmp"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"time"

	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/lsdb"
	"github.com/encodeous/ospf6rde/state"
	"github.com/jellydator/ttlcache/v3"
)

// Output delivers messages produced by the engine to its peers.
type Output interface {
	// ToEngine sends to the adjacency engine, peerID addresses a neighbor.
	ToEngine(t imsg.Type, peerID uint32, data []byte)
	// ToParent sends to the privileged parent process.
	ToParent(t imsg.Type, data []byte)
}

// FIB programs the forwarding entries computed by the engine.
type FIB interface {
	// Change installs or replaces every next hop of one prefix.
	Change(routes []imsg.KRoute) error
	Delete(route imsg.KRoute) error
}

// Clock abstracts time so that the engine can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) lsdb.Timer
}

type Redistribute struct {
	Exclude []netip.Prefix
	Metric  uint32
	Type    uint8
	Tag     uint32
}

type Conf struct {
	RouterID uint32
	SpfDelay time.Duration
	SpfHold  time.Duration
	Redist   Redistribute
}

type replyKey struct {
	peer uint32
	key  lsa.Key
}

// Engine is the route decision engine. It owns the link state database,
// the neighbor table and the RIB. None of its methods are safe for
// concurrent use, they run on the main loop.
type Engine struct {
	Conf
	Out   Output
	Fib   FIB
	Clock Clock
	Log   *slog.Logger

	Areas  []*state.Area
	Ifaces map[uint32]*state.Interface
	Nbrs   *state.Neighbors
	AS     *lsdb.Store
	Rib    *Rib

	// self originates the AS scoped LSAs
	self *state.Neighbor

	spf      spfState
	spfTimer lsdb.Timer
	// root is the vertex of this router in the area being computed
	root *lsdb.Vertex
	// SpfRuns counts the completed SPF timer runs.
	SpfRuns uint64

	// replies maps a neighbor and key to the Clock time of the last answer
	// to an older instance.
	replies   *ttlcache.Cache[replyKey, time.Time]
	announced map[netip.Prefix][]imsg.KRoute
	reconf    *reconf
	started   time.Time
}

func NewEngine(conf Conf, out Output, fib FIB, clock Clock, log *slog.Logger) *Engine {
	e := &Engine{
		Conf:      conf,
		Out:       out,
		Fib:       fib,
		Clock:     clock,
		Log:       log,
		Ifaces:    make(map[uint32]*state.Interface),
		Nbrs:      state.NewNeighbors(),
		AS:        lsdb.NewStore(),
		Rib:       NewRib(),
		announced: make(map[netip.Prefix][]imsg.KRoute),
		replies: ttlcache.New[replyKey, time.Time](
			ttlcache.WithTTL[replyKey, time.Time](state.MinLSArrival),
			ttlcache.WithDisableTouchOnHit[replyKey, time.Time](),
		),
		started: clock.Now(),
	}
	e.self = &state.Neighbor{
		PeerID:   state.NbrIDSelf,
		RouterID: conf.RouterID,
		State:    state.NbrStateFull,
		Self:     true,
	}
	if _, err := e.Nbrs.Add(e.self); err != nil {
		panic(err)
	}
	return e
}

// NewEngineFromConfig builds an engine with the areas and interfaces of
// cfg already configured.
func NewEngineFromConfig(cfg *state.Config, out Output, fib FIB, clock Clock, log *slog.Logger) (*Engine, error) {
	rid, err := lsa.ParseID(cfg.RouterId)
	if err != nil {
		return nil, fmt.Errorf("router id: %w", err)
	}
	e := NewEngine(Conf{
		RouterID: rid,
		SpfDelay: cfg.SpfDelay,
		SpfHold:  cfg.SpfHold,
		Redist: Redistribute{
			Exclude: cfg.Redistribute.Exclude,
			Metric:  cfg.Redistribute.Metric,
			Type:    cfg.Redistribute.Type,
			Tag:     cfg.Redistribute.Tag,
		},
	}, out, fib, clock, log)
	for _, ac := range cfg.Areas {
		id, err := lsa.ParseID(ac.Id)
		if err != nil {
			return nil, fmt.Errorf("area %s: %w", ac.Id, err)
		}
		area := e.AddArea(id, ac.Stub)
		for _, ic := range ac.Interfaces {
			it, err := state.ParseIfaceType(ic.Type)
			if err != nil {
				return nil, err
			}
			iface := state.NewInterface(ic.Index, ic.Name, area.ID, it)
			iface.Passive = ic.Passive
			if ic.Metric != 0 {
				iface.Metric = ic.Metric
			}
			for _, p := range ic.Addresses {
				iface.AddAddr(p)
			}
			e.Ifaces[iface.Index] = iface
			area.AddIface(iface.Index)
		}
	}
	return e, nil
}

// AddArea returns the area with the given id, creating it if needed.
func (e *Engine) AddArea(id uint32, stub bool) *state.Area {
	if a := e.Area(id); a != nil {
		return a
	}
	a := state.NewArea(id, stub)
	idx, _ := slices.BinarySearchFunc(e.Areas, id, func(a *state.Area, id uint32) int {
		return cmp.Compare(a.ID, id)
	})
	e.Areas = slices.Insert(e.Areas, idx, a)
	return a
}

func (e *Engine) Area(id uint32) *state.Area {
	for _, a := range e.Areas {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (e *Engine) Iface(index uint32) *state.Interface {
	return e.Ifaces[index]
}

// nbrArea returns the area of a neighbor, nil for the AS self neighbor.
func (e *Engine) nbrArea(n *state.Neighbor) *state.Area {
	if n == e.self {
		return nil
	}
	return e.Area(n.AreaID)
}

// store returns the scope an LSA of type t lives in when received from nbr.
func (e *Engine) store(t lsa.Type, area *state.Area, iface *state.Interface) *lsdb.Store {
	switch t.Scope() {
	case lsa.ScopeLink:
		if iface == nil {
			return nil
		}
		return iface.LSAs
	case lsa.ScopeArea:
		if area == nil {
			return nil
		}
		return area.LSAs
	case lsa.ScopeAS:
		return e.AS
	}
	return nil
}

func (e *Engine) nbrStore(n *state.Neighbor, t lsa.Type) *lsdb.Store {
	return e.store(t, e.nbrArea(n), e.Iface(n.IfIndex))
}

// find looks up an instance in the scope visible to nbr.
func (e *Engine) find(n *state.Neighbor, k lsa.Key) *lsdb.Vertex {
	s := e.nbrStore(n, k.Type)
	if s == nil {
		return nil
	}
	return s.Find(k)
}

// PurgeReplies drops expired reply suppression entries.
func (e *Engine) PurgeReplies() {
	e.replies.DeleteExpired()
}

// Close stops every timer and releases all state.
func (e *Engine) Close() {
	if e.spfTimer != nil {
		e.spfTimer.Stop()
		e.spfTimer = nil
	}
	e.spf = spfIdle
	for _, iface := range e.Ifaces {
		iface.LSAs.Clear()
	}
	for _, a := range e.Areas {
		a.LSAs.Clear()
		a.Nbrs = nil
	}
	e.AS.Clear()
	for _, n := range e.Nbrs.All() {
		e.Nbrs.Remove(n.Handle)
	}
	e.Rib.Clear()
	e.replies.DeleteAll()
	clear(e.announced)
}
