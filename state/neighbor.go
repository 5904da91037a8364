package state

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/encodeous/ospf6rde/lsa"
	"github.com/google/btree"
)

// NbrState is the adjacency state reported by the adjacency engine.
type NbrState uint32

const (
	NbrStateDown     NbrState = 0x0001
	NbrStateAttempt  NbrState = 0x0002
	NbrStateInit     NbrState = 0x0004
	NbrStateTwoWay   NbrState = 0x0008
	NbrStateExStart  NbrState = 0x0010
	NbrStateSnapshot NbrState = 0x0020
	NbrStateExchange NbrState = 0x0040
	NbrStateLoading  NbrState = 0x0080
	NbrStateFull     NbrState = 0x0100

	// NbrStateSyncing covers the states in which database exchange is in progress.
	NbrStateSyncing = NbrStateExchange | NbrStateLoading
)

func (s NbrState) String() string {
	names := []string{"DOWN", "ATTMP", "INIT", "2-WAY", "EXSTA", "SNAP", "EXCHG", "LOAD", "FULL"}
	var out []string
	for i, n := range names {
		if s&(1<<i) != 0 {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return fmt.Sprintf("NbrState(0x%x)", uint32(s))
	}
	return strings.Join(out, "|")
}

// NbrHandle addresses a neighbor record in the Neighbors arena. Handles stay
// valid until the neighbor is removed.
type NbrHandle int

const NoNbr NbrHandle = -1

type Neighbor struct {
	Handle   NbrHandle
	PeerID   uint32
	RouterID uint32
	AreaID   uint32
	IfIndex  uint32
	// IfaceID is the interface id the neighbor uses for the shared link.
	IfaceID uint32
	Addr    netip.Addr
	State   NbrState
	Self    bool

	reqs *btree.BTreeG[lsa.Key]
}

func (n *Neighbor) String() string {
	if n.Self {
		return fmt.Sprintf("self(peer %d)", n.PeerID)
	}
	return fmt.Sprintf("%s(peer %d)", lsa.IDString(n.RouterID), n.PeerID)
}

func (n *Neighbor) Full() bool {
	return n.State&NbrStateFull != 0
}

func (n *Neighbor) requests() *btree.BTreeG[lsa.Key] {
	if n.reqs == nil {
		n.reqs = btree.NewG[lsa.Key](8, lsa.Key.Less)
	}
	return n.reqs
}

func (n *Neighbor) ReqAdd(k lsa.Key) {
	n.requests().ReplaceOrInsert(k)
}

func (n *Neighbor) ReqDel(k lsa.Key) {
	if n.reqs != nil {
		n.reqs.Delete(k)
	}
}

func (n *Neighbor) ReqExists(k lsa.Key) bool {
	return n.reqs != nil && n.reqs.Has(k)
}

func (n *Neighbor) ReqLen() int {
	if n.reqs == nil {
		return 0
	}
	return n.reqs.Len()
}

// ReqList returns the outstanding requests in (type, adv-rtr, id) order.
func (n *Neighbor) ReqList() []lsa.Key {
	var out []lsa.Key
	if n.reqs != nil {
		n.reqs.Ascend(func(k lsa.Key) bool {
			out = append(out, k)
			return true
		})
	}
	return out
}

func (n *Neighbor) ReqClear() {
	n.reqs = nil
}

// Neighbors is an arena of neighbor records indexed by handle and by the
// peer id assigned by the adjacency engine.
type Neighbors struct {
	slots  []*Neighbor
	free   []NbrHandle
	byPeer map[uint32]NbrHandle
}

func NewNeighbors() *Neighbors {
	return &Neighbors{byPeer: make(map[uint32]NbrHandle)}
}

// Add stores n and assigns its handle. Peer ids must be unique.
func (ns *Neighbors) Add(n *Neighbor) (NbrHandle, error) {
	if _, ok := ns.byPeer[n.PeerID]; ok {
		return NoNbr, fmt.Errorf("neighbor with peer id %d already exists", n.PeerID)
	}
	var h NbrHandle
	if l := len(ns.free); l > 0 {
		h = ns.free[l-1]
		ns.free = ns.free[:l-1]
		ns.slots[h] = n
	} else {
		h = NbrHandle(len(ns.slots))
		ns.slots = append(ns.slots, n)
	}
	n.Handle = h
	ns.byPeer[n.PeerID] = h
	return h, nil
}

func (ns *Neighbors) Get(h NbrHandle) *Neighbor {
	if h < 0 || int(h) >= len(ns.slots) {
		return nil
	}
	return ns.slots[h]
}

func (ns *Neighbors) ByPeer(peer uint32) *Neighbor {
	h, ok := ns.byPeer[peer]
	if !ok {
		return nil
	}
	return ns.slots[h]
}

// Remove releases the record of h together with its request list.
func (ns *Neighbors) Remove(h NbrHandle) *Neighbor {
	n := ns.Get(h)
	if n == nil {
		return nil
	}
	n.ReqClear()
	delete(ns.byPeer, n.PeerID)
	ns.slots[h] = nil
	ns.free = append(ns.free, h)
	n.Handle = NoNbr
	return n
}

func (ns *Neighbors) Len() int {
	return len(ns.byPeer)
}

// All returns the live neighbors in handle order.
func (ns *Neighbors) All() []*Neighbor {
	out := make([]*Neighbor, 0, len(ns.byPeer))
	for _, n := range ns.slots {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}
