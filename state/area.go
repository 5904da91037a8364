package state

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/encodeous/ospf6rde/lsdb"
)

type IfaceType uint8

const (
	IfacePointToPoint IfaceType = iota + 1
	IfaceBroadcast
	IfaceNBMA
	IfacePointToMultipoint
	IfaceVirtual
)

func (t IfaceType) String() string {
	switch t {
	case IfacePointToPoint:
		return "point-to-point"
	case IfaceBroadcast:
		return "broadcast"
	case IfaceNBMA:
		return "nbma"
	case IfacePointToMultipoint:
		return "point-to-multipoint"
	case IfaceVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

func ParseIfaceType(s string) (IfaceType, error) {
	for t := IfacePointToPoint; t <= IfaceVirtual; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown interface type %q", s)
}

// Multiaccess reports whether a designated router is elected on the link.
func (t IfaceType) Multiaccess() bool {
	return t == IfaceBroadcast || t == IfaceNBMA
}

// IfaceState is the interface state machine position, as a bitmask so
// callers can test for several states at once.
type IfaceState uint32

const (
	IfaceStateDown         IfaceState = 0x01
	IfaceStateLoopback     IfaceState = 0x02
	IfaceStateWaiting      IfaceState = 0x04
	IfaceStatePointToPoint IfaceState = 0x08
	IfaceStateDROther      IfaceState = 0x10
	IfaceStateBackup       IfaceState = 0x20
	IfaceStateDR           IfaceState = 0x40
)

func (s IfaceState) String() string {
	names := []string{"DOWN", "LOOP", "WAIT", "P2P", "OTHER", "BCKUP", "DR"}
	var out []string
	for i, n := range names {
		if s&(1<<i) != 0 {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return "NEW"
	}
	return strings.Join(out, "|")
}

type Interface struct {
	Index   uint32
	Name    string
	AreaID  uint32
	Type    IfaceType
	State   IfaceState
	Up      bool
	Passive bool
	Metric  uint16
	Addrs   []netip.Prefix
	// LSAs holds the link scoped LSAs received on this interface.
	LSAs *lsdb.Store
}

func NewInterface(index uint32, name string, area uint32, t IfaceType) *Interface {
	return &Interface{
		Index:  index,
		Name:   name,
		AreaID: area,
		Type:   t,
		State:  IfaceStateDown,
		Metric: DefaultMetric,
		LSAs:   lsdb.NewStore(),
	}
}

// AddAddr records an address, returning false if it was already present.
func (i *Interface) AddAddr(p netip.Prefix) bool {
	if slices.Contains(i.Addrs, p) {
		return false
	}
	i.Addrs = append(i.Addrs, p)
	return true
}

func (i *Interface) DelAddr(p netip.Prefix) bool {
	idx := slices.Index(i.Addrs, p)
	if idx == -1 {
		return false
	}
	i.Addrs = slices.Delete(i.Addrs, idx, idx+1)
	return true
}

type Area struct {
	ID     uint32
	Stub   bool
	Ifaces []uint32
	Nbrs   []NbrHandle
	LSAs   *lsdb.Store

	NumSpfCalc uint32
	// Dirty requests a recomputation of the area on the next SPF run.
	Dirty bool
	// Active counts the fully adjacent neighbors of the area.
	Active  int
	Transit bool
}

func NewArea(id uint32, stub bool) *Area {
	return &Area{ID: id, Stub: stub, LSAs: lsdb.NewStore()}
}

func (a *Area) AddIface(index uint32) {
	if !slices.Contains(a.Ifaces, index) {
		a.Ifaces = append(a.Ifaces, index)
		slices.Sort(a.Ifaces)
	}
}

func (a *Area) DelIface(index uint32) {
	a.Ifaces = slices.DeleteFunc(a.Ifaces, func(i uint32) bool {
		return i == index
	})
}
