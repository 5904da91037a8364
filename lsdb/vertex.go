package lsdb

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/encodeous/ospf6rde/lsa"
)

// Timer is a pending per-vertex action, usually the refresh or expiry of
// the instance.
type Timer interface {
	Stop() bool
}

// NextHop is one candidate first hop towards a vertex. Prev is the vertex
// whose link produced the hop, it is the SPF root for directly attached
// destinations.
type NextHop struct {
	Addr    netip.Addr
	IfIndex uint32
	Prev    *Vertex
}

func (n NextHop) String() string {
	if !n.Addr.IsValid() || n.Addr.IsUnspecified() {
		return fmt.Sprintf("connected if %d", n.IfIndex)
	}
	return fmt.Sprintf("%s if %d", n.Addr, n.IfIndex)
}

// Vertex wraps one LSA instance stored in a scope together with the flooding
// bookkeeping and the SPF scratch state.
type Vertex struct {
	Key lsa.Key
	LSA *lsa.LSA

	// Stamp is the time at which LSA.Age was last brought up to date.
	Stamp time.Time
	// Changed is the time the instance was installed or last re-originated.
	Changed time.Time
	Timer   Timer
	// Expiry is when Timer fires.
	Expiry time.Time

	Flooded bool
	Deleted bool
	Self    bool
	// Wrap is set while a self-originated instance that reached the maximum
	// sequence number is being flushed before re-origination.
	Wrap bool

	// PeerID of the neighbor the instance was received from, 0 for self.
	PeerID uint32
	// Area and IfIndex locate the scope the vertex lives in.
	Area    uint32
	IfIndex uint32

	Cost     uint32
	NextHops []NextHop
}

func NewVertex(l *lsa.LSA, now time.Time) *Vertex {
	return &Vertex{
		Key:     l.Key(),
		LSA:     l,
		Stamp:   now,
		Changed: now,
		Cost:    lsa.LSInfinity,
	}
}

// Age returns the current age of the instance, saturating at MaxAge.
func (v *Vertex) Age(now time.Time) uint16 {
	d := now.Sub(v.Stamp)
	if d < 0 {
		d = 0
	}
	age := int64(v.LSA.Age) + int64(d/time.Second)
	if age > lsa.MaxAge {
		age = lsa.MaxAge
	}
	return uint16(age)
}

// UpdateAge writes the current age into the stored header and moves the
// stamp forward by the whole seconds consumed.
func (v *Vertex) UpdateAge(now time.Time) uint16 {
	age := v.Age(now)
	if consumed := int(age) - int(v.LSA.Age); consumed > 0 {
		v.Stamp = v.Stamp.Add(time.Duration(consumed) * time.Second)
	}
	v.LSA.Age = age
	if age == lsa.MaxAge {
		v.Stamp = now
	}
	return age
}

// SetLSA replaces the instance, resetting the age stamp.
func (v *Vertex) SetLSA(l *lsa.LSA, now time.Time) {
	v.LSA = l
	v.Stamp = now
}

func (v *Vertex) MaxAged(now time.Time) bool {
	return v.Age(now) >= lsa.MaxAge
}

func (v *Vertex) StopTimer() {
	if v.Timer != nil {
		v.Timer.Stop()
		v.Timer = nil
	}
}

// ResetSPF clears the scratch state left by a previous SPF run.
func (v *Vertex) ResetSPF() {
	v.Cost = lsa.LSInfinity
	v.NextHops = v.NextHops[:0]
}

// AddNextHop appends a next hop unless an identical one is already present.
func (v *Vertex) AddNextHop(nh NextHop) {
	for _, o := range v.NextHops {
		if o.Addr == nh.Addr && o.IfIndex == nh.IfIndex {
			return
		}
	}
	v.NextHops = append(v.NextHops, nh)
}

func (v *Vertex) String() string {
	return fmt.Sprintf("%s seq 0x%08x cost %d", v.Key, v.LSA.SeqNum, v.Cost)
}
