// Package lsa implements the OSPFv3 link state advertisement wire format
// described in RFC 5340 appendix A.4.
package lsa

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

type Type uint16

const (
	TypeRouter          Type = 0x2001
	TypeNetwork         Type = 0x2002
	TypeInterAreaPrefix Type = 0x2003
	TypeInterAreaRouter Type = 0x2004
	TypeASExternal      Type = 0x4005
	TypeLink            Type = 0x0008
	TypeIntraAreaPrefix Type = 0x2009
)

func (t Type) String() string {
	switch t {
	case TypeRouter:
		return "Router"
	case TypeNetwork:
		return "Network"
	case TypeInterAreaPrefix:
		return "Inter-Area-Prefix"
	case TypeInterAreaRouter:
		return "Inter-Area-Router"
	case TypeASExternal:
		return "AS-External"
	case TypeLink:
		return "Link"
	case TypeIntraAreaPrefix:
		return "Intra-Area-Prefix"
	default:
		return fmt.Sprintf("Unknown(0x%04x)", uint16(t))
	}
}

// Known reports whether t is one of the LSA types this implementation understands.
func (t Type) Known() bool {
	switch t {
	case TypeRouter, TypeNetwork, TypeInterAreaPrefix, TypeInterAreaRouter,
		TypeASExternal, TypeLink, TypeIntraAreaPrefix:
		return true
	}
	return false
}

type Scope uint8

const (
	ScopeLink Scope = iota
	ScopeArea
	ScopeAS
	ScopeReserved
)

func (s Scope) String() string {
	switch s {
	case ScopeLink:
		return "link"
	case ScopeArea:
		return "area"
	case ScopeAS:
		return "as"
	default:
		return "reserved"
	}
}

// Scope returns the flooding scope encoded in the S1/S2 bits of the type.
func (t Type) Scope() Scope {
	return Scope((t >> 13) & 0x3)
}

const (
	HeaderLen = 20

	// offset of the checksum inside the header
	checksumOffset = 16
)

// timing and sequence constants, RFC 5340 appendix B / RFC 2328 appendix B
const (
	DefaultAge    = 0
	MaxAge        = 3600
	MaxAgeDiff    = 900
	LSRefreshTime = 1800

	// MinLSInterval is the minimum time between two originations of the same LSA.
	MinLSInterval = 5
	// MinLSArrival is the minimum time between accepting two updates of the same LSA.
	MinLSArrival = 1

	InitialSequenceNumber  uint32 = 0x80000001
	MaxSequenceNumber      uint32 = 0x7fffffff
	ReservedSequenceNumber uint32 = 0x80000000

	LSInfinity = 0xffffff
	MaxMetric  = 0xffff
)

type Header struct {
	Age       uint16
	Type      Type
	ID        uint32
	AdvRouter uint32
	SeqNum    uint32
	Checksum  uint16
	Length    uint16
}

// Key identifies an LSA instance inside its flooding scope.
type Key struct {
	Type      Type
	ID        uint32
	AdvRouter uint32
}

func (k Key) String() string {
	return fmt.Sprintf("%s id %s adv %s", k.Type, IDString(k.ID), IDString(k.AdvRouter))
}

// Less orders keys by type, advertising router and link-state id.
func (k Key) Less(o Key) bool {
	if k.Type != o.Type {
		return k.Type < o.Type
	}
	if k.AdvRouter != o.AdvRouter {
		return k.AdvRouter < o.AdvRouter
	}
	return k.ID < o.ID
}

func (h *Header) Key() Key {
	return Key{Type: h.Type, ID: h.ID, AdvRouter: h.AdvRouter}
}

func (h *Header) String() string {
	return fmt.Sprintf("%s age %d seq 0x%08x cksum 0x%04x len %d", h.Key(), h.Age, h.SeqNum, h.Checksum, h.Length)
}

// DecodeHeader reads a 20 octet LSA header from b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("lsa header: %w", ErrTruncated)
	}
	return Header{
		Age:       binary.BigEndian.Uint16(b[0:]),
		Type:      Type(binary.BigEndian.Uint16(b[2:])),
		ID:        binary.BigEndian.Uint32(b[4:]),
		AdvRouter: binary.BigEndian.Uint32(b[8:]),
		SeqNum:    binary.BigEndian.Uint32(b[12:]),
		Checksum:  binary.BigEndian.Uint16(b[16:]),
		Length:    binary.BigEndian.Uint16(b[18:]),
	}, nil
}

// Append appends the wire form of h to b.
func (h *Header) Append(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, h.Age)
	b = binary.BigEndian.AppendUint16(b, uint16(h.Type))
	b = binary.BigEndian.AppendUint32(b, h.ID)
	b = binary.BigEndian.AppendUint32(b, h.AdvRouter)
	b = binary.BigEndian.AppendUint32(b, h.SeqNum)
	b = binary.BigEndian.AppendUint16(b, h.Checksum)
	b = binary.BigEndian.AppendUint16(b, h.Length)
	return b
}

// IDString renders a router id or link-state id in dotted quad form.
func IDString(id uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	return netip.AddrFrom4(b).String()
}

// ParseID parses a dotted quad router id.
func ParseID(s string) (uint32, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return 0, err
	}
	if !a.Is4() {
		return 0, fmt.Errorf("%s is not a dotted quad", s)
	}
	b := a.As4()
	return binary.BigEndian.Uint32(b[:]), nil
}

// Compare implements the "is newer" test of RFC 2328 section 13.1.
// It returns 1 if a is newer than b, -1 if b is newer and 0 if both describe
// the same instance. A nil header is older than any instance.
func Compare(a, b *Header) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	// sequence numbers are signed 32 bit values
	as, bs := int32(a.SeqNum), int32(b.SeqNum)
	if as > bs {
		return 1
	}
	if as < bs {
		return -1
	}

	if a.Checksum > b.Checksum {
		return 1
	}
	if a.Checksum < b.Checksum {
		return -1
	}

	aMax, bMax := a.Age >= MaxAge, b.Age >= MaxAge
	if aMax && bMax {
		return 0
	}
	if bMax {
		return -1
	}
	if aMax {
		return 1
	}

	diff := int(b.Age) - int(a.Age)
	if diff > MaxAgeDiff {
		return 1
	}
	if diff < -MaxAgeDiff {
		return -1
	}
	return 0
}
