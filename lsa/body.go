package lsa

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Body is the type specific part of an LSA. Exactly one of the variants in
// this file implements it for every known LSA type.
type Body interface {
	Type() Type
	appendTo(b []byte) []byte
}

// Identifier is implemented by bodies whose link-state id is chosen by the
// originator. SameDestination reports whether two bodies describe the same
// destination and may therefore share a link-state id.
type Identifier interface {
	SameDestination(o Body) bool
}

// router LSA flags, RFC 5340 section A.4.3
const (
	RouterFlagB = 0x01 // area border router
	RouterFlagE = 0x02 // AS boundary router
	RouterFlagV = 0x04 // virtual link endpoint
)

type LinkType uint8

const (
	LinkPointToPoint LinkType = 1
	LinkTransit      LinkType = 2
	LinkVirtual      LinkType = 4
)

func (t LinkType) String() string {
	switch t {
	case LinkPointToPoint:
		return "point-to-point"
	case LinkTransit:
		return "transit"
	case LinkVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

type RouterLink struct {
	Type        LinkType
	Metric      uint16
	IfaceID     uint32
	NbrIfaceID  uint32
	NbrRouterID uint32
}

type Router struct {
	Flags   uint8
	Options uint32 // 24 bit
	Links   []RouterLink
}

func (*Router) Type() Type { return TypeRouter }

const routerLinkLen = 16

func (r *Router) appendTo(b []byte) []byte {
	b = append(b, r.Flags)
	b = appendUint24(b, r.Options)
	for _, l := range r.Links {
		b = append(b, uint8(l.Type), 0)
		b = binary.BigEndian.AppendUint16(b, l.Metric)
		b = binary.BigEndian.AppendUint32(b, l.IfaceID)
		b = binary.BigEndian.AppendUint32(b, l.NbrIfaceID)
		b = binary.BigEndian.AppendUint32(b, l.NbrRouterID)
	}
	return b
}

func decodeRouter(b []byte) (*Router, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("router lsa: %w", ErrTruncated)
	}
	if (len(b)-4)%routerLinkLen != 0 {
		return nil, fmt.Errorf("router lsa: trailing %d octets: %w", (len(b)-4)%routerLinkLen, ErrMalformed)
	}
	r := &Router{
		Flags:   b[0],
		Options: uint24(b[1:]),
	}
	for off := 4; off < len(b); off += routerLinkLen {
		l := RouterLink{
			Type:        LinkType(b[off]),
			Metric:      binary.BigEndian.Uint16(b[off+2:]),
			IfaceID:     binary.BigEndian.Uint32(b[off+4:]),
			NbrIfaceID:  binary.BigEndian.Uint32(b[off+8:]),
			NbrRouterID: binary.BigEndian.Uint32(b[off+12:]),
		}
		switch l.Type {
		case LinkPointToPoint, LinkTransit, LinkVirtual:
		default:
			return nil, fmt.Errorf("router lsa: link type %d: %w", l.Type, ErrMalformed)
		}
		r.Links = append(r.Links, l)
	}
	return r, nil
}

type Network struct {
	Options         uint32 // 24 bit
	AttachedRouters []uint32
}

func (*Network) Type() Type { return TypeNetwork }

func (n *Network) appendTo(b []byte) []byte {
	b = append(b, 0)
	b = appendUint24(b, n.Options)
	for _, r := range n.AttachedRouters {
		b = binary.BigEndian.AppendUint32(b, r)
	}
	return b
}

func decodeNetwork(b []byte) (*Network, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("network lsa: %w", ErrTruncated)
	}
	if (len(b)-4)%4 != 0 {
		return nil, fmt.Errorf("network lsa: %w", ErrMalformed)
	}
	n := &Network{Options: uint24(b[1:])}
	for off := 4; off < len(b); off += 4 {
		n.AttachedRouters = append(n.AttachedRouters, binary.BigEndian.Uint32(b[off:]))
	}
	if len(n.AttachedRouters) < 2 {
		return nil, fmt.Errorf("network lsa: %d attached routers: %w", len(n.AttachedRouters), ErrMalformed)
	}
	return n, nil
}

type InterAreaPrefix struct {
	Metric uint32 // 24 bit
	Prefix Prefix
}

func (*InterAreaPrefix) Type() Type { return TypeInterAreaPrefix }

func (p *InterAreaPrefix) appendTo(b []byte) []byte {
	b = append(b, 0)
	b = appendUint24(b, p.Metric)
	return p.Prefix.append(b)
}

func (p *InterAreaPrefix) SameDestination(o Body) bool {
	q, ok := o.(*InterAreaPrefix)
	return ok && SamePrefix(p.Prefix.Prefix, q.Prefix.Prefix)
}

func decodeInterAreaPrefix(b []byte) (*InterAreaPrefix, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("inter-area-prefix lsa: %w", ErrTruncated)
	}
	pfx, n, err := decodePrefix(b[4:])
	if err != nil {
		return nil, fmt.Errorf("inter-area-prefix lsa: %w", err)
	}
	if 4+n != len(b) {
		return nil, fmt.Errorf("inter-area-prefix lsa: %w", ErrMalformed)
	}
	return &InterAreaPrefix{Metric: uint24(b[1:]), Prefix: pfx}, nil
}

type InterAreaRouter struct {
	Options      uint32 // 24 bit
	Metric       uint32 // 24 bit
	DestRouterID uint32
}

func (*InterAreaRouter) Type() Type { return TypeInterAreaRouter }

func (r *InterAreaRouter) appendTo(b []byte) []byte {
	b = append(b, 0)
	b = appendUint24(b, r.Options)
	b = append(b, 0)
	b = appendUint24(b, r.Metric)
	return binary.BigEndian.AppendUint32(b, r.DestRouterID)
}

func (r *InterAreaRouter) SameDestination(o Body) bool {
	q, ok := o.(*InterAreaRouter)
	return ok && r.DestRouterID == q.DestRouterID
}

func decodeInterAreaRouter(b []byte) (*InterAreaRouter, error) {
	if len(b) != 12 {
		return nil, fmt.Errorf("inter-area-router lsa: length %d: %w", len(b), ErrMalformed)
	}
	return &InterAreaRouter{
		Options:      uint24(b[1:]),
		Metric:       uint24(b[5:]),
		DestRouterID: binary.BigEndian.Uint32(b[8:]),
	}, nil
}

// AS-External flags, RFC 5340 section A.4.7
const (
	ExternalFlagT = 0x01 // route tag present
	ExternalFlagF = 0x02 // forwarding address present
	ExternalFlagE = 0x04 // type 2 metric
)

type ASExternal struct {
	Flags             uint8
	Metric            uint32 // 24 bit
	Prefix            Prefix // Aux carries the referenced LS type
	ForwardingAddress netip.Addr
	RouteTag          uint32
	RefLSID           uint32
}

func (*ASExternal) Type() Type { return TypeASExternal }

// Type2 reports whether the metric is a type 2 external metric.
func (e *ASExternal) Type2() bool { return e.Flags&ExternalFlagE != 0 }

func (e *ASExternal) appendTo(b []byte) []byte {
	flags := e.Flags &^ (ExternalFlagF | ExternalFlagT)
	if e.ForwardingAddress.IsValid() {
		flags |= ExternalFlagF
	}
	if e.RouteTag != 0 {
		flags |= ExternalFlagT
	}
	b = append(b, flags)
	b = appendUint24(b, e.Metric)
	b = e.Prefix.append(b)
	if flags&ExternalFlagF != 0 {
		fa := e.ForwardingAddress.As16()
		b = append(b, fa[:]...)
	}
	if flags&ExternalFlagT != 0 {
		b = binary.BigEndian.AppendUint32(b, e.RouteTag)
	}
	if e.Prefix.Aux != 0 {
		b = binary.BigEndian.AppendUint32(b, e.RefLSID)
	}
	return b
}

func (e *ASExternal) SameDestination(o Body) bool {
	q, ok := o.(*ASExternal)
	return ok && SamePrefix(e.Prefix.Prefix, q.Prefix.Prefix)
}

func decodeASExternal(b []byte) (*ASExternal, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("as-external lsa: %w", ErrTruncated)
	}
	e := &ASExternal{Flags: b[0], Metric: uint24(b[1:])}
	pfx, n, err := decodePrefix(b[4:])
	if err != nil {
		return nil, fmt.Errorf("as-external lsa: %w", err)
	}
	e.Prefix = pfx
	off := 4 + n
	if e.Flags&ExternalFlagF != 0 {
		if len(b) < off+16 {
			return nil, fmt.Errorf("as-external lsa: forwarding address: %w", ErrTruncated)
		}
		e.ForwardingAddress = netip.AddrFrom16([16]byte(b[off : off+16]))
		off += 16
	}
	if e.Flags&ExternalFlagT != 0 {
		if len(b) < off+4 {
			return nil, fmt.Errorf("as-external lsa: route tag: %w", ErrTruncated)
		}
		e.RouteTag = binary.BigEndian.Uint32(b[off:])
		off += 4
	}
	if e.Prefix.Aux != 0 {
		if len(b) < off+4 {
			return nil, fmt.Errorf("as-external lsa: referenced ls id: %w", ErrTruncated)
		}
		e.RefLSID = binary.BigEndian.Uint32(b[off:])
		off += 4
	}
	if off != len(b) {
		return nil, fmt.Errorf("as-external lsa: trailing %d octets: %w", len(b)-off, ErrMalformed)
	}
	return e, nil
}

type Link struct {
	Priority  uint8
	Options   uint32 // 24 bit
	LinkLocal netip.Addr
	Prefixes  []Prefix
}

func (*Link) Type() Type { return TypeLink }

func (l *Link) appendTo(b []byte) []byte {
	b = append(b, l.Priority)
	b = appendUint24(b, l.Options)
	ll := l.LinkLocal.As16()
	b = append(b, ll[:]...)
	b = binary.BigEndian.AppendUint32(b, uint32(len(l.Prefixes)))
	for _, p := range l.Prefixes {
		b = p.append(b)
	}
	return b
}

func decodeLink(b []byte) (*Link, error) {
	if len(b) < 24 {
		return nil, fmt.Errorf("link lsa: %w", ErrTruncated)
	}
	l := &Link{
		Priority:  b[0],
		Options:   uint24(b[1:]),
		LinkLocal: netip.AddrFrom16([16]byte(b[4:20])),
	}
	count := binary.BigEndian.Uint32(b[20:])
	prefixes, off, err := decodePrefixes(b, 24, int(count))
	if err != nil {
		return nil, fmt.Errorf("link lsa: %w", err)
	}
	if off != len(b) {
		return nil, fmt.Errorf("link lsa: trailing %d octets: %w", len(b)-off, ErrMalformed)
	}
	l.Prefixes = prefixes
	return l, nil
}

type IntraAreaPrefix struct {
	RefType      Type
	RefID        uint32
	RefAdvRouter uint32
	Prefixes     []Prefix // Aux carries the prefix metric
}

func (*IntraAreaPrefix) Type() Type { return TypeIntraAreaPrefix }

func (p *IntraAreaPrefix) appendTo(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(p.Prefixes)))
	b = binary.BigEndian.AppendUint16(b, uint16(p.RefType))
	b = binary.BigEndian.AppendUint32(b, p.RefID)
	b = binary.BigEndian.AppendUint32(b, p.RefAdvRouter)
	for _, pfx := range p.Prefixes {
		b = pfx.append(b)
	}
	return b
}

func decodeIntraAreaPrefix(b []byte) (*IntraAreaPrefix, error) {
	if len(b) < 12 {
		return nil, fmt.Errorf("intra-area-prefix lsa: %w", ErrTruncated)
	}
	p := &IntraAreaPrefix{
		RefType:      Type(binary.BigEndian.Uint16(b[2:])),
		RefID:        binary.BigEndian.Uint32(b[4:]),
		RefAdvRouter: binary.BigEndian.Uint32(b[8:]),
	}
	count := binary.BigEndian.Uint16(b[0:])
	prefixes, off, err := decodePrefixes(b, 12, int(count))
	if err != nil {
		return nil, fmt.Errorf("intra-area-prefix lsa: %w", err)
	}
	if off != len(b) {
		return nil, fmt.Errorf("intra-area-prefix lsa: trailing %d octets: %w", len(b)-off, ErrMalformed)
	}
	p.Prefixes = prefixes
	return p, nil
}

func decodePrefixes(b []byte, off, count int) ([]Prefix, int, error) {
	prefixes := make([]Prefix, 0, min(count, 64))
	for i := 0; i < count; i++ {
		pfx, n, err := decodePrefix(b[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("prefix %d of %d: %w", i, count, err)
		}
		prefixes = append(prefixes, pfx)
		off += n
	}
	return prefixes, off, nil
}

func decodeBody(t Type, b []byte) (Body, error) {
	switch t {
	case TypeRouter:
		return decodeRouter(b)
	case TypeNetwork:
		return decodeNetwork(b)
	case TypeInterAreaPrefix:
		return decodeInterAreaPrefix(b)
	case TypeInterAreaRouter:
		return decodeInterAreaRouter(b)
	case TypeASExternal:
		return decodeASExternal(b)
	case TypeLink:
		return decodeLink(b)
	case TypeIntraAreaPrefix:
		return decodeIntraAreaPrefix(b)
	default:
		return nil, fmt.Errorf("lsa type %s: %w", t, ErrUnknownType)
	}
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func appendUint24(b []byte, v uint32) []byte {
	return append(b, uint8(v>>16), uint8(v>>8), uint8(v))
}
