package imsg

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/encodeous/ospf6rde/lsa"
)

// fixed payload sizes
const (
	NbrUpLen       = 36
	IfaceDescLen   = 32
	IfaceStatusLen = 12
	IfaceAddrLen   = 24
	KRouteLen      = 48
	ConfLen        = 24
	AreaConfLen    = 8
	ReqLen         = 12
	CtlAreaLen     = 24
	CtlLSAHdrLen   = 12
	CtlRibLen      = 72
	CtlSummaryLen  = 28
	nameLen        = 16
)

func putAddr(b []byte, a netip.Addr) {
	if !a.IsValid() {
		clear(b[:16])
		return
	}
	a16 := a.As16()
	copy(b, a16[:])
}

func getAddr(b []byte) netip.Addr {
	return netip.AddrFrom16([16]byte(b[:16]))
}

func putPrefix(b []byte, p netip.Prefix) {
	putAddr(b, p.Masked().Addr())
	b[16] = uint8(p.Bits())
}

func getPrefix(b []byte, what string) (netip.Prefix, error) {
	p, err := getAddr(b).Prefix(int(b[16]))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%s: %w", what, err)
	}
	return p, nil
}

func bit(ok bool, v uint8) uint8 {
	if ok {
		return v
	}
	return 0
}

func EncodeUint32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func DecodeUint32(m *Msg) (uint32, error) {
	if err := m.Expect(4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(m.Data), nil
}

// NbrUp announces a new neighbor. A neighbor with Self set stands for this
// router and carries its own Router, Network and Link LSAs.
type NbrUp struct {
	RouterID uint32
	AreaID   uint32
	IfIndex  uint32
	IfaceID  uint32
	Addr     netip.Addr
	Self     bool
}

func (n *NbrUp) Marshal() []byte {
	b := make([]byte, NbrUpLen)
	binary.BigEndian.PutUint32(b[0:], n.RouterID)
	binary.BigEndian.PutUint32(b[4:], n.AreaID)
	binary.BigEndian.PutUint32(b[8:], n.IfIndex)
	binary.BigEndian.PutUint32(b[12:], n.IfaceID)
	putAddr(b[16:], n.Addr)
	b[32] = bit(n.Self, 1)
	return b
}

func DecodeNbrUp(m *Msg) (NbrUp, error) {
	if err := m.Expect(NbrUpLen); err != nil {
		return NbrUp{}, err
	}
	b := m.Data
	return NbrUp{
		RouterID: binary.BigEndian.Uint32(b[0:]),
		AreaID:   binary.BigEndian.Uint32(b[4:]),
		IfIndex:  binary.BigEndian.Uint32(b[8:]),
		IfaceID:  binary.BigEndian.Uint32(b[12:]),
		Addr:     getAddr(b[16:]),
		Self:     b[32]&1 != 0,
	}, nil
}

// IfaceDesc describes a configured interface.
type IfaceDesc struct {
	IfIndex uint32
	AreaID  uint32
	Type    uint8
	Passive bool
	Up      bool
	Metric  uint16
	State   uint32
	Name    string
}

func (d *IfaceDesc) Marshal() []byte {
	b := make([]byte, IfaceDescLen)
	binary.BigEndian.PutUint32(b[0:], d.IfIndex)
	binary.BigEndian.PutUint32(b[4:], d.AreaID)
	b[8] = d.Type
	b[9] = bit(d.Passive, 1) | bit(d.Up, 2)
	binary.BigEndian.PutUint16(b[10:], d.Metric)
	binary.BigEndian.PutUint32(b[12:], d.State)
	copy(b[16:16+nameLen-1], d.Name)
	return b
}

func DecodeIfaceDesc(m *Msg) (IfaceDesc, error) {
	if err := m.Expect(IfaceDescLen); err != nil {
		return IfaceDesc{}, err
	}
	b := m.Data
	return IfaceDesc{
		IfIndex: binary.BigEndian.Uint32(b[0:]),
		AreaID:  binary.BigEndian.Uint32(b[4:]),
		Type:    b[8],
		Passive: b[9]&1 != 0,
		Up:      b[9]&2 != 0,
		Metric:  binary.BigEndian.Uint16(b[10:]),
		State:   binary.BigEndian.Uint32(b[12:]),
		Name:    strings.TrimRight(string(b[16:16+nameLen]), "\x00"),
	}, nil
}

// IfaceStatus is the interface state reported by the adjacency engine.
type IfaceStatus struct {
	IfIndex uint32
	State   uint32
	Up      bool
}

func (s *IfaceStatus) Marshal() []byte {
	b := make([]byte, IfaceStatusLen)
	binary.BigEndian.PutUint32(b[0:], s.IfIndex)
	binary.BigEndian.PutUint32(b[4:], s.State)
	b[8] = bit(s.Up, 1)
	return b
}

func DecodeIfaceStatus(m *Msg) (IfaceStatus, error) {
	if err := m.Expect(IfaceStatusLen); err != nil {
		return IfaceStatus{}, err
	}
	b := m.Data
	return IfaceStatus{
		IfIndex: binary.BigEndian.Uint32(b[0:]),
		State:   binary.BigEndian.Uint32(b[4:]),
		Up:      b[8]&1 != 0,
	}, nil
}

type IfaceAddr struct {
	IfIndex uint32
	Prefix  netip.Prefix
}

func (a *IfaceAddr) Marshal() []byte {
	b := make([]byte, IfaceAddrLen)
	binary.BigEndian.PutUint32(b[0:], a.IfIndex)
	putAddr(b[4:], a.Prefix.Addr())
	b[20] = uint8(a.Prefix.Bits())
	return b
}

func DecodeIfaceAddr(m *Msg) (IfaceAddr, error) {
	if err := m.Expect(IfaceAddrLen); err != nil {
		return IfaceAddr{}, err
	}
	b := m.Data
	// interface addresses keep their host bits
	p, err := getAddr(b[4:]).Prefix(int(b[20]))
	if err != nil {
		return IfaceAddr{}, fmt.Errorf("%s: %w", m.Type, err)
	}
	return IfaceAddr{
		IfIndex: binary.BigEndian.Uint32(b[0:]),
		Prefix:  netip.PrefixFrom(getAddr(b[4:]), p.Bits()),
	}, nil
}

// kernel route flags
const (
	KRouteConnected = 0x01
	KRouteReject    = 0x02
)

// KRoute is one kernel route, or one next hop of a multipath route.
type KRoute struct {
	Prefix  netip.Prefix
	Flags   uint8
	Nexthop netip.Addr
	IfIndex uint32
	ExtTag  uint32
	Metric  uint32
}

func (k *KRoute) String() string {
	if !k.Nexthop.IsValid() || k.Nexthop.IsUnspecified() {
		return fmt.Sprintf("%s dev %d", k.Prefix, k.IfIndex)
	}
	return fmt.Sprintf("%s via %s dev %d", k.Prefix, k.Nexthop, k.IfIndex)
}

func (k *KRoute) append(b []byte) []byte {
	r := make([]byte, KRouteLen)
	putPrefix(r, k.Prefix)
	r[17] = k.Flags
	putAddr(r[20:], k.Nexthop)
	binary.BigEndian.PutUint32(r[36:], k.IfIndex)
	binary.BigEndian.PutUint32(r[40:], k.ExtTag)
	binary.BigEndian.PutUint32(r[44:], k.Metric)
	return append(b, r...)
}

// EncodeKRoutes concatenates the records of a multipath route.
func EncodeKRoutes(routes ...KRoute) []byte {
	b := make([]byte, 0, len(routes)*KRouteLen)
	for i := range routes {
		b = routes[i].append(b)
	}
	return b
}

func DecodeKRoutes(m *Msg) ([]KRoute, error) {
	if len(m.Data) == 0 {
		return nil, fmt.Errorf("%s: empty: %w", m.Type, ErrBadSize)
	}
	if err := m.ExpectMultiple(KRouteLen); err != nil {
		return nil, err
	}
	out := make([]KRoute, 0, len(m.Data)/KRouteLen)
	for off := 0; off < len(m.Data); off += KRouteLen {
		r := m.Data[off : off+KRouteLen]
		pfx, err := getPrefix(r, m.Type.String())
		if err != nil {
			return nil, err
		}
		out = append(out, KRoute{
			Prefix:  pfx,
			Flags:   r[17],
			Nexthop: getAddr(r[20:]),
			IfIndex: binary.BigEndian.Uint32(r[36:]),
			ExtTag:  binary.BigEndian.Uint32(r[40:]),
			Metric:  binary.BigEndian.Uint32(r[44:]),
		})
	}
	return out, nil
}

// DecodeKRoute decodes a message carrying exactly one route.
func DecodeKRoute(m *Msg) (KRoute, error) {
	if err := m.Expect(KRouteLen); err != nil {
		return KRoute{}, err
	}
	r, err := DecodeKRoutes(m)
	if err != nil {
		return KRoute{}, err
	}
	return r[0], nil
}

// Conf is the global part of a configuration reload.
type Conf struct {
	RouterID     uint32
	SpfDelay     time.Duration
	SpfHold      time.Duration
	RedistMetric uint32
	RedistTag    uint32
	RedistType   uint8
}

func (c *Conf) Marshal() []byte {
	b := make([]byte, ConfLen)
	binary.BigEndian.PutUint32(b[0:], c.RouterID)
	binary.BigEndian.PutUint32(b[4:], uint32(c.SpfDelay.Milliseconds()))
	binary.BigEndian.PutUint32(b[8:], uint32(c.SpfHold.Milliseconds()))
	binary.BigEndian.PutUint32(b[12:], c.RedistMetric)
	binary.BigEndian.PutUint32(b[16:], c.RedistTag)
	b[20] = c.RedistType
	return b
}

func DecodeConf(m *Msg) (Conf, error) {
	if err := m.Expect(ConfLen); err != nil {
		return Conf{}, err
	}
	b := m.Data
	return Conf{
		RouterID:     binary.BigEndian.Uint32(b[0:]),
		SpfDelay:     time.Duration(binary.BigEndian.Uint32(b[4:])) * time.Millisecond,
		SpfHold:      time.Duration(binary.BigEndian.Uint32(b[8:])) * time.Millisecond,
		RedistMetric: binary.BigEndian.Uint32(b[12:]),
		RedistTag:    binary.BigEndian.Uint32(b[16:]),
		RedistType:   b[20],
	}, nil
}

type AreaConf struct {
	AreaID uint32
	Stub   bool
}

func (a *AreaConf) Marshal() []byte {
	b := make([]byte, AreaConfLen)
	binary.BigEndian.PutUint32(b[0:], a.AreaID)
	b[4] = bit(a.Stub, 1)
	return b
}

func DecodeAreaConf(m *Msg) (AreaConf, error) {
	if err := m.Expect(AreaConfLen); err != nil {
		return AreaConf{}, err
	}
	return AreaConf{
		AreaID: binary.BigEndian.Uint32(m.Data),
		Stub:   m.Data[4]&1 != 0,
	}, nil
}

// EncodeHeaders concatenates LSA headers, as carried by DD, DBSnapshot,
// LSAck and LSMaxAge messages.
func EncodeHeaders(hdrs ...lsa.Header) []byte {
	b := make([]byte, 0, len(hdrs)*lsa.HeaderLen)
	for i := range hdrs {
		b = hdrs[i].Append(b)
	}
	return b
}

func DecodeHeaders(m *Msg) ([]lsa.Header, error) {
	if err := m.ExpectMultiple(lsa.HeaderLen); err != nil {
		return nil, err
	}
	out := make([]lsa.Header, 0, len(m.Data)/lsa.HeaderLen)
	for off := 0; off < len(m.Data); off += lsa.HeaderLen {
		h, err := lsa.DecodeHeader(m.Data[off:])
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// EncodeReqs encodes link state request entries.
func EncodeReqs(keys ...lsa.Key) []byte {
	b := make([]byte, 0, len(keys)*ReqLen)
	for _, k := range keys {
		b = binary.BigEndian.AppendUint16(b, 0)
		b = binary.BigEndian.AppendUint16(b, uint16(k.Type))
		b = binary.BigEndian.AppendUint32(b, k.ID)
		b = binary.BigEndian.AppendUint32(b, k.AdvRouter)
	}
	return b
}

func DecodeReqs(m *Msg) ([]lsa.Key, error) {
	if err := m.ExpectMultiple(ReqLen); err != nil {
		return nil, err
	}
	out := make([]lsa.Key, 0, len(m.Data)/ReqLen)
	for off := 0; off < len(m.Data); off += ReqLen {
		out = append(out, lsa.Key{
			Type:      lsa.Type(binary.BigEndian.Uint16(m.Data[off+2:])),
			ID:        binary.BigEndian.Uint32(m.Data[off+4:]),
			AdvRouter: binary.BigEndian.Uint32(m.Data[off+8:]),
		})
	}
	return out, nil
}

type CtlAreaRec struct {
	AreaID     uint32
	NumSpfCalc uint32
	NumLSA     uint32
	NumNbr     uint32
	NumIface   uint32
	Stub       bool
	Active     bool
}

func (a *CtlAreaRec) Marshal() []byte {
	b := make([]byte, CtlAreaLen)
	binary.BigEndian.PutUint32(b[0:], a.AreaID)
	binary.BigEndian.PutUint32(b[4:], a.NumSpfCalc)
	binary.BigEndian.PutUint32(b[8:], a.NumLSA)
	binary.BigEndian.PutUint32(b[12:], a.NumNbr)
	binary.BigEndian.PutUint32(b[16:], a.NumIface)
	b[20] = bit(a.Stub, 1) | bit(a.Active, 2)
	return b
}

func DecodeCtlArea(m *Msg) (CtlAreaRec, error) {
	if err := m.Expect(CtlAreaLen); err != nil {
		return CtlAreaRec{}, err
	}
	b := m.Data
	return CtlAreaRec{
		AreaID:     binary.BigEndian.Uint32(b[0:]),
		NumSpfCalc: binary.BigEndian.Uint32(b[4:]),
		NumLSA:     binary.BigEndian.Uint32(b[8:]),
		NumNbr:     binary.BigEndian.Uint32(b[12:]),
		NumIface:   binary.BigEndian.Uint32(b[16:]),
		Stub:       b[20]&1 != 0,
		Active:     b[20]&2 != 0,
	}, nil
}

// CtlLSARec is one database entry in a control dump.
type CtlLSARec struct {
	AreaID  uint32
	IfIndex uint32
	Scope   lsa.Scope
	LSA     []byte
}

func (r *CtlLSARec) Marshal() []byte {
	b := make([]byte, CtlLSAHdrLen, CtlLSAHdrLen+len(r.LSA))
	binary.BigEndian.PutUint32(b[0:], r.AreaID)
	binary.BigEndian.PutUint32(b[4:], r.IfIndex)
	b[8] = uint8(r.Scope)
	return append(b, r.LSA...)
}

func DecodeCtlLSA(m *Msg) (CtlLSARec, error) {
	if len(m.Data) < CtlLSAHdrLen+lsa.HeaderLen {
		return CtlLSARec{}, fmt.Errorf("%s: payload %d: %w", m.Type, len(m.Data), ErrBadSize)
	}
	b := m.Data
	return CtlLSARec{
		AreaID:  binary.BigEndian.Uint32(b[0:]),
		IfIndex: binary.BigEndian.Uint32(b[4:]),
		Scope:   lsa.Scope(b[8]),
		LSA:     b[CtlLSAHdrLen:],
	}, nil
}

// rib record flags
const (
	RibConnected = 0x01
	RibInvalid   = 0x02
)

// CtlRibRec is one next hop of one route in a control dump.
type CtlRibRec struct {
	Prefix    netip.Prefix
	DestType  uint8
	PathType  uint8
	Flags     uint8
	RouterID  uint32
	Nexthop   netip.Addr
	IfIndex   uint32
	AdvRouter uint32
	AreaID    uint32
	Cost      uint32
	Cost2     uint32
	ExtTag    uint32
	Uptime    time.Duration
}

func (r *CtlRibRec) Marshal() []byte {
	b := make([]byte, CtlRibLen)
	if r.Prefix.IsValid() {
		putPrefix(b, r.Prefix)
	}
	b[17] = r.DestType
	b[18] = r.PathType
	b[19] = r.Flags
	binary.BigEndian.PutUint32(b[20:], r.RouterID)
	putAddr(b[24:], r.Nexthop)
	binary.BigEndian.PutUint32(b[40:], r.IfIndex)
	binary.BigEndian.PutUint32(b[44:], r.AdvRouter)
	binary.BigEndian.PutUint32(b[48:], r.AreaID)
	binary.BigEndian.PutUint32(b[52:], r.Cost)
	binary.BigEndian.PutUint32(b[56:], r.Cost2)
	binary.BigEndian.PutUint32(b[60:], r.ExtTag)
	binary.BigEndian.PutUint64(b[64:], uint64(r.Uptime/time.Second))
	return b
}

func DecodeCtlRib(m *Msg) (CtlRibRec, error) {
	if err := m.Expect(CtlRibLen); err != nil {
		return CtlRibRec{}, err
	}
	b := m.Data
	r := CtlRibRec{
		DestType:  b[17],
		PathType:  b[18],
		Flags:     b[19],
		RouterID:  binary.BigEndian.Uint32(b[20:]),
		Nexthop:   getAddr(b[24:]),
		IfIndex:   binary.BigEndian.Uint32(b[40:]),
		AdvRouter: binary.BigEndian.Uint32(b[44:]),
		AreaID:    binary.BigEndian.Uint32(b[48:]),
		Cost:      binary.BigEndian.Uint32(b[52:]),
		Cost2:     binary.BigEndian.Uint32(b[56:]),
		ExtTag:    binary.BigEndian.Uint32(b[60:]),
		Uptime:    time.Duration(binary.BigEndian.Uint64(b[64:])) * time.Second,
	}
	if r.RouterID == 0 {
		pfx, err := getPrefix(b, m.Type.String())
		if err != nil {
			return CtlRibRec{}, err
		}
		r.Prefix = pfx
	}
	return r, nil
}

type CtlSummaryRec struct {
	RouterID  uint32
	SpfDelay  time.Duration
	SpfHold   time.Duration
	NumExtLSA uint32
	NumArea   uint32
	Uptime    time.Duration
}

func (s *CtlSummaryRec) Marshal() []byte {
	b := make([]byte, CtlSummaryLen)
	binary.BigEndian.PutUint32(b[0:], s.RouterID)
	binary.BigEndian.PutUint32(b[4:], uint32(s.SpfDelay.Milliseconds()))
	binary.BigEndian.PutUint32(b[8:], uint32(s.SpfHold.Milliseconds()))
	binary.BigEndian.PutUint32(b[12:], s.NumExtLSA)
	binary.BigEndian.PutUint32(b[16:], s.NumArea)
	binary.BigEndian.PutUint64(b[20:], uint64(s.Uptime/time.Second))
	return b
}

func DecodeCtlSummary(m *Msg) (CtlSummaryRec, error) {
	if err := m.Expect(CtlSummaryLen); err != nil {
		return CtlSummaryRec{}, err
	}
	b := m.Data
	return CtlSummaryRec{
		RouterID:  binary.BigEndian.Uint32(b[0:]),
		SpfDelay:  time.Duration(binary.BigEndian.Uint32(b[4:])) * time.Millisecond,
		SpfHold:   time.Duration(binary.BigEndian.Uint32(b[8:])) * time.Millisecond,
		NumExtLSA: binary.BigEndian.Uint32(b[12:]),
		NumArea:   binary.BigEndian.Uint32(b[16:]),
		Uptime:    time.Duration(binary.BigEndian.Uint64(b[20:])) * time.Second,
	}, nil
}
