package lsa

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// prefix options, RFC 5340 section A.4.1.1
const (
	PrefixOptNU = 0x01 // no unicast
	PrefixOptLA = 0x02 // local address
	PrefixOptMC = 0x04 // multicast
	PrefixOptP  = 0x08 // propagate
	PrefixOptDN = 0x10
)

// Prefix is an IPv6 address prefix as carried inside LSA bodies. The 16 bit
// field following the options is a metric in Intra-Area-Prefix LSAs, the
// referenced LS type in AS-External LSAs and unused elsewhere.
type Prefix struct {
	Prefix  netip.Prefix
	Options uint8
	Aux     uint16
}

// PrefixSize returns the number of octets used to encode a prefix of the
// given length, padded to 32 bit words.
func PrefixSize(bits int) int {
	return ((bits + 31) / 32) * 4
}

func (p Prefix) String() string {
	if p.Options == 0 {
		return p.Prefix.String()
	}
	return fmt.Sprintf("%s opts 0x%02x", p.Prefix, p.Options)
}

// wireLen is the encoded size of the prefix including the 4 octet preamble.
func (p Prefix) wireLen() int {
	return 4 + PrefixSize(p.Prefix.Bits())
}

func (p Prefix) append(b []byte) []byte {
	bits := p.Prefix.Bits()
	b = append(b, uint8(bits), p.Options)
	b = binary.BigEndian.AppendUint16(b, p.Aux)
	addr := p.Prefix.Masked().Addr().As16()
	return append(b, addr[:PrefixSize(bits)]...)
}

// decodePrefix reads one prefix from b and returns it together with the
// number of octets consumed.
func decodePrefix(b []byte) (Prefix, int, error) {
	if len(b) < 4 {
		return Prefix{}, 0, fmt.Errorf("prefix: %w", ErrTruncated)
	}
	bits := int(b[0])
	if bits > 128 {
		return Prefix{}, 0, fmt.Errorf("prefix length %d: %w", bits, ErrMalformed)
	}
	size := PrefixSize(bits)
	if len(b) < 4+size {
		return Prefix{}, 0, fmt.Errorf("prefix /%d: %w", bits, ErrTruncated)
	}
	var addr [16]byte
	copy(addr[:], b[4:4+size])
	pfx, err := netip.AddrFrom16(addr).Prefix(bits)
	if err != nil {
		return Prefix{}, 0, fmt.Errorf("prefix: %w", err)
	}
	return Prefix{
		Prefix:  pfx,
		Options: b[1],
		Aux:     binary.BigEndian.Uint16(b[2:]),
	}, 4 + size, nil
}

// SamePrefix reports whether both prefixes describe the same destination.
func SamePrefix(a, b netip.Prefix) bool {
	return a.Bits() == b.Bits() && a.Masked().Addr() == b.Masked().Addr()
}
