package lsa

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTruncated   = errors.New("truncated")
	ErrMalformed   = errors.New("malformed")
	ErrUnknownType = errors.New("unknown lsa type")
	ErrChecksum    = errors.New("bad checksum")
	ErrBadAge      = errors.New("bad age")
	ErrBadSeqNum   = errors.New("reserved sequence number")
	ErrLength      = errors.New("length mismatch")
)

// LSA is a decoded link state advertisement.
type LSA struct {
	Header
	Body Body
	// Raw holds the octets the instance was parsed from or last marshalled
	// to. Reserved fields and prefix padding survive only here.
	Raw []byte
}

// Parse decodes and structurally validates one LSA. The checksum is verified
// over the octets following the age field.
func Parse(b []byte) (*LSA, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	if int(h.Length) != len(b) {
		return nil, fmt.Errorf("lsa %s: header length %d, have %d: %w", h.Key(), h.Length, len(b), ErrLength)
	}
	if !VerifyChecksum(b) {
		return nil, fmt.Errorf("lsa %s: %w", h.Key(), ErrChecksum)
	}
	if h.Age > MaxAge {
		return nil, fmt.Errorf("lsa %s: age %d: %w", h.Key(), h.Age, ErrBadAge)
	}
	if h.SeqNum == ReservedSequenceNumber {
		return nil, fmt.Errorf("lsa %s: %w", h.Key(), ErrBadSeqNum)
	}
	body, err := decodeBody(h.Type, b[HeaderLen:])
	if err != nil {
		return nil, fmt.Errorf("lsa %s: %w", h.Key(), err)
	}
	return &LSA{Header: h, Body: body, Raw: bytes.Clone(b)}, nil
}

// New builds an LSA with a computed length. The checksum is filled in by
// Marshal.
func New(h Header, body Body) *LSA {
	h.Type = body.Type()
	l := &LSA{Header: h, Body: body}
	l.Length = uint16(len(l.Body.appendTo(nil)) + HeaderLen)
	return l
}

// Marshal encodes the LSA from its body, updating Length, Checksum and Raw
// in place. Only self-originated instances are marshalled.
func (l *LSA) Marshal() []byte {
	b := make([]byte, 0, HeaderLen+64)
	l.Checksum = 0
	b = l.Header.Append(b)
	b = l.Body.appendTo(b)
	l.Length = uint16(len(b))
	b[18] = uint8(l.Length >> 8)
	b[19] = uint8(l.Length)
	l.Checksum = Checksum(b)
	b[checksumOffset] = uint8(l.Checksum >> 8)
	b[checksumOffset+1] = uint8(l.Checksum)
	l.Raw = b
	return bytes.Clone(b)
}

// Bytes returns the wire form of the instance carrying its current age.
// A received instance is returned exactly as it arrived, only instances
// built locally are encoded from the body.
func (l *LSA) Bytes() []byte {
	if l.Raw == nil {
		return l.Marshal()
	}
	b := bytes.Clone(l.Raw)
	binary.BigEndian.PutUint16(b[0:], l.Age)
	return b
}

// Clone returns a deep enough copy for header modifications. Bodies are
// treated as immutable once built.
func (l *LSA) Clone() *LSA {
	c := *l
	return &c
}

// Equal reports whether both LSAs carry the same body. Instances at MaxAge
// are never equal to anything.
func Equal(a, b *LSA) bool {
	if a == nil || b == nil || a.Type != b.Type {
		return false
	}
	if a.Age >= MaxAge || b.Age >= MaxAge {
		return false
	}
	return bytes.Equal(a.Body.appendTo(nil), b.Body.appendTo(nil))
}

// NumLinks returns the number of topology links in a Router or Network LSA.
func (l *LSA) NumLinks() int {
	switch b := l.Body.(type) {
	case *Router:
		return len(b.Links)
	case *Network:
		return len(b.AttachedRouters)
	default:
		return 0
	}
}
