// Package imsg frames typed messages exchanged between the route decision
// engine, the adjacency engine and the privileged parent.
//
// Every frame starts with a 16 octet header: type (32 bit), total length
// including the header (16 bit), flags (16 bit), peer id (32 bit) and
// process id (32 bit), all big endian.
package imsg

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	HeaderLen = 16
	MaxSize   = 16384
)

var (
	ErrBadSize  = errors.New("wrong imsg size")
	ErrTooLarge = errors.New("imsg too large")
)

type Header struct {
	Type   Type
	Len    uint16
	Flags  uint16
	PeerID uint32
	PID    uint32
}

type Msg struct {
	Header
	Data []byte
}

func (m *Msg) String() string {
	return fmt.Sprintf("%s peer %d len %d", m.Type, m.PeerID, len(m.Data))
}

// Expect returns ErrBadSize unless the payload is exactly n octets long.
func (m *Msg) Expect(n int) error {
	if len(m.Data) != n {
		return fmt.Errorf("%s: payload %d, want %d: %w", m.Type, len(m.Data), n, ErrBadSize)
	}
	return nil
}

// ExpectMultiple returns ErrBadSize unless the payload is a whole number of
// n octet records.
func (m *Msg) ExpectMultiple(n int) error {
	if len(m.Data)%n != 0 {
		return fmt.Errorf("%s: payload %d not a multiple of %d: %w", m.Type, len(m.Data), n, ErrBadSize)
	}
	return nil
}

func (m *Msg) Marshal() ([]byte, error) {
	total := HeaderLen + len(m.Data)
	if total > MaxSize {
		return nil, fmt.Errorf("%s: %d octets: %w", m.Type, total, ErrTooLarge)
	}
	b := make([]byte, HeaderLen, total)
	binary.BigEndian.PutUint32(b[0:], uint32(m.Type))
	binary.BigEndian.PutUint16(b[4:], uint16(total))
	binary.BigEndian.PutUint16(b[6:], m.Flags)
	binary.BigEndian.PutUint32(b[8:], m.PeerID)
	binary.BigEndian.PutUint32(b[12:], m.PID)
	return append(b, m.Data...), nil
}

func decodeHeader(b []byte) Header {
	return Header{
		Type:   Type(binary.BigEndian.Uint32(b[0:])),
		Len:    binary.BigEndian.Uint16(b[4:]),
		Flags:  binary.BigEndian.Uint16(b[6:]),
		PeerID: binary.BigEndian.Uint32(b[8:]),
		PID:    binary.BigEndian.Uint32(b[12:]),
	}
}

// Conn is a bidirectional message channel over a stream. Reads must come
// from a single goroutine, writes may be issued concurrently.
type Conn struct {
	rw  io.ReadWriter
	r   *bufio.Reader
	wmu sync.Mutex
}

func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{rw: rw, r: bufio.NewReaderSize(rw, MaxSize)}
}

// Read blocks until a complete frame is available.
func (c *Conn) Read() (*Msg, error) {
	var hb [HeaderLen]byte
	if _, err := io.ReadFull(c.r, hb[:]); err != nil {
		return nil, err
	}
	h := decodeHeader(hb[:])
	if h.Len < HeaderLen {
		return nil, fmt.Errorf("%s: frame length %d: %w", h.Type, h.Len, ErrBadSize)
	}
	data := make([]byte, int(h.Len)-HeaderLen)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return nil, fmt.Errorf("%s: %w", h.Type, err)
	}
	return &Msg{Header: h, Data: data}, nil
}

func (c *Conn) Write(m *Msg) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.rw.Write(b)
	return err
}

// Compose builds and writes a message in one step.
func (c *Conn) Compose(t Type, peerID, pid uint32, data []byte) error {
	return c.Write(&Msg{Header: Header{Type: t, PeerID: peerID, PID: pid}, Data: data})
}

// Close closes the underlying stream if it supports closing.
func (c *Conn) Close() error {
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
