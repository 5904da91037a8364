package core

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/state"
)

// ServeCtl accepts control connections until l is closed.
func ServeCtl(e *state.Env, l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				e.Log.Warn("control socket accept failed", "error", err)
			}
			return
		}
		go handleCtlConn(e, conn)
	}
}

// handleCtlConn answers queries on one connection. Queries run on the main
// loop, replies are written from this goroutine.
func handleCtlConn(e *state.Env, conn net.Conn) {
	defer conn.Close()
	c := imsg.NewConn(conn)
	for {
		m, err := c.Read()
		if err != nil {
			return
		}
		var replies []*imsg.Msg
		_, err = e.DispatchWait(func(s *state.State) (any, error) {
			Get[*Rde](s).HandleCtl(m, func(t imsg.Type, data []byte) {
				replies = append(replies, &imsg.Msg{Header: imsg.Header{Type: t, PID: m.PID}, Data: data})
			})
			return nil, nil
		})
		if err != nil {
			return
		}
		for _, r := range replies {
			if err := c.Write(r); err != nil {
				e.Log.Debug("control reply failed", "error", err)
				return
			}
		}
	}
}

// CtlQuery sends one query to a running engine and collects the reply
// records up to the terminating CtlEnd.
func CtlQuery(path string, t imsg.Type) ([]*imsg.Msg, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	c := imsg.NewConn(conn)
	defer c.Close()

	if err := c.Compose(t, 0, uint32(os.Getpid()), nil); err != nil {
		return nil, err
	}
	var out []*imsg.Msg
	for {
		m, err := c.Read()
		if err != nil {
			return nil, err
		}
		switch m.Type {
		case imsg.CtlEnd:
			return out, nil
		case imsg.CtlFail:
			return nil, fmt.Errorf("query %s failed", t)
		default:
			out = append(out, m)
		}
	}
}
