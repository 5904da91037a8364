package core

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/kroute"
	"github.com/encodeous/ospf6rde/state"
)

// Rde is the module running the route decision engine. It connects to the
// adjacency engine and the parent and serves the control socket.
type Rde struct {
	*Engine
	env    *state.Env
	engine *imsg.Conn
	parent *imsg.Conn
	fib    kroute.Backend
	ctl    net.Listener
}

func (r *Rde) ToEngine(t imsg.Type, peerID uint32, data []byte) {
	if err := r.engine.Compose(t, peerID, 0, data); err != nil {
		r.env.Cancel(fmt.Errorf("write to engine: %w", err))
	}
}

func (r *Rde) ToParent(t imsg.Type, data []byte) {
	if err := r.parent.Compose(t, 0, 0, data); err != nil {
		r.env.Cancel(fmt.Errorf("write to parent: %w", err))
	}
}

func dialImsg(path string) (*imsg.Conn, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return imsg.NewConn(conn), nil
}

func (r *Rde) Init(s *state.State) error {
	r.env = s.Env
	var err error
	r.engine, err = dialImsg(s.Sockets.Engine)
	if err != nil {
		return fmt.Errorf("connect to engine: %w", err)
	}
	r.parent, err = dialImsg(s.Sockets.Parent)
	if err != nil {
		return fmt.Errorf("connect to parent: %w", err)
	}
	r.fib, err = kroute.New(s.Fib.Backend, s.Fib.Table, r.parent, s.Log)
	if err != nil {
		return err
	}
	r.Engine, err = NewEngineFromConfig(&s.Config, r, r.fib, loopClock{env: s.Env}, s.Log)
	if err != nil {
		return err
	}

	if err := os.Remove(s.Sockets.Control); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale control socket: %w", err)
	}
	r.ctl, err = net.Listen("unix", s.Sockets.Control)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}

	go readLoop(s.Env, "engine", r.engine, r.HandleEngine)
	go readLoop(s.Env, "parent", r.parent, r.HandleParent)
	go ServeCtl(s.Env, r.ctl)
	s.RepeatTask(func(s *state.State) error {
		r.PurgeReplies()
		return nil
	}, state.ReplyPurgeInterval)
	s.Log.Info("route decision engine started", "router_id", s.RouterId, "areas", len(r.Areas))
	return nil
}

// readLoop dispatches every message read from c onto the main loop. A
// broken channel stops the process.
func readLoop(e *state.Env, name string, c *imsg.Conn, handle func(*imsg.Msg) error) {
	for {
		m, err := c.Read()
		if err != nil {
			if e.Context.Err() == nil {
				e.Cancel(fmt.Errorf("%s channel: %w", name, err))
			}
			return
		}
		e.Dispatch(func(s *state.State) error {
			return handle(m)
		})
	}
}

func (r *Rde) Cleanup(s *state.State) error {
	var errs []error
	if r.Engine != nil {
		r.Engine.Close()
	}
	if r.ctl != nil {
		errs = append(errs, r.ctl.Close())
	}
	if r.fib != nil {
		errs = append(errs, r.fib.Close())
	}
	if r.engine != nil {
		errs = append(errs, r.engine.Close())
	}
	if r.parent != nil {
		errs = append(errs, r.parent.Close())
	}
	return errors.Join(errs...)
}
