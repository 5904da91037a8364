//go:build integration

package integration

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/encodeous/ospf6rde/core"
	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/state"
	"github.com/stretchr/testify/require"
)

type Signal chan bool

func NewSignal() Signal {
	return make(chan bool)
}
func (s Signal) Trigger() {
	select {
	case <-s:
	default:
		close(s)
	}
}
func (s Signal) Wait() {
	<-s
}

// Collaborator stands in for one side of an imsg channel of the engine: the
// adjacency engine or the parent. It accepts a single connection.
type Collaborator struct {
	Name  string
	l     net.Listener
	conn  *imsg.Conn
	msgs  chan *imsg.Msg
	ready Signal
}

func Listen(t *testing.T, path, name string) *Collaborator {
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	c := &Collaborator{
		Name:  name,
		l:     l,
		msgs:  make(chan *imsg.Msg, 256),
		ready: NewSignal(),
	}
	go c.serve()
	return c
}

func (c *Collaborator) serve() {
	defer close(c.msgs)
	conn, err := c.l.Accept()
	if err != nil {
		c.ready.Trigger()
		return
	}
	c.conn = imsg.NewConn(conn)
	c.ready.Trigger()
	for {
		m, err := c.conn.Read()
		if err != nil {
			return
		}
		c.msgs <- m
	}
}

func (c *Collaborator) Send(t *testing.T, typ imsg.Type, peer uint32, data []byte) {
	c.ready.Wait()
	require.NotNil(t, c.conn, "%s: no connection", c.Name)
	require.NoError(t, c.conn.Compose(typ, peer, 0, data))
}

// Expect skips messages until one of type typ arrives.
func (c *Collaborator) Expect(t *testing.T, typ imsg.Type, timeout time.Duration) *imsg.Msg {
	deadline := time.After(timeout)
	for {
		select {
		case m, ok := <-c.msgs:
			if !ok {
				t.Fatalf("%s: channel closed while waiting for %s", c.Name, typ)
			}
			if m.Type == typ {
				return m
			}
		case <-deadline:
			t.Fatalf("%s: timed out waiting for %s", c.Name, typ)
		}
	}
}

// Close drops the connection, which the engine treats as fatal.
func (c *Collaborator) Close() {
	_ = c.l.Close()
	c.ready.Wait()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// RdeHarness runs a complete engine process against fake collaborators.
type RdeHarness struct {
	Dir    string
	Config state.Config
	Engine *Collaborator
	Parent *Collaborator
	errs   chan error
}

func NewHarness(t *testing.T, routerID string) *RdeHarness {
	// unix socket paths are short, t.TempDir is too deep on some systems
	dir, err := os.MkdirTemp("", "rde")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})
	cfg := state.Config{
		RouterId: routerID,
		Sockets: state.SocketCfg{
			Engine:  filepath.Join(dir, "engine.sock"),
			Parent:  filepath.Join(dir, "parent.sock"),
			Control: filepath.Join(dir, "ctl.sock"),
		},
	}
	return &RdeHarness{Dir: dir, Config: cfg}
}

func (h *RdeHarness) AddIface(area string, index uint32, typ state.IfaceType, addrs ...string) {
	ic := state.IfaceCfg{
		Name:  fmt.Sprintf("eth%d", index),
		Index: index,
		Type:  typ.String(),
	}
	for _, a := range addrs {
		ic.Addresses = append(ic.Addresses, netip.MustParsePrefix(a))
	}
	for i := range h.Config.Areas {
		if h.Config.Areas[i].Id == area {
			h.Config.Areas[i].Interfaces = append(h.Config.Areas[i].Interfaces, ic)
			return
		}
	}
	h.Config.Areas = append(h.Config.Areas, state.AreaCfg{Id: area, Interfaces: []state.IfaceCfg{ic}})
}

// Start launches the engine. The collaborators must be listening before the
// engine connects.
func (h *RdeHarness) Start(t *testing.T) {
	h.Engine = Listen(t, h.Config.Sockets.Engine, "engine")
	h.Parent = Listen(t, h.Config.Sockets.Parent, "parent")
	state.ExpandConfig(&h.Config)
	require.NoError(t, state.ConfigValidator(&h.Config))

	h.errs = make(chan error, 1)
	cfg := h.Config
	go func() {
		h.errs <- core.Start(cfg, slog.LevelDebug, nil)
	}()
	h.Engine.ready.Wait()
	h.Parent.ready.Wait()
}

// Query runs one control query, retrying until the control socket is up.
func (h *RdeHarness) Query(t *testing.T, typ imsg.Type) []*imsg.Msg {
	var msgs []*imsg.Msg
	require.Eventually(t, func() bool {
		var err error
		msgs, err = core.CtlQuery(h.Config.Sockets.Control, typ)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	return msgs
}

// Stop closes the engine channel and returns the error the engine exited
// with.
func (h *RdeHarness) Stop(t *testing.T) error {
	h.Engine.Close()
	defer h.Parent.Close()
	select {
	case err := <-h.errs:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
		return errors.New("unreachable")
	}
}
