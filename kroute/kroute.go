// Package kroute programs the routes computed by the route decision engine
// into a forwarding table.
package kroute

import (
	"fmt"
	"log/slog"

	"github.com/encodeous/ospf6rde/imsg"
)

// Sender writes one message to the privileged parent.
type Sender interface {
	Compose(t imsg.Type, peerID, pid uint32, data []byte) error
}

// Backend installs and removes routes. Change replaces every next hop of
// one prefix.
type Backend interface {
	Change(routes []imsg.KRoute) error
	Delete(route imsg.KRoute) error
	Close() error
}

// New selects a backend by name. parent hands routes to the privileged
// parent, netlink programs the kernel directly.
func New(name string, table int, parent Sender, log *slog.Logger) (Backend, error) {
	switch name {
	case "parent":
		if parent == nil {
			return nil, fmt.Errorf("kroute: parent backend without a parent connection")
		}
		return &Parent{Out: parent}, nil
	case "netlink":
		return NewNetlink(table, log)
	default:
		return nil, fmt.Errorf("kroute: unknown backend %q", name)
	}
}
