package kroute

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/encodeous/ospf6rde/imsg"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Netlink installs routes into a kernel table with the OSPF protocol id.
type Netlink struct {
	table int
	log   *slog.Logger
}

func NewNetlink(table int, log *slog.Logger) (*Netlink, error) {
	if table == 0 {
		table = unix.RT_TABLE_MAIN
	}
	n := &Netlink{table: table, log: log}
	if err := n.flush(); err != nil {
		return nil, err
	}
	return n, nil
}

func ipNet(p netip.Prefix) *net.IPNet {
	p = p.Masked()
	return &net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
	}
}

func (n *Netlink) route(p netip.Prefix) *netlink.Route {
	return &netlink.Route{
		Family:   netlink.FAMILY_V6,
		Dst:      ipNet(p),
		Protocol: netlink.RouteProtocol(unix.RTPROT_OSPF),
		Table:    n.table,
	}
}

// flush removes routes left behind by a previous run.
func (n *Netlink) flush() error {
	filter := &netlink.Route{
		Protocol: netlink.RouteProtocol(unix.RTPROT_OSPF),
		Table:    n.table,
	}
	routes, err := netlink.RouteListFiltered(netlink.FAMILY_V6, filter, netlink.RT_FILTER_PROTOCOL|netlink.RT_FILTER_TABLE)
	if err != nil {
		return fmt.Errorf("list routes: %w", err)
	}
	for i := range routes {
		if err := netlink.RouteDel(&routes[i]); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("delete stale route %s: %w", routes[i].Dst, err)
		}
	}
	if len(routes) > 0 {
		n.log.Info("flushed stale routes", "count", len(routes), "table", n.table)
	}
	return nil
}

func (n *Netlink) Change(routes []imsg.KRoute) error {
	if len(routes) == 0 {
		return fmt.Errorf("kroute change: no next hop")
	}
	r := n.route(routes[0].Prefix)
	r.Priority = int(routes[0].Metric)
	if len(routes) == 1 {
		r.Gw = net.IP(routes[0].Nexthop.AsSlice())
		r.LinkIndex = int(routes[0].IfIndex)
	} else {
		for _, kr := range routes {
			r.MultiPath = append(r.MultiPath, &netlink.NexthopInfo{
				LinkIndex: int(kr.IfIndex),
				Gw:        net.IP(kr.Nexthop.AsSlice()),
			})
		}
	}
	if err := netlink.RouteReplace(r); err != nil {
		return fmt.Errorf("replace route %s: %w", routes[0].Prefix, err)
	}
	return nil
}

func (n *Netlink) Delete(route imsg.KRoute) error {
	err := netlink.RouteDel(n.route(route.Prefix))
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("delete route %s: %w", route.Prefix, err)
	}
	return nil
}

func (n *Netlink) Close() error {
	return n.flush()
}
