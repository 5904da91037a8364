package state

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/cilium/cilium/pkg/ip"
	"github.com/goccy/go-yaml"
)

var ConfigPath = "/etc/ospf6rde/rde.yaml"

type IfaceCfg struct {
	Name    string
	Index   uint32
	Type    string `yaml:",omitempty"` // point-to-point, broadcast, nbma, point-to-multipoint, virtual
	Metric  uint16 `yaml:",omitempty"`
	Passive bool   `yaml:",omitempty"`
	// Addresses are normally learned from the parent, configuring them here
	// is useful when running without one.
	Addresses []netip.Prefix `yaml:",omitempty"`
}

type AreaCfg struct {
	Id         string
	Stub       bool `yaml:",omitempty"`
	Interfaces []IfaceCfg
}

type RedistributeCfg struct {
	// Exclude prefixes are never announced as AS-External routes, even when
	// the parent redistributes a covering route.
	Exclude []netip.Prefix `yaml:",omitempty"`
	Metric  uint32         `yaml:",omitempty"`
	Type    uint8          `yaml:",omitempty"` // external metric type, 1 or 2
	Tag     uint32         `yaml:",omitempty"`
}

type FibCfg struct {
	Backend string `yaml:",omitempty"` // parent or netlink
	Table   int    `yaml:",omitempty"` // netlink only
}

type SocketCfg struct {
	Engine  string `yaml:",omitempty"`
	Parent  string `yaml:",omitempty"`
	Control string `yaml:",omitempty"`
}

// Config is the configuration of the route decision engine.
type Config struct {
	RouterId     string          `yaml:"router_id"`
	SpfDelay     time.Duration   `yaml:"spf_delay,omitempty"`
	SpfHold      time.Duration   `yaml:"spf_hold,omitempty"`
	Areas        []AreaCfg       `yaml:",omitempty"`
	Redistribute RedistributeCfg `yaml:",omitempty"`
	Fib          FibCfg          `yaml:",omitempty"`
	Sockets      SocketCfg       `yaml:",omitempty"`
	LogPath      string          `yaml:"log_path,omitempty"` // if not empty, logs are also written to this file
}

func ReadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	ExpandConfig(&cfg)
	return &cfg, nil
}

// ExpandConfig fills in defaults for fields left empty.
func ExpandConfig(cfg *Config) {
	if cfg.SpfDelay == 0 {
		cfg.SpfDelay = SpfDelay
	}
	if cfg.SpfHold == 0 {
		cfg.SpfHold = SpfHold
	}
	if cfg.Redistribute.Type == 0 {
		cfg.Redistribute.Type = 2
	}
	if cfg.Redistribute.Metric == 0 {
		cfg.Redistribute.Metric = 100
	}
	if len(cfg.Redistribute.Exclude) > 1 {
		cfg.Redistribute.Exclude = CoalescePrefix(cfg.Redistribute.Exclude)
	}
	if cfg.Fib.Backend == "" {
		cfg.Fib.Backend = "parent"
	}
	if cfg.Sockets.Engine == "" {
		cfg.Sockets.Engine = EngineSocket
	}
	if cfg.Sockets.Parent == "" {
		cfg.Sockets.Parent = ParentSocket
	}
	if cfg.Sockets.Control == "" {
		cfg.Sockets.Control = ControlSocket
	}
	for i := range cfg.Areas {
		for j := range cfg.Areas[i].Interfaces {
			ic := &cfg.Areas[i].Interfaces[j]
			if ic.Type == "" {
				ic.Type = IfaceBroadcast.String()
			}
			if ic.Metric == 0 {
				ic.Metric = DefaultMetric
			}
		}
	}
}

func toIPNets(prefixes []netip.Prefix) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(prefixes))
	for _, p := range prefixes {
		if p.IsValid() {
			nets = append(nets, &net.IPNet{
				IP:   p.Addr().AsSlice(),
				Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
			})
		}
	}
	return nets
}

func fromIPNets(nets []*net.IPNet) []netip.Prefix {
	output := make([]netip.Prefix, 0, len(nets))
	for _, n := range nets {
		if addr, ok := netip.AddrFromSlice(n.IP); ok {
			ones, _ := n.Mask.Size()
			output = append(output, netip.PrefixFrom(addr.Unmap(), ones))
		}
	}
	return output
}

// SubtractPrefix removes the excluded ranges from the included ones and
// returns the remainder in coalesced form.
func SubtractPrefix(includesPrefix, excludesPrefix []netip.Prefix) []netip.Prefix {
	result := ip.RemoveCIDRs(toIPNets(includesPrefix), toIPNets(excludesPrefix))
	ipv4, ipv6 := ip.CoalesceCIDRs(result)
	return fromIPNets(append(ipv4, ipv6...))
}

// CoalescePrefix merges adjacent and overlapping ranges.
func CoalescePrefix(prefixes []netip.Prefix) []netip.Prefix {
	ipv4, ipv6 := ip.CoalesceCIDRs(toIPNets(prefixes))
	return fromIPNets(append(ipv4, ipv6...))
}
