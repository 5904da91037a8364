package state

import (
	"fmt"
	"net/netip"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/encodeous/ospf6rde/lsa"
)

var namePattern, _ = regexp.Compile("^[0-9a-zA-Z._-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid interface name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 15 {
		return fmt.Errorf("len(\"%s\") = %d > 15 is too long", s, len(s))
	}
	return nil
}

func AddrValidator(p netip.Prefix) error {
	if !p.IsValid() {
		return fmt.Errorf("invalid prefix")
	}
	if !p.Addr().Is6() || p.Addr().Is4In6() {
		return fmt.Errorf("%s is not an IPv6 prefix", p)
	}
	return nil
}

func ConfigValidator(cfg *Config) error {
	if _, err := lsa.ParseID(cfg.RouterId); err != nil {
		return fmt.Errorf("router_id: %w", err)
	}
	if cfg.SpfDelay < 0 || cfg.SpfHold < 0 {
		return fmt.Errorf("spf timers must not be negative")
	}
	areas := make(map[uint32]bool)
	indices := make(map[uint32]string)
	for _, area := range cfg.Areas {
		id, err := lsa.ParseID(area.Id)
		if err != nil {
			return fmt.Errorf("area %q: %w", area.Id, err)
		}
		if areas[id] {
			return fmt.Errorf("area %s is defined more than once", area.Id)
		}
		if id == 0 && area.Stub {
			return fmt.Errorf("the backbone area cannot be a stub area")
		}
		areas[id] = true
		for _, ic := range area.Interfaces {
			err = NameValidator(ic.Name)
			if err != nil {
				return err
			}
			if ic.Index == 0 {
				return fmt.Errorf("interface %s has no index", ic.Name)
			}
			if other, ok := indices[ic.Index]; ok {
				return fmt.Errorf("interface index %d is used by both %s and %s", ic.Index, other, ic.Name)
			}
			indices[ic.Index] = ic.Name
			if _, err = ParseIfaceType(ic.Type); err != nil {
				return fmt.Errorf("interface %s: %w", ic.Name, err)
			}
			for _, p := range ic.Addresses {
				if err = AddrValidator(p); err != nil {
					return fmt.Errorf("interface %s: %w", ic.Name, err)
				}
			}
		}
	}
	redist := cfg.Redistribute
	if redist.Type != 1 && redist.Type != 2 {
		return fmt.Errorf("redistribute.type must be 1 or 2, got %d", redist.Type)
	}
	if redist.Metric >= lsa.LSInfinity {
		return fmt.Errorf("redistribute.metric %d is not below LSInfinity", redist.Metric)
	}
	for _, p := range redist.Exclude {
		if err := AddrValidator(p); err != nil {
			return fmt.Errorf("redistribute.exclude: %w", err)
		}
	}
	switch cfg.Fib.Backend {
	case "parent", "netlink":
	default:
		return fmt.Errorf("fib.backend must be parent or netlink, got %q", cfg.Fib.Backend)
	}
	if cfg.LogPath != "" {
		if err := PathValidator(cfg.LogPath); err != nil {
			return fmt.Errorf("log_path: %w", err)
		}
	}
	return nil
}
