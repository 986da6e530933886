package state

import (
	"fmt"
	"net"
	"net/netip"
	"os"

	"github.com/cilium/cilium/pkg/ip"
	"github.com/goccy/go-yaml"
	"go4.org/netipx"
)

// InterfaceCfg is one L3 interface of a router.
type InterfaceCfg struct {
	ID        InterfaceID    `yaml:"id"`
	Mac       string         `yaml:"mac,omitempty"`
	Addresses []netip.Prefix `yaml:"addresses"` // interface address with prefix length, e.g. 1.1.1.1/24
}

// RouterCfg is one virtual router (VRF) and its interfaces.
type RouterCfg struct {
	ID         RouterID       `yaml:"id"`
	Interfaces []InterfaceCfg `yaml:"interfaces,omitempty"`
}

// AgentCfg is the agent configuration loaded from yaml.
type AgentCfg struct {
	Routers    []RouterCfg `yaml:"routers"`
	Alpm       bool        `yaml:"alpm,omitempty"`        // hardware requires default routes to always be programmed
	SocketPath string      `yaml:"socket_path,omitempty"` // unix socket for ribd inspect
	LogPath    string      `yaml:"log_path,omitempty"`    // if not empty, ribd will also write to this file
}

// DefaultSocketPath is used when the config does not name one.
const DefaultSocketPath = "/var/run/ribd.sock"

func ReadAgentConfig(path string) (*AgentCfg, error) {
	var cfg AgentCfg
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, err
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}
	return &cfg, nil
}

// InterfaceMap converts the config to the updater input.
func (c *AgentCfg) InterfaceMap() InterfaceMap {
	im := make(InterfaceMap)
	for _, router := range c.Routers {
		for _, intf := range router.Interfaces {
			im.Add(router.ID, Interface{
				ID:    intf.ID,
				Mac:   intf.Mac,
				Addrs: intf.Addresses,
			})
		}
	}
	return im
}

// AgentConfigValidator rejects configs the updater would choke on:
// duplicate ids, malformed macs, interfaces with no addresses or an
// invalid one, and the same connected prefix claimed by two interfaces of
// one router. An address equal to its network address is accepted.
func AgentConfigValidator(c *AgentCfg) error {
	seenRouters := make(map[RouterID]bool)
	for _, router := range c.Routers {
		if seenRouters[router.ID] {
			return fmt.Errorf("duplicate router id %d", router.ID)
		}
		seenRouters[router.ID] = true

		seenIntfs := make(map[InterfaceID]bool)
		claimed := make(map[netip.Prefix]InterfaceID)
		for _, intf := range router.Interfaces {
			if seenIntfs[intf.ID] {
				return fmt.Errorf("router %d: duplicate interface id %d", router.ID, intf.ID)
			}
			seenIntfs[intf.ID] = true
			if intf.Mac != "" {
				if _, err := net.ParseMAC(intf.Mac); err != nil {
					return fmt.Errorf("router %d intf %d: %w", router.ID, intf.ID, err)
				}
			}
			if len(intf.Addresses) == 0 {
				return fmt.Errorf("router %d intf %d: no addresses", router.ID, intf.ID)
			}
			for _, addr := range intf.Addresses {
				if !addr.IsValid() {
					return fmt.Errorf("router %d intf %d: invalid address", router.ID, intf.ID)
				}
				network := addr.Masked()
				if other, ok := claimed[network]; ok && other != intf.ID {
					return fmt.Errorf("router %d: prefix %s claimed by intf %d and intf %d: %w",
						router.ID, network, other, intf.ID, ErrPrefixConflict)
				}
				claimed[network] = intf.ID
			}
		}
	}
	return nil
}

// ConnectedCoverage summarizes the address space reachable via connected
// routes, coalesced into the fewest covering prefixes.
func (c *AgentCfg) ConnectedCoverage() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0)
	for _, router := range c.Routers {
		for _, intf := range router.Interfaces {
			for _, addr := range intf.Addresses {
				prefixes = append(prefixes, addr.Masked())
			}
		}
	}
	return CoalescePrefix(prefixes)
}

func toIPNets(prefixes []netip.Prefix) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(prefixes))
	for _, p := range prefixes {
		if p.IsValid() {
			nets = append(nets, netipx.PrefixIPNet(p))
		}
	}
	return nets
}

func fromIPNets(nets []*net.IPNet) []netip.Prefix {
	output := make([]netip.Prefix, 0, len(nets))
	for _, n := range nets {
		if p, _ := netipx.FromStdIPNet(n); p.IsValid() {
			output = append(output, p)
		}
	}
	return output
}

// SubtractPrefix removes the excluded ranges from the included ones.
func SubtractPrefix(includesPrefix, excludesPrefix []netip.Prefix) []netip.Prefix {
	result := ip.RemoveCIDRs(toIPNets(includesPrefix), toIPNets(excludesPrefix))
	ipv4, ipv6 := ip.CoalesceCIDRs(result)
	return fromIPNets(append(ipv4, ipv6...))
}

// CoalescePrefix merges adjacent and overlapping prefixes.
func CoalescePrefix(prefixes []netip.Prefix) []netip.Prefix {
	ipv4, ipv6 := ip.CoalesceCIDRs(toIPNets(prefixes))
	return fromIPNets(append(ipv4, ipv6...))
}
