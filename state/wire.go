package state

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// WireNextHop is the RPC representation of a next-hop: an address plus an
// optional interface name of the form "intf<N>". Link-local addresses
// must carry the name, everything else must not.
type WireNextHop struct {
	Addr   netip.Addr `json:"ip"`
	IfName string     `json:"ifName,omitempty"`
}

// UnicastRoute is the RPC representation of one client route.
type UnicastRoute struct {
	Dest     netip.Prefix  `json:"dest"`
	NextHops []WireNextHop `json:"nexthops"`
}

const ifNamePrefix = "intf"

// IfName renders an interface id as its wire name.
func IfName(intf InterfaceID) string {
	return ifNamePrefix + strconv.FormatUint(uint64(intf), 10)
}

// ParseIfName parses a wire interface name back to an id.
func ParseIfName(name string) (InterfaceID, error) {
	num, ok := strings.CutPrefix(name, ifNamePrefix)
	if !ok {
		return 0, fmt.Errorf("interface name %q must start with %q", name, ifNamePrefix)
	}
	id, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("interface name %q: %w", name, err)
	}
	return InterfaceID(id), nil
}

// FromWire converts a wire next-hop, enforcing the link-local scoping
// rules: a link-local address requires an interface name, any other
// address forbids one.
func (w WireNextHop) FromWire() (NextHop, error) {
	addr := w.Addr.Unmap()
	if addr.IsLinkLocalUnicast() {
		if w.IfName == "" {
			return NextHop{}, fmt.Errorf("%w: link-local next-hop %s has no interface name", ErrInvalidNextHopScope, addr)
		}
		intf, err := ParseIfName(w.IfName)
		if err != nil {
			return NextHop{}, fmt.Errorf("%w: %v", ErrInvalidNextHopScope, err)
		}
		return NewScopedNextHop(addr, intf), nil
	}
	if w.IfName != "" {
		return NextHop{}, fmt.Errorf("%w: next-hop %s must not carry interface name %q", ErrInvalidNextHopScope, addr, w.IfName)
	}
	return NewNextHop(addr), nil
}

// ToWire converts a next-hop to its wire form, enforcing the same rules
// in the other direction.
func (nh NextHop) ToWire() (WireNextHop, error) {
	if err := nh.Validate(); err != nil {
		return WireNextHop{}, err
	}
	w := WireNextHop{Addr: nh.Addr}
	if nh.Scoped {
		w.IfName = IfName(nh.Intf)
	}
	return w, nil
}

// NextHopSetFromWire converts a wire next-hop list to a set.
func NextHopSetFromWire(wire []WireNextHop) (NextHopSet, error) {
	nhs := make(NextHopSet, len(wire))
	for _, w := range wire {
		nh, err := w.FromWire()
		if err != nil {
			return nil, err
		}
		nhs.Add(nh)
	}
	return nhs, nil
}
