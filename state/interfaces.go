package state

import (
	"net/netip"
	"slices"
)

// Interface is the L3 view of one interface: its id, mac, and the set of
// addresses (with prefix length) assigned to it.
type Interface struct {
	ID    InterfaceID
	Mac   string
	Addrs []netip.Prefix
}

// InterfaceMap is the input the config layer hands to the updater:
// router id -> interface id -> interface. Connected and link-local routes
// are derived from it.
type InterfaceMap map[RouterID]map[InterfaceID]Interface

// Add registers an interface under a router.
func (m InterfaceMap) Add(router RouterID, intf Interface) {
	intfs, ok := m[router]
	if !ok {
		intfs = make(map[InterfaceID]Interface)
		m[router] = intfs
	}
	intfs[intf.ID] = intf
}

// Routers returns the router ids in ascending order.
func (m InterfaceMap) Routers() []RouterID {
	ids := make([]RouterID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Interfaces returns a router's interfaces in ascending id order.
func (m InterfaceMap) Interfaces(router RouterID) []Interface {
	intfs := make([]Interface, 0, len(m[router]))
	for _, intf := range m[router] {
		intfs = append(intfs, intf)
	}
	slices.SortFunc(intfs, func(a, b Interface) int {
		return int(a.ID) - int(b.ID)
	})
	return intfs
}
