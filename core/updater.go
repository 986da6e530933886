package core

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/encodeous/ribd/perf"
	"github.com/encodeous/ribd/state"
)

var (
	defaultV4 = netip.MustParsePrefix("0.0.0.0/0")
	defaultV6 = netip.MustParsePrefix("::/0")
	linkLocal = netip.MustParsePrefix("fe80::/64")
)

// RouteUpdater is a bulk transaction against a published RouteTableMap.
// Mutations build a private clone tree with lazy copy-on-write; untouched
// tables keep sharing the old snapshot's nodes. UpdateDone runs the full
// resolution pass and publishes a new snapshot, or reports that nothing
// changed.
//
// An updater dropped without UpdateDone leaves the published snapshot
// unaffected. Only one updater may operate against a snapshot's future at
// a time; readers of published snapshots need no synchronization.
type RouteUpdater struct {
	log    *slog.Logger
	orig   *state.RouteTableMap
	clone  *state.RouteTableMap
	cloned map[state.RouterID]bool

	// Alpm keeps the v4/v6 default routes always present in the default
	// VRF, re-inserting a synthetic drop default when a client removes
	// its own.
	Alpm bool
}

// NewRouteUpdater starts a transaction against cur.
func NewRouteUpdater(log *slog.Logger, cur *state.RouteTableMap) *RouteUpdater {
	clone := state.NewRouteTableMap()
	for _, id := range cur.RouterIDs() {
		clone.SetTable(cur.Table(id))
	}
	return &RouteUpdater{
		log:    log,
		orig:   cur,
		clone:  clone,
		cloned: make(map[state.RouterID]bool),
	}
}

// writableTable returns the router's table ready for mutation, cloning
// table and ribs on first touch and creating the table for a new router.
func (u *RouteUpdater) writableTable(router state.RouterID) *state.RouteTable {
	if u.cloned[router] {
		return u.clone.Table(router)
	}
	t := u.clone.Table(router)
	if t == nil {
		t = state.NewRouteTable(router)
	} else {
		t = t.CloneForWrite()
		t.SetRibV4(t.RibV4().CloneForWrite())
		t.SetRibV6(t.RibV6().CloneForWrite())
	}
	u.clone.SetTable(t)
	u.cloned[router] = true
	return t
}

// writableRoute returns the route for prefix ready for mutation, creating
// it if absent and cloning it on first write.
func (u *RouteUpdater) writableRoute(rib *state.Rib, prefix netip.Prefix) *state.Route {
	rt := rib.ExactMatch(prefix)
	if rt == nil {
		rt = state.NewRoute(prefix)
		rib.Insert(rt)
		return rt
	}
	if rt.IsPublished() {
		rt = rt.CloneForWrite()
		rib.Insert(rt)
	}
	return rt
}

// AddRoute contributes a client's next-hop set for a prefix. Empty sets
// are rejected before anything is touched.
func (u *RouteUpdater) AddRoute(router state.RouterID, prefix netip.Prefix, client state.ClientID, nhs state.NextHopSet) error {
	if len(nhs) == 0 {
		return fmt.Errorf("add route %s: %w", prefix, state.ErrEmptyNextHops)
	}
	t := u.writableTable(router)
	rt := u.writableRoute(t.RibForPrefix(prefix), prefix)
	if err := rt.Update(client, nhs); err != nil {
		return err
	}
	u.log.Debug("add route", "router", router, "prefix", prefix, "client", client, "nexthops", nhs)
	return nil
}

// AddActionRoute contributes a bare Drop/ToCPU route owned by the static
// client.
func (u *RouteUpdater) AddActionRoute(router state.RouterID, prefix netip.Prefix, action state.ForwardAction) error {
	return u.addActionRoute(router, prefix, action, state.ClientStatic)
}

func (u *RouteUpdater) addActionRoute(router state.RouterID, prefix netip.Prefix, action state.ForwardAction, client state.ClientID) error {
	if action == state.ActionNextHops {
		return fmt.Errorf("add route %s: action route must be Drop or ToCPU", prefix)
	}
	t := u.writableTable(router)
	rt := u.writableRoute(t.RibForPrefix(prefix), prefix)
	rt.UpdateAction(action, client)
	u.log.Debug("add action route", "router", router, "prefix", prefix, "action", action)
	return nil
}

// AddInterfaceRoute contributes a connected route: addr is the interface's
// own address, prefixLen its mask. The route resolves to a single egress
// on that interface.
func (u *RouteUpdater) AddInterfaceRoute(router state.RouterID, intf state.InterfaceID, addr netip.Addr, prefixLen int) error {
	prefix := netip.PrefixFrom(addr.Unmap(), prefixLen)
	if !prefix.IsValid() {
		return fmt.Errorf("interface %d: invalid prefix %s/%d", intf, addr, prefixLen)
	}
	t := u.clone.Table(router)
	if t != nil {
		if rt := t.RibForPrefix(prefix).ExactMatch(prefix); rt != nil &&
			rt.IsConnected() && rt.ConnectedInterface() != intf {
			return fmt.Errorf("router %d prefix %s: claimed by intf %d and intf %d: %w",
				router, prefix.Masked(), rt.ConnectedInterface(), intf, state.ErrPrefixConflict)
		}
	}
	t = u.writableTable(router)
	rt := u.writableRoute(t.RibForPrefix(prefix), prefix)
	rt.MakeConnected(intf, addr.Unmap())
	u.log.Debug("add interface route", "router", router, "prefix", prefix.Masked(), "intf", intf)
	return nil
}

// AddInterfaceAndLinkLocalRoutes derives connected routes and the
// fe80::/64 punt route for every router in the interface map. The whole
// map is validated up front, so a conflict leaves the transaction
// untouched.
func (u *RouteUpdater) AddInterfaceAndLinkLocalRoutes(im state.InterfaceMap) error {
	for _, router := range im.Routers() {
		claimed := make(map[netip.Prefix]state.InterfaceID)
		t := u.clone.Table(router)
		for _, intf := range im.Interfaces(router) {
			for _, addr := range intf.Addrs {
				network := addr.Masked()
				if other, ok := claimed[network]; ok && other != intf.ID {
					return fmt.Errorf("router %d prefix %s: claimed by intf %d and intf %d: %w",
						router, network, other, intf.ID, state.ErrPrefixConflict)
				}
				if t != nil && network.IsValid() {
					if rt := t.RibForPrefix(network).ExactMatch(network); rt != nil &&
						rt.IsConnected() && rt.ConnectedInterface() != intf.ID {
						return fmt.Errorf("router %d prefix %s: claimed by intf %d and intf %d: %w",
							router, network, rt.ConnectedInterface(), intf.ID, state.ErrPrefixConflict)
					}
				}
				claimed[network] = intf.ID
			}
		}
	}
	for _, router := range im.Routers() {
		for _, intf := range im.Interfaces(router) {
			for _, addr := range intf.Addrs {
				if err := u.AddInterfaceRoute(router, intf.ID, addr.Addr(), addr.Bits()); err != nil {
					return err
				}
			}
		}
		if err := u.addActionRoute(router, linkLocal, state.ActionToCPU, state.ClientLinkLocal); err != nil {
			return err
		}
	}
	return nil
}

// DelNextHopsForClient prunes one client's contribution from a route. A
// route left with nothing is removed.
func (u *RouteUpdater) DelNextHopsForClient(router state.RouterID, prefix netip.Prefix, client state.ClientID) error {
	t := u.clone.Table(router)
	if t == nil {
		return fmt.Errorf("router %d: %w", router, state.ErrUnknownRouter)
	}
	if t.RibForPrefix(prefix).ExactMatch(prefix) == nil {
		return fmt.Errorf("router %d prefix %s: %w", router, prefix, state.ErrRouteNotFound)
	}
	t = u.writableTable(router)
	rib := t.RibForPrefix(prefix)
	rt := u.writableRoute(rib, prefix)
	rt.DeleteForClient(client)
	u.pruneIfEmpty(rib, rt)
	u.log.Debug("del next-hops", "router", router, "prefix", prefix, "client", client)
	return nil
}

// DelRouteWithNoNextHops removes a route that carries no client
// next-hops, such as a bare punt route.
func (u *RouteUpdater) DelRouteWithNoNextHops(router state.RouterID, prefix netip.Prefix) error {
	t := u.clone.Table(router)
	if t == nil {
		return fmt.Errorf("router %d: %w", router, state.ErrUnknownRouter)
	}
	rt := t.RibForPrefix(prefix).ExactMatch(prefix)
	if rt == nil {
		return fmt.Errorf("router %d prefix %s: %w", router, prefix, state.ErrRouteNotFound)
	}
	if rt.IsWithNextHops() {
		return fmt.Errorf("router %d prefix %s: %w", router, prefix, state.ErrRouteStillHasNextHops)
	}
	u.writableTable(router).RibForPrefix(prefix).Remove(prefix)
	u.log.Debug("del route", "router", router, "prefix", prefix)
	return nil
}

// DelLinkLocalRoutes removes every route contributed by the link-local
// client under a router.
func (u *RouteUpdater) DelLinkLocalRoutes(router state.RouterID) error {
	if u.clone.Table(router) == nil {
		return fmt.Errorf("router %d: %w", router, state.ErrUnknownRouter)
	}
	t := u.writableTable(router)
	for _, rib := range []*state.Rib{t.RibV4(), t.RibV6()} {
		for _, prefix := range rib.Prefixes() {
			rt := rib.ExactMatch(prefix)
			owned := rt.HasOverride() && rt.OverrideClient() == state.ClientLinkLocal
			if !owned && !rt.NextHopsMulti().HasNextHopsForClient(state.ClientLinkLocal) {
				continue
			}
			rt = u.writableRoute(rib, prefix)
			rt.DeleteForClient(state.ClientLinkLocal)
			u.pruneIfEmpty(rib, rt)
		}
	}
	u.log.Debug("del link-local routes", "router", router)
	return nil
}

// SyncFib atomically replaces the complete contribution of one client:
// prefixes absent from routes lose the client, listed prefixes get its
// new next-hops. The route list is validated before anything is touched.
func (u *RouteUpdater) SyncFib(router state.RouterID, client state.ClientID, routes []state.UnicastRoute) error {
	next := make(map[netip.Prefix]state.NextHopSet, len(routes))
	for _, route := range routes {
		nhs, err := state.NextHopSetFromWire(route.NextHops)
		if err != nil {
			return fmt.Errorf("sync fib %s: %w", route.Dest, err)
		}
		if len(nhs) == 0 {
			return fmt.Errorf("sync fib %s: %w", route.Dest, state.ErrEmptyNextHops)
		}
		next[route.Dest.Masked()] = nhs
	}

	t := u.writableTable(router)
	for _, rib := range []*state.Rib{t.RibV4(), t.RibV6()} {
		for _, prefix := range rib.Prefixes() {
			if _, keep := next[prefix]; keep {
				continue
			}
			if !rib.ExactMatch(prefix).NextHopsMulti().HasNextHopsForClient(client) {
				continue
			}
			rt := u.writableRoute(rib, prefix)
			rt.DeleteForClient(client)
			u.pruneIfEmpty(rib, rt)
		}
	}
	for prefix, nhs := range next {
		rt := u.writableRoute(t.RibForPrefix(prefix), prefix)
		if err := rt.Update(client, nhs); err != nil {
			return err
		}
	}
	u.log.Debug("sync fib", "router", router, "client", client, "routes", len(routes))
	return nil
}

func (u *RouteUpdater) pruneIfEmpty(rib *state.Rib, rt *state.Route) {
	if !rt.IsWithNextHops() && !rt.HasOverride() && !rt.IsConnected() {
		rib.Remove(rt.Prefix())
	}
}

// UpdateDone resolves every route and publishes. It returns the new
// snapshot, or nil when the transaction changed nothing.
func (u *RouteUpdater) UpdateDone() *state.RouteTableMap {
	start := time.Now()

	if u.Alpm {
		u.ensureDefaultRoutes()
	}

	// resolution touches the flags of every route, so every table joins
	// the clone tree
	for _, router := range u.clone.RouterIDs() {
		t := u.writableTable(router)
		for _, rib := range []*state.Rib{t.RibV4(), t.RibV6()} {
			for _, prefix := range rib.Prefixes() {
				rt := rib.ExactMatch(prefix)
				if !rt.IsWithNextHops() && !rt.HasOverride() && !rt.IsConnected() {
					rib.Remove(prefix)
					continue
				}
				if rt.IsPublished() {
					rib.Insert(rt.CloneForWrite())
				}
			}
		}
		rv := resolver{table: t}
		rv.resolveAll()
	}

	result, changed := u.publish()
	perf.UpdateLatency.Add(float64(time.Since(start).Microseconds()))
	if !changed {
		u.log.Debug("update done, no change")
		return nil
	}
	u.log.Debug("update done", "generation", result.Generation())
	return result
}

// ensureDefaultRoutes keeps 0.0.0.0/0 and ::/0 programmed in the default
// VRF, as ALPM hardware requires.
func (u *RouteUpdater) ensureDefaultRoutes() {
	t := u.writableTable(state.DefaultRouter)
	if t.RibV4().ExactMatch(defaultV4) == nil {
		_ = u.AddActionRoute(state.DefaultRouter, defaultV4, state.ActionDrop)
	}
	if t.RibV6().ExactMatch(defaultV6) == nil {
		_ = u.AddActionRoute(state.DefaultRouter, defaultV6, state.ActionDrop)
	}
}

// publish compares the resolved clone tree against the input snapshot.
// Routes identical in content keep their old node and generation; changed
// routes get generation old+1, new ones start at zero.
func (u *RouteUpdater) publish() (*state.RouteTableMap, bool) {
	result := state.NewRouteTableMap()
	changed := false

	for _, router := range u.clone.RouterIDs() {
		ct := u.clone.Table(router)
		var ot *state.RouteTable
		if u.orig != nil {
			ot = u.orig.Table(router)
		}
		if ct.Empty() {
			// empty tables are not published
			if ot != nil {
				changed = true
			}
			continue
		}

		tableChanged := false
		ribs := []struct{ newRib, oldRib *state.Rib }{
			{ct.RibV4(), nil},
			{ct.RibV6(), nil},
		}
		if ot != nil {
			ribs[0].oldRib = ot.RibV4()
			ribs[1].oldRib = ot.RibV6()
		}
		for _, pair := range ribs {
			for _, prefix := range pair.newRib.Prefixes() {
				rt := pair.newRib.ExactMatch(prefix)
				if rt.IsPublished() {
					continue
				}
				var old *state.Route
				if pair.oldRib != nil {
					old = pair.oldRib.ExactMatch(prefix)
				}
				if old != nil && rt.Equal(old) {
					pair.newRib.Insert(old)
					continue
				}
				if old != nil {
					rt.SetGeneration(old.Generation() + 1)
				}
				if rt.IsUnresolvable() {
					perf.RoutesUnresolvable.Add(1)
				} else {
					perf.RoutesResolved.Add(1)
				}
				rt.MarkPublished()
				tableChanged = true
			}
			if pair.oldRib != nil {
				for _, prefix := range pair.oldRib.Prefixes() {
					if pair.newRib.ExactMatch(prefix) == nil {
						tableChanged = true
					}
				}
			}
		}

		if !tableChanged && ot != nil {
			result.SetTable(ot)
			continue
		}
		ct.MarkPublished()
		result.SetTable(ct)
		changed = true
	}

	if !changed {
		return nil, false
	}
	gen := uint64(0)
	if u.orig != nil {
		gen = u.orig.Generation() + 1
	}
	result.SetGeneration(gen)
	result.MarkPublished()
	return result, true
}

// RevertNewRouteEntry reinstates oldRoute (or removes newRoute when
// oldRoute is nil) in a published snapshot, producing a new one. It is
// used to undo a single route after a hardware programming failure, so no
// resolution pass runs.
func RevertNewRouteEntry(snap *state.RouteTableMap, router state.RouterID, newRoute, oldRoute *state.Route) (*state.RouteTableMap, error) {
	t := snap.Table(router)
	if t == nil {
		return nil, fmt.Errorf("router %d: %w", router, state.ErrUnknownRouter)
	}
	prefix := newRoute.Prefix()
	rib := t.RibForPrefix(prefix)
	if rib.ExactMatch(prefix) == nil {
		return nil, fmt.Errorf("router %d prefix %s: %w", router, prefix, state.ErrRouteNotFound)
	}

	result := state.NewRouteTableMap()
	for _, id := range snap.RouterIDs() {
		result.SetTable(snap.Table(id))
	}
	ct := t.CloneForWrite()
	newRib := rib.CloneForWrite()
	if oldRoute == nil {
		newRib.Remove(prefix)
	} else {
		newRib.Insert(oldRoute)
	}
	if prefix.Addr().Unmap().Is4() {
		ct.SetRibV4(newRib)
	} else {
		ct.SetRibV6(newRib)
	}
	if ct.Empty() {
		result.RemoveTable(router)
	} else {
		ct.MarkPublished()
		result.SetTable(ct)
	}
	result.SetGeneration(snap.Generation() + 1)
	result.MarkPublished()
	return result, nil
}
