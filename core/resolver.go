package core

import (
	"github.com/encodeous/ribd/state"
)

// resolver runs the recursive resolution pass over one router's table.
// Every route in the table must be unpublished when the pass starts.
//
// The pass is a DFS over the next-hop graph: a route's best next-hop set
// is chased through longest-prefix matches until it bottoms out on a
// connected route or a bare Drop/ToCPU action. Cycles are broken by
// coloring routes with a processing flag; re-entering a route still being
// processed marks it unresolvable. Because of that, the outcome depends
// only on the topology, not on iteration order.
//
// When both Drop and ToCPU appear among a best set's resolved ancestors,
// the first one encountered during the DFS wins; next-hops are walked in
// sorted order, so the choice is deterministic.
type resolver struct {
	table *state.RouteTable
}

// resolveAll clears the resolution state of every route and resolves each
// one.
func (rv *resolver) resolveAll() {
	for _, rib := range []*state.Rib{rv.table.RibV4(), rv.table.RibV6()} {
		for _, rt := range rib.All() {
			rt.ClearForResolution()
		}
	}
	for _, rib := range []*state.Rib{rv.table.RibV4(), rv.table.RibV6()} {
		for _, rt := range rib.All() {
			rv.resolve(rt)
		}
	}
}

func (rv *resolver) resolve(rt *state.Route) {
	if rt.IsResolved() || rt.IsUnresolvable() {
		return
	}
	if rt.IsProcessing() {
		// next-hop cycle
		rt.SetUnresolvable()
		return
	}
	rt.SetProcessing(true)

	switch {
	case rt.HasOverride():
		// bare Drop/ToCPU routes are leaves
		rt.SetResolved(state.ForwardInfo{Action: rt.OverrideAction()})

	case rt.IsConnected():
		rv.resolveConnected(rt)

	default:
		rv.resolveViaNextHops(rt)
	}

	rt.SetProcessing(false)
}

func (rv *resolver) resolveConnected(rt *state.Route) {
	best, err := rt.BestNextHopList()
	if err != nil {
		rt.SetUnresolvable()
		return
	}
	egress := state.NewEgressSet()
	for nh := range best {
		egress.Add(state.Egress{Intf: rt.ConnectedInterface(), Addr: nh.Addr})
	}
	rt.SetResolved(state.ForwardInfo{Action: state.ActionNextHops, Egress: egress})
}

func (rv *resolver) resolveViaNextHops(rt *state.Route) {
	best, err := rt.BestNextHopList()
	if err != nil {
		rt.SetUnresolvable()
		return
	}

	egress := state.NewEgressSet()
	inherited := false
	var action state.ForwardAction

	for _, nh := range best.Sorted() {
		if nh.Scoped {
			// a scoped next-hop names its egress interface directly
			egress.Add(state.Egress{Intf: nh.Intf, Addr: nh.Addr})
			continue
		}
		match := rv.table.Rib(nh.Addr).LongestMatch(nh.Addr)
		if match == nil {
			continue // dangling next-hop
		}
		rv.resolve(match)
		if !match.IsResolved() {
			continue
		}
		mfwd := match.ForwardInfo()
		switch mfwd.Action {
		case state.ActionDrop, state.ActionToCPU:
			action = mfwd.Action
			inherited = true
		case state.ActionNextHops:
			if match.IsConnected() {
				// forward towards the next-hop itself, out the
				// connected interface
				for eg := range mfwd.Egress {
					egress.Add(state.Egress{Intf: eg.Intf, Addr: nh.Addr})
				}
			} else {
				egress.Union(mfwd.Egress)
			}
		}
		if inherited {
			break
		}
	}

	switch {
	case inherited:
		rt.SetResolved(state.ForwardInfo{Action: action})
	case len(egress) > 0:
		rt.SetResolved(state.ForwardInfo{Action: state.ActionNextHops, Egress: egress})
	default:
		rt.SetUnresolvable()
	}
}
