package core

import (
	"github.com/encodeous/ribd/perf"
	"github.com/encodeous/ribd/state"
)

// RouteDelta is the structural diff between two snapshots, per router and
// per family. It drives consumers like the hardware programming layer
// without coupling them to the domain objects: walk it with
// ForEachChanged.
type RouteDelta struct {
	Old, New *state.RouteTableMap
	Tables   []*TableDelta
}

// TableDelta is the diff of one router's table.
type TableDelta struct {
	Router state.RouterID
	V4, V6 FamilyDelta
}

// FamilyDelta is the diff of one rib. Routes appear in CIDR sort order.
type FamilyDelta struct {
	Added   []*state.Route
	Removed []*state.Route
	Changed []RoutePair
}

// RoutePair is a route whose identity changed between two snapshots.
type RoutePair struct {
	Old, New *state.Route
}

func (d FamilyDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

func (d *TableDelta) Empty() bool {
	return d.V4.Empty() && d.V6.Empty()
}

// NewRouteDelta computes the diff between two snapshots. A nil snapshot
// counts as empty.
func NewRouteDelta(oldMap, newMap *state.RouteTableMap) *RouteDelta {
	d := &RouteDelta{Old: oldMap, New: newMap}

	seen := make(map[state.RouterID]bool)
	routers := make([]state.RouterID, 0)
	if oldMap != nil {
		for _, id := range oldMap.RouterIDs() {
			seen[id] = true
			routers = append(routers, id)
		}
	}
	if newMap != nil {
		for _, id := range newMap.RouterIDs() {
			if !seen[id] {
				routers = append(routers, id)
			}
		}
	}

	for _, router := range routers {
		var ot, nt *state.RouteTable
		if oldMap != nil {
			ot = oldMap.Table(router)
		}
		if newMap != nil {
			nt = newMap.Table(router)
		}
		if ot == nt {
			continue // shared table node, nothing changed underneath
		}
		td := &TableDelta{Router: router}
		td.V4 = diffRibs(ribOf(ot, true), ribOf(nt, true))
		td.V6 = diffRibs(ribOf(ot, false), ribOf(nt, false))
		if !td.Empty() {
			d.Tables = append(d.Tables, td)
		}
	}
	return d
}

func ribOf(t *state.RouteTable, v4 bool) *state.Rib {
	if t == nil {
		return nil
	}
	if v4 {
		return t.RibV4()
	}
	return t.RibV6()
}

func diffRibs(oldRib, newRib *state.Rib) FamilyDelta {
	var d FamilyDelta
	if oldRib == newRib {
		return d
	}
	if newRib != nil {
		for _, rt := range newRib.AllSorted() {
			var old *state.Route
			if oldRib != nil {
				old = oldRib.ExactMatch(rt.Prefix())
			}
			switch {
			case old == nil:
				d.Added = append(d.Added, rt)
			case old == rt:
				// shared node
			case !old.Equal(rt):
				d.Changed = append(d.Changed, RoutePair{Old: old, New: rt})
			}
		}
	}
	if oldRib != nil {
		for _, rt := range oldRib.AllSorted() {
			if newRib == nil || newRib.ExactMatch(rt.Prefix()) == nil {
				d.Removed = append(d.Removed, rt)
			}
		}
	}
	perf.DeltaRoutes.Add(float64(len(d.Added) + len(d.Removed) + len(d.Changed)))
	return d
}

// ForEachChanged walks the delta, invoking the callbacks per route. Any
// callback may be nil.
func ForEachChanged(d *RouteDelta,
	onChanged func(router state.RouterID, oldRt, newRt *state.Route),
	onAdded func(router state.RouterID, newRt *state.Route),
	onRemoved func(router state.RouterID, oldRt *state.Route),
) {
	for _, td := range d.Tables {
		for _, fd := range []FamilyDelta{td.V4, td.V6} {
			if onChanged != nil {
				for _, pair := range fd.Changed {
					onChanged(td.Router, pair.Old, pair.New)
				}
			}
			if onAdded != nil {
				for _, rt := range fd.Added {
					onAdded(td.Router, rt)
				}
			}
			if onRemoved != nil {
				for _, rt := range fd.Removed {
					onRemoved(td.Router, rt)
				}
			}
		}
	}
}
