package state

import (
	"net/netip"
	"slices"
)

// RouteTable is the pair of per-family ribs of one router (VRF).
type RouteTable struct {
	id        RouterID
	v4        *Rib
	v6        *Rib
	published bool
}

func NewRouteTable(id RouterID) *RouteTable {
	return &RouteTable{id: id, v4: NewRib(), v6: NewRib()}
}

func (t *RouteTable) ID() RouterID { return t.id }

func (t *RouteTable) RibV4() *Rib { return t.v4 }
func (t *RouteTable) RibV6() *Rib { return t.v6 }

// Rib returns the rib of the family the address belongs to.
func (t *RouteTable) Rib(addr netip.Addr) *Rib {
	if addr.Unmap().Is4() {
		return t.v4
	}
	return t.v6
}

// RibForPrefix returns the rib of the family the prefix belongs to.
func (t *RouteTable) RibForPrefix(prefix netip.Prefix) *Rib {
	return t.Rib(prefix.Addr())
}

func (t *RouteTable) Empty() bool {
	return t.v4.Size() == 0 && t.v6.Size() == 0
}

// ResolveL3Unicast resolves a destination address to a concrete egress
// through this table, for upper layers that source packets themselves.
func (t *RouteTable) ResolveL3Unicast(dst netip.Addr) (Egress, bool) {
	rt := t.Rib(dst).LongestMatch(dst)
	if rt == nil || !rt.IsResolved() || rt.ForwardInfo().Action != ActionNextHops {
		return Egress{}, false
	}
	if rt.IsConnected() {
		return Egress{Intf: rt.ConnectedInterface(), Addr: dst}, true
	}
	egs := rt.ForwardInfo().Egress.Sorted()
	if len(egs) == 0 {
		return Egress{}, false
	}
	return egs[0], true
}

func (t *RouteTable) writable() {
	if t.published {
		panic("mutation of published route table")
	}
}

// SetRibV4 swaps in a rib; only valid while unpublished.
func (t *RouteTable) SetRibV4(rib *Rib) {
	t.writable()
	t.v4 = rib
}

func (t *RouteTable) SetRibV6(rib *Rib) {
	t.writable()
	t.v6 = rib
}

// MarkPublished freezes the table and both ribs.
func (t *RouteTable) MarkPublished() {
	t.published = true
	t.v4.MarkPublished()
	t.v6.MarkPublished()
}

func (t *RouteTable) IsPublished() bool { return t.published }

// CloneForWrite returns an unpublished copy sharing both ribs.
func (t *RouteTable) CloneForWrite() *RouteTable {
	return &RouteTable{id: t.id, v4: t.v4, v6: t.v6}
}

// RouteTableMap is the top-level snapshot root: every router's table plus
// a strictly increasing generation.
type RouteTableMap struct {
	tables     map[RouterID]*RouteTable
	generation uint64
	published  bool
}

func NewRouteTableMap() *RouteTableMap {
	return &RouteTableMap{tables: make(map[RouterID]*RouteTable)}
}

// Table returns the route table of the router, or nil.
func (m *RouteTableMap) Table(id RouterID) *RouteTable {
	return m.tables[id]
}

// RouterIDs returns the router ids in ascending order.
func (m *RouteTableMap) RouterIDs() []RouterID {
	ids := make([]RouterID, 0, len(m.tables))
	for id := range m.tables {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *RouteTableMap) NumTables() int { return len(m.tables) }

func (m *RouteTableMap) Generation() uint64 { return m.generation }

func (m *RouteTableMap) writable() {
	if m.published {
		panic("mutation of published route table map")
	}
}

// SetTable installs a table; only valid while unpublished.
func (m *RouteTableMap) SetTable(t *RouteTable) {
	m.writable()
	m.tables[t.ID()] = t
}

// RemoveTable drops a router's table; only valid while unpublished.
func (m *RouteTableMap) RemoveTable(id RouterID) {
	m.writable()
	delete(m.tables, id)
}

// SetGeneration is used by the updater at publish time.
func (m *RouteTableMap) SetGeneration(gen uint64) {
	m.writable()
	m.generation = gen
}

// MarkPublished freezes the snapshot root. Tables already published are
// left as is.
func (m *RouteTableMap) MarkPublished() {
	m.published = true
	for _, t := range m.tables {
		if !t.IsPublished() {
			t.MarkPublished()
		}
	}
}

func (m *RouteTableMap) IsPublished() bool { return m.published }
