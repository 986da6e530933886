package state

import (
	"iter"
	"net/netip"

	"github.com/gaissmai/bart"
)

// Rib is a longest-prefix-match table over routes of a single address
// family. Keys are normalized: network bits below the mask are cleared.
// Lookups are O(address bits) including the full IPv6 width.
type Rib struct {
	tree      *bart.Table[*Route]
	published bool
}

func NewRib() *Rib {
	return &Rib{tree: &bart.Table[*Route]{}}
}

func (r *Rib) Size() int { return r.tree.Size() }

// ExactMatch returns the route stored under exactly (network, mask), or
// nil.
func (r *Rib) ExactMatch(prefix netip.Prefix) *Route {
	rt, ok := r.tree.Get(prefix.Masked())
	if !ok {
		return nil
	}
	return rt
}

// LongestMatch returns the route of the most specific prefix covering
// addr, or nil.
func (r *Rib) LongestMatch(addr netip.Addr) *Route {
	rt, ok := r.tree.Lookup(addr.Unmap())
	if !ok {
		return nil
	}
	return rt
}

// Insert stores the route under its (already normalized) prefix,
// replacing any previous route for it.
func (r *Rib) Insert(rt *Route) {
	r.writable()
	r.tree.Insert(rt.Prefix(), rt)
}

// Remove deletes the route for the prefix, if present.
func (r *Rib) Remove(prefix netip.Prefix) {
	r.writable()
	r.tree.Delete(prefix.Masked())
}

// GetOrCreate returns the route for the prefix, creating an empty one if
// absent.
func (r *Rib) GetOrCreate(prefix netip.Prefix) *Route {
	r.writable()
	if rt := r.ExactMatch(prefix); rt != nil {
		return rt
	}
	rt := NewRoute(prefix)
	r.tree.Insert(rt.Prefix(), rt)
	return rt
}

// All iterates the rib in no particular order.
func (r *Rib) All() iter.Seq2[netip.Prefix, *Route] {
	return r.tree.All()
}

// AllSorted iterates the rib in CIDR sort order, for rendering and
// serialization.
func (r *Rib) AllSorted() iter.Seq2[netip.Prefix, *Route] {
	return r.tree.AllSorted()
}

// Prefixes returns every prefix currently in the rib.
func (r *Rib) Prefixes() []netip.Prefix {
	pfxs := make([]netip.Prefix, 0, r.Size())
	for pfx := range r.tree.All() {
		pfxs = append(pfxs, pfx)
	}
	return pfxs
}

func (r *Rib) writable() {
	if r.published {
		panic("mutation of published rib")
	}
}

// MarkPublished freezes the rib structure. Routes are frozen separately.
func (r *Rib) MarkPublished() { r.published = true }

func (r *Rib) IsPublished() bool { return r.published }

// CloneForWrite returns an unpublished copy of the trie. The routes
// themselves are shared, not copied.
func (r *Rib) CloneForWrite() *Rib {
	return &Rib{tree: r.tree.Clone()}
}

// Equal reports whether both ribs hold identical route pointers under
// identical prefixes.
func (r *Rib) Equal(o *Rib) bool {
	if r.Size() != o.Size() {
		return false
	}
	for pfx, rt := range r.tree.All() {
		ort, ok := o.tree.Get(pfx)
		if !ok || ort != rt {
			return false
		}
	}
	return true
}
