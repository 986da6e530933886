package state

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// NextHop is a single next-hop address, optionally scoped to an interface.
// A scope is required for link-local addresses (fe80::/10 and 169.254/16)
// and forbidden otherwise; Validate enforces this.
type NextHop struct {
	Addr   netip.Addr
	Intf   InterfaceID
	Scoped bool
}

// NewNextHop returns an unscoped next-hop.
func NewNextHop(addr netip.Addr) NextHop {
	return NextHop{Addr: addr.Unmap()}
}

// NewScopedNextHop returns a next-hop scoped to the given interface.
func NewScopedNextHop(addr netip.Addr, intf InterfaceID) NextHop {
	return NextHop{Addr: addr.Unmap(), Intf: intf, Scoped: true}
}

// Validate checks the link-local scoping rules.
func (nh NextHop) Validate() error {
	if nh.Addr.IsLinkLocalUnicast() && !nh.Scoped {
		return fmt.Errorf("%w: link-local next-hop %s requires an interface scope", ErrInvalidNextHopScope, nh.Addr)
	}
	if !nh.Addr.IsLinkLocalUnicast() && nh.Scoped {
		return fmt.Errorf("%w: next-hop %s must not carry an interface scope", ErrInvalidNextHopScope, nh.Addr)
	}
	return nil
}

func (nh NextHop) String() string {
	if nh.Scoped {
		return fmt.Sprintf("%s%%intf%d", nh.Addr, nh.Intf)
	}
	return nh.Addr.String()
}

// NextHopSet is an unordered set of next-hops. The zero value is not
// usable; construct with NewNextHopSet.
type NextHopSet map[NextHop]struct{}

// NewNextHopSet builds a set from the given next-hops.
func NewNextHopSet(nhs ...NextHop) NextHopSet {
	s := make(NextHopSet, len(nhs))
	for _, nh := range nhs {
		s[nh] = struct{}{}
	}
	return s
}

func (s NextHopSet) Add(nh NextHop) {
	s[nh] = struct{}{}
}

func (s NextHopSet) Contains(nh NextHop) bool {
	_, ok := s[nh]
	return ok
}

// Equal is order-independent set equality.
func (s NextHopSet) Equal(o NextHopSet) bool {
	if len(s) != len(o) {
		return false
	}
	for nh := range s {
		if _, ok := o[nh]; !ok {
			return false
		}
	}
	return true
}

func (s NextHopSet) Copy() NextHopSet {
	c := make(NextHopSet, len(s))
	for nh := range s {
		c[nh] = struct{}{}
	}
	return c
}

// Sorted returns the next-hops in a stable order, for rendering and
// serialization.
func (s NextHopSet) Sorted() []NextHop {
	nhs := make([]NextHop, 0, len(s))
	for nh := range s {
		nhs = append(nhs, nh)
	}
	slices.SortFunc(nhs, func(a, b NextHop) int {
		if c := a.Addr.Compare(b.Addr); c != 0 {
			return c
		}
		return int(a.Intf) - int(b.Intf)
	})
	return nhs
}

func (s NextHopSet) String() string {
	parts := make([]string, 0, len(s))
	for _, nh := range s.Sorted() {
		parts = append(parts, nh.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
