package state

import (
	"fmt"
	"net/netip"
)

type routeFlags uint8

const (
	flagConnected routeFlags = 1 << iota
	flagResolved
	flagUnresolvable
	flagProcessing
	flagNeedResolve
)

// Route is one prefix in a rib: the merged client contributions plus the
// forwarding state produced by resolution.
//
// A route is created inside an updater, mutated only while the snapshot it
// belongs to is unpublished, and frozen by MarkPublished before the
// snapshot escapes. Mutating a published route panics.
type Route struct {
	prefix        netip.Prefix
	nexthopsmulti MultiClientNextHops

	// A route carries either client next-hops or a bare action
	// (Drop/ToCPU) contributed without next-hops.
	override     ForwardAction
	overrideBy   ClientID
	hasOverride  bool

	// intf is the egress interface of a connected route.
	intf InterfaceID

	fwd        ForwardInfo
	flags      routeFlags
	generation uint64
	published  bool
}

// NewRoute returns an empty unpublished route for the prefix. The prefix
// key is normalized: bits below the mask are cleared.
func NewRoute(prefix netip.Prefix) *Route {
	return &Route{
		prefix:        prefix.Masked(),
		nexthopsmulti: NewMultiClientNextHops(),
		flags:         flagNeedResolve,
	}
}

// NewActionRoute returns a route carrying a bare Drop/ToCPU action
// contributed by client.
func NewActionRoute(prefix netip.Prefix, action ForwardAction, client ClientID) *Route {
	r := NewRoute(prefix)
	r.UpdateAction(action, client)
	return r
}

// NewConnectedRoute returns a connected route for an interface address.
// addr is the interface's own address inside the prefix; it becomes both
// the ClientInterface next-hop and, after resolution, the egress IP.
func NewConnectedRoute(prefix netip.Prefix, intf InterfaceID, addr netip.Addr) *Route {
	r := NewRoute(prefix)
	r.MakeConnected(intf, addr)
	return r
}

func (r *Route) Prefix() netip.Prefix { return r.prefix }

// IsHostRoute reports whether the mask is the full address width.
func (r *Route) IsHostRoute() bool { return r.prefix.IsSingleIP() }

func (r *Route) writable() {
	if r.published {
		panic(fmt.Sprintf("mutation of published route %s", r.prefix))
	}
}

// Update overwrites the contribution of client and invalidates the
// resolution state. A previous bare action is superseded.
func (r *Route) Update(client ClientID, nhs NextHopSet) error {
	r.writable()
	if err := r.nexthopsmulti.Update(client, nhs); err != nil {
		return err
	}
	r.hasOverride = false
	r.clearResolutionState()
	return nil
}

// UpdateAction makes the route a bare Drop/ToCPU route contributed by
// client, superseding any client next-hops.
func (r *Route) UpdateAction(action ForwardAction, client ClientID) {
	r.writable()
	r.nexthopsmulti = NewMultiClientNextHops()
	r.override = action
	r.overrideBy = client
	r.hasOverride = true
	r.clearResolutionState()
}

// DeleteForClient removes the contribution of client. A route left with no
// contributions and no bare action is pruned by the updater.
func (r *Route) DeleteForClient(client ClientID) {
	r.writable()
	r.nexthopsmulti.DeleteForClient(client)
	if r.hasOverride && r.overrideBy == client {
		r.hasOverride = false
	}
	if client == ClientInterface {
		r.flags &^= flagConnected
	}
	r.clearResolutionState()
}

// MakeConnected turns the route into a connected route for an interface
// address, superseding any bare action.
func (r *Route) MakeConnected(intf InterfaceID, addr netip.Addr) {
	r.writable()
	r.flags |= flagConnected
	r.intf = intf
	_ = r.nexthopsmulti.Update(ClientInterface, NewNextHopSet(NewNextHop(addr)))
	r.hasOverride = false
	r.clearResolutionState()
}

func (r *Route) BestNextHopList() (NextHopSet, error) {
	return r.nexthopsmulti.BestNextHopList()
}

func (r *Route) NextHopsMulti() MultiClientNextHops { return r.nexthopsmulti }

func (r *Route) HasOverride() bool            { return r.hasOverride }
func (r *Route) OverrideAction() ForwardAction { return r.override }
func (r *Route) OverrideClient() ClientID      { return r.overrideBy }

func (r *Route) IsResolved() bool     { return r.flags&flagResolved != 0 }
func (r *Route) IsUnresolvable() bool { return r.flags&flagUnresolvable != 0 }
func (r *Route) IsConnected() bool    { return r.flags&flagConnected != 0 }
func (r *Route) IsProcessing() bool   { return r.flags&flagProcessing != 0 }
func (r *Route) NeedResolve() bool    { return r.flags&flagNeedResolve != 0 }

// ConnectedInterface is the egress interface of a connected route.
func (r *Route) ConnectedInterface() InterfaceID { return r.intf }

func (r *Route) IsDrop() bool {
	return r.hasOverride && r.override == ActionDrop ||
		r.IsResolved() && r.fwd.Action == ActionDrop
}

func (r *Route) IsToCPU() bool {
	return r.hasOverride && r.override == ActionToCPU ||
		r.IsResolved() && r.fwd.Action == ActionToCPU
}

// IsWithNextHops reports whether any client contributes next-hops.
func (r *Route) IsWithNextHops() bool { return r.nexthopsmulti.HasEntries() }

// IsSameAction reports whether the route carries exactly the bare action.
func (r *Route) IsSameAction(action ForwardAction) bool {
	return r.hasOverride && r.override == action
}

// IsSameClient reports whether client currently contributes exactly nhs.
func (r *Route) IsSameClient(client ClientID, nhs NextHopSet) bool {
	return r.nexthopsmulti.IsSame(client, nhs)
}

// ForwardInfo is valid once the route is resolved.
func (r *Route) ForwardInfo() ForwardInfo { return r.fwd }

func (r *Route) Generation() uint64 { return r.generation }

// SetGeneration is used by the updater at publish time.
func (r *Route) SetGeneration(gen uint64) {
	r.writable()
	r.generation = gen
}

// ClearForResolution resets the resolution state ahead of a resolution
// pass.
func (r *Route) ClearForResolution() {
	r.writable()
	r.clearResolutionState()
}

// SetProcessing colors the route during the resolution DFS.
func (r *Route) SetProcessing(on bool) {
	r.writable()
	if on {
		r.flags |= flagProcessing
	} else {
		r.flags &^= flagProcessing
	}
}

// SetResolved installs the forwarding info produced by resolution.
func (r *Route) SetResolved(fwd ForwardInfo) {
	r.writable()
	r.fwd = fwd
	r.flags |= flagResolved
	r.flags &^= flagUnresolvable | flagNeedResolve
}

// SetUnresolvable marks a route whose next-hop chain reaches no egress.
func (r *Route) SetUnresolvable() {
	r.writable()
	r.fwd = ForwardInfo{}
	r.flags |= flagUnresolvable
	r.flags &^= flagResolved | flagNeedResolve
}

func (r *Route) clearResolutionState() {
	r.flags &^= flagResolved | flagUnresolvable | flagProcessing
	r.flags |= flagNeedResolve
}

// MarkPublished freezes the route.
func (r *Route) MarkPublished() { r.published = true }

func (r *Route) IsPublished() bool { return r.published }

// CloneForWrite returns an unpublished copy carrying the same generation.
func (r *Route) CloneForWrite() *Route {
	c := &Route{
		prefix:        r.prefix,
		nexthopsmulti: r.nexthopsmulti.Copy(),
		override:      r.override,
		overrideBy:    r.overrideBy,
		hasOverride:   r.hasOverride,
		intf:          r.intf,
		fwd:           r.fwd.Copy(),
		flags:         r.flags &^ flagProcessing,
		generation:    r.generation,
	}
	return c
}

// Equal compares route content: contributions, bare action, connected
// state and forwarding info. Generation and transient resolution scratch
// are excluded.
func (r *Route) Equal(o *Route) bool {
	if r == o {
		return true
	}
	if r == nil || o == nil {
		return false
	}
	if r.prefix != o.prefix {
		return false
	}
	if r.hasOverride != o.hasOverride {
		return false
	}
	if r.hasOverride && (r.override != o.override || r.overrideBy != o.overrideBy) {
		return false
	}
	if r.IsConnected() != o.IsConnected() {
		return false
	}
	if r.IsConnected() && r.intf != o.intf {
		return false
	}
	if r.IsResolved() != o.IsResolved() || r.IsUnresolvable() != o.IsUnresolvable() {
		return false
	}
	if !r.fwd.Equal(o.fwd) {
		return false
	}
	return r.nexthopsmulti.Equal(o.nexthopsmulti)
}

func (r *Route) String() string {
	s := r.prefix.String()
	if r.IsConnected() {
		s += " connected"
	}
	if r.hasOverride {
		s += fmt.Sprintf(" action=%s by %s", r.override, r.overrideBy)
	} else {
		s += " " + r.nexthopsmulti.String()
	}
	switch {
	case r.IsResolved():
		s += " -> " + r.fwd.String()
	case r.IsUnresolvable():
		s += " -> unresolvable"
	default:
		s += " -> unresolved"
	}
	return s
}
