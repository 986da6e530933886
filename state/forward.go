package state

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// ForwardAction is what the hardware should do with packets hitting a
// resolved prefix.
type ForwardAction uint8

const (
	// ActionNextHops forwards out the egress set.
	ActionNextHops ForwardAction = iota
	// ActionDrop silently discards.
	ActionDrop
	// ActionToCPU punts to the CPU port.
	ActionToCPU
)

func (a ForwardAction) String() string {
	switch a {
	case ActionNextHops:
		return "Nexthops"
	case ActionDrop:
		return "Drop"
	case ActionToCPU:
		return "ToCPU"
	}
	return fmt.Sprintf("ForwardAction(%d)", uint8(a))
}

// Egress is a resolved forwarding target: an interface and the concrete IP
// to forward towards on it.
type Egress struct {
	Intf InterfaceID
	Addr netip.Addr
}

func (e Egress) String() string {
	return fmt.Sprintf("(intf%d, %s)", e.Intf, e.Addr)
}

// EgressSet deduplicates egress pairs by (interface, IP).
type EgressSet map[Egress]struct{}

func NewEgressSet(egs ...Egress) EgressSet {
	s := make(EgressSet, len(egs))
	for _, e := range egs {
		s[e] = struct{}{}
	}
	return s
}

func (s EgressSet) Add(e Egress) {
	s[e] = struct{}{}
}

// Union adds every egress of o to s.
func (s EgressSet) Union(o EgressSet) {
	for e := range o {
		s[e] = struct{}{}
	}
}

func (s EgressSet) Equal(o EgressSet) bool {
	if len(s) != len(o) {
		return false
	}
	for e := range s {
		if _, ok := o[e]; !ok {
			return false
		}
	}
	return true
}

func (s EgressSet) Copy() EgressSet {
	c := make(EgressSet, len(s))
	for e := range s {
		c[e] = struct{}{}
	}
	return c
}

func (s EgressSet) Sorted() []Egress {
	egs := make([]Egress, 0, len(s))
	for e := range s {
		egs = append(egs, e)
	}
	slices.SortFunc(egs, func(a, b Egress) int {
		if a.Intf != b.Intf {
			return int(a.Intf) - int(b.Intf)
		}
		return a.Addr.Compare(b.Addr)
	})
	return egs
}

// ForwardInfo is the resolved forwarding state of a route. For Drop and
// ToCPU the egress set is empty.
type ForwardInfo struct {
	Action ForwardAction
	Egress EgressSet
}

// DropInfo is the forwarding state of a dropping route.
func DropInfo() ForwardInfo {
	return ForwardInfo{Action: ActionDrop}
}

// ToCPUInfo is the forwarding state of a punting route.
func ToCPUInfo() ForwardInfo {
	return ForwardInfo{Action: ActionToCPU}
}

// IsECMP reports whether the resolved route spreads over multiple egresses.
func (f ForwardInfo) IsECMP() bool {
	return f.Action == ActionNextHops && len(f.Egress) > 1
}

func (f ForwardInfo) Equal(o ForwardInfo) bool {
	return f.Action == o.Action && f.Egress.Equal(o.Egress)
}

func (f ForwardInfo) Copy() ForwardInfo {
	return ForwardInfo{Action: f.Action, Egress: f.Egress.Copy()}
}

func (f ForwardInfo) String() string {
	if f.Action != ActionNextHops {
		return f.Action.String()
	}
	parts := make([]string, 0, len(f.Egress))
	for _, e := range f.Egress.Sorted() {
		parts = append(parts, e.String())
	}
	return "Nexthops{" + strings.Join(parts, ", ") + "}"
}
