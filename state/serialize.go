package state

import (
	"encoding/json"
	"fmt"
	"net/netip"
)

// Structural JSON views for every core entity, consumed by external
// serializers (warm-boot cache, telemetry). decode(encode(x)) == x holds
// for next-hops, multi-client containers and routes; decoded entities are
// unpublished.

func (a ForwardAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *ForwardAction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Nexthops":
		*a = ActionNextHops
	case "Drop":
		*a = ActionDrop
	case "ToCPU":
		*a = ActionToCPU
	default:
		return fmt.Errorf("unknown forward action %q", text)
	}
	return nil
}

func (nh NextHop) MarshalJSON() ([]byte, error) {
	w := struct {
		IP     netip.Addr `json:"ip"`
		IfName string     `json:"ifName,omitempty"`
	}{IP: nh.Addr}
	if nh.Scoped {
		w.IfName = IfName(nh.Intf)
	}
	return json.Marshal(w)
}

func (nh *NextHop) UnmarshalJSON(data []byte) error {
	var w struct {
		IP     netip.Addr `json:"ip"`
		IfName string     `json:"ifName"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	nh.Addr = w.IP.Unmap()
	nh.Scoped = w.IfName != ""
	nh.Intf = 0
	if nh.Scoped {
		intf, err := ParseIfName(w.IfName)
		if err != nil {
			return err
		}
		nh.Intf = intf
	}
	return nil
}

func (s NextHopSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *NextHopSet) UnmarshalJSON(data []byte) error {
	var nhs []NextHop
	if err := json.Unmarshal(data, &nhs); err != nil {
		return err
	}
	*s = NewNextHopSet(nhs...)
	return nil
}

type clientNextHopsView struct {
	ClientID ClientID   `json:"clientId"`
	NextHops NextHopSet `json:"nexthops"`
}

// MarshalJSON renders the contributions as a list ordered by client id.
func (m MultiClientNextHops) MarshalJSON() ([]byte, error) {
	views := make([]clientNextHopsView, 0, len(m))
	for _, client := range m.Clients() {
		views = append(views, clientNextHopsView{ClientID: client, NextHops: m[client]})
	}
	return json.Marshal(views)
}

func (m *MultiClientNextHops) UnmarshalJSON(data []byte) error {
	var views []clientNextHopsView
	if err := json.Unmarshal(data, &views); err != nil {
		return err
	}
	out := NewMultiClientNextHops()
	for _, v := range views {
		if err := out.Update(v.ClientID, v.NextHops); err != nil {
			return err
		}
	}
	*m = out
	return nil
}

func (e Egress) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Intf InterfaceID `json:"interfaceId"`
		IP   netip.Addr  `json:"ip"`
	}{Intf: e.Intf, IP: e.Addr})
}

func (e *Egress) UnmarshalJSON(data []byte) error {
	var w struct {
		Intf InterfaceID `json:"interfaceId"`
		IP   netip.Addr  `json:"ip"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Intf = w.Intf
	e.Addr = w.IP.Unmap()
	return nil
}

type forwardInfoView struct {
	Action ForwardAction `json:"action"`
	Ecmp   bool          `json:"ecmp"`
	Egress []Egress      `json:"egress,omitempty"`
}

func (f ForwardInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(forwardInfoView{
		Action: f.Action,
		Ecmp:   f.IsECMP(),
		Egress: f.Egress.Sorted(),
	})
}

func (f *ForwardInfo) UnmarshalJSON(data []byte) error {
	var w forwardInfoView
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	f.Action = w.Action
	f.Egress = NewEgressSet(w.Egress...)
	return nil
}

type routeView struct {
	Network       netip.Addr          `json:"network"`
	MaskLen       int                 `json:"maskLen"`
	Connected     bool                `json:"connected,omitempty"`
	InterfaceID   InterfaceID         `json:"interfaceId,omitempty"`
	Action        *ForwardAction      `json:"action,omitempty"`
	ActionClient  *ClientID           `json:"actionClient,omitempty"`
	NexthopsMulti MultiClientNextHops `json:"nexthopsmulti"`
	Fwd           *ForwardInfo        `json:"fwd,omitempty"`
	Resolved      bool                `json:"resolved,omitempty"`
	Unresolvable  bool                `json:"unresolvable,omitempty"`
	Generation    uint64              `json:"generation"`
}

func (r *Route) MarshalJSON() ([]byte, error) {
	v := routeView{
		Network:       r.prefix.Addr(),
		MaskLen:       r.prefix.Bits(),
		Connected:     r.IsConnected(),
		NexthopsMulti: r.nexthopsmulti,
		Resolved:      r.IsResolved(),
		Unresolvable:  r.IsUnresolvable(),
		Generation:    r.generation,
	}
	if r.IsConnected() {
		v.InterfaceID = r.intf
	}
	if r.hasOverride {
		action, client := r.override, r.overrideBy
		v.Action = &action
		v.ActionClient = &client
	}
	if r.IsResolved() {
		fwd := r.fwd
		v.Fwd = &fwd
	}
	return json.Marshal(v)
}

func (r *Route) UnmarshalJSON(data []byte) error {
	var v routeView
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	prefix := netip.PrefixFrom(v.Network.Unmap(), v.MaskLen)
	if !prefix.IsValid() {
		return fmt.Errorf("invalid prefix %s/%d", v.Network, v.MaskLen)
	}
	*r = Route{
		prefix:        prefix.Masked(),
		nexthopsmulti: v.NexthopsMulti,
		generation:    v.Generation,
		flags:         flagNeedResolve,
	}
	if r.nexthopsmulti == nil {
		r.nexthopsmulti = NewMultiClientNextHops()
	}
	if v.Connected {
		r.flags |= flagConnected
		r.intf = v.InterfaceID
	}
	if v.Action != nil {
		r.hasOverride = true
		r.override = *v.Action
		if v.ActionClient != nil {
			r.overrideBy = *v.ActionClient
		}
	}
	if v.Resolved && v.Fwd != nil {
		r.SetResolved(*v.Fwd)
	} else if v.Unresolvable {
		r.SetUnresolvable()
	}
	return nil
}

type routeTableView struct {
	RouterID RouterID `json:"routerId"`
	V4       []*Route `json:"v4"`
	V6       []*Route `json:"v6"`
}

func (t *RouteTable) MarshalJSON() ([]byte, error) {
	v := routeTableView{RouterID: t.id, V4: []*Route{}, V6: []*Route{}}
	for _, rt := range t.v4.AllSorted() {
		v.V4 = append(v.V4, rt)
	}
	for _, rt := range t.v6.AllSorted() {
		v.V6 = append(v.V6, rt)
	}
	return json.Marshal(v)
}

func (t *RouteTable) UnmarshalJSON(data []byte) error {
	var v routeTableView
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = *NewRouteTable(v.RouterID)
	for _, rt := range v.V4 {
		t.v4.Insert(rt)
	}
	for _, rt := range v.V6 {
		t.v6.Insert(rt)
	}
	return nil
}

type routeTableMapView struct {
	Generation uint64        `json:"generation"`
	Tables     []*RouteTable `json:"tables"`
}

func (m *RouteTableMap) MarshalJSON() ([]byte, error) {
	v := routeTableMapView{Generation: m.generation, Tables: []*RouteTable{}}
	for _, id := range m.RouterIDs() {
		v.Tables = append(v.Tables, m.tables[id])
	}
	return json.Marshal(v)
}

func (m *RouteTableMap) UnmarshalJSON(data []byte) error {
	var v routeTableMapView
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = *NewRouteTableMap()
	m.generation = v.Generation
	for _, t := range v.Tables {
		m.tables[t.ID()] = t
	}
	return nil
}
