package core

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/encodeous/ribd/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clientA = state.ClientBGP

func TestRecursiveResolution(t *testing.T) {
	snap := apply(t, state.NewRouteTableMap(), func(u *RouteUpdater) {
		require.NoError(t, u.AddInterfaceRoute(0, 1, addr("1.1.1.1"), 24))
		require.NoError(t, u.AddRoute(0, pfx("1.1.3.0/24"), clientA, nhs("1.1.1.10")))
		require.NoError(t, u.AddRoute(0, pfx("8.8.8.0/24"), clientA, nhs("1.1.3.10")))
	})

	want := state.ForwardInfo{
		Action: state.ActionNextHops,
		Egress: state.NewEgressSet(state.Egress{Intf: 1, Addr: addr("1.1.1.10")}),
	}
	for _, prefix := range []string{"1.1.3.0/24", "8.8.8.0/24"} {
		rt := route(t, snap, 0, prefix)
		assert.True(t, rt.IsResolved(), "%s should be resolved", prefix)
		assert.True(t, rt.ForwardInfo().Equal(want), "%s fwd = %s", prefix, rt.ForwardInfo())
	}

	conn := route(t, snap, 0, "1.1.1.0/24")
	assert.True(t, conn.IsConnected())
	assert.True(t, conn.IsResolved())
	assert.True(t, conn.ForwardInfo().Equal(state.ForwardInfo{
		Action: state.ActionNextHops,
		Egress: state.NewEgressSet(state.Egress{Intf: 1, Addr: addr("1.1.1.1")}),
	}))
}

func TestNextHopCycle(t *testing.T) {
	snap := apply(t, state.NewRouteTableMap(), func(u *RouteUpdater) {
		require.NoError(t, u.AddRoute(0, pfx("10.0.0.0/8"), clientA, nhs("30.1.1.1")))
		require.NoError(t, u.AddRoute(0, pfx("20.0.0.0/8"), clientA, nhs("10.1.1.1")))
		require.NoError(t, u.AddRoute(0, pfx("30.0.0.0/8"), clientA, nhs("20.1.1.1")))
	})

	for _, prefix := range []string{"10.0.0.0/8", "20.0.0.0/8", "30.0.0.0/8"} {
		rt := route(t, snap, 0, prefix)
		assert.True(t, rt.IsUnresolvable(), "%s should be unresolvable", prefix)
		assert.False(t, rt.IsResolved(), "%s should not be resolved", prefix)
	}
}

func TestInheritedDrop(t *testing.T) {
	snap := apply(t, state.NewRouteTableMap(), func(u *RouteUpdater) {
		require.NoError(t, u.AddActionRoute(0, pfx("10.10.10.10/32"), state.ActionDrop))
		require.NoError(t, u.AddRoute(0, pfx("20.20.20.0/24"), clientA, nhs("10.10.10.10")))
	})

	rt := route(t, snap, 0, "20.20.20.0/24")
	assert.True(t, rt.IsResolved())
	assert.Equal(t, state.ActionDrop, rt.ForwardInfo().Action)
	assert.Empty(t, rt.ForwardInfo().Egress)
}

func TestClientPriority(t *testing.T) {
	target := pfx("22.22.22.22/32")
	snap := apply(t, state.NewRouteTableMap(), func(u *RouteUpdater) {
		require.NoError(t, u.AddInterfaceRoute(0, 9, addr("10.10.0.1"), 16))
		require.NoError(t, u.AddRoute(0, target, 30, nhs("10.10.30.10", "10.10.30.11", "10.10.30.12")))
		require.NoError(t, u.AddRoute(0, target, 20, nhs("10.10.20.10", "10.10.20.11", "10.10.20.12")))
		require.NoError(t, u.AddRoute(0, target, 10, nhs("10.10.10.10", "10.10.10.11", "10.10.10.12")))
		require.NoError(t, u.AddRoute(0, target, 40, nhs("10.10.40.10", "10.10.40.11", "10.10.40.12")))
	})

	assertEgressPrefix := func(snap *state.RouteTableMap, ipPrefix string) {
		t.Helper()
		rt := route(t, snap, 0, target.String())
		require.True(t, rt.IsResolved())
		addrs := egressAddrs(rt)
		require.Len(t, addrs, 3)
		for _, a := range addrs {
			assert.True(t, strings.HasPrefix(a, ipPrefix), "egress %s should start with %s", a, ipPrefix)
		}
	}

	assertEgressPrefix(snap, "10.10.10.")
	for _, step := range []struct {
		drop state.ClientID
		want string
	}{
		{10, "10.10.20."},
		{20, "10.10.30."},
		{30, "10.10.40."},
	} {
		snap = apply(t, snap, func(u *RouteUpdater) {
			require.NoError(t, u.DelNextHopsForClient(0, target, step.drop))
		})
		assertEgressPrefix(snap, step.want)
	}
}

func TestEmptyNextHopsRejected(t *testing.T) {
	u := NewRouteUpdater(testLogger(), state.NewRouteTableMap())
	err := u.AddRoute(0, pfx("5.5.5.5/32"), clientA, state.NewNextHopSet())
	require.ErrorIs(t, err, state.ErrEmptyNextHops)
	assert.Nil(t, u.UpdateDone(), "snapshot should be unchanged")
}

func TestIdempotentUpdates(t *testing.T) {
	add := func(u *RouteUpdater) {
		require.NoError(t, u.AddInterfaceRoute(0, 1, addr("1.1.1.1"), 24))
		require.NoError(t, u.AddRoute(0, pfx("8.8.8.0/24"), clientA, nhs("1.1.1.10")))
	}
	snap := apply(t, state.NewRouteTableMap(), add)

	u := NewRouteUpdater(testLogger(), snap)
	add(u)
	assert.Nil(t, u.UpdateDone(), "identical adds should publish no change")
}

func TestGenerationMonotonicity(t *testing.T) {
	snap := apply(t, state.NewRouteTableMap(), func(u *RouteUpdater) {
		require.NoError(t, u.AddInterfaceRoute(0, 1, addr("1.1.1.1"), 24))
		require.NoError(t, u.AddRoute(0, pfx("8.8.8.0/24"), clientA, nhs("1.1.1.10")))
		require.NoError(t, u.AddRoute(0, pfx("9.9.9.0/24"), clientA, nhs("1.1.1.11")))
	})
	changed := route(t, snap, 0, "8.8.8.0/24")
	stable := route(t, snap, 0, "9.9.9.0/24")
	assert.Equal(t, uint64(0), changed.Generation())

	next := apply(t, snap, func(u *RouteUpdater) {
		require.NoError(t, u.AddRoute(0, pfx("8.8.8.0/24"), clientA, nhs("1.1.1.12")))
	})
	assert.Equal(t, changed.Generation()+1, route(t, next, 0, "8.8.8.0/24").Generation())
	assert.Same(t, stable, route(t, next, 0, "9.9.9.0/24"), "untouched route should keep its node")
	assert.Equal(t, snap.Generation()+1, next.Generation())
}

func TestDelRouteWithNoNextHops(t *testing.T) {
	snap := apply(t, state.NewRouteTableMap(), func(u *RouteUpdater) {
		require.NoError(t, u.AddActionRoute(0, pfx("10.10.10.10/32"), state.ActionToCPU))
		require.NoError(t, u.AddRoute(0, pfx("8.8.8.0/24"), clientA, nhs("1.1.1.10")))
	})

	u := NewRouteUpdater(testLogger(), snap)
	require.ErrorIs(t, u.DelRouteWithNoNextHops(0, pfx("8.8.8.0/24")), state.ErrRouteStillHasNextHops)
	require.ErrorIs(t, u.DelRouteWithNoNextHops(0, pfx("7.7.7.7/32")), state.ErrRouteNotFound)
	require.ErrorIs(t, u.DelRouteWithNoNextHops(42, pfx("8.8.8.0/24")), state.ErrUnknownRouter)
	require.NoError(t, u.DelRouteWithNoNextHops(0, pfx("10.10.10.10/32")))

	next := u.UpdateDone()
	require.NotNil(t, next)
	assert.Nil(t, next.Table(0).RibV4().ExactMatch(pfx("10.10.10.10/32")))
}

func TestInterfaceAndLinkLocalRoutes(t *testing.T) {
	im := make(state.InterfaceMap)
	im.Add(0, state.Interface{ID: 1, Addrs: []netip.Prefix{pfx("1.1.1.1/24"), pfx("2001:db8::1/64")}})
	im.Add(7, state.Interface{ID: 2, Addrs: []netip.Prefix{pfx("3.3.3.1/24")}})

	snap := apply(t, state.NewRouteTableMap(), func(u *RouteUpdater) {
		require.NoError(t, u.AddInterfaceAndLinkLocalRoutes(im))
	})

	for _, router := range []state.RouterID{0, 7} {
		ll := route(t, snap, router, "fe80::/64")
		assert.True(t, ll.IsResolved())
		assert.Equal(t, state.ActionToCPU, ll.ForwardInfo().Action)
		assert.Equal(t, state.ClientLinkLocal, ll.OverrideClient())
	}
	assert.True(t, route(t, snap, 0, "2001:db8::/64").IsConnected())
	assert.True(t, route(t, snap, 7, "3.3.3.0/24").IsConnected())

	// removing the derived routes again
	next := apply(t, snap, func(u *RouteUpdater) {
		require.NoError(t, u.DelLinkLocalRoutes(7))
	})
	assert.Nil(t, next.Table(7).RibV6().ExactMatch(pfx("fe80::/64")))
	require.NotNil(t, next.Table(0))
	assert.NotNil(t, next.Table(0).RibV6().ExactMatch(pfx("fe80::/64")))
}

func TestInterfacePrefixConflict(t *testing.T) {
	im := make(state.InterfaceMap)
	im.Add(0, state.Interface{ID: 1, Addrs: []netip.Prefix{pfx("1.1.1.1/24")}})
	im.Add(0, state.Interface{ID: 2, Addrs: []netip.Prefix{pfx("1.1.1.2/24")}})

	u := NewRouteUpdater(testLogger(), state.NewRouteTableMap())
	require.ErrorIs(t, u.AddInterfaceAndLinkLocalRoutes(im), state.ErrPrefixConflict)
	assert.Nil(t, u.UpdateDone(), "failed call must leave the transaction untouched")
}

func TestAlpmDefaultRoutes(t *testing.T) {
	u := NewRouteUpdater(testLogger(), state.NewRouteTableMap())
	u.Alpm = true
	require.NoError(t, u.AddRoute(0, pfx("8.8.8.0/24"), clientA, nhs("1.1.1.10")))
	snap := u.UpdateDone()
	require.NotNil(t, snap)

	for _, prefix := range []string{"0.0.0.0/0", "::/0"} {
		def := route(t, snap, 0, prefix)
		assert.True(t, def.IsSameAction(state.ActionDrop), "%s should be a drop default", prefix)
	}

	// deleting a default re-inserts the synthetic drop, so nothing changes
	u = NewRouteUpdater(testLogger(), snap)
	u.Alpm = true
	require.NoError(t, u.DelRouteWithNoNextHops(0, pfx("0.0.0.0/0")))
	assert.Nil(t, u.UpdateDone())
}

func TestScopedNextHopResolution(t *testing.T) {
	snap := apply(t, state.NewRouteTableMap(), func(u *RouteUpdater) {
		require.NoError(t, u.AddRoute(0, pfx("2001:db8:1::/48"), clientA,
			state.NewNextHopSet(state.NewScopedNextHop(addr("fe80::2"), 4))))
	})
	rt := route(t, snap, 0, "2001:db8:1::/48")
	require.True(t, rt.IsResolved())
	assert.True(t, rt.ForwardInfo().Equal(state.ForwardInfo{
		Action: state.ActionNextHops,
		Egress: state.NewEgressSet(state.Egress{Intf: 4, Addr: addr("fe80::2")}),
	}))
}

func TestRevertNewRouteEntry(t *testing.T) {
	first := apply(t, state.NewRouteTableMap(), func(u *RouteUpdater) {
		require.NoError(t, u.AddInterfaceRoute(0, 1, addr("1.1.1.1"), 24))
		require.NoError(t, u.AddRoute(0, pfx("8.8.8.0/24"), clientA, nhs("1.1.1.10")))
	})
	oldRoute := route(t, first, 0, "8.8.8.0/24")

	second := apply(t, first, func(u *RouteUpdater) {
		require.NoError(t, u.AddRoute(0, pfx("8.8.8.0/24"), clientA, nhs("1.1.1.11")))
	})
	newRoute := route(t, second, 0, "8.8.8.0/24")

	reverted, err := RevertNewRouteEntry(second, 0, newRoute, oldRoute)
	require.NoError(t, err)
	assert.Same(t, oldRoute, route(t, reverted, 0, "8.8.8.0/24"))
	assert.Equal(t, second.Generation()+1, reverted.Generation())

	// removing a freshly added route entirely
	removed, err := RevertNewRouteEntry(second, 0, newRoute, nil)
	require.NoError(t, err)
	assert.Nil(t, removed.Table(0).RibV4().ExactMatch(pfx("8.8.8.0/24")))

	_, err = RevertNewRouteEntry(second, 42, newRoute, oldRoute)
	require.ErrorIs(t, err, state.ErrUnknownRouter)
}

func TestResolveL3Unicast(t *testing.T) {
	snap := apply(t, state.NewRouteTableMap(), func(u *RouteUpdater) {
		require.NoError(t, u.AddInterfaceRoute(0, 1, addr("1.1.1.1"), 24))
		require.NoError(t, u.AddRoute(0, pfx("8.8.8.0/24"), clientA, nhs("1.1.1.10")))
	})
	table := snap.Table(0)

	eg, ok := table.ResolveL3Unicast(addr("8.8.8.8"))
	require.True(t, ok)
	assert.Equal(t, state.Egress{Intf: 1, Addr: addr("1.1.1.10")}, eg)

	// a destination on the connected subnet egresses directly
	eg, ok = table.ResolveL3Unicast(addr("1.1.1.77"))
	require.True(t, ok)
	assert.Equal(t, state.Egress{Intf: 1, Addr: addr("1.1.1.77")}, eg)

	_, ok = table.ResolveL3Unicast(addr("99.99.99.99"))
	assert.False(t, ok)
}
