package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireNextHopConversion(t *testing.T) {
	// plain next-hop, no interface name
	nh, err := WireNextHop{Addr: mustAddr("1.1.1.1")}.FromWire()
	require.NoError(t, err)
	assert.Equal(t, NewNextHop(mustAddr("1.1.1.1")), nh)

	// link-local with a scope round-trips
	nh, err = WireNextHop{Addr: mustAddr("fe80::1"), IfName: "intf5"}.FromWire()
	require.NoError(t, err)
	assert.Equal(t, NewScopedNextHop(mustAddr("fe80::1"), 5), nh)

	wire, err := nh.ToWire()
	require.NoError(t, err)
	assert.Equal(t, WireNextHop{Addr: mustAddr("fe80::1"), IfName: "intf5"}, wire)
}

func TestWireNextHopScopeErrors(t *testing.T) {
	// link-local without an interface name
	_, err := WireNextHop{Addr: mustAddr("fe80::1")}.FromWire()
	assert.ErrorIs(t, err, ErrInvalidNextHopScope)

	// non-link-local with an interface name
	_, err = WireNextHop{Addr: mustAddr("1.1.1.1"), IfName: "intf5"}.FromWire()
	assert.ErrorIs(t, err, ErrInvalidNextHopScope)

	// malformed interface name
	_, err = WireNextHop{Addr: mustAddr("fe80::1"), IfName: "bogus5"}.FromWire()
	assert.ErrorIs(t, err, ErrInvalidNextHopScope)

	// the same rules hold outbound
	_, err = NextHop{Addr: mustAddr("fe80::1")}.ToWire()
	assert.ErrorIs(t, err, ErrInvalidNextHopScope)
	_, err = NextHop{Addr: mustAddr("1.1.1.1"), Intf: 3, Scoped: true}.ToWire()
	assert.ErrorIs(t, err, ErrInvalidNextHopScope)
}

func TestNextHopSetFromWire(t *testing.T) {
	set, err := NextHopSetFromWire([]WireNextHop{
		{Addr: mustAddr("1.1.1.1")},
		{Addr: mustAddr("fe80::1"), IfName: "intf2"},
	})
	require.NoError(t, err)
	assert.True(t, set.Equal(NewNextHopSet(
		NewNextHop(mustAddr("1.1.1.1")),
		NewScopedNextHop(mustAddr("fe80::1"), 2),
	)))

	_, err = NextHopSetFromWire([]WireNextHop{{Addr: mustAddr("fe80::1")}})
	assert.ErrorIs(t, err, ErrInvalidNextHopScope)
}
