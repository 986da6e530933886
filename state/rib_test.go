package state

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPfx(s string) netip.Prefix {
	return netip.MustParsePrefix(s)
}

func TestRibExactAndLongestMatch(t *testing.T) {
	rib := NewRib()
	def := NewRoute(mustPfx("0.0.0.0/0"))
	wide := NewRoute(mustPfx("10.0.0.0/8"))
	narrow := NewRoute(mustPfx("10.1.0.0/16"))
	host := NewRoute(mustPfx("10.1.2.3/32"))
	for _, rt := range []*Route{def, wide, narrow, host} {
		rib.Insert(rt)
	}
	require.Equal(t, 4, rib.Size())

	assert.Same(t, narrow, rib.ExactMatch(mustPfx("10.1.0.0/16")))
	assert.Nil(t, rib.ExactMatch(mustPfx("10.1.0.0/24")))

	assert.Same(t, host, rib.LongestMatch(netip.MustParseAddr("10.1.2.3")))
	assert.Same(t, narrow, rib.LongestMatch(netip.MustParseAddr("10.1.2.4")))
	assert.Same(t, wide, rib.LongestMatch(netip.MustParseAddr("10.9.9.9")))
	assert.Same(t, def, rib.LongestMatch(netip.MustParseAddr("99.0.0.1")))

	rib.Remove(mustPfx("10.1.2.3/32"))
	assert.Same(t, narrow, rib.LongestMatch(netip.MustParseAddr("10.1.2.3")))
}

func TestRibNormalizesKeys(t *testing.T) {
	rib := NewRib()
	rt := NewRoute(netip.PrefixFrom(netip.MustParseAddr("10.1.2.3"), 16))
	rib.Insert(rt)

	assert.Equal(t, mustPfx("10.1.0.0/16"), rt.Prefix(), "bits below the mask are cleared")
	assert.Same(t, rt, rib.ExactMatch(netip.PrefixFrom(netip.MustParseAddr("10.1.9.9"), 16)))
}

func TestRibFullV6Width(t *testing.T) {
	rib := NewRib()
	host := NewRoute(mustPfx("2001:db8::1/128"))
	subnet := NewRoute(mustPfx("2001:db8::/64"))
	rib.Insert(host)
	rib.Insert(subnet)

	assert.Same(t, host, rib.LongestMatch(netip.MustParseAddr("2001:db8::1")))
	assert.Same(t, subnet, rib.LongestMatch(netip.MustParseAddr("2001:db8::2")))
	assert.Nil(t, rib.LongestMatch(netip.MustParseAddr("2001:db9::1")))
	assert.True(t, host.IsHostRoute())
	assert.False(t, subnet.IsHostRoute())
}

func TestRibCloneSharesRoutes(t *testing.T) {
	rib := NewRib()
	rt := NewRoute(mustPfx("10.0.0.0/8"))
	rib.Insert(rt)
	rib.MarkPublished()

	clone := rib.CloneForWrite()
	assert.Same(t, rt, clone.ExactMatch(mustPfx("10.0.0.0/8")), "clone shares route nodes")

	clone.Insert(NewRoute(mustPfx("20.0.0.0/8")))
	assert.Equal(t, 2, clone.Size())
	assert.Equal(t, 1, rib.Size(), "published rib is unaffected")
	assert.Panics(t, func() { rib.Insert(NewRoute(mustPfx("30.0.0.0/8"))) })
}

func TestGetOrCreate(t *testing.T) {
	rib := NewRib()
	rt := rib.GetOrCreate(mustPfx("10.0.0.0/8"))
	assert.Same(t, rt, rib.GetOrCreate(mustPfx("10.0.0.0/8")))
	assert.Equal(t, 1, rib.Size())
}
