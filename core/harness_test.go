package core

import (
	"io"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/encodeous/ribd/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pfx(s string) netip.Prefix {
	return netip.MustParsePrefix(s)
}

func addr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

func nh(s string) state.NextHop {
	return state.NewNextHop(netip.MustParseAddr(s))
}

func nhs(addrs ...string) state.NextHopSet {
	set := state.NewNextHopSet()
	for _, a := range addrs {
		set.Add(nh(a))
	}
	return set
}

// apply runs ops against cur and publishes, failing the test on any error.
func apply(t *testing.T, cur *state.RouteTableMap, ops func(u *RouteUpdater)) *state.RouteTableMap {
	t.Helper()
	u := NewRouteUpdater(testLogger(), cur)
	ops(u)
	next := u.UpdateDone()
	if next == nil {
		t.Fatalf("expected a new snapshot, got no change")
	}
	return next
}

func route(t *testing.T, snap *state.RouteTableMap, router state.RouterID, prefix string) *state.Route {
	t.Helper()
	table := snap.Table(router)
	if table == nil {
		t.Fatalf("no table for router %d", router)
	}
	rt := table.RibForPrefix(pfx(prefix)).ExactMatch(pfx(prefix))
	if rt == nil {
		t.Fatalf("no route for %s in router %d", prefix, router)
	}
	return rt
}

// egressAddrs returns the forwarding IPs of a resolved route as strings.
func egressAddrs(rt *state.Route) []string {
	addrs := make([]string, 0)
	for _, eg := range rt.ForwardInfo().Egress.Sorted() {
		addrs = append(addrs, eg.Addr.String())
	}
	return addrs
}
