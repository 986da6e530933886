package state

import "errors"

// Error kinds surfaced by the rib core. Callers match with errors.Is; call
// sites wrap these with context via fmt.Errorf and %w.
var (
	// ErrEmptyNextHops is returned when a client tries to contribute an
	// empty next-hop set.
	ErrEmptyNextHops = errors.New("next-hop set must not be empty")

	// ErrNoEntries is returned by BestNextHopList on a route with no
	// client contributions.
	ErrNoEntries = errors.New("no next-hop entries")

	// ErrPrefixConflict is returned when two interfaces contribute the
	// same connected prefix under one router.
	ErrPrefixConflict = errors.New("connected prefix conflict")

	// ErrRouteNotFound is returned by operations that target a route
	// which does not exist.
	ErrRouteNotFound = errors.New("route not found")

	// ErrRouteStillHasNextHops is returned when removing a route that
	// still carries client next-hops.
	ErrRouteStillHasNextHops = errors.New("route still has next-hops")

	// ErrInvalidNextHopScope is returned when a wire next-hop violates
	// the link-local scoping rules.
	ErrInvalidNextHopScope = errors.New("invalid next-hop scope")

	// ErrUnknownRouter is returned by operations against a router id
	// that has no route table.
	ErrUnknownRouter = errors.New("unknown router")
)
