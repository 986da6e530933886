package state

import (
	"fmt"
	"slices"
	"strings"
)

// MultiClientNextHops merges the next-hop contributions of independent
// clients for one prefix. The best contribution is the one from the
// lowest client id present.
type MultiClientNextHops map[ClientID]NextHopSet

func NewMultiClientNextHops() MultiClientNextHops {
	return make(MultiClientNextHops)
}

// Update overwrites the contribution of client. Empty sets are rejected.
func (m MultiClientNextHops) Update(client ClientID, nhs NextHopSet) error {
	if len(nhs) == 0 {
		return fmt.Errorf("client %s: %w", client, ErrEmptyNextHops)
	}
	m[client] = nhs.Copy()
	return nil
}

// DeleteForClient removes the contribution of client, if any.
func (m MultiClientNextHops) DeleteForClient(client ClientID) {
	delete(m, client)
}

// IsSame reports whether client currently contributes exactly nhs.
func (m MultiClientNextHops) IsSame(client ClientID, nhs NextHopSet) bool {
	cur, ok := m[client]
	return ok && cur.Equal(nhs)
}

// BestNextHopList returns the contribution of the lowest client id.
func (m MultiClientNextHops) BestNextHopList() (NextHopSet, error) {
	best, ok := m.lowestClient()
	if !ok {
		return nil, ErrNoEntries
	}
	return m[best], nil
}

// BestClient returns the lowest client id present.
func (m MultiClientNextHops) BestClient() (ClientID, bool) {
	return m.lowestClient()
}

func (m MultiClientNextHops) HasEntries() bool {
	return len(m) > 0
}

func (m MultiClientNextHops) HasNextHopsForClient(client ClientID) bool {
	_, ok := m[client]
	return ok
}

// Equal compares the client sets and the set under each client,
// order-independent.
func (m MultiClientNextHops) Equal(o MultiClientNextHops) bool {
	if len(m) != len(o) {
		return false
	}
	for client, nhs := range m {
		onhs, ok := o[client]
		if !ok || !nhs.Equal(onhs) {
			return false
		}
	}
	return true
}

func (m MultiClientNextHops) Copy() MultiClientNextHops {
	c := make(MultiClientNextHops, len(m))
	for client, nhs := range m {
		c[client] = nhs.Copy()
	}
	return c
}

// Clients returns the contributing client ids in priority order.
func (m MultiClientNextHops) Clients() []ClientID {
	ids := make([]ClientID, 0, len(m))
	for client := range m {
		ids = append(ids, client)
	}
	slices.Sort(ids)
	return ids
}

func (m MultiClientNextHops) lowestClient() (ClientID, bool) {
	var best ClientID
	found := false
	for client := range m {
		if !found || client < best {
			best = client
			found = true
		}
	}
	return best, found
}

func (m MultiClientNextHops) String() string {
	parts := make([]string, 0, len(m))
	for _, client := range m.Clients() {
		parts = append(parts, fmt.Sprintf("%s: %s", client, m[client]))
	}
	return "[" + strings.Join(parts, "; ") + "]"
}
