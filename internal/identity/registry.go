// Package identity tracks which live connection belongs to which user.
//
// The registry is the ground truth for "who is online". It is not safe for
// concurrent use: every mutation happens under the signaling hub's run-to-
// completion lock.
package identity

import (
	"sort"
	"time"
)

// Identity describes the user behind one connection.
type Identity struct {
	ConnID   string    `json:"connId"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar,omitempty"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// Registry maps live connection ids to identities.
//
// Avatars and last-seen stamps are additionally kept by display name so they
// survive reconnection under the same name. Names are not deduplicated: two
// live connections may share a name, and name-keyed state is last-writer-wins.
type Registry struct {
	byConn   map[string]*Identity
	avatars  map[string]string
	lastSeen map[string]time.Time

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byConn:   make(map[string]*Identity),
		avatars:  make(map[string]string),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Register creates or overwrites the live entry for connID. Registering the
// same connection twice is idempotent apart from the refreshed timestamp.
func (r *Registry) Register(connID, name, avatar string) Identity {
	if avatar == "" {
		avatar = r.avatars[name]
	} else {
		r.avatars[name] = avatar
	}

	id := &Identity{
		ConnID:   connID,
		Name:     name,
		Avatar:   avatar,
		Online:   true,
		LastSeen: r.now(),
	}
	r.byConn[connID] = id
	r.lastSeen[name] = id.LastSeen
	return *id
}

// UpdateAvatar mutates the avatar of a registered connection and persists it
// by name.
func (r *Registry) UpdateAvatar(connID, avatar string) (Identity, bool) {
	id, ok := r.byConn[connID]
	if !ok {
		return Identity{}, false
	}
	id.Avatar = avatar
	r.avatars[id.Name] = avatar
	return *id, true
}

// Resolve returns the identity registered for connID.
func (r *Registry) Resolve(connID string) (Identity, bool) {
	id, ok := r.byConn[connID]
	if !ok {
		return Identity{}, false
	}
	return *id, true
}

// AvatarFor returns the last avatar persisted for a display name, which may
// outlive any connection.
func (r *Registry) AvatarFor(name string) string {
	return r.avatars[name]
}

// Disconnect evicts the live entry, stamping last-seen for the name. The
// returned identity carries Online=false.
func (r *Registry) Disconnect(connID string) (Identity, bool) {
	id, ok := r.byConn[connID]
	if !ok {
		return Identity{}, false
	}
	delete(r.byConn, connID)
	id.Online = false
	id.LastSeen = r.now()
	r.lastSeen[id.Name] = id.LastSeen
	return *id, true
}

// Online returns the live identities sorted by name, then connection id, so
// broadcast user lists are deterministic.
func (r *Registry) Online() []Identity {
	out := make([]Identity, 0, len(r.byConn))
	for _, id := range r.byConn {
		out = append(out, *id)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ConnID < out[j].ConnID
	})
	return out
}

// Known returns every user the registry has seen, online or not, for the
// persistence snapshot. Offline users carry no connection id.
func (r *Registry) Known() []Identity {
	online := make(map[string]bool, len(r.byConn))
	out := make([]Identity, 0, len(r.lastSeen))
	for _, id := range r.byConn {
		out = append(out, *id)
		online[id.Name] = true
	}
	for name, seen := range r.lastSeen {
		if online[name] {
			continue
		}
		out = append(out, Identity{
			Name:     name,
			Avatar:   r.avatars[name],
			LastSeen: seen,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ConnID < out[j].ConnID
	})
	return out
}

// Seed restores users from a persisted snapshot. Users are always seeded
// offline: the persisted online flag is never trusted across a restart.
func (r *Registry) Seed(users []Identity) {
	for _, u := range users {
		if u.Name == "" {
			continue
		}
		if u.Avatar != "" {
			r.avatars[u.Name] = u.Avatar
		}
		r.lastSeen[u.Name] = u.LastSeen
	}
}
