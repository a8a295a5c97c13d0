// Package session tracks which actors currently hold a live connection.
//
// An actor may hold several sessions at once (one per browser tab, for instance); every lookup
// by identity therefore returns a set of session ids. State lives only in memory and is lost on
// restart, after which clients reconnect and register again.
package session

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/user"
)

type Session struct {
	ID          string
	ActorType   user.Type
	ActorID     uuid.UUID
	ConnectedAt time.Time
}

type actorKey struct {
	t  user.Type
	id uuid.UUID
}

// Registry maps session ids to sessions, with a secondary index by actor identity.
// It is safe for concurrent use and never blocks on I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	byActor  map[actorKey]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		byActor:  make(map[actorKey]map[string]struct{}),
	}
}

// Register records a session. Registering an existing id again re-indexes it under the new actor.
func (r *Registry) Register(id string, t user.Type, actorID uuid.UUID) Session {
	s := Session{ID: id, ActorType: t, ActorID: actorID, ConnectedAt: time.Now()}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(id)
	r.sessions[id] = s
	k := actorKey{t, actorID}
	ids, ok := r.byActor[k]
	if !ok {
		ids = make(map[string]struct{})
		r.byActor[k] = ids
	}
	ids[id] = struct{}{}
	return s
}

// Unregister forgets a session. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

func (r *Registry) removeLocked(id string) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	k := actorKey{s.ActorType, s.ActorID}
	ids := r.byActor[k]
	delete(ids, id)
	if len(ids) == 0 {
		delete(r.byActor, k)
	}
}

func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// FindSessions returns the ids of every session the actor holds, sorted.
func (r *Registry) FindSessions(t user.Type, actorID uuid.UUID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byActor[actorKey{t, actorID}]
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) IsConnected(t user.Type, actorID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byActor[actorKey{t, actorID}]) > 0
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
