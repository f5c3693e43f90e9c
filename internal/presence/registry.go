// Package presence holds the per-process realtime state: which connections are
// live and who is typing where. Nothing here is persisted; a restart starts
// empty.
package presence

import (
	"sort"
	"sync"

	"chatter/internal/models"
)

// Registry maps live connection ids to the identity authenticated on them.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]models.Identity
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]models.Identity),
	}
}

// Register attaches id to connId, replacing any previous entry.
func (r *Registry) Register(connId string, id models.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connId] = id
}

// Unregister removes connId and returns the identity that was attached.
func (r *Registry) Unregister(connId string) (models.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.conns[connId]
	if ok {
		delete(r.conns, connId)
	}
	return id, ok
}

func (r *Registry) Get(connId string) (models.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.conns[connId]
	return id, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// IsUserConnected reports whether any live connection belongs to userId.
func (r *Registry) IsUserConnected(userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.conns {
		if id.UserId == userId {
			return true
		}
	}
	return false
}

// Connections returns the live connection ids in sorted order.
func (r *Registry) Connections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for connId := range r.conns {
		ids = append(ids, connId)
	}
	sort.Strings(ids)
	return ids
}
