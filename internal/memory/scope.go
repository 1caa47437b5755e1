package memory

import (
	"errors"
	"sync"

	"github.com/fyrsmithlabs/recalld/internal/reconcile"
)

// ErrNoScope is returned when a request names no owning session identifier.
var ErrNoScope = errors.New("at least one of user_id, agent_id, or run_id is required")

// ScopeIDs identifies the session a memory belongs to. ActorID narrows
// queries but never becomes part of a stored record's ownership.
type ScopeIDs struct {
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

// BuildScope validates ids and splits them into the metadata template
// stamped onto new records and the filter set applied to queries. ActorID
// appears in filters only.
func BuildScope(ids ScopeIDs) (metadata, filters map[string]interface{}, err error) {
	if ids.UserID == "" && ids.AgentID == "" && ids.RunID == "" {
		return nil, nil, ErrNoScope
	}

	metadata = make(map[string]interface{}, 3)
	filters = make(map[string]interface{}, 4)

	if ids.UserID != "" {
		metadata[reconcile.KeyUserID] = ids.UserID
		filters[reconcile.KeyUserID] = ids.UserID
	}
	if ids.AgentID != "" {
		metadata[reconcile.KeyAgentID] = ids.AgentID
		filters[reconcile.KeyAgentID] = ids.AgentID
	}
	if ids.RunID != "" {
		metadata[reconcile.KeyRunID] = ids.RunID
		filters[reconcile.KeyRunID] = ids.RunID
	}
	if ids.ActorID != "" {
		filters[reconcile.KeyActorID] = ids.ActorID
	}

	return metadata, filters, nil
}

// partitionKey identifies one (scope, type) reconciliation partition.
func partitionKey(ids ScopeIDs, subtype string) string {
	return ids.UserID + "\x00" + ids.AgentID + "\x00" + ids.RunID + "\x00" + subtype
}

// partitionLocks serializes reconciliation passes per partition so two
// concurrent adds for the same scope and type never interleave decisions.
type partitionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPartitionLocks() *partitionLocks {
	return &partitionLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *partitionLocks) get(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	return l
}
