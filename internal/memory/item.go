package memory

import (
	"github.com/fyrsmithlabs/recalld/internal/reconcile"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

// Item is a memory record as returned to API callers.
type Item struct {
	ID        string                 `json:"id"`
	Memory    string                 `json:"memory"`
	Hash      string                 `json:"hash,omitempty"`
	Type      string                 `json:"type,omitempty"`
	Score     float32                `json:"score,omitempty"`
	CreatedAt string                 `json:"created_at,omitempty"`
	UpdatedAt string                 `json:"updated_at,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	AgentID   string                 `json:"agent_id,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	ActorID   string                 `json:"actor_id,omitempty"`
	Role      string                 `json:"role,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// wellKnownKeys are payload fields lifted into Item struct fields; anything
// else rides along in Metadata.
var wellKnownKeys = map[string]bool{
	reconcile.KeyData:      true,
	reconcile.KeyHash:      true,
	reconcile.KeyType:      true,
	reconcile.KeyCreatedAt: true,
	reconcile.KeyUpdatedAt: true,
	reconcile.KeyUserID:    true,
	reconcile.KeyAgentID:   true,
	reconcile.KeyRunID:     true,
	reconcile.KeyActorID:   true,
	reconcile.KeyRole:      true,
}

func payloadString(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}

func itemFromPoint(p vectorstore.Point, score float32) Item {
	item := Item{
		ID:        p.ID,
		Memory:    payloadString(p.Payload, reconcile.KeyData),
		Hash:      payloadString(p.Payload, reconcile.KeyHash),
		Type:      payloadString(p.Payload, reconcile.KeyType),
		Score:     score,
		CreatedAt: payloadString(p.Payload, reconcile.KeyCreatedAt),
		UpdatedAt: payloadString(p.Payload, reconcile.KeyUpdatedAt),
		UserID:    payloadString(p.Payload, reconcile.KeyUserID),
		AgentID:   payloadString(p.Payload, reconcile.KeyAgentID),
		RunID:     payloadString(p.Payload, reconcile.KeyRunID),
		ActorID:   payloadString(p.Payload, reconcile.KeyActorID),
		Role:      payloadString(p.Payload, reconcile.KeyRole),
	}

	for k, v := range p.Payload {
		if wellKnownKeys[k] {
			continue
		}
		if item.Metadata == nil {
			item.Metadata = make(map[string]interface{})
		}
		item.Metadata[k] = v
	}

	return item
}
