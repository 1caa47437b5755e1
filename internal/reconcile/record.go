package reconcile

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/recalld/internal/extraction"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

// Payload keys for stored memory records.
const (
	KeyData      = "data"
	KeyHash      = "hash"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
	KeyType      = "type"
	KeyUserID    = "user_id"
	KeyAgentID   = "agent_id"
	KeyRunID     = "run_id"
	KeyActorID   = "actor_id"
	KeyRole      = "role"
	KeyKeywords  = "keywords"
)

// HashData returns the md5 hex digest used for change detection.
func HashData(data string) string {
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}

// nowUTC returns the current time in the storage timestamp format.
func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// CreateRecord inserts a new memory record and returns its id. The metadata
// map supplies scope and provenance fields; data, hash, type, and created_at
// are filled in here.
func CreateRecord(ctx context.Context, store vectorstore.Store, data string, subtype extraction.Subtype, vector []float32, metadata map[string]interface{}) (string, error) {
	id := uuid.NewString()

	payload := make(map[string]interface{}, len(metadata)+4)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[KeyData] = data
	payload[KeyHash] = HashData(data)
	payload[KeyCreatedAt] = nowUTC()
	payload[KeyType] = string(subtype)

	if err := store.Insert(ctx, []vectorstore.Point{{ID: id, Vector: vector, Payload: payload}}); err != nil {
		return "", fmt.Errorf("failed to create record: %w", err)
	}
	return id, nil
}

// UpdateRecord replaces the text of an existing record, preserving its id,
// created_at, and scope fields. It returns the previous text.
func UpdateRecord(ctx context.Context, store vectorstore.Store, id, data string, vector []float32) (string, error) {
	existing, err := store.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to load record %s: %w", id, err)
	}

	previous, _ := existing.Payload[KeyData].(string)

	payload := make(map[string]interface{}, len(existing.Payload)+2)
	for k, v := range existing.Payload {
		payload[k] = v
	}
	payload[KeyData] = data
	payload[KeyHash] = HashData(data)
	payload[KeyUpdatedAt] = nowUTC()

	if err := store.Update(ctx, id, vector, payload); err != nil {
		return "", fmt.Errorf("failed to update record %s: %w", id, err)
	}
	return previous, nil
}

// DeleteRecord removes a record and returns the text it held.
func DeleteRecord(ctx context.Context, store vectorstore.Store, id string) (string, error) {
	existing, err := store.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to load record %s: %w", id, err)
	}
	previous, _ := existing.Payload[KeyData].(string)

	if err := store.Delete(ctx, id); err != nil {
		return "", fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return previous, nil
}
