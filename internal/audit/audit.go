package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaycrm/api/internal/store"
)

type Logger struct {
	store store.Store
}

func NewLogger(s store.Store) *Logger {
	return &Logger{store: s}
}

type Entry struct {
	UserID     string
	Action     string
	EntityType string
	EntityID   string
	RequestID  string
	Metadata   map[string]any
}

func (l *Logger) Log(ctx context.Context, entry Entry) error {
	metadata := "{}"
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = string(encoded)
	}

	rec := store.Record{
		"action":      entry.Action,
		"entity_type": entry.EntityType,
		"metadata":    metadata,
		"created_at":  time.Now().UTC(),
	}
	if entry.UserID != "" {
		rec["user_id"] = entry.UserID
	}
	if entry.EntityID != "" {
		rec["entity_id"] = entry.EntityID
	}
	if entry.RequestID != "" {
		rec["request_id"] = entry.RequestID
	}

	if _, err := l.store.Insert(ctx, "audit_logs", rec); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
