package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/relaycrm/api/internal/store"
)

// OwnerResolver maps free-text owner cells (a UUID, display name, full
// name, or email) to durable user ids. The user directory is fetched and
// indexed once per import run, so per-row resolution is a map lookup.
// Resolution is idempotent and side-effect-free.
type OwnerResolver struct {
	actingUserID string
	index        map[string]string
}

// NewOwnerResolver loads the user directory and builds the token index.
func NewOwnerResolver(ctx context.Context, st store.Store, actingUserID string) (*OwnerResolver, error) {
	users, err := st.Select(ctx, "users", store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("load user directory: %w", err)
	}

	index := make(map[string]string, len(users)*3)
	add := func(token, id string) {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" || id == "" {
			return
		}
		if _, taken := index[token]; !taken {
			index[token] = id
		}
	}
	for _, user := range users {
		id := user.ID()
		add(user.String("display_name"), id)
		add(user.String("full_name"), id)
		add(user.String("email"), id)
	}

	return &OwnerResolver{actingUserID: actingUserID, index: index}, nil
}

// Resolve returns the user id for an owner token. UUID tokens pass
// through unchanged; anything unresolvable falls back to the acting user.
func (r *OwnerResolver) Resolve(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return r.actingUserID
	}
	if _, err := uuid.Parse(trimmed); err == nil {
		return trimmed
	}
	if id, ok := r.index[strings.ToLower(trimmed)]; ok {
		return id
	}
	return r.actingUserID
}
