package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/relaycrm/api/internal/store"
)

// ResolveAction is the decision for one incoming record.
type ResolveAction string

const (
	ActionInsert ResolveAction = "insert"
	ActionUpdate ResolveAction = "update"
	ActionSkip   ResolveAction = "skip"
)

// Resolution carries the resolver's decision and, for updates, the id of
// the matched stored record.
type Resolution struct {
	Action    ResolveAction
	MatchedID string
}

// resolveUpsert decides insert vs update vs skip for one record using
// the record type's configured strategy. Natural-key comparison is
// case-insensitive. Runs one store read per row; because rows are
// processed sequentially, later rows observe earlier inserts.
func resolveUpsert(ctx context.Context, st store.Store, cfg TypeConfig, record map[string]any) (Resolution, error) {
	switch cfg.Strategy {
	case ExplicitID:
		return resolveByExplicitID(ctx, st, cfg, record)
	case NaturalKeySkip, NaturalKeyUpdate:
		return resolveByNaturalKey(ctx, st, cfg, record)
	default:
		return Resolution{}, fmt.Errorf("unknown upsert strategy %q", cfg.Strategy)
	}
}

func resolveByNaturalKey(ctx context.Context, st store.Store, cfg TypeConfig, record map[string]any) (Resolution, error) {
	filter := store.Filter{FoldEq: make(map[string]string, len(cfg.NaturalKey))}
	for _, field := range cfg.NaturalKey {
		value, _ := record[field].(string)
		filter.FoldEq[field] = strings.TrimSpace(value)
	}

	existing, err := st.Select(ctx, cfg.Table, filter)
	if err != nil {
		return Resolution{}, fmt.Errorf("natural key lookup: %w", err)
	}
	if len(existing) == 0 {
		return Resolution{Action: ActionInsert}, nil
	}

	if cfg.Strategy == NaturalKeySkip {
		return Resolution{Action: ActionSkip, MatchedID: existing[0].ID()}, nil
	}
	return Resolution{Action: ActionUpdate, MatchedID: existing[0].ID()}, nil
}

// resolveByExplicitID trusts a client-supplied id cell: a found id
// updates, an unknown id inserts with that id preserved, and a row
// without an id always inserts.
func resolveByExplicitID(ctx context.Context, st store.Store, cfg TypeConfig, record map[string]any) (Resolution, error) {
	id, _ := record["id"].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		delete(record, "id")
		return Resolution{Action: ActionInsert}, nil
	}

	existing, err := st.Select(ctx, cfg.Table, store.Filter{Eq: map[string]any{"id": id}})
	if err != nil {
		return Resolution{}, fmt.Errorf("id lookup: %w", err)
	}
	if len(existing) > 0 {
		return Resolution{Action: ActionUpdate, MatchedID: id}, nil
	}
	return Resolution{Action: ActionInsert}, nil
}
