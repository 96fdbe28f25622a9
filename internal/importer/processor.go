package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/relaycrm/api/internal/store"
)

// DefaultBatchSize is the number of rows processed between progress
// callbacks. Chunking is for responsiveness only; rows are always
// processed strictly sequentially so duplicate checks observe earlier
// inserts within the same run.
const DefaultBatchSize = 25

// Options configure one import run.
type Options struct {
	RecordType   RecordType
	ActingUserID string
	// OnProgress, when set, is invoked after each batch with the number
	// of rows processed so far and the total. Processed never decreases.
	OnProgress func(processed, total int)
}

// Result is the run-level accounting. Success + Updated + Duplicates +
// Errors always equals the number of data rows attempted.
type Result struct {
	Success    int      `json:"successCount"`
	Updated    int      `json:"updateCount"`
	Duplicates int      `json:"duplicateCount"`
	Errors     int      `json:"errorCount"`
	Messages   []string `json:"errors"`
}

// Processor drives CSV text through tokenizing, mapping, coercion,
// validation, upsert resolution, and store mutation.
type Processor struct {
	Store     store.Store
	Logger    *slog.Logger
	BatchSize int
}

func NewProcessor(st store.Store, logger *slog.Logger) *Processor {
	return &Processor{Store: st, Logger: logger, BatchSize: DefaultBatchSize}
}

// ProcessCSV runs one import. Pre-loop failures (empty input, no data
// rows, missing key header, unknown record type) abort with an error;
// everything after that is isolated per row and reported through the
// Result.
func (p *Processor) ProcessCSV(ctx context.Context, text string, opts Options) (Result, error) {
	cfg, ok := ConfigFor(opts.RecordType)
	if !ok {
		return Result{}, fmt.Errorf("unknown record type %q", opts.RecordType)
	}

	doc, err := Parse(text)
	if err != nil {
		return Result{}, err
	}
	if len(doc.Rows) == 0 {
		return Result{}, fmt.Errorf("csv has no data rows")
	}

	mapping, unmapped := mapHeaderRow(doc.Headers, cfg.Type)
	if len(unmapped) > 0 && p.Logger != nil {
		p.Logger.Warn("import_unmapped_headers",
			"record_type", cfg.Type,
			"headers", strings.Join(unmapped, ", "),
		)
	}
	keyField := cfg.NaturalKey[0]
	if !mapping.hasField(keyField) {
		return Result{}, fmt.Errorf("no column maps to %s", FieldLabel(keyField))
	}

	var owners *OwnerResolver
	if cfg.OwnerField != "" {
		owners, err = NewOwnerResolver(ctx, p.Store, opts.ActingUserID)
		if err != nil {
			return Result{}, err
		}
	}

	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	result := Result{Messages: []string{}}
	total := len(doc.Rows)
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		for idx := start; idx < end; idx++ {
			// Header row is row 1; the first data row is row 2.
			rowNumber := idx + 2
			outcome, rowErrs := p.processRow(ctx, cfg, owners, mapping, doc.Rows[idx], opts.ActingUserID)
			if len(rowErrs) > 0 {
				result.Errors++
				for _, msg := range rowErrs {
					result.Messages = append(result.Messages, fmt.Sprintf("Row %d: %s", rowNumber, msg))
				}
				continue
			}
			switch outcome {
			case ActionInsert:
				result.Success++
			case ActionUpdate:
				result.Updated++
			case ActionSkip:
				result.Duplicates++
			}
		}
		if opts.OnProgress != nil {
			opts.OnProgress(end, total)
		}
	}

	return result, nil
}

// processRow runs the per-row pipeline. A non-empty error list means the
// row failed and nothing was written; exactly one of the two return
// values is meaningful.
func (p *Processor) processRow(
	ctx context.Context,
	cfg TypeConfig,
	owners *OwnerResolver,
	mapping columnMap,
	row []string,
	actingUserID string,
) (ResolveAction, []string) {
	record := make(map[string]any, len(mapping))
	var actionItemsJSON string
	var errs []string

	// Column order, not map order, so multi-error rows report their
	// messages stably.
	cols := make([]int, 0, len(mapping))
	for idx := range mapping {
		cols = append(cols, idx)
	}
	sort.Ints(cols)

	for _, idx := range cols {
		field := mapping[idx]
		raw, present := cellAt(row, idx)
		if !present {
			continue
		}
		cell := Coerce(field, raw, cfg)
		switch {
		case cell.IsInvalid():
			if cfg.StrictDates && cfg.DateFields[field] {
				// Date correctness is load-bearing downstream; reject the
				// whole row rather than writing a partial record.
				errs = append(errs, cell.Reason())
				continue
			}
			// Numerics and enums degrade gracefully to absent.
		case cell.IsValid():
			if field == "action_items" {
				actionItemsJSON, _ = cell.Value().(string)
				continue
			}
			record[field] = cell.Value()
		}
	}
	if len(errs) > 0 {
		return "", errs
	}

	if check := Validate(record, cfg); !check.IsValid {
		return "", check.Errors
	}

	if cfg.OwnerField != "" {
		token, _ := record[cfg.OwnerField].(string)
		delete(record, cfg.OwnerField)
		record["owner_id"] = owners.Resolve(token)
	}

	resolution, err := resolveUpsert(ctx, p.Store, cfg, record)
	if err != nil {
		return "", []string{err.Error()}
	}

	var parentID string
	switch resolution.Action {
	case ActionSkip:
		return ActionSkip, nil
	case ActionInsert:
		record["created_by"] = actingUserID
		record["modified_by"] = actingUserID
		inserted, err := p.Store.Insert(ctx, cfg.Table, record)
		if err != nil {
			return "", []string{err.Error()}
		}
		parentID = inserted.ID()
	case ActionUpdate:
		patch := make(map[string]any, len(record))
		for field, value := range record {
			if field == "id" {
				continue
			}
			patch[field] = value
		}
		patch["modified_by"] = actingUserID
		if err := p.Store.Update(ctx, cfg.Table, resolution.MatchedID, patch); err != nil {
			return "", []string{err.Error()}
		}
		parentID = resolution.MatchedID
	}

	if cfg.ActionItems && actionItemsJSON != "" {
		if err := p.replaceActionItems(ctx, cfg, parentID, actionItemsJSON); err != nil && p.Logger != nil {
			p.Logger.Warn("import_action_items_skipped",
				"record_type", cfg.Type, "parent_id", parentID, "error", err)
		}
	}

	return resolution.Action, nil
}

// actionItemPayload is one embedded child record. The done flag arrives
// as a bool, a number, or a truthy string depending on which tool wrote
// the CSV.
type actionItemPayload struct {
	Title   string `json:"title"`
	Done    any    `json:"done"`
	DueDate string `json:"due_date,omitempty"`
}

// replaceActionItems applies delete-then-reinsert semantics to the
// parent's child action items, scoped to that parent only.
func (p *Processor) replaceActionItems(ctx context.Context, cfg TypeConfig, parentID, rawJSON string) error {
	var payload []actionItemPayload
	if err := json.Unmarshal([]byte(rawJSON), &payload); err != nil {
		return fmt.Errorf("parse action items: %w", err)
	}

	parentFilter := store.Filter{Eq: map[string]any{
		"parent_type": string(cfg.Type),
		"parent_id":   parentID,
	}}
	if err := p.Store.Delete(ctx, "action_items", parentFilter); err != nil {
		return fmt.Errorf("clear action items: %w", err)
	}

	for _, item := range payload {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		rec := store.Record{
			"parent_type": string(cfg.Type),
			"parent_id":   parentID,
			"title":       title,
			"done":        truthy(item.Done),
		}
		if due := strings.TrimSpace(item.DueDate); due != "" {
			if cell := coerceDate("due_date", due); cell.IsValid() {
				rec["due_date"] = cell.Value()
			}
		}
		if _, err := p.Store.Insert(ctx, "action_items", rec); err != nil {
			return fmt.Errorf("insert action item: %w", err)
		}
	}
	return nil
}

func truthy(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		return parseBool(value)
	case float64:
		return value == 1
	default:
		return false
	}
}
