package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/relaycrm/api/internal/store"
)

// utf8BOM prefixes every export so spreadsheet tools detect the
// encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// exportColumns fix the column order per record type. The order is
// explicit rather than derived from record keys so output is stable
// across records with sparse fields, and the headers round-trip through
// MapHeader on re-import.
var exportColumns = map[RecordType][]string{
	TypeContact: {"first_name", "last_name", "company", "email", "phone", "title", "industry", "region"},
	TypeLead:    {"id", "lead_name", "company", "email", "phone", "status", "source", "action_items"},
	TypeDeal:    {"deal_name", "company", "contact_name", "stage", "amount", "probability", "priority", "start_date", "close_date", "owner", "action_items"},
}

// Exporter renders stored records as CSV. Types with child action items
// get them serialized into one JSON-encoded column.
type Exporter struct {
	Store store.Store
}

func NewExporter(st store.Store) *Exporter {
	return &Exporter{Store: st}
}

// Export renders the records in the type's canonical column order,
// BOM-prefixed, quoting any cell containing a comma, quote, or newline.
func (e *Exporter) Export(ctx context.Context, recordType RecordType, records []store.Record) ([]byte, error) {
	cfg, ok := ConfigFor(recordType)
	if !ok {
		return nil, fmt.Errorf("unknown record type %q", recordType)
	}
	columns := exportColumns[recordType]

	var children map[string][]store.Record
	if cfg.ActionItems {
		var err error
		children, err = e.fetchActionItems(ctx, cfg, records)
		if err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	writer := csv.NewWriter(&buf)

	header := make([]string, len(columns))
	for i, column := range columns {
		header[i] = FieldLabel(column)
	}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, rec := range records {
		row := make([]string, len(columns))
		for i, column := range columns {
			switch column {
			case "owner":
				row[i] = rec.String("owner_id")
			case "action_items":
				encoded, err := encodeActionItems(children[rec.ID()])
				if err != nil {
					return nil, err
				}
				row[i] = encoded
			default:
				row[i] = formatCell(rec[column])
			}
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Filename builds the export artifact name: {entity}_export_{date}.csv,
// with an optional variant (all/selected/filtered) between entity and
// date.
func Filename(entity, variant string, now time.Time) string {
	date := now.UTC().Format("2006-01-02")
	if variant != "" {
		return fmt.Sprintf("%s_export_%s_%s.csv", entity, variant, date)
	}
	return fmt.Sprintf("%s_export_%s.csv", entity, date)
}

// fetchActionItems loads all children for the exported parents in one
// in-list query and groups them by parent id.
func (e *Exporter) fetchActionItems(ctx context.Context, cfg TypeConfig, records []store.Record) (map[string][]store.Record, error) {
	ids := make([]any, 0, len(records))
	for _, rec := range records {
		if id := rec.ID(); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[string][]store.Record{}, nil
	}

	items, err := e.Store.Select(ctx, "action_items", store.Filter{
		Eq: map[string]any{"parent_type": string(cfg.Type)},
		In: map[string][]any{"parent_id": ids},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch action items: %w", err)
	}

	grouped := make(map[string][]store.Record, len(records))
	for _, item := range items {
		parentID := item.String("parent_id")
		grouped[parentID] = append(grouped[parentID], item)
	}
	return grouped, nil
}

func encodeActionItems(items []store.Record) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	payload := make([]actionItemPayload, 0, len(items))
	for _, item := range items {
		entry := actionItemPayload{Title: item.String("title")}
		if done, ok := item["done"].(bool); ok {
			entry.Done = done
		} else {
			entry.Done = false
		}
		entry.DueDate = formatCell(item["due_date"])
		payload = append(payload, entry)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// formatCell renders a stored value for CSV output. Dates collapse to
// YYYY-MM-DD; absent values render empty, never "null".
func formatCell(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case int:
		return strconv.Itoa(value)
	case int32:
		return strconv.Itoa(int(value))
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case time.Time:
		return value.UTC().Format("2006-01-02")
	default:
		return fmt.Sprint(value)
	}
}
