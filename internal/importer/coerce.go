package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type cellState int

const (
	cellAbsent cellState = iota
	cellValid
	cellInvalid
)

// Cell is the tagged result of coercing one raw CSV cell. A cell is
// either valid with a typed value, absent (blank or deliberately
// degraded), or invalid with a reason. Invalid never silently collapses
// into absent; that decision belongs to the processor, which only treats
// it as fatal for strict-date record types.
type Cell struct {
	state  cellState
	value  any
	reason string
}

func validCell(v any) Cell      { return Cell{state: cellValid, value: v} }
func absentCell() Cell          { return Cell{state: cellAbsent} }
func invalidCell(reason string) Cell {
	return Cell{state: cellInvalid, reason: reason}
}

func (c Cell) IsValid() bool   { return c.state == cellValid }
func (c Cell) IsAbsent() bool  { return c.state == cellAbsent }
func (c Cell) IsInvalid() bool { return c.state == cellInvalid }
func (c Cell) Value() any      { return c.value }
func (c Cell) Reason() string  { return c.reason }

// Coerce converts a raw string cell into a typed value according to the
// field's role in the record type: dates to YYYY-MM-DD strings, numerics
// to clamped numbers, enums to canonical casing, everything else to a
// trimmed string. Blank input is always absent.
func Coerce(field, raw string, cfg TypeConfig) Cell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return absentCell()
	}

	switch {
	case cfg.DateFields[field]:
		return coerceDate(field, trimmed)
	case cfg.NumericFields[field]:
		return coerceNumber(field, trimmed)
	}

	if allowed, ok := enumFields[field]; ok {
		return coerceEnum(field, trimmed, allowed)
	}

	return validCell(trimmed)
}

// dateFormats are the representations accepted on import, tried in
// order. Output is always the first format.
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"01-02-2006",
	"1-2-2006",
}

func coerceDate(field, raw string) Cell {
	for _, format := range dateFormats {
		parsed, err := time.Parse(format, raw)
		if err != nil {
			continue
		}
		return validCell(parsed.Format("2006-01-02"))
	}
	return invalidCell(fmt.Sprintf("%s has an unrecognized date %q", FieldLabel(field), raw))
}

func coerceNumber(field, raw string) Cell {
	cleaned := strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(raw)
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return invalidCell(fmt.Sprintf("%s is not a number: %q", FieldLabel(field), raw))
	}

	if bounds, ok := numericBounds[field]; ok {
		clamped := math.Min(math.Max(parsed, bounds.Min), bounds.Max)
		return validCell(int(math.Round(clamped)))
	}
	return validCell(parsed)
}

// coerceEnum matches case-insensitively against the allow-list and emits
// the canonical casing. A miss falls back to the field's default when one
// exists, otherwise the cell is absent; an invalid literal is never
// stored.
func coerceEnum(field, raw string, allowed []string) Cell {
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, raw) {
			return validCell(candidate)
		}
	}
	if fallback, ok := enumDefaults[field]; ok {
		return validCell(fallback)
	}
	return absentCell()
}

// parseBool follows the pipeline's truthy rule: "true" and "1"
// (case-insensitive) are true, everything else is false.
func parseBool(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return strings.EqualFold(trimmed, "true") || trimmed == "1"
}
