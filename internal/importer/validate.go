package importer

import (
	"fmt"
	"strings"
)

// Validation is the outcome of checking one canonical record against its
// record type's rules. Errors are human-readable and stable in order.
type Validation struct {
	IsValid bool
	Errors  []string
}

// Validate enforces required-field presence and the record type's
// cross-field constraints. It never mutates the record.
func Validate(record map[string]any, cfg TypeConfig) Validation {
	var errs []string

	for _, field := range cfg.RequiredFields {
		if isBlank(record[field]) {
			errs = append(errs, fmt.Sprintf("%s is required", FieldLabel(field)))
		}
	}

	if cfg.Type == TypeDeal {
		if stage, ok := record["stage"].(string); ok && stage != "" && !isDealStage(stage) {
			errs = append(errs, fmt.Sprintf("Stage %q is not a known pipeline stage", stage))
		}
	}

	return Validation{IsValid: len(errs) == 0, Errors: errs}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func isDealStage(stage string) bool {
	for _, candidate := range DealStages {
		if candidate == stage {
			return true
		}
	}
	return false
}
