// Package importer implements the CSV import/export and reconciliation
// pipeline: tokenizing, header mapping, value coercion, validation,
// duplicate/upsert resolution, owner identity resolution, batched
// processing, and CSV export.
package importer

// RecordType identifies an importable entity.
type RecordType string

const (
	TypeContact RecordType = "contact"
	TypeLead    RecordType = "lead"
	TypeDeal    RecordType = "deal"
)

// UpsertStrategy selects how the resolver treats an incoming row that
// matches an existing record.
type UpsertStrategy string

const (
	// NaturalKeySkip: a natural-key match is a duplicate; the row is
	// counted and skipped.
	NaturalKeySkip UpsertStrategy = "natural-key-skip"
	// NaturalKeyUpdate: a natural-key match is updated in place.
	NaturalKeyUpdate UpsertStrategy = "natural-key-update"
	// ExplicitID: a non-blank id cell drives lookup; a found id updates,
	// a missing id inserts with the supplied id, and no id cell inserts
	// with a store-assigned id.
	ExplicitID UpsertStrategy = "explicit-id"
)

// TypeConfig describes one importable record type. Static, immutable;
// passed into the pipeline rather than read from package state.
type TypeConfig struct {
	Type           RecordType
	Table          string
	RequiredFields []string
	OptionalFields []string
	DateFields     map[string]bool
	NumericFields  map[string]bool
	// NaturalKey is the ordered field list used for duplicate detection.
	// Its first entry is also the structurally required header: an import
	// whose header row maps to none of it is rejected before processing.
	NaturalKey []string
	Strategy   UpsertStrategy
	// StrictDates rejects the whole row when a date cell fails to parse,
	// instead of degrading the cell to absent.
	StrictDates bool
	// OwnerField names the free-text owner column resolved to a user id,
	// if the type has one.
	OwnerField string
	// ActionItems enables the embedded child-record JSON column.
	ActionItems bool
}

// DealStages are the canonical pipeline stages, in board order.
var DealStages = []string{
	"Prospecting",
	"Qualification",
	"Proposal",
	"Negotiation",
	"Contract Sent",
	"Closed Won",
	"Closed Lost",
	"On Hold",
}

// LeadStatuses are the canonical lead statuses. An unrecognized status
// falls back to the first entry.
var LeadStatuses = []string{"New", "Contacted", "Qualified"}

var LeadSources = []string{"Website", "Referral", "Cold Call", "Event", "Partner", "Other"}

var ContactIndustries = []string{
	"Technology", "Finance", "Healthcare", "Manufacturing", "Retail", "Education", "Other",
}

var ContactRegions = []string{"North America", "EMEA", "APAC", "LATAM"}

// enumFields maps field name to its allow-list. Stage, status, industry,
// region, and source cells are validated against these; anything else
// passes through as a plain string.
var enumFields = map[string][]string{
	"stage":    DealStages,
	"status":   LeadStatuses,
	"industry": ContactIndustries,
	"region":   ContactRegions,
	"source":   LeadSources,
}

// enumDefaults supplies a fallback for enum cells that match nothing.
// Only lead status has one; other enums degrade to absent.
var enumDefaults = map[string]string{
	"status": "New",
}

// numericBounds clamp parsed numeric cells into their domain range.
var numericBounds = map[string]struct{ Min, Max float64 }{
	"priority":    {Min: 1, Max: 5},
	"probability": {Min: 0, Max: 100},
}

var contactConfig = TypeConfig{
	Type:           TypeContact,
	Table:          "contacts",
	RequiredFields: []string{"first_name", "last_name"},
	OptionalFields: []string{"company", "email", "phone", "title", "industry", "region"},
	DateFields:     map[string]bool{},
	NumericFields:  map[string]bool{},
	NaturalKey:     []string{"first_name", "last_name", "company"},
	Strategy:       NaturalKeySkip,
}

var leadConfig = TypeConfig{
	Type:           TypeLead,
	Table:          "leads",
	RequiredFields: []string{"lead_name"},
	OptionalFields: []string{"id", "company", "email", "phone", "status", "source", "action_items"},
	DateFields:     map[string]bool{},
	NumericFields:  map[string]bool{},
	NaturalKey:     []string{"lead_name"},
	Strategy:       ExplicitID,
	ActionItems:    true,
}

var dealConfig = TypeConfig{
	Type:           TypeDeal,
	Table:          "deals",
	RequiredFields: []string{"deal_name", "stage"},
	OptionalFields: []string{
		"company", "contact_name", "amount", "probability", "priority",
		"start_date", "close_date", "owner", "action_items",
	},
	DateFields:    map[string]bool{"start_date": true, "close_date": true},
	NumericFields: map[string]bool{"amount": true, "probability": true, "priority": true},
	NaturalKey:    []string{"deal_name"},
	Strategy:      NaturalKeyUpdate,
	StrictDates:   true,
	OwnerField:    "owner",
	ActionItems:   true,
}

// fieldAllowed reports whether the canonical field belongs to the record
// type. Shared header aliases (id, status, source, owner) resolve for
// every type, so without this gate a contact CSV with an Owner or Status
// column would build a record carrying columns contacts does not have.
func fieldAllowed(recordType RecordType, field string) bool {
	cfg, ok := ConfigFor(recordType)
	if !ok {
		return false
	}
	for _, f := range cfg.RequiredFields {
		if f == field {
			return true
		}
	}
	for _, f := range cfg.OptionalFields {
		if f == field {
			return true
		}
	}
	return false
}

// ConfigFor returns the static configuration for a record type.
func ConfigFor(recordType RecordType) (TypeConfig, bool) {
	switch recordType {
	case TypeContact:
		return contactConfig, true
	case TypeLead:
		return leadConfig, true
	case TypeDeal:
		return dealConfig, true
	default:
		return TypeConfig{}, false
	}
}

// fieldLabels are the user-facing names used in row error messages and
// export headers.
var fieldLabels = map[string]string{
	"id":           "ID",
	"first_name":   "First Name",
	"last_name":    "Last Name",
	"lead_name":    "Lead Name",
	"deal_name":    "Deal Name",
	"company":      "Company",
	"contact_name": "Contact Name",
	"email":        "Email",
	"phone":        "Phone",
	"title":        "Title",
	"industry":     "Industry",
	"region":       "Region",
	"status":       "Status",
	"source":       "Source",
	"stage":        "Stage",
	"amount":       "Amount",
	"probability":  "Probability",
	"priority":     "Priority",
	"start_date":   "Start Date",
	"close_date":   "Close Date",
	"due_date":     "Due Date",
	"owner":        "Owner",
	"action_items": "Action Items",
}

// FieldLabel returns the display name for a canonical field.
func FieldLabel(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}
