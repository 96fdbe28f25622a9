package importer

import "strings"

// normalizeHeaderKey folds a raw header for alias lookup: lowercased with
// spaces and common separators stripped, so "Lead Name", "lead_name", and
// "lead-name" all collide.
func normalizeHeaderKey(raw string) string {
	replacer := strings.NewReplacer(" ", "", "_", "", "-", "", ".", "", "/", "")
	return strings.ToLower(replacer.Replace(strings.TrimSpace(raw)))
}

// sharedAliases map normalized header spellings to canonical fields for
// every record type. Many-to-one: several spellings may land on the same
// field.
var sharedAliases = map[string]string{
	"id":          "id",
	"recordid":    "id",
	"company":     "company",
	"companyname": "company",
	"organisation": "company",
	"organization": "company",
	"account":     "company",
	"email":       "email",
	"emailaddress": "email",
	"phone":       "phone",
	"phonenumber": "phone",
	"mobile":      "phone",
	"status":      "status",
	"source":      "source",
	"leadsource":  "source",
	"owner":       "owner",
	"dealowner":   "owner",
	"assignedto":  "owner",
	"actionitems": "action_items",
	"tasks":       "action_items",
}

// typeAliases hold the record-type-specific header spellings.
var typeAliases = map[RecordType]map[string]string{
	TypeContact: {
		"firstname": "first_name",
		"first":     "first_name",
		"lastname":  "last_name",
		"last":      "last_name",
		"surname":   "last_name",
		"title":     "title",
		"jobtitle":  "title",
		"role":      "title",
		"industry":  "industry",
		"region":    "region",
		"territory": "region",
	},
	TypeLead: {
		"leadname": "lead_name",
		"name":     "lead_name",
		"lead":     "lead_name",
	},
	TypeDeal: {
		"dealname":     "deal_name",
		"name":         "deal_name",
		"deal":         "deal_name",
		"opportunity":  "deal_name",
		"contactname":  "contact_name",
		"contact":      "contact_name",
		"stage":        "stage",
		"dealstage":    "stage",
		"pipelinestage": "stage",
		"amount":       "amount",
		"value":        "amount",
		"dealvalue":    "amount",
		"probability":  "probability",
		"winprobability": "probability",
		"priority":     "priority",
		"startdate":    "start_date",
		"closedate":    "close_date",
		"expectedclose": "close_date",
	},
}

// MapHeader resolves one raw header to a canonical field name for the
// given record type. Lookup is case- and separator-insensitive. Returns
// ("", false) when no alias matches; unmapped headers are dropped by the
// processor, never guessed.
func MapHeader(raw string, recordType RecordType) (string, bool) {
	key := normalizeHeaderKey(raw)
	if key == "" {
		return "", false
	}
	if field, ok := typeAliases[recordType][key]; ok {
		return field, true
	}
	if field, ok := sharedAliases[key]; ok {
		return field, true
	}
	return "", false
}

// columnMap is the positional mapping from CSV column index to canonical
// field, resolved once per import run from the header row.
type columnMap map[int]string

// mapHeaderRow resolves every header and collects the unmapped leftovers
// for a warning log. A later duplicate header loses against the first,
// and a header whose field does not belong to the record type is treated
// as unmapped rather than carried into the record.
func mapHeaderRow(headers []string, recordType RecordType) (columnMap, []string) {
	mapping := make(columnMap, len(headers))
	seen := make(map[string]bool, len(headers))
	var unmapped []string
	for idx, raw := range headers {
		field, ok := MapHeader(raw, recordType)
		if !ok || !fieldAllowed(recordType, field) || seen[field] {
			if strings.TrimSpace(raw) != "" {
				unmapped = append(unmapped, raw)
			}
			continue
		}
		mapping[idx] = field
		seen[field] = true
	}
	return mapping, unmapped
}

func (m columnMap) hasField(field string) bool {
	for _, mapped := range m {
		if mapped == field {
			return true
		}
	}
	return false
}
