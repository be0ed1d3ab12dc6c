package steps

import "strings"

// SchemaRegistry maps "service/operation" to the fields that pair requires.
// Unknown pairs require nothing: the schema fails open so new services can
// flow through without blocking the planner.
type SchemaRegistry map[string][]FieldSpec

// DefaultSchemas covers the services the capability layer actually backs.
func DefaultSchemas() SchemaRegistry {
	return SchemaRegistry{
		"googleSheets/readRange": {
			{ID: "spreadsheet_id", Question: "What is the spreadsheet ID?", Type: "string", Required: true},
			{ID: "range", Question: "Which range should be read (e.g. C2:C6)?", Type: "string", Required: true},
		},
		"googleSheets/writeRange": {
			{ID: "spreadsheet_id", Question: "What is the spreadsheet ID?", Type: "string", Required: true},
			{ID: "range", Question: "Which range should be written?", Type: "string", Required: true},
			{ID: "values", Question: "What values should be written?", Type: "array", Required: true},
		},
		"googleSheets/appendData": {
			{ID: "spreadsheet_id", Question: "What is the spreadsheet ID?", Type: "string", Required: true},
			{ID: "values", Question: "What values should be appended?", Type: "array", Required: true},
		},
		"googleSheets/clearRange": {
			{ID: "spreadsheet_id", Question: "What is the spreadsheet ID?", Type: "string", Required: true},
			{ID: "range", Question: "Which range should be cleared?", Type: "string", Required: true},
		},
		"googleSheets/createSpreadsheet": {
			{ID: "title", Question: "What should the new spreadsheet be called?", Type: "string", Required: true},
		},
		"gmail/createDraft": {
			{ID: "to", Question: "Who should the draft be addressed to?", Type: "string", Required: true},
			{ID: "subject", Question: "What is the email subject?", Type: "string", Required: true},
			{ID: "body", Question: "What should the email say?", Type: "string", Required: true},
		},
		"gmail/sendMessage": {
			{ID: "to", Question: "Who should the email go to?", Type: "string", Required: true},
			{ID: "subject", Question: "What is the email subject?", Type: "string", Required: true},
			{ID: "body", Question: "What should the email say?", Type: "string", Required: true},
		},
	}
}

// Lookup returns the required fields for a service/operation pair.
func (r SchemaRegistry) Lookup(service, operation string) []FieldSpec {
	return r[service+"/"+operation]
}

// Denylist is the set of placeholder sentinels that count as absent even
// when a parameter holds them. The vision model and earlier planner runs
// are prone to inventing values like "detected_id"; treating them as real
// would silently wire fabricated identifiers into the compiled graph.
type Denylist []string

// DefaultDenylist returns the sentinels observed in practice.
func DefaultDenylist() Denylist {
	return Denylist{
		"detected_id",
		"user_provided_id",
		"example_id",
		"abc123",
		"sample_sheet_123",
		"placeholder",
		"your-api-key",
		"tbd",
		"unknown",
		"missing",
	}
}

// Matches reports whether a value is empty or a recognized sentinel.
// Matching is case-insensitive; angle-bracketed stand-ins like
// "<spreadsheet id>" always match.
func (d Denylist) Matches(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return true
	}
	if strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">") {
		return true
	}
	lower := strings.ToLower(v)
	for _, s := range d {
		if lower == strings.ToLower(s) {
			return true
		}
	}
	return false
}
