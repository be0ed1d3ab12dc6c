package steps

import "testing"

func TestAnalyze_NoRequiredFields(t *testing.T) {
	a := NewAnalyzer(nil, nil)

	list := []Step{
		{Action: "Open the dashboard", Service: "browser", Operation: "navigate"},
		{Action: "Wait", Service: "core", Operation: "delay"},
	}

	res := a.Analyze(list)
	if !res.Complete {
		t.Errorf("expected complete for unknown service pairs, got incomplete: %+v", res.MissingInfo)
	}
	if len(res.MissingInfo) != 0 {
		t.Errorf("expected no missing info, got %d entries", len(res.MissingInfo))
	}
}

func TestAnalyze_PlaceholderSentinel(t *testing.T) {
	a := NewAnalyzer(nil, nil)

	list := []Step{
		{
			Action:    "Read emails from sheet",
			Service:   "googleSheets",
			Operation: "readRange",
			Parameters: map[string]interface{}{
				"spreadsheet_id": "detected_id",
				"range":          "B2:B10",
			},
		},
	}

	res := a.Analyze(list)
	if res.Complete {
		t.Fatal("expected incomplete for sentinel spreadsheet_id")
	}
	if len(res.MissingInfo) != 1 {
		t.Fatalf("expected 1 missing entry, got %d", len(res.MissingInfo))
	}
	entry := res.MissingInfo[0]
	if entry.StepIndex != 0 {
		t.Errorf("expected step index 0, got %d", entry.StepIndex)
	}
	if len(entry.Fields) != 1 || entry.Fields[0].ID != "spreadsheet_id" {
		t.Errorf("expected missing spreadsheet_id, got %+v", entry.Fields)
	}
}

func TestAnalyze_Idempotent(t *testing.T) {
	a := NewAnalyzer(nil, nil)

	list := []Step{
		{
			Action:     "Read range",
			Service:    "googleSheets",
			Operation:  "readRange",
			Parameters: map[string]interface{}{"spreadsheet_id": "1BxiMVs0XRA"},
		},
	}

	first := a.Analyze(list)
	second := a.Analyze(list)

	if first.Complete != second.Complete {
		t.Errorf("complete flag changed between runs: %v vs %v", first.Complete, second.Complete)
	}
	if len(first.MissingInfo) != len(second.MissingInfo) {
		t.Fatalf("missing info count changed: %d vs %d", len(first.MissingInfo), len(second.MissingInfo))
	}
	for i := range first.MissingInfo {
		if first.MissingInfo[i].StepIndex != second.MissingInfo[i].StepIndex {
			t.Errorf("entry %d step index differs", i)
		}
		if len(first.MissingInfo[i].Fields) != len(second.MissingInfo[i].Fields) {
			t.Errorf("entry %d field count differs", i)
		}
	}
}

func TestAnalyze_TemplateReferenceCounts(t *testing.T) {
	a := NewAnalyzer(nil, nil)

	list := []Step{
		{
			Action:    "Draft email with sheet data",
			Service:   "gmail",
			Operation: "createDraft",
			Parameters: map[string]interface{}{
				"to":      "{{emails_from_sheet}}",
				"subject": "Weekly Report",
				"body":    "Attached.",
			},
		},
	}

	res := a.Analyze(list)
	if !res.Complete {
		t.Errorf("template reference should satisfy a required field: %+v", res.MissingInfo)
	}
}

func TestDenylist_Matches(t *testing.T) {
	d := DefaultDenylist()

	cases := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"detected_id", true},
		{"Detected_ID", true},
		{"<spreadsheet id>", true},
		{"1BxiMVs0XRA5nFMdKvBdBZjgmUUqptlbs74OgvE2upms", false},
		{"C2:C6", false},
	}

	for _, tc := range cases {
		if got := d.Matches(tc.value); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
