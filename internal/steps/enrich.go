package steps

import (
	"context"
	"fmt"
	"log"
	"strconv"
)

// Smart search scans this row window when the user asked the system to find
// the right column instead of naming one.
const (
	smartSearchStartRow = 2
	smartSearchEndRow   = 100
)

// ColumnSearcher finds the columns of a spreadsheet whose cells match a
// data-type pattern. Implemented by the sheets capability.
type ColumnSearcher interface {
	RecommendColumns(ctx context.Context, owner, spreadsheetID, dataType string, startRow, endRow int) ([]string, error)
}

// Enricher merges collected parameter values back into a step list,
// applying field derivation rules before the merge.
type Enricher struct {
	searcher ColumnSearcher
}

// NewEnricher creates an enricher. The searcher may be nil when smart
// search is not available; smart-search requests then fall through as
// regular merges.
func NewEnricher(searcher ColumnSearcher) *Enricher {
	return &Enricher{searcher: searcher}
}

// Enrich returns a new step list with collected values merged in.
// Indices outside the current step list are ignored rather than failing
// the whole merge. The input list is never mutated.
func (e *Enricher) Enrich(ctx context.Context, list []Step, collected Collected, owner string) []Step {
	out := Clone(list)

	for idx, fields := range collected {
		if idx < 0 || idx >= len(out) {
			log.Printf("[steps] ignoring collected params for out-of-range step %d", idx)
			continue
		}

		merged := copyFields(fields)
		e.deriveRange(ctx, out[idx], merged, owner)

		if out[idx].Parameters == nil {
			out[idx].Parameters = make(map[string]interface{})
		}
		for k, v := range merged {
			out[idx].Parameters[k] = v
		}
	}

	return out
}

// deriveRange turns the column/row answers a human naturally gives into the
// single A1-style range the spreadsheet capability consumes, and resolves
// smart-search requests into a concrete column first.
func (e *Enricher) deriveRange(ctx context.Context, step Step, fields map[string]interface{}, owner string) {
	if asString(fields["search_mode"]) == "smart_search" {
		dataType := asString(fields["data_type"])
		delete(fields, "search_mode")
		delete(fields, "data_type")

		if e.searcher != nil && dataType != "" {
			sheetID := asString(fields["spreadsheet_id"])
			if sheetID == "" {
				sheetID = asString(step.Parameters["spreadsheet_id"])
			}
			cols, err := e.searcher.RecommendColumns(ctx, owner, sheetID, dataType, smartSearchStartRow, smartSearchEndRow)
			if err != nil {
				log.Printf("[steps] smart search failed for step: %v", err)
			} else if len(cols) > 0 {
				fields["range"] = fmt.Sprintf("%s%d:%s%d", cols[0], smartSearchStartRow, cols[0], smartSearchEndRow)
				return
			}
		}
	}

	column := asString(fields["column"])
	startRow := asString(fields["start_row"])
	if column == "" || startRow == "" {
		return
	}

	endRow := asString(fields["end_row"])
	if endRow != "" {
		fields["range"] = fmt.Sprintf("%s%s:%s%s", column, startRow, column, endRow)
	} else {
		fields["range"] = fmt.Sprintf("%s%s:%s", column, startRow, column)
	}

	delete(fields, "column")
	delete(fields, "start_row")
	delete(fields, "end_row")
}

// MergeCollected overlays collected values onto a copy of the step list
// without any field derivation. Out-of-range indices are dropped.
func MergeCollected(list []Step, collected Collected) []Step {
	out := Clone(list)
	for idx, fields := range collected {
		if idx < 0 || idx >= len(out) {
			continue
		}
		if out[idx].Parameters == nil {
			out[idx].Parameters = make(map[string]interface{})
		}
		for k, v := range fields {
			out[idx].Parameters[k] = v
		}
	}
	return out
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; row indices are whole
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
