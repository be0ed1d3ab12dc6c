package sheets

import (
	"context"
	"fmt"
	"regexp"
	"sort"
)

// Patterns for the data types smart search understands. The tag set is
// closed: an unknown tag is an input error, not something to guess around.
var dataTypePatterns = map[string]*regexp.Regexp{
	"email":  regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`),
	"phone":  regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{6,}$`),
	"url":    regexp.MustCompile(`^https?://[^\s]+$`),
	"number": regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`),
}

const (
	maxSearchMatches      = 100
	maxRecommendedColumns = 3
)

// Match is one cell whose value fit the requested pattern.
type Match struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

// SearchResult is the outcome of a full-sheet pattern scan.
type SearchResult struct {
	DataType    string   `json:"data_type"`
	Matches     []Match  `json:"matches"`
	Values      []string `json:"values"` // deduplicated, capped
	Columns     []string `json:"columns"`
	Recommended []string `json:"recommended_columns"`
}

// Searcher scans a bounded row window of a spreadsheet for cells matching
// a data-type pattern.
type Searcher struct {
	svc Service
}

// NewSearcher creates a pattern searcher over the given capability.
func NewSearcher(svc Service) *Searcher {
	return &Searcher{svc: svc}
}

// Search reads rows [startRow, endRow] and reports every cell matching the
// data type, the columns containing at least one match, and up to three
// recommended columns (lexicographically first).
func (s *Searcher) Search(ctx context.Context, owner, spreadsheetID, dataType string, startRow, endRow int) (*SearchResult, error) {
	pattern, ok := dataTypePatterns[dataType]
	if !ok {
		return nil, fmt.Errorf("unsupported data type %q (supported: email, phone, url, number)", dataType)
	}
	if startRow <= 0 {
		startRow = 1
	}
	if endRow < startRow {
		endRow = startRow
	}

	window := fmt.Sprintf("A%d:Z%d", startRow, endRow)
	data, err := s.svc.Read(ctx, owner, spreadsheetID, window)
	if err != nil {
		return nil, fmt.Errorf("read search window: %w", err)
	}

	result := &SearchResult{DataType: dataType}
	seenValues := make(map[string]bool)
	seenColumns := make(map[string]bool)

	for r, row := range data.Values {
		for c, cell := range row {
			if cell == "" || !pattern.MatchString(cell) {
				continue
			}
			col := ColumnLetter(c)
			result.Matches = append(result.Matches, Match{
				Row:    startRow + r,
				Column: col,
				Value:  cell,
			})
			seenColumns[col] = true
			if !seenValues[cell] && len(result.Values) < maxSearchMatches {
				seenValues[cell] = true
				result.Values = append(result.Values, cell)
			}
		}
	}

	for col := range seenColumns {
		result.Columns = append(result.Columns, col)
	}
	sort.Strings(result.Columns)

	limit := maxRecommendedColumns
	if len(result.Columns) < limit {
		limit = len(result.Columns)
	}
	result.Recommended = append([]string(nil), result.Columns[:limit]...)

	return result, nil
}

// RecommendColumns satisfies the enrichment layer's ColumnSearcher.
func (s *Searcher) RecommendColumns(ctx context.Context, owner, spreadsheetID, dataType string, startRow, endRow int) ([]string, error) {
	res, err := s.Search(ctx, owner, spreadsheetID, dataType, startRow, endRow)
	if err != nil {
		return nil, err
	}
	return res.Recommended, nil
}
