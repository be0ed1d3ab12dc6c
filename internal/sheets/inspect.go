package sheets

import (
	"context"
	"fmt"
)

// Inspection is a structural snapshot of a spreadsheet: which columns exist
// and what a few rows look like. Built for the conversational loop so the
// model can help a human name the right column.
type Inspection struct {
	SpreadsheetID  string              `json:"spreadsheet_id"`
	Headers        map[string]string   `json:"headers"` // column letter -> header text
	SampleData     []map[string]string `json:"sample_data"`
	TotalColumns   int                 `json:"total_columns"`
	SampleRowCount int                 `json:"sample_row_count"`
}

// Inspect reads the header row and up to sampleRows rows below it.
func Inspect(ctx context.Context, svc Service, owner, spreadsheetID string, sampleRows int) (*Inspection, error) {
	if sampleRows <= 0 {
		sampleRows = 5
	}

	headerRange, err := svc.Read(ctx, owner, spreadsheetID, "1:1")
	if err != nil {
		return nil, fmt.Errorf("read headers: %w", err)
	}
	if len(headerRange.Values) == 0 {
		return nil, fmt.Errorf("sheet has no header row")
	}

	headers := headerRange.Values[0]
	columnMap := make(map[string]string, len(headers))
	for i, h := range headers {
		letter := ColumnLetter(i)
		if h == "" {
			h = "Column " + letter
		}
		columnMap[letter] = h
	}

	sampleRange := fmt.Sprintf("2:%d", sampleRows+1)
	sample, err := svc.Read(ctx, owner, spreadsheetID, sampleRange)
	if err != nil {
		return nil, fmt.Errorf("read sample rows: %w", err)
	}

	var sampleData []map[string]string
	for _, row := range sample.Values {
		rowData := make(map[string]string, len(row))
		for i, v := range row {
			rowData[ColumnLetter(i)] = v
		}
		sampleData = append(sampleData, rowData)
	}

	return &Inspection{
		SpreadsheetID:  spreadsheetID,
		Headers:        columnMap,
		SampleData:     sampleData,
		TotalColumns:   len(headers),
		SampleRowCount: len(sampleData),
	}, nil
}
