// Package sheets is the spreadsheet capability: a narrow read/write surface
// over the Google Sheets REST API, scoped per owner through a TokenSource.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TokenSource resolves an owner id to a bearer token for the Google APIs.
// Credential storage and refresh live outside this module.
type TokenSource interface {
	AccessToken(ctx context.Context, owner string) (string, error)
}

// StaticToken is a TokenSource handing every owner the same token. Meant
// for single-user deployments and tests.
type StaticToken string

func (t StaticToken) AccessToken(_ context.Context, _ string) (string, error) {
	if t == "" {
		return "", fmt.Errorf("no google access token configured")
	}
	return string(t), nil
}

// ValueRange is a two-dimensional window of cell values.
type ValueRange struct {
	Range          string     `json:"range,omitempty"`
	MajorDimension string     `json:"majorDimension,omitempty"`
	Values         [][]string `json:"values"`
}

// UpdateResult reports what a write/append/clear touched.
type UpdateResult struct {
	UpdatedRange   string `json:"updatedRange,omitempty"`
	UpdatedRows    int    `json:"updatedRows,omitempty"`
	UpdatedColumns int    `json:"updatedColumns,omitempty"`
	UpdatedCells   int    `json:"updatedCells,omitempty"`
	ClearedRange   string `json:"clearedRange,omitempty"`
}

// SpreadsheetInfo describes a newly created spreadsheet.
type SpreadsheetInfo struct {
	SpreadsheetID  string `json:"spreadsheet_id"`
	SpreadsheetURL string `json:"spreadsheet_url"`
	Title          string `json:"title"`
}

// Service is the spreadsheet capability consumed by enrichment and the
// conversational loop.
type Service interface {
	Read(ctx context.Context, owner, spreadsheetID, rangeNotation string) (*ValueRange, error)
	Write(ctx context.Context, owner, spreadsheetID, rangeNotation string, values [][]string) (*UpdateResult, error)
	Append(ctx context.Context, owner, spreadsheetID, rangeNotation string, values [][]string) (*UpdateResult, error)
	Clear(ctx context.Context, owner, spreadsheetID, rangeNotation string) (*UpdateResult, error)
	Create(ctx context.Context, owner, title string, sheetTitles []string) (*SpreadsheetInfo, error)
}

const sheetsAPIBase = "https://sheets.googleapis.com/v4/spreadsheets"

// Client talks to the Google Sheets v4 REST API.
type Client struct {
	tokens  TokenSource
	baseURL string
	http    *http.Client
}

// NewClient creates a sheets client. baseURL overrides the Google endpoint
// for tests.
func NewClient(tokens TokenSource, baseURL string) *Client {
	if baseURL == "" {
		baseURL = sheetsAPIBase
	}
	return &Client{
		tokens:  tokens,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Read(ctx context.Context, owner, spreadsheetID, rangeNotation string) (*ValueRange, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet_id is required")
	}
	endpoint := fmt.Sprintf("%s/%s/values/%s", c.baseURL, spreadsheetID, url.PathEscape(rangeNotation))

	var raw struct {
		Range          string          `json:"range"`
		MajorDimension string          `json:"majorDimension"`
		Values         [][]interface{} `json:"values"`
	}
	if err := c.do(ctx, owner, "GET", endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}

	return &ValueRange{
		Range:          raw.Range,
		MajorDimension: raw.MajorDimension,
		Values:         stringMatrix(raw.Values),
	}, nil
}

func (c *Client) Write(ctx context.Context, owner, spreadsheetID, rangeNotation string, values [][]string) (*UpdateResult, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet_id is required")
	}
	endpoint := fmt.Sprintf("%s/%s/values/%s?valueInputOption=RAW", c.baseURL, spreadsheetID, url.PathEscape(rangeNotation))

	body := map[string]interface{}{"values": values}
	var result UpdateResult
	if err := c.do(ctx, owner, "PUT", endpoint, body, &result); err != nil {
		return nil, fmt.Errorf("write sheet: %w", err)
	}
	return &result, nil
}

func (c *Client) Append(ctx context.Context, owner, spreadsheetID, rangeNotation string, values [][]string) (*UpdateResult, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet_id is required")
	}
	endpoint := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		c.baseURL, spreadsheetID, url.PathEscape(rangeNotation))

	body := map[string]interface{}{"values": values}
	var raw struct {
		Updates UpdateResult `json:"updates"`
	}
	if err := c.do(ctx, owner, "POST", endpoint, body, &raw); err != nil {
		return nil, fmt.Errorf("append sheet: %w", err)
	}
	return &raw.Updates, nil
}

func (c *Client) Clear(ctx context.Context, owner, spreadsheetID, rangeNotation string) (*UpdateResult, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet_id is required")
	}
	endpoint := fmt.Sprintf("%s/%s/values/%s:clear", c.baseURL, spreadsheetID, url.PathEscape(rangeNotation))

	var result UpdateResult
	if err := c.do(ctx, owner, "POST", endpoint, map[string]interface{}{}, &result); err != nil {
		return nil, fmt.Errorf("clear sheet: %w", err)
	}
	return &result, nil
}

func (c *Client) Create(ctx context.Context, owner, title string, sheetTitles []string) (*SpreadsheetInfo, error) {
	body := map[string]interface{}{
		"properties": map[string]interface{}{"title": title},
	}
	if len(sheetTitles) > 0 {
		sheetsSpec := make([]map[string]interface{}, 0, len(sheetTitles))
		for _, t := range sheetTitles {
			sheetsSpec = append(sheetsSpec, map[string]interface{}{
				"properties": map[string]interface{}{"title": t},
			})
		}
		body["sheets"] = sheetsSpec
	}

	var raw struct {
		SpreadsheetID  string `json:"spreadsheetId"`
		SpreadsheetURL string `json:"spreadsheetUrl"`
		Properties     struct {
			Title string `json:"title"`
		} `json:"properties"`
	}
	if err := c.do(ctx, owner, "POST", c.baseURL, body, &raw); err != nil {
		return nil, fmt.Errorf("create spreadsheet: %w", err)
	}

	return &SpreadsheetInfo{
		SpreadsheetID:  raw.SpreadsheetID,
		SpreadsheetURL: raw.SpreadsheetURL,
		Title:          raw.Properties.Title,
	}, nil
}

func (c *Client) do(ctx context.Context, owner, method, endpoint string, body, out interface{}) error {
	token, err := c.tokens.AccessToken(ctx, owner)
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sheets API error %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func stringMatrix(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		out[i] = cells
	}
	return out
}

// ColumnLetter converts a zero-based column index to its A1 letter form.
func ColumnLetter(index int) string {
	letter := ""
	for index >= 0 {
		letter = string(rune('A'+index%26)) + letter
		index = index/26 - 1
	}
	return letter
}
