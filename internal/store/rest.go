package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// REST persists records in a PostgREST-style table endpoint. The service
// key goes in both the apikey header and the bearer token, and every
// query carries an owner filter so scoping is enforced at the database.
type REST struct {
	baseURL    string
	apiKey     string
	table      string
	httpClient *http.Client
}

// NewREST builds a store against the given API root, e.g.
// https://project.supabase.co/rest/v1.
func NewREST(baseURL, apiKey, table string) *REST {
	if table == "" {
		table = "workflows"
	}
	return &REST{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		table:      table,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *REST) Create(ctx context.Context, rec *Record) error {
	if rec.Owner == "" {
		return fmt.Errorf("create: record has no owner")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = StatusDraft
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := r.do(ctx, http.MethodPost, "/"+r.table, nil, rec)
	if err != nil {
		return fmt.Errorf("store create: %w", err)
	}
	return nil
}

func (r *REST) Get(ctx context.Context, owner, id string) (*Record, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("owner", "eq."+owner)
	body, err := r.do(ctx, http.MethodGet, "/"+r.table, q, nil)
	if err != nil {
		return nil, fmt.Errorf("store get: %w", err)
	}
	var rows []*Record
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("store get: decode: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (r *REST) Update(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now().UTC()
	q := url.Values{}
	q.Set("id", "eq."+rec.ID)
	q.Set("owner", "eq."+rec.Owner)
	body, err := r.do(ctx, http.MethodPatch, "/"+r.table, q, rec)
	if err != nil {
		return fmt.Errorf("store update: %w", err)
	}
	if affected(body) == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *REST) List(ctx context.Context, owner string, f ListFilter) ([]*Record, error) {
	q := url.Values{}
	q.Set("owner", "eq."+owner)
	q.Set("order", "created_at.desc")
	if f.Status != "" {
		q.Set("status", "eq."+f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q.Set("limit", strconv.Itoa(limit))
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	body, err := r.do(ctx, http.MethodGet, "/"+r.table, q, nil)
	if err != nil {
		return nil, fmt.Errorf("store list: %w", err)
	}
	var rows []*Record
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("store list: decode: %w", err)
	}
	return rows, nil
}

func (r *REST) Delete(ctx context.Context, owner, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("owner", "eq."+owner)
	body, err := r.do(ctx, http.MethodDelete, "/"+r.table, q, nil)
	if err != nil {
		return fmt.Errorf("store delete: %w", err)
	}
	if affected(body) == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *REST) Archive(ctx context.Context, owner, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("owner", "eq."+owner)
	patch := map[string]interface{}{
		"status":     StatusArchived,
		"updated_at": time.Now().UTC(),
	}
	body, err := r.do(ctx, http.MethodPatch, "/"+r.table, q, patch)
	if err != nil {
		return fmt.Errorf("store archive: %w", err)
	}
	if affected(body) == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *REST) Stats(ctx context.Context, owner string) (Stats, error) {
	rows, err := r.List(ctx, owner, ListFilter{Limit: 1000})
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, rec := range rows {
		s.Total++
		switch rec.Status {
		case StatusDraft:
			s.Draft++
		case StatusActive:
			s.Active++
		case StatusArchived:
			s.Archived++
		}
	}
	return s, nil
}

// affected counts rows in a representation-returning response.
func affected(body []byte) int {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0
	}
	return len(rows)
}

func (r *REST) do(ctx context.Context, method, path string, q url.Values, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := r.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Prefer", "return=representation")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}
	return data, nil
}
