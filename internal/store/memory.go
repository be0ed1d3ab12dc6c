package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultListLimit = 50

// Memory is the in-process store. It backs tests and single-node
// deployments that do not need records to survive a restart.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*Record // keyed by id
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

func (m *Memory) Create(_ context.Context, rec *Record) error {
	if rec.Owner == "" {
		return fmt.Errorf("create: record has no owner")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("create: id %s already exists", rec.ID)
	}
	if rec.Status == "" {
		rec.Status = StatusDraft
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (m *Memory) Get(_ context.Context, owner, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok || rec.Owner != owner {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *Memory) Update(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[rec.ID]
	if !ok || cur.Owner != rec.Owner {
		return ErrNotFound
	}
	rec.CreatedAt = cur.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	m.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (m *Memory) List(_ context.Context, owner string, f ListFilter) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, rec := range m.records {
		if rec.Owner != owner {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	// newest first, stable across calls
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, owner, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Owner != owner {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *Memory) Archive(_ context.Context, owner, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Owner != owner {
		return ErrNotFound
	}
	rec.Status = StatusArchived
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) Stats(_ context.Context, owner string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Stats
	for _, rec := range m.records {
		if rec.Owner != owner {
			continue
		}
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

// cloneRecord deep-copies through JSON so callers cannot mutate stored
// state through shared maps and slices.
func cloneRecord(rec *Record) *Record {
	data, err := json.Marshal(rec)
	if err != nil {
		cp := *rec
		return &cp
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *rec
		return &cp
	}
	return &out
}
