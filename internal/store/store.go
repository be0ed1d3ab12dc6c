// Package store persists workflow records through their lifecycle, from
// first analysis through activation on the execution engine. Every
// operation is scoped to an owner; one owner can never see or touch
// another's records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/showrun-ai/showrun/internal/graph"
	"github.com/showrun-ai/showrun/internal/steps"
)

// Workflow lifecycle states.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusArchived = "archived"
)

// ErrNotFound is returned when a record does not exist for the owner.
var ErrNotFound = errors.New("workflow not found")

// Record is one workflow and everything accumulated about it: the
// analyzed steps, what is still missing, what the user has supplied, the
// compiled graph, and the engine's id once published.
type Record struct {
	ID          string                 `json:"id"`
	Owner       string                 `json:"owner"`
	Name        string                 `json:"name"`
	Status      string                 `json:"status"`
	Steps       []steps.Step           `json:"steps,omitempty"`
	MissingInfo []steps.MissingInfo    `json:"missing_info,omitempty"`
	Collected   steps.Collected        `json:"collected_params,omitempty"`
	Graph       *graph.Graph           `json:"graph,omitempty"`
	EngineID    string                 `json:"engine_id,omitempty"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// ListFilter narrows List results. Zero values mean "no constraint";
// Limit zero falls back to a server-side default.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// Stats is the per-owner workflow count breakdown.
type Stats struct {
	Total    int `json:"total"`
	Draft    int `json:"draft"`
	Active   int `json:"active"`
	Archived int `json:"archived"`
}

// Store is the persistence surface. Update replaces the whole record;
// callers read, modify, write.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, owner, id string) (*Record, error)
	Update(ctx context.Context, rec *Record) error
	List(ctx context.Context, owner string, f ListFilter) ([]*Record, error)
	Delete(ctx context.Context, owner, id string) error
	Archive(ctx context.Context, owner, id string) error
	Stats(ctx context.Context, owner string) (Stats, error)
}
