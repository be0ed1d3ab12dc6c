package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/showrun-ai/showrun/internal/steps"
)

func TestMemoryCreateGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	rec := &Record{Owner: "alice", Name: "Daily digest"}
	if err := m.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("Create did not assign an id")
	}
	if rec.Status != StatusDraft {
		t.Errorf("status = %q, want %q", rec.Status, StatusDraft)
	}

	got, err := m.Get(ctx, "alice", rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Daily digest" {
		t.Errorf("Name = %q", got.Name)
	}

	if _, err := m.Get(ctx, "bob", rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-owner Get = %v, want ErrNotFound", err)
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := &Record{Owner: "alice", Name: "wf", Steps: []steps.Step{
		{Action: "a", Service: "gmail", Operation: "sendMessage",
			Parameters: map[string]interface{}{"to": "x@y.com"}},
	}}
	if err := m.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := m.Get(ctx, "alice", rec.ID)
	got.Steps[0].Parameters["to"] = "tampered"
	again, _ := m.Get(ctx, "alice", rec.ID)
	if again.Steps[0].Parameters["to"] != "x@y.com" {
		t.Error("stored record mutated through a returned copy")
	}
}

func TestMemoryUpdate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := &Record{Owner: "alice", Name: "wf"}
	if err := m.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec.Status = StatusActive
	rec.EngineID = "eng-1"
	if err := m.Update(ctx, rec); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := m.Get(ctx, "alice", rec.ID)
	if got.Status != StatusActive || got.EngineID != "eng-1" {
		t.Errorf("update not applied: %+v", got)
	}

	other := &Record{ID: rec.ID, Owner: "bob", Name: "hijack"}
	if err := m.Update(ctx, other); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-owner Update = %v, want ErrNotFound", err)
	}
}

func TestMemoryListFilterAndPaging(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rec := &Record{Owner: "alice", Name: "wf"}
		if i%2 == 0 {
			rec.Status = StatusActive
		}
		if err := m.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	if err := m.Create(ctx, &Record{Owner: "bob", Name: "other"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	all, err := m.List(ctx, "alice", ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("List returned %d, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Error("List not sorted newest first")
		}
	}

	active, _ := m.List(ctx, "alice", ListFilter{Status: StatusActive})
	if len(active) != 3 {
		t.Errorf("active filter returned %d, want 3", len(active))
	}

	page, _ := m.List(ctx, "alice", ListFilter{Limit: 2, Offset: 4})
	if len(page) != 1 {
		t.Errorf("offset page returned %d, want 1", len(page))
	}
	empty, _ := m.List(ctx, "alice", ListFilter{Offset: 99})
	if len(empty) != 0 {
		t.Errorf("past-the-end offset returned %d", len(empty))
	}
}

func TestMemoryDeleteArchiveStats(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a := &Record{Owner: "alice", Name: "one"}
	b := &Record{Owner: "alice", Name: "two", Status: StatusActive}
	for _, rec := range []*Record{a, b} {
		if err := m.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	if err := m.Archive(ctx, "alice", a.ID); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, _ := m.Get(ctx, "alice", a.ID)
	if got.Status != StatusArchived {
		t.Errorf("status after archive = %q", got.Status)
	}

	s, err := m.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.Total != 2 || s.Active != 1 || s.Archived != 1 || s.Draft != 0 {
		t.Errorf("stats = %+v", s)
	}

	if err := m.Delete(ctx, "bob", b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-owner Delete = %v, want ErrNotFound", err)
	}
	if err := m.Delete(ctx, "alice", b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "alice", b.ID); !errors.Is(err, ErrNotFound) {
		t.Error("deleted record still retrievable")
	}
}
