package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/showrun-ai/showrun/internal/llm"
	"github.com/showrun-ai/showrun/internal/protocol"
	"github.com/showrun-ai/showrun/internal/sheets"
	"github.com/showrun-ai/showrun/internal/steps"
	"github.com/showrun-ai/showrun/internal/store"
)

// fakeProvider replays scripted responses and records every request.
type fakeProvider struct {
	responses []llm.ChatResponse
	requests  []llm.ChatRequest
}

func (f *fakeProvider) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.requests = append(f.requests, *req)
	if len(f.responses) == 0 {
		return &llm.ChatResponse{Content: "nothing left to say"}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return &resp, nil
}

func (f *fakeProvider) Name() string { return "fake" }

type fakeSheets struct {
	values map[string][][]string
}

func (f *fakeSheets) Read(_ context.Context, _, id, rng string) (*sheets.ValueRange, error) {
	v, ok := f.values[id+"/"+rng]
	if !ok {
		return nil, fmt.Errorf("range %s not found", rng)
	}
	return &sheets.ValueRange{Range: rng, Values: v}, nil
}

func (f *fakeSheets) Write(_ context.Context, _, _, _ string, _ [][]string) (*sheets.UpdateResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeSheets) Append(_ context.Context, _, _, _ string, _ [][]string) (*sheets.UpdateResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeSheets) Clear(_ context.Context, _, _, _ string) (*sheets.UpdateResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeSheets) Create(_ context.Context, _, _ string, _ []string) (*sheets.SpreadsheetInfo, error) {
	return nil, fmt.Errorf("not implemented")
}

func newTestLoop(t *testing.T, provider llm.Provider) (*Loop, *store.Memory, *store.Record) {
	t.Helper()
	mem := store.NewMemory()
	rec := &store.Record{
		Owner: "alice",
		Name:  "Follow-up emails",
		Steps: []steps.Step{
			{Action: "read emails", Service: "googleSheets", Operation: "readRange",
				Parameters: map[string]interface{}{}},
		},
	}
	if err := mem.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	loop := NewLoop(provider, mem, &fakeSheets{}, Options{LockDir: t.TempDir()})
	return loop, mem, rec
}

func toolCall(t *testing.T, id, name string, args interface{}) protocol.ToolUseBlock {
	t.Helper()
	data, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return protocol.ToolUseBlock{ID: id, Name: name, Input: data}
}

func TestTurnSavesParameterAndSummarizes(t *testing.T) {
	provider := &fakeProvider{responses: []llm.ChatResponse{
		{Content: "Saving that.", ToolCalls: []protocol.ToolUseBlock{
			toolCall(t, "t1", toolSaveParameter, map[string]interface{}{
				"step_index": 0, "field_name": "spreadsheet_id", "value": "1abc",
			}),
		}},
		{Content: ""},                                 // ends the tool loop
		{Content: "Got the spreadsheet id recorded."}, // summary turn
	}}
	loop, mem, rec := newTestLoop(t, provider)

	res, err := loop.Turn(context.Background(), "alice", rec.ID, "the sheet is 1abc", nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.Message != "Got the spreadsheet id recorded." {
		t.Errorf("message = %q", res.Message)
	}
	if len(res.Invocations) != 1 || res.Invocations[0] != toolSaveParameter {
		t.Errorf("invocations = %v", res.Invocations)
	}
	if res.Complete {
		t.Error("turn should not be complete")
	}

	// Mutation must be persisted before Turn returns.
	stored, err := mem.Get(context.Background(), "alice", rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Collected[0]["spreadsheet_id"] != "1abc" {
		t.Errorf("collected not persisted: %v", stored.Collected)
	}

	// Summary request must not offer the capability menu.
	last := provider.requests[len(provider.requests)-1]
	if len(last.Tools) != 0 {
		t.Error("summary turn offered tools")
	}
}

func TestTurnExplicitCompletion(t *testing.T) {
	provider := &fakeProvider{responses: []llm.ChatResponse{
		{ToolCalls: []protocol.ToolUseBlock{
			toolCall(t, "t1", toolMarkComplete, map[string]interface{}{}),
		}},
		{Content: ""},
		{Content: "All set."},
	}}
	loop, _, rec := newTestLoop(t, provider)

	res, err := loop.Turn(context.Background(), "alice", rec.ID, "that is everything", nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !res.Complete {
		t.Error("explicit completion signal ignored")
	}
}

func TestTurnProseFallbackOnlyWithoutInvocations(t *testing.T) {
	// No capability invoked, text sounds final: fallback fires.
	provider := &fakeProvider{responses: []llm.ChatResponse{
		{Content: "Great, the workflow is ready to go."},
	}}
	loop, _, rec := newTestLoop(t, provider)
	res, err := loop.Turn(context.Background(), "alice", rec.ID, "done", nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !res.Complete {
		t.Error("prose fallback did not fire")
	}

	// Same phrasing, but a capability was invoked: fallback must not fire.
	provider2 := &fakeProvider{responses: []llm.ChatResponse{
		{Content: "The workflow is ready to go.", ToolCalls: []protocol.ToolUseBlock{
			toolCall(t, "t1", toolSaveParameter, map[string]interface{}{
				"step_index": 0, "field_name": "range", "value": "A2:A10",
			}),
		}},
		{Content: ""},
		{Content: "Recorded the range."},
	}}
	loop2, _, rec2 := newTestLoop(t, provider2)
	res2, err := loop2.Turn(context.Background(), "alice", rec2.ID, "A2:A10", nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res2.Complete {
		t.Error("prose fallback fired despite capability invocations")
	}
}

func TestTurnMalformedInvocationFailsAlone(t *testing.T) {
	provider := &fakeProvider{responses: []llm.ChatResponse{
		{ToolCalls: []protocol.ToolUseBlock{
			{ID: "bad", Name: toolSaveParameter, Input: json.RawMessage(`{not json`)},
			toolCall(t, "good", toolSaveParameter, map[string]interface{}{
				"step_index": 0, "field_name": "spreadsheet_id", "value": "1abc",
			}),
		}},
		{Content: ""},
		{Content: "One of those did not parse."},
	}}
	loop, mem, rec := newTestLoop(t, provider)

	res, err := loop.Turn(context.Background(), "alice", rec.ID, "hi", nil)
	if err != nil {
		t.Fatalf("Turn failed outright: %v", err)
	}
	if len(res.Invocations) != 2 {
		t.Errorf("invocations = %v", res.Invocations)
	}
	stored, _ := mem.Get(context.Background(), "alice", rec.ID)
	if stored.Collected[0]["spreadsheet_id"] != "1abc" {
		t.Error("second invocation did not run after first failed")
	}

	// The failed invocation must be reported back as an error result.
	var sawError bool
	for _, req := range provider.requests {
		for _, m := range req.Messages {
			for _, tr := range m.ToolResults {
				if tr.ToolUseID == "bad" && tr.IsError {
					sawError = true
				}
			}
		}
	}
	if !sawError {
		t.Error("malformed invocation was not reported as an error result")
	}
}

func TestTurnStepReplacementPrunesAnswers(t *testing.T) {
	newSteps := []map[string]interface{}{
		{"action": "send", "service": "gmail", "operation": "sendMessage", "parameters": map[string]interface{}{}},
	}
	provider := &fakeProvider{responses: []llm.ChatResponse{
		{ToolCalls: []protocol.ToolUseBlock{
			toolCall(t, "t1", toolUpdateSteps, map[string]interface{}{"steps": newSteps}),
		}},
		{Content: ""},
		{Content: "Plan updated."},
	}}
	loop, mem, rec := newTestLoop(t, provider)

	// Pre-seed an answer for a step index that will vanish.
	rec.Collected = steps.Collected{5: {"stale": "x"}}
	if err := mem.Update(context.Background(), rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := loop.Turn(context.Background(), "alice", rec.ID, "actually just send it", nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !res.Modified {
		t.Error("step replacement did not set modified")
	}
	stored, _ := mem.Get(context.Background(), "alice", rec.ID)
	if len(stored.Steps) != 1 || stored.Steps[0].Service != "gmail" {
		t.Errorf("steps not replaced: %+v", stored.Steps)
	}
	if _, ok := stored.Collected[5]; ok {
		t.Error("answers for removed steps survived")
	}
}

func TestTurnInspectSheetOncePerTurn(t *testing.T) {
	provider := &fakeProvider{responses: []llm.ChatResponse{
		{ToolCalls: []protocol.ToolUseBlock{
			toolCall(t, "t1", toolInspectSheet, map[string]interface{}{"spreadsheet_id": "1abc"}),
			toolCall(t, "t2", toolInspectSheet, map[string]interface{}{"spreadsheet_id": "1abc"}),
		}},
		{Content: ""},
		{Content: "Inspected."},
	}}
	loop, _, rec := newTestLoop(t, provider)

	if _, err := loop.Turn(context.Background(), "alice", rec.ID, "look at my sheet", nil); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	var capRejected bool
	for _, req := range provider.requests {
		for _, m := range req.Messages {
			for _, tr := range m.ToolResults {
				if tr.ToolUseID == "t2" && strings.Contains(tr.Content, "already used") {
					capRejected = true
				}
			}
		}
	}
	if !capRejected {
		t.Error("second inspect in one turn was not rejected")
	}
}

func TestTurnUnknownDraft(t *testing.T) {
	loop, _, _ := newTestLoop(t, &fakeProvider{})
	if _, err := loop.Turn(context.Background(), "alice", "missing-id", "hi", nil); err == nil {
		t.Error("expected error for unknown draft")
	}
}

func TestTrimHistoryKeepsNewest(t *testing.T) {
	long := strings.Repeat("word ", 2000)
	history := []protocol.Message{
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
		{Role: "user", Content: "latest question"},
	}
	trimmed := trimHistory(history, 100)
	if len(trimmed) == 0 {
		t.Fatal("trim dropped everything")
	}
	if trimmed[len(trimmed)-1].Content != "latest question" {
		t.Error("newest message lost")
	}
	if len(trimmed) == len(history) {
		t.Error("nothing trimmed despite tiny budget")
	}
}

func TestNormalizeRange(t *testing.T) {
	cases := []struct{ in, want string }{
		{"C2:C6", "C2:C6"},
		{"Sheet1!C2:C6", "C2:C6"},
		{"Team Contacts 2024-2025!B2:B10", "B2:B10"},
		{"C2:C", "C2:C1000"},
		{"Sheet1!c2:c", "C2:C1000"},
		{" A1:B10 ", "A1:B10"},
		{"not a range", "not a range"},
		{"1BxiMVs0XRA5nFMdKvBdB", "1BxiMVs0XRA5nFMdKvBdB"},
	}
	for _, c := range cases {
		if got := normalizeRange(c.in); got != c.want {
			t.Errorf("normalizeRange(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSavedRangeIsNormalized(t *testing.T) {
	provider := &fakeProvider{responses: []llm.ChatResponse{
		{Content: "Saving the range.", ToolCalls: []protocol.ToolUseBlock{
			toolCall(t, "t1", toolSaveParameter, map[string]interface{}{
				"step_index": 0, "field_name": "range", "value": "Sheet1!C2:C",
			}),
		}},
		{Content: ""},
		{Content: "Range recorded."},
	}}
	loop, mem, rec := newTestLoop(t, provider)

	if _, err := loop.Turn(context.Background(), "alice", rec.ID, "column C from row 2", nil); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	stored, err := mem.Get(context.Background(), "alice", rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Collected[0]["range"] != "C2:C1000" {
		t.Errorf("range = %v, want sheet prefix stripped and end row bounded", stored.Collected[0]["range"])
	}
}

func TestSystemPromptCarriesRangeRules(t *testing.T) {
	provider := &fakeProvider{responses: []llm.ChatResponse{
		{Content: "What sheet should I read?"},
	}}
	loop, _, rec := newTestLoop(t, provider)

	if _, err := loop.Turn(context.Background(), "alice", rec.ID, "hi", nil); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	prompt := provider.requests[0].SystemPrompt
	if !strings.Contains(prompt, "C2:C6") || !strings.Contains(prompt, "Sheet1!") {
		t.Errorf("prompt lacks range format rules:\n%s", prompt)
	}
}
