package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/showrun-ai/showrun/internal/graph"
	"github.com/showrun-ai/showrun/internal/planner"
	"github.com/showrun-ai/showrun/internal/protocol"
	"github.com/showrun-ai/showrun/internal/steps"
	"github.com/showrun-ai/showrun/internal/store"
	"github.com/showrun-ai/showrun/internal/video"
)

// captureWriter records everything sent through it.
type captureWriter struct {
	sent []protocol.RPCMessage
}

func (c *captureWriter) Send(msg interface{}) error {
	c.sent = append(c.sent, msg.(protocol.RPCMessage))
	return nil
}

func (c *captureWriter) last(t *testing.T) protocol.RPCMessage {
	t.Helper()
	if len(c.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return c.sent[len(c.sent)-1]
}

type fakeFrames struct{}

func (fakeFrames) ExtractFrames(_ context.Context, _ string, _ time.Duration) ([]video.Frame, error) {
	return []video.Frame{{Timestamp: 0}}, nil
}

type fakeOracle struct{ list []steps.Step }

func (f fakeOracle) InferSteps(_ context.Context, _ []video.Frame) ([]steps.Step, error) {
	return f.list, nil
}

func newHandler() (*Handler, *store.Memory) {
	mem := store.NewMemory()
	return &Handler{
		Planner:  planner.New(nil),
		Store:    mem,
		Enricher: steps.NewEnricher(nil),
		Video: video.NewProcessor(fakeFrames{}, fakeOracle{list: []steps.Step{
			{Action: "read", Service: "googleSheets", Operation: "readRange",
				Parameters: map[string]interface{}{"spreadsheet_id": "detected_id"}},
		}}, 0),
	}, mem
}

func rpc(t *testing.T, id, msgType string, payload interface{}) protocol.RPCMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return protocol.RPCMessage{ID: id, Type: msgType, Payload: data}
}

func TestProcessVideoCreatesDraft(t *testing.T) {
	h, mem := newHandler()
	w := &captureWriter{}

	h.HandleMessage(rpc(t, "1", "process_video", map[string]string{
		"owner": "alice", "source_ref": "rec.mp4", "name": "My flow",
	}), w)

	resp := w.last(t)
	if resp.Type != "video_processed" {
		t.Fatalf("response = %+v", resp)
	}
	var out struct {
		Workflow store.Record   `json:"workflow"`
		Plan     planner.Result `json:"plan"`
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if out.Plan.Status != planner.StatusNeedsInput {
		t.Errorf("plan = %+v, want needs_input (sentinel spreadsheet id)", out.Plan)
	}
	if out.Workflow.Name != "My flow (Pending)" {
		t.Errorf("name = %q, want pending marker while answers are outstanding", out.Workflow.Name)
	}
	if _, err := mem.Get(context.Background(), "alice", out.Workflow.ID); err != nil {
		t.Errorf("draft not persisted: %v", err)
	}
}

func TestPlanOperation(t *testing.T) {
	h, _ := newHandler()
	w := &captureWriter{}

	h.HandleMessage(rpc(t, "2", "plan", map[string]interface{}{
		"name": "n",
		"steps": []map[string]interface{}{
			{"action": "a", "service": "googleSheets", "operation": "readRange",
				"parameters": map[string]interface{}{"spreadsheet_id": "1abc", "range": "A1:A5"}},
		},
	}), w)

	resp := w.last(t)
	if resp.Type != "plan_result" {
		t.Fatalf("response = %+v", resp)
	}
	var res planner.Result
	if err := json.Unmarshal(resp.Payload, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != planner.StatusComplete {
		t.Errorf("plan = %+v", res)
	}
}

func TestWorkflowLifecycleOperations(t *testing.T) {
	h, mem := newHandler()
	ctx := context.Background()
	rec := &store.Record{Owner: "alice", Name: "wf"}
	if err := mem.Create(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := &captureWriter{}
	h.HandleMessage(rpc(t, "3", "get_workflow", map[string]string{"owner": "alice", "id": rec.ID}), w)
	if w.last(t).Type != "workflow" {
		t.Errorf("get = %+v", w.last(t))
	}

	h.HandleMessage(rpc(t, "4", "update_workflow", map[string]interface{}{
		"owner": "alice", "id": rec.ID, "name": "renamed",
	}), w)
	got, _ := mem.Get(ctx, "alice", rec.ID)
	if got.Name != "renamed" {
		t.Errorf("update not applied: %q", got.Name)
	}

	h.HandleMessage(rpc(t, "5", "archive_workflow", map[string]string{"owner": "alice", "id": rec.ID}), w)
	got, _ = mem.Get(ctx, "alice", rec.ID)
	if got.Status != store.StatusArchived {
		t.Errorf("archive not applied: %q", got.Status)
	}

	h.HandleMessage(rpc(t, "6", "workflow_stats", map[string]string{"owner": "alice"}), w)
	var stats store.Stats
	if err := json.Unmarshal(w.last(t).Payload, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 1 || stats.Archived != 1 {
		t.Errorf("stats = %+v", stats)
	}

	h.HandleMessage(rpc(t, "7", "delete_workflow", map[string]string{"owner": "alice", "id": rec.ID}), w)
	if _, err := mem.Get(ctx, "alice", rec.ID); err == nil {
		t.Error("workflow survived delete")
	}
}

func TestListWithStatusFilter(t *testing.T) {
	h, mem := newHandler()
	ctx := context.Background()
	for _, status := range []string{store.StatusDraft, store.StatusActive} {
		if err := mem.Create(ctx, &store.Record{Owner: "alice", Name: status, Status: status}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	w := &captureWriter{}
	h.HandleMessage(rpc(t, "8", "list_workflows", map[string]string{
		"owner": "alice", "status": store.StatusActive,
	}), w)
	var out struct {
		Workflows []store.Record `json:"workflows"`
	}
	if err := json.Unmarshal(w.last(t).Payload, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Workflows) != 1 || out.Workflows[0].Status != store.StatusActive {
		t.Errorf("list = %+v", out.Workflows)
	}
}

func TestChatCompleteCompilesAndActivates(t *testing.T) {
	h, mem := newHandler()
	ctx := context.Background()
	rec := &store.Record{
		Owner: "alice",
		Name:  "Digest (Pending)",
		Steps: []steps.Step{
			{Action: "read", Service: "googleSheets", Operation: "readRange",
				Parameters: map[string]interface{}{"spreadsheet_id": "1abc"}},
			{Action: "send", Service: "gmail", Operation: "sendMessage",
				Parameters: map[string]interface{}{"to": "x@y.com", "subject": "s", "body": "b"}},
		},
		Collected: steps.Collected{
			0: {"column": "C", "start_row": 2, "end_row": 10},
		},
	}
	if err := mem.Create(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := &captureWriter{}
	h.HandleMessage(rpc(t, "11", "chat_complete", map[string]string{
		"owner": "alice", "draft_id": rec.ID,
	}), w)

	resp := w.last(t)
	if resp.Type != "workflow_active" {
		t.Fatalf("response = %+v", resp)
	}
	var out struct {
		Workflow    store.Record `json:"workflow"`
		EngineError string       `json:"engine_error"`
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if out.EngineError != "" {
		t.Errorf("engine_error = %q on an engineless completion", out.EngineError)
	}
	got, _ := mem.Get(ctx, "alice", rec.ID)
	if got.Status != store.StatusActive {
		t.Errorf("status = %q", got.Status)
	}
	if got.Name != "Digest" {
		t.Errorf("name = %q, want pending marker stripped", got.Name)
	}
	if got.Graph == nil || len(got.Graph.Nodes) != 2 {
		t.Fatalf("graph = %+v", got.Graph)
	}
	if got.Graph.Name != "Digest" {
		t.Errorf("graph name = %q", got.Graph.Name)
	}
	if got.Steps[0].Parameters["range"] != "C2:C10" {
		t.Errorf("enrichment not applied: %v", got.Steps[0].Parameters)
	}
}

type failingEngine struct{}

func (failingEngine) Create(context.Context, *graph.Graph) (string, error) {
	return "", errors.New("engine unreachable")
}
func (failingEngine) Get(context.Context, string) (*graph.Graph, error) {
	return nil, errors.New("engine unreachable")
}
func (failingEngine) Update(context.Context, string, *graph.Graph) error {
	return errors.New("engine unreachable")
}

func TestChatCompleteEngineFailureStillActivates(t *testing.T) {
	h, mem := newHandler()
	h.Engine = failingEngine{}
	ctx := context.Background()
	rec := &store.Record{
		Owner: "alice",
		Name:  "Digest (Pending)",
		Steps: []steps.Step{
			{Action: "read", Service: "googleSheets", Operation: "readRange",
				Parameters: map[string]interface{}{"spreadsheet_id": "1abc", "range": "A1:A5"}},
		},
	}
	if err := mem.Create(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := &captureWriter{}
	h.HandleMessage(rpc(t, "12", "chat_complete", map[string]string{
		"owner": "alice", "draft_id": rec.ID,
	}), w)

	resp := w.last(t)
	if resp.Type != "workflow_active" {
		t.Fatalf("response = %+v, want activation despite engine failure", resp)
	}
	var out struct {
		Workflow    store.Record `json:"workflow"`
		EngineError string       `json:"engine_error"`
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if out.EngineError == "" {
		t.Error("engine failure not surfaced in payload")
	}
	got, _ := mem.Get(ctx, "alice", rec.ID)
	if got.Status != store.StatusActive {
		t.Errorf("status = %q, want active", got.Status)
	}
	if got.EngineID != "" {
		t.Errorf("engine id = %q, want empty after failed publish", got.EngineID)
	}
	if got.Graph == nil || len(got.Graph.Nodes) != 1 {
		t.Fatalf("compiled graph not kept: %+v", got.Graph)
	}
}

func TestNumericRequestIDEchoedBack(t *testing.T) {
	h, _ := newHandler()
	w := &captureWriter{}

	payload, _ := json.Marshal(map[string]interface{}{
		"name": "n",
		"steps": []map[string]interface{}{
			{"action": "a", "service": "googleSheets", "operation": "readRange",
				"parameters": map[string]interface{}{"spreadsheet_id": "1abc", "range": "A1:A5"}},
		},
	})
	h.HandleMessage(protocol.RPCMessage{ID: float64(42), Type: "plan", Payload: payload}, w)

	resp := w.last(t)
	if resp.Type != "plan_result" {
		t.Fatalf("response = %+v", resp)
	}
	if id, ok := resp.ID.(float64); !ok || id != 42 {
		t.Errorf("response id = %v (%T), want 42", resp.ID, resp.ID)
	}

	h.HandleMessage(protocol.RPCMessage{ID: float64(43), Type: "no_such_op"}, w)
	if resp := w.last(t); resp.Type != "error" || resp.ID != float64(43) {
		t.Errorf("error response = %+v, want id 43", resp)
	}
}

func TestUnknownTypeAndOwnerScoping(t *testing.T) {
	h, mem := newHandler()
	ctx := context.Background()
	rec := &store.Record{Owner: "alice", Name: "wf"}
	if err := mem.Create(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := &captureWriter{}
	h.HandleMessage(protocol.RPCMessage{ID: "9", Type: "no_such_op"}, w)
	if w.last(t).Type != "error" {
		t.Errorf("unknown type = %+v", w.last(t))
	}

	h.HandleMessage(rpc(t, "10", "get_workflow", map[string]string{"owner": "bob", "id": rec.ID}), w)
	if w.last(t).Type != "error" {
		t.Error("cross-owner get did not error")
	}
}
