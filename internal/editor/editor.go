// Package editor runs the graph editing conversation: the model mutates a
// workflow's node/connection graph through a fixed tool set, and dirty
// graphs are synchronized engine-first, mirror-second at the end of every
// turn.
package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/showrun-ai/showrun/internal/engine"
	"github.com/showrun-ai/showrun/internal/graph"
	"github.com/showrun-ai/showrun/internal/llm"
	"github.com/showrun-ai/showrun/internal/protocol"
	"github.com/showrun-ai/showrun/internal/store"
)

const (
	toolInspectStructure   = "inspect_workflow_structure"
	toolInspectConnections = "inspect_connections"
	toolAddNode            = "add_node"
	toolModifyNode         = "modify_node"
	toolDeleteNode         = "delete_node"
	toolConnectNodes       = "connect_nodes"
	toolRebuildConnections = "rebuild_connections"
)

const defaultMaxToolRounds = 8

// Editor coordinates one editing conversation turn at a time.
type Editor struct {
	provider llm.Provider
	engine   engine.Service
	store    store.Store

	maxToolRounds int
}

// New wires the editor. The engine client may be nil for offline editing
// of drafts that were never published.
func New(provider llm.Provider, eng engine.Service, st store.Store) *Editor {
	return &Editor{
		provider:      provider,
		engine:        eng,
		store:         st,
		maxToolRounds: defaultMaxToolRounds,
	}
}

// TurnResult is what one editing turn produced.
type TurnResult struct {
	Message     string   `json:"message"`
	Invocations []string `json:"invocations,omitempty"`
	Dirty       bool     `json:"dirty"`
	SyncError   string   `json:"sync_error,omitempty"`
}

// turnState is the working copy for one turn.
type turnState struct {
	rec       *graphRecord
	dirty     bool
	inspected bool
}

type graphRecord struct {
	record *store.Record
	graph  *graph.Graph
}

// Turn applies one human editing request to a workflow's graph. The graph
// is fetched live from the engine when the workflow is published there;
// the locally persisted mirror is the fallback. After the model is done,
// a dirty graph is pushed to the engine and mirrored locally; an engine
// push failure is surfaced in the result but never blocks the mirror.
func (e *Editor) Turn(ctx context.Context, owner, workflowID, message string, prior []protocol.Message) (*TurnResult, error) {
	rec, err := e.store.Get(ctx, owner, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	g := e.fetchGraph(ctx, rec)
	if g == nil {
		return nil, fmt.Errorf("workflow %s has no graph to edit", workflowID)
	}
	state := &turnState{rec: &graphRecord{record: rec, graph: g}}

	history := append(append([]protocol.Message{}, prior...), protocol.Message{
		Role:    "user",
		Content: message,
	})

	var invocations []string
	var lastText string

	for round := 0; round < e.maxToolRounds; round++ {
		resp, err := e.provider.Chat(ctx, &llm.ChatRequest{
			SystemPrompt: e.systemPrompt(state),
			Messages:     history,
			Tools:        editorMenu(),
		})
		if err != nil {
			return nil, fmt.Errorf("model call: %w", err)
		}
		lastText = resp.Content
		history = append(history, protocol.Message{
			Role:    "assistant",
			Content: resp.Content,
			ToolUse: resp.ToolCalls,
		})
		if len(resp.ToolCalls) == 0 {
			break
		}

		results := make([]protocol.ToolResultBlock, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			invocations = append(invocations, call.Name)
			tr := e.dispatch(state, call)
			content, merr := json.Marshal(tr)
			if merr != nil {
				content = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, merr.Error()))
			}
			results = append(results, protocol.ToolResultBlock{
				ToolUseID: call.ID,
				Content:   string(content),
				IsError:   !tr.Success,
			})
		}
		history = append(history, protocol.Message{Role: "tool", ToolResults: results})
	}

	res := &TurnResult{
		Message:     lastText,
		Invocations: invocations,
		Dirty:       state.dirty,
	}
	if state.dirty {
		res.SyncError = e.sync(ctx, state.rec)
	}
	return res, nil
}

// fetchGraph prefers the engine's live copy so edits land on current
// topology, not a stale mirror.
func (e *Editor) fetchGraph(ctx context.Context, rec *store.Record) *graph.Graph {
	if e.engine != nil && rec.EngineID != "" {
		g, err := e.engine.Get(ctx, rec.EngineID)
		if err == nil {
			return g
		}
		log.Printf("[editor] live fetch of %s failed, using mirror: %v", rec.EngineID, err)
	}
	return rec.Graph
}

// sync pushes engine-first, mirror-second. The mirror write proceeds even
// when the engine rejects the push; the error comes back as text.
func (e *Editor) sync(ctx context.Context, gr *graphRecord) string {
	var syncErr string
	if e.engine != nil && gr.record.EngineID != "" {
		if err := e.engine.Update(ctx, gr.record.EngineID, gr.graph); err != nil {
			syncErr = err.Error()
			log.Printf("[editor] engine push failed for %s: %v", gr.record.ID, err)
		}
	}
	gr.record.Graph = gr.graph
	if err := e.store.Update(ctx, gr.record); err != nil {
		log.Printf("[editor] mirror write failed for %s: %v", gr.record.ID, err)
		if syncErr == "" {
			syncErr = err.Error()
		}
	}
	return syncErr
}

func (e *Editor) systemPrompt(state *turnState) string {
	return fmt.Sprintf(
		"You are editing the workflow %q. It currently has %d node(s). "+
			"Use the tools to inspect and change its structure. "+
			"Inspect before you mutate; refer to nodes by name or id.",
		state.rec.graph.Name, len(state.rec.graph.Nodes))
}
