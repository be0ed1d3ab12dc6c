// Package server exposes the workflow service over a transport-agnostic
// RPC surface: messages in, messages out, with the transport (WebSocket,
// stdio) supplying the ResponseWriter.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/showrun-ai/showrun/internal/chat"
	"github.com/showrun-ai/showrun/internal/editor"
	"github.com/showrun-ai/showrun/internal/engine"
	"github.com/showrun-ai/showrun/internal/graph"
	"github.com/showrun-ai/showrun/internal/planner"
	"github.com/showrun-ai/showrun/internal/protocol"
	"github.com/showrun-ai/showrun/internal/steps"
	"github.com/showrun-ai/showrun/internal/store"
	"github.com/showrun-ai/showrun/internal/video"
)

// pendingSuffix marks drafts that still need answers; it is stripped when
// the workflow goes active.
const pendingSuffix = " (Pending)"

// ResponseWriter lets different transports carry responses back.
type ResponseWriter interface {
	Send(msg interface{}) error
}

// Handler routes RPC messages to the workflow components.
type Handler struct {
	Planner  *planner.Planner
	Chat     *chat.Loop
	Editor   *editor.Editor
	Store    store.Store
	Engine   engine.Service
	Enricher *steps.Enricher
	Video    *video.Processor

	GlobalCtx context.Context
}

// HandleMessage processes a single RPC message and writes the response.
func (h *Handler) HandleMessage(msg protocol.RPCMessage, writer ResponseWriter) {
	ctx := h.GlobalCtx
	if ctx == nil {
		ctx = context.Background()
	}

	switch msg.Type {
	case "process_video":
		h.handleProcessVideo(ctx, msg, writer)
	case "plan":
		h.handlePlan(msg, writer)
	case "chat_turn":
		h.handleChatTurn(ctx, msg, writer)
	case "chat_complete":
		h.handleChatComplete(ctx, msg, writer)
	case "editor_turn":
		h.handleEditorTurn(ctx, msg, writer)
	case "list_workflows":
		h.handleList(ctx, msg, writer)
	case "get_workflow":
		h.handleGet(ctx, msg, writer)
	case "update_workflow":
		h.handleUpdate(ctx, msg, writer)
	case "delete_workflow":
		h.handleDelete(ctx, msg, writer)
	case "archive_workflow":
		h.handleArchive(ctx, msg, writer)
	case "workflow_stats":
		h.handleStats(ctx, msg, writer)
	default:
		h.sendError(writer, msg.ID, fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func (h *Handler) handleProcessVideo(ctx context.Context, msg protocol.RPCMessage, writer ResponseWriter) {
	var payload struct {
		Owner     string `json:"owner"`
		SourceRef string `json:"source_ref"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		h.sendError(writer, msg.ID, fmt.Errorf("parse payload: %w", err))
		return
	}
	if payload.Owner == "" || payload.SourceRef == "" {
		h.sendError(writer, msg.ID, fmt.Errorf("owner and source_ref are required"))
		return
	}
	if h.Video == nil {
		h.sendError(writer, msg.ID, fmt.Errorf("video processing is not configured"))
		return
	}
	if payload.Name == "" {
		payload.Name = "Recorded workflow"
	}

	list, err := h.Video.Process(ctx, payload.SourceRef)
	if err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	plan := h.Planner.Plan(list, payload.Name)

	name := payload.Name
	if plan.Status == planner.StatusNeedsInput {
		name += pendingSuffix
	}
	rec := &store.Record{
		Owner:       payload.Owner,
		Name:        name,
		Steps:       list,
		MissingInfo: plan.Questions,
	}
	if err := h.Store.Create(ctx, rec); err != nil {
		h.sendError(writer, msg.ID, fmt.Errorf("persist draft: %w", err))
		return
	}
	log.Printf("[server] processed %s into draft %s (%s)", payload.SourceRef, rec.ID, plan.Status)

	h.send(writer, msg.ID, "video_processed", map[string]interface{}{
		"workflow": rec,
		"plan":     plan,
	})
}

func (h *Handler) handlePlan(msg protocol.RPCMessage, writer ResponseWriter) {
	var payload struct {
		Name  string          `json:"name"`
		Steps json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		h.sendError(writer, msg.ID, fmt.Errorf("parse payload: %w", err))
		return
	}
	list, err := steps.DecodeSteps(payload.Steps)
	if err != nil {
		h.sendError(writer, msg.ID, fmt.Errorf("decode steps: %w", err))
		return
	}
	h.send(writer, msg.ID, "plan_result", h.Planner.Plan(list, payload.Name))
}

func (h *Handler) handleChatTurn(ctx context.Context, msg protocol.RPCMessage, writer ResponseWriter) {
	var payload struct {
		Owner   string             `json:"owner"`
		DraftID string             `json:"draft_id"`
		Message string             `json:"message"`
		History []protocol.Message `json:"history,omitempty"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		h.sendError(writer, msg.ID, fmt.Errorf("parse payload: %w", err))
		return
	}
	if payload.Owner == "" || payload.DraftID == "" || payload.Message == "" {
		h.sendError(writer, msg.ID, fmt.Errorf("owner, draft_id and message are required"))
		return
	}

	res, err := h.Chat.Turn(ctx, payload.Owner, payload.DraftID, payload.Message, payload.History)
	if err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	h.send(writer, msg.ID, "chat_result", res)
}

// handleChatComplete finishes a draft: merge collected answers, compile,
// publish to the engine, and flip the record to active.
func (h *Handler) handleChatComplete(ctx context.Context, msg protocol.RPCMessage, writer ResponseWriter) {
	var payload struct {
		Owner   string `json:"owner"`
		DraftID string `json:"draft_id"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		h.sendError(writer, msg.ID, fmt.Errorf("parse payload: %w", err))
		return
	}

	rec, err := h.Store.Get(ctx, payload.Owner, payload.DraftID)
	if err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}

	rec.Name = strings.TrimSuffix(rec.Name, pendingSuffix)
	enriched := h.Enricher.Enrich(ctx, rec.Steps, rec.Collected, rec.Owner)
	g, err := graph.Compile(enriched, rec.Name)
	if err != nil {
		h.sendError(writer, msg.ID, fmt.Errorf("compile %s: %w", rec.ID, err))
		return
	}

	rec.Steps = enriched
	rec.Graph = g
	// An engine outage does not block activation: the compiled graph is
	// kept on the record and the push can be retried later.
	var engineErr error
	if h.Engine != nil {
		engineID, err := h.Engine.Create(ctx, g)
		if err != nil {
			engineErr = err
			log.Printf("[server] publish %s to engine: %v", rec.ID, err)
		} else {
			rec.EngineID = engineID
		}
	}
	rec.Status = store.StatusActive
	rec.MissingInfo = nil
	if err := h.Store.Update(ctx, rec); err != nil {
		h.sendError(writer, msg.ID, fmt.Errorf("persist workflow: %w", err))
		return
	}
	log.Printf("[server] workflow %s is active (engine id %q)", rec.ID, rec.EngineID)
	resp := map[string]interface{}{"workflow": rec}
	if engineErr != nil {
		resp["engine_error"] = engineErr.Error()
	}
	h.send(writer, msg.ID, "workflow_active", resp)
}

func (h *Handler) handleEditorTurn(ctx context.Context, msg protocol.RPCMessage, writer ResponseWriter) {
	var payload struct {
		Owner      string             `json:"owner"`
		WorkflowID string             `json:"workflow_id"`
		Message    string             `json:"message"`
		History    []protocol.Message `json:"history,omitempty"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		h.sendError(writer, msg.ID, fmt.Errorf("parse payload: %w", err))
		return
	}
	if payload.Owner == "" || payload.WorkflowID == "" || payload.Message == "" {
		h.sendError(writer, msg.ID, fmt.Errorf("owner, workflow_id and message are required"))
		return
	}

	res, err := h.Editor.Turn(ctx, payload.Owner, payload.WorkflowID, payload.Message, payload.History)
	if err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	h.send(writer, msg.ID, "editor_result", res)
}

func (h *Handler) handleList(ctx context.Context, msg protocol.RPCMessage, writer ResponseWriter) {
	var payload struct {
		Owner  string `json:"owner"`
		Status string `json:"status"`
		Limit  int    `json:"limit"`
		Offset int    `json:"offset"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		h.sendError(writer, msg.ID, fmt.Errorf("parse payload: %w", err))
		return
	}
	rows, err := h.Store.List(ctx, payload.Owner, store.ListFilter{
		Status: payload.Status,
		Limit:  payload.Limit,
		Offset: payload.Offset,
	})
	if err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	h.send(writer, msg.ID, "workflow_list", map[string]interface{}{"workflows": rows})
}

func (h *Handler) handleGet(ctx context.Context, msg protocol.RPCMessage, writer ResponseWriter) {
	owner, id, err := ownerAndID(msg.Payload)
	if err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	rec, err := h.Store.Get(ctx, owner, id)
	if err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	h.send(writer, msg.ID, "workflow", rec)
}

func (h *Handler) handleUpdate(ctx context.Context, msg protocol.RPCMessage, writer ResponseWriter) {
	var payload struct {
		Owner string          `json:"owner"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Steps json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		h.sendError(writer, msg.ID, fmt.Errorf("parse payload: %w", err))
		return
	}
	rec, err := h.Store.Get(ctx, payload.Owner, payload.ID)
	if err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	if payload.Name != "" {
		rec.Name = payload.Name
	}
	if len(payload.Steps) > 0 {
		list, err := steps.DecodeSteps(payload.Steps)
		if err != nil {
			h.sendError(writer, msg.ID, fmt.Errorf("decode steps: %w", err))
			return
		}
		rec.Steps = list
	}
	if err := h.Store.Update(ctx, rec); err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	h.send(writer, msg.ID, "workflow", rec)
}

func (h *Handler) handleDelete(ctx context.Context, msg protocol.RPCMessage, writer ResponseWriter) {
	owner, id, err := ownerAndID(msg.Payload)
	if err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	if err := h.Store.Delete(ctx, owner, id); err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	h.send(writer, msg.ID, "workflow_deleted", map[string]string{"id": id})
}

func (h *Handler) handleArchive(ctx context.Context, msg protocol.RPCMessage, writer ResponseWriter) {
	owner, id, err := ownerAndID(msg.Payload)
	if err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	if err := h.Store.Archive(ctx, owner, id); err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	h.send(writer, msg.ID, "workflow_archived", map[string]string{"id": id})
}

func (h *Handler) handleStats(ctx context.Context, msg protocol.RPCMessage, writer ResponseWriter) {
	var payload struct {
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		h.sendError(writer, msg.ID, fmt.Errorf("parse payload: %w", err))
		return
	}
	stats, err := h.Store.Stats(ctx, payload.Owner)
	if err != nil {
		h.sendError(writer, msg.ID, err)
		return
	}
	h.send(writer, msg.ID, "workflow_stats", stats)
}

func ownerAndID(payload json.RawMessage) (string, string, error) {
	var p struct {
		Owner string `json:"owner"`
		ID    string `json:"id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", "", fmt.Errorf("parse payload: %w", err)
	}
	if p.Owner == "" || p.ID == "" {
		return "", "", fmt.Errorf("owner and id are required")
	}
	return p.Owner, p.ID, nil
}

func (h *Handler) send(writer ResponseWriter, id interface{}, msgType string, payload interface{}) {
	if err := writer.Send(protocol.RPCMessage{
		ID:      id,
		Type:    msgType,
		Payload: protocol.EncodeRPC(payload),
	}); err != nil {
		log.Printf("[server] send %s: %v", msgType, err)
	}
}

func (h *Handler) sendError(writer ResponseWriter, id interface{}, err error) {
	log.Printf("[server] request %v failed: %v", id, err)
	if serr := writer.Send(protocol.RPCMessage{
		ID:    id,
		Type:  "error",
		Error: err.Error(),
	}); serr != nil {
		log.Printf("[server] send error response: %v", serr)
	}
}
