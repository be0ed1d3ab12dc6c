package editor

import (
	"encoding/json"
	"fmt"

	"github.com/showrun-ai/showrun/internal/protocol"
)

func editorMenu() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        toolInspectStructure,
			Description: "List the workflow's nodes: name, type, parameters. Read-only. At most once per turn.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        toolInspectConnections,
			Description: "Show resolved from->to edges by name, nodes with no edges, and broken references. Read-only.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        toolAddNode,
			Description: "Add a node. Wires after the named anchor node, or after the current last node when no anchor is given.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name":       map[string]interface{}{"type": "string"},
					"node_type":  map[string]interface{}{"type": "string", "description": "service/operation, e.g. googleSheets/readRange"},
					"parameters": map[string]interface{}{"type": "object"},
					"after":      map[string]interface{}{"type": "string", "description": "Name or id of the node to wire after"},
				},
				"required": []string{"name", "node_type"},
			},
		},
		{
			Name:        toolModifyNode,
			Description: "Rename a node and/or overwrite individual parameters. Reference by name or id.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"node":       map[string]interface{}{"type": "string", "description": "Name or id"},
					"new_name":   map[string]interface{}{"type": "string"},
					"parameters": map[string]interface{}{"type": "object", "description": "Only the keys to change"},
				},
				"required": []string{"node"},
			},
		},
		{
			Name:        toolDeleteNode,
			Description: "Remove a node and every edge touching it. Reference by name or id.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"node": map[string]interface{}{"type": "string"},
				},
				"required": []string{"node"},
			},
		},
		{
			Name:        toolConnectNodes,
			Description: "Connect two nodes. Repeating an existing connection succeeds without duplicating it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"source": map[string]interface{}{"type": "string"},
					"target": map[string]interface{}{"type": "string"},
					"index":  map[string]interface{}{"type": "integer", "description": "Target input slot, default 0"},
				},
				"required": []string{"source", "target"},
			},
		},
		{
			Name:        toolRebuildConnections,
			Description: "Throw away all connections and rewire the nodes as a sequential chain in their current order.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

func (e *Editor) dispatch(state *turnState, call protocol.ToolUseBlock) protocol.ToolResponse {
	g := state.rec.graph
	switch call.Name {
	case toolInspectStructure:
		if state.inspected {
			return protocol.Fail(fmt.Errorf("structure already inspected this turn"), false)
		}
		state.inspected = true
		type nodeView struct {
			Name       string                 `json:"name"`
			Type       string                 `json:"type"`
			Parameters map[string]interface{} `json:"parameters,omitempty"`
		}
		views := make([]nodeView, len(g.Nodes))
		for i, n := range g.Nodes {
			views[i] = nodeView{Name: n.Name, Type: n.Type, Parameters: n.Parameters}
		}
		return protocol.OK(views)

	case toolInspectConnections:
		return protocol.OK(g.Inspect())

	case toolAddNode:
		var args struct {
			Name       string                 `json:"name"`
			NodeType   string                 `json:"node_type"`
			Parameters map[string]interface{} `json:"parameters"`
			After      string                 `json:"after"`
		}
		if err := json.Unmarshal(call.Input, &args); err != nil {
			return protocol.Fail(fmt.Errorf("parse arguments: %w", err), false)
		}
		id, err := g.AddNode(args.Name, args.NodeType, args.Parameters, args.After)
		if err != nil {
			return protocol.Fail(err, false)
		}
		state.dirty = true
		return protocol.OK(map[string]string{"id": id, "name": args.Name})

	case toolModifyNode:
		var args struct {
			Node       string                 `json:"node"`
			NewName    string                 `json:"new_name"`
			Parameters map[string]interface{} `json:"parameters"`
		}
		if err := json.Unmarshal(call.Input, &args); err != nil {
			return protocol.Fail(fmt.Errorf("parse arguments: %w", err), false)
		}
		if err := g.ModifyNode(args.Node, args.NewName, args.Parameters); err != nil {
			return protocol.Fail(err, false)
		}
		state.dirty = true
		return protocol.OK(map[string]string{"node": args.Node})

	case toolDeleteNode:
		var args struct {
			Node string `json:"node"`
		}
		if err := json.Unmarshal(call.Input, &args); err != nil {
			return protocol.Fail(fmt.Errorf("parse arguments: %w", err), false)
		}
		if err := g.DeleteNode(args.Node); err != nil {
			return protocol.Fail(err, false)
		}
		state.dirty = true
		return protocol.OK(map[string]string{"deleted": args.Node})

	case toolConnectNodes:
		var args struct {
			Source string `json:"source"`
			Target string `json:"target"`
			Index  int    `json:"index"`
		}
		if err := json.Unmarshal(call.Input, &args); err != nil {
			return protocol.Fail(fmt.Errorf("parse arguments: %w", err), false)
		}
		if err := g.ConnectNodes(args.Source, args.Target, args.Index); err != nil {
			return protocol.Fail(err, false)
		}
		state.dirty = true
		return protocol.OK(map[string]string{"source": args.Source, "target": args.Target})

	case toolRebuildConnections:
		g.RebuildConnections()
		state.dirty = true
		return protocol.OK(map[string]int{"connections": len(g.Connections)})

	default:
		return protocol.Fail(fmt.Errorf("unknown tool %q", call.Name), false)
	}
}
