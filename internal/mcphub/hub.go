// Package mcphub connects to external MCP servers and surfaces their
// tools, namespaced, alongside the built-in capability menu. Only the
// acquisition loop consumes these tools; they are offered read-only in the
// sense that nothing here can mutate a workflow draft.
package mcphub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/showrun-ai/showrun/internal/protocol"
)

const (
	namePrefix      = "mcp__"
	listTimeout     = 5 * time.Second
	callTimeout     = 60 * time.Second
	protocolVersion = "2024-11-05"
)

// ServerConfig describes one MCP server to launch over stdio.
type ServerConfig struct {
	Command  string   `json:"command"`
	Args     []string `json:"args,omitempty"`
	Disabled bool     `json:"disabled,omitempty"`
}

// Settings is the on-disk mcp_settings.json shape.
type Settings struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

type connection struct {
	name   string
	client *client.Client
	tools  []mcp.Tool
}

// Hub holds the live server connections.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*connection
}

// NewHub returns an empty hub. Call Load to connect servers.
func NewHub() *Hub {
	return &Hub{connections: make(map[string]*connection)}
}

// Load reads a settings file and connects every enabled server. A missing
// file leaves the hub empty, which is a valid deployment.
func (h *Hub) Load(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read mcp settings: %w", err)
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for name, cfg := range settings.Servers {
		if cfg.Disabled {
			continue
		}
		if err := h.connect(ctx, name, cfg); err != nil {
			log.Printf("[mcphub] connect %s: %v", name, err)
		}
	}
	return nil
}

func (h *Hub) connect(ctx context.Context, name string, cfg ServerConfig) error {
	c, err := client.NewStdioMCPClient(cfg.Command, cfg.Args)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = protocolVersion
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "showrun", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	listCtx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	listed, err := c.ListTools(listCtx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if old, exists := h.connections[name]; exists {
		old.client.Close()
	}
	h.connections[name] = &connection{name: name, client: c, tools: listed.Tools}
	log.Printf("[mcphub] connected %s: %d tool(s)", name, len(listed.Tools))
	return nil
}

// Tools returns every server's tools under namespaced names, converted to
// the capability-menu shape.
func (h *Hub) Tools() []protocol.Tool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []protocol.Tool
	for _, conn := range h.connections {
		for _, t := range conn.tools {
			out = append(out, protocol.Tool{
				Name:        namePrefix + conn.name + "__" + t.Name,
				Description: t.Description,
				InputSchema: schemaToMap(t.InputSchema),
			})
		}
	}
	return out
}

// Owns reports whether a tool name belongs to this hub.
func (h *Hub) Owns(name string) bool {
	return strings.HasPrefix(name, namePrefix)
}

// Call routes a namespaced invocation to its server.
func (h *Hub) Call(ctx context.Context, name string, args json.RawMessage) protocol.ToolResponse {
	server, tool, ok := splitName(name)
	if !ok {
		return protocol.Fail(fmt.Errorf("malformed tool name %q", name), false)
	}

	h.mu.RLock()
	conn, exists := h.connections[server]
	h.mu.RUnlock()
	if !exists {
		return protocol.Fail(fmt.Errorf("no MCP server %q", server), false)
	}

	var arguments map[string]interface{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return protocol.Fail(fmt.Errorf("parse arguments: %w", err), false)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = arguments
	result, err := conn.client.CallTool(callCtx, req)
	if err != nil {
		return protocol.Fail(fmt.Errorf("call %s: %w", name, err), true)
	}

	text := flattenContent(result)
	if result.IsError {
		return protocol.Fail(fmt.Errorf("%s", text), false)
	}
	return protocol.OK(text)
}

// Close shuts down every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.connections {
		conn.client.Close()
	}
	h.connections = make(map[string]*connection)
}

func splitName(full string) (server, tool string, ok bool) {
	rest, found := strings.CutPrefix(full, namePrefix)
	if !found {
		return "", "", false
	}
	parts := strings.SplitN(rest, "__", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return map[string]interface{}{"type": "object"}
	}
	return out
}

func flattenContent(result *mcp.CallToolResult) string {
	var b strings.Builder
	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}
