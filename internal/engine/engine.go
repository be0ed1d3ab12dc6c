// Package engine talks to the external workflow execution engine over its
// REST API. Only the surface the rest of the system needs is covered:
// creating a workflow, fetching it back, and pushing edits.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/showrun-ai/showrun/internal/graph"
)

// Client is the engine API client. APIKey is sent on every request; the
// engine rejects unauthenticated calls.
type Client struct {
	BaseURL string
	APIKey  string

	httpClient *http.Client
}

// Service is what callers depend on, so tests can stand in a fake.
type Service interface {
	Create(ctx context.Context, g *graph.Graph) (string, error)
	Get(ctx context.Context, id string) (*graph.Graph, error)
	Update(ctx context.Context, id string, g *graph.Graph) error
}

// New builds a client for the engine at baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Create registers the graph with the engine and returns the engine's id
// for it.
func (c *Client) Create(ctx context.Context, g *graph.Graph) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v1/workflows", exportGraph(g))
	if err != nil {
		return "", fmt.Errorf("engine create: %w", err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("engine create: decode response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("engine create: response carried no id")
	}
	log.Printf("[engine] created workflow %q as %s", g.Name, out.ID)
	return out.ID, nil
}

// Get fetches the engine's current copy of a workflow.
func (c *Client) Get(ctx context.Context, id string) (*graph.Graph, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/workflows/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("engine get %s: %w", id, err)
	}
	var g graph.Graph
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, fmt.Errorf("engine get %s: decode response: %w", id, err)
	}
	return &g, nil
}

// Update pushes an edited graph back. Only the fields the engine accepts
// on update are sent; anything else on the wire is rejected.
func (c *Client) Update(ctx context.Context, id string, g *graph.Graph) error {
	if _, err := c.do(ctx, http.MethodPut, "/api/v1/workflows/"+id, exportGraph(g)); err != nil {
		return fmt.Errorf("engine update %s: %w", id, err)
	}
	log.Printf("[engine] updated workflow %s (%q)", id, g.Name)
	return nil
}

// exportGraph strips the payload down to the mutable fields.
func exportGraph(g *graph.Graph) map[string]interface{} {
	settings := g.Settings
	if settings == nil {
		settings = map[string]interface{}{}
	}
	return map[string]interface{}{
		"name":        g.Name,
		"nodes":       g.Nodes,
		"connections": g.Connections,
		"settings":    settings,
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-N8N-API-KEY", c.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
