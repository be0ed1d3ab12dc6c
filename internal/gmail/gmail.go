// Package gmail is the messaging capability: draft and send email through
// the Gmail REST API, scoped per owner through a TokenSource.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenSource resolves an owner id to a bearer token for the Google APIs.
type TokenSource interface {
	AccessToken(ctx context.Context, owner string) (string, error)
}

// Message describes an outgoing email.
type Message struct {
	To      string `json:"to"`
	CC      string `json:"cc,omitempty"`
	BCC     string `json:"bcc,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SendResult identifies a sent message.
type SendResult struct {
	MessageID string   `json:"message_id"`
	ThreadID  string   `json:"thread_id"`
	LabelIDs  []string `json:"label_ids,omitempty"`
}

// DraftResult identifies a created draft.
type DraftResult struct {
	DraftID   string `json:"draft_id"`
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
}

// Service is the messaging capability consumed by the workflow layer.
type Service interface {
	CreateDraft(ctx context.Context, owner string, msg Message) (*DraftResult, error)
	Send(ctx context.Context, owner string, msg Message) (*SendResult, error)
}

const gmailAPIBase = "https://gmail.googleapis.com/gmail/v1/users/me"

// Client talks to the Gmail v1 REST API.
type Client struct {
	tokens  TokenSource
	baseURL string
	http    *http.Client
}

// NewClient creates a gmail client. baseURL overrides the endpoint for tests.
func NewClient(tokens TokenSource, baseURL string) *Client {
	if baseURL == "" {
		baseURL = gmailAPIBase
	}
	return &Client{
		tokens:  tokens,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) CreateDraft(ctx context.Context, owner string, msg Message) (*DraftResult, error) {
	payload := map[string]interface{}{
		"message": map[string]string{"raw": encodeRaw(msg)},
	}

	var raw struct {
		ID      string `json:"id"`
		Message struct {
			ID       string `json:"id"`
			ThreadID string `json:"threadId"`
		} `json:"message"`
	}
	if err := c.do(ctx, owner, c.baseURL+"/drafts", payload, &raw); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}

	return &DraftResult{
		DraftID:   raw.ID,
		MessageID: raw.Message.ID,
		ThreadID:  raw.Message.ThreadID,
	}, nil
}

func (c *Client) Send(ctx context.Context, owner string, msg Message) (*SendResult, error) {
	payload := map[string]string{"raw": encodeRaw(msg)}

	var raw struct {
		ID       string   `json:"id"`
		ThreadID string   `json:"threadId"`
		LabelIDs []string `json:"labelIds"`
	}
	if err := c.do(ctx, owner, c.baseURL+"/messages/send", payload, &raw); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	return &SendResult{
		MessageID: raw.ID,
		ThreadID:  raw.ThreadID,
		LabelIDs:  raw.LabelIDs,
	}, nil
}

func (c *Client) do(ctx context.Context, owner, endpoint string, body, out interface{}) error {
	token, err := c.tokens.AccessToken(ctx, owner)
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gmail API error %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// encodeRaw builds the RFC 2822 text of the message and encodes it the way
// the Gmail API expects (URL-safe base64, no padding requirement issues).
func encodeRaw(msg Message) string {
	var sb strings.Builder
	sb.WriteString("To: " + msg.To + "\r\n")
	if msg.CC != "" {
		sb.WriteString("Cc: " + msg.CC + "\r\n")
	}
	if msg.BCC != "" {
		sb.WriteString("Bcc: " + msg.BCC + "\r\n")
	}
	sb.WriteString("Subject: " + msg.Subject + "\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(msg.Body)

	return base64.URLEncoding.EncodeToString([]byte(sb.String()))
}
