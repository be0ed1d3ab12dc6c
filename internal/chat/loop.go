// Package chat runs the conversational acquisition loop: a per-draft chat
// session where the model interviews the human, fills in missing workflow
// parameters through capability invocations, and declares completion
// explicitly.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/showrun-ai/showrun/internal/llm"
	"github.com/showrun-ai/showrun/internal/protocol"
	"github.com/showrun-ai/showrun/internal/sheets"
	"github.com/showrun-ai/showrun/internal/steps"
	"github.com/showrun-ai/showrun/internal/store"
)

const (
	defaultMaxToolRounds = 8
	defaultHistoryBudget = 24000
	lockRetryInterval    = 100 * time.Millisecond
	lockAttempts         = 100
)

// completionPhrases back the fallback detector. They apply only when the
// model invoked no capability at all in the turn; the explicit
// mark_workflow_complete signal always wins.
var completionPhrases = []string{
	"workflow is ready",
	"workflow is complete",
	"all parameters are collected",
	"everything i need",
	"ready to create the workflow",
}

// ToolHub contributes extra capabilities to a turn. Implemented by the
// external capability hub; nil means the fixed menu only.
type ToolHub interface {
	Tools() []protocol.Tool
	Owns(name string) bool
	Call(ctx context.Context, name string, args json.RawMessage) protocol.ToolResponse
}

// Loop drives acquisition turns for workflow drafts.
type Loop struct {
	provider llm.Provider
	store    store.Store
	sheets   sheets.Service
	hub      ToolHub
	analyzer *steps.Analyzer

	lockDir       string
	maxToolRounds int
	historyBudget int
}

// Options tunes a Loop. Zero values pick defaults.
type Options struct {
	Hub           ToolHub
	Analyzer      *steps.Analyzer
	LockDir       string
	MaxToolRounds int
	HistoryBudget int
}

// NewLoop wires the acquisition loop.
func NewLoop(provider llm.Provider, st store.Store, sheetsSvc sheets.Service, opts Options) *Loop {
	l := &Loop{
		provider:      provider,
		store:         st,
		sheets:        sheetsSvc,
		hub:           opts.Hub,
		analyzer:      opts.Analyzer,
		lockDir:       opts.LockDir,
		maxToolRounds: opts.MaxToolRounds,
		historyBudget: opts.HistoryBudget,
	}
	if l.analyzer == nil {
		l.analyzer = steps.NewAnalyzer(nil, nil)
	}
	if l.lockDir == "" {
		l.lockDir = filepath.Join(os.TempDir(), "showrun-locks")
	}
	if l.maxToolRounds <= 0 {
		l.maxToolRounds = defaultMaxToolRounds
	}
	if l.historyBudget <= 0 {
		l.historyBudget = defaultHistoryBudget
	}
	return l
}

// TurnResult is everything one turn produced.
type TurnResult struct {
	Message     string          `json:"message"`
	Invocations []string        `json:"invocations,omitempty"`
	Complete    bool            `json:"complete"`
	Modified    bool            `json:"modified"`
	Collected   steps.Collected `json:"collected_params,omitempty"`
}

// Turn processes one human message against a draft. Turns on the same
// draft are serialized through a file lock; each turn reads the latest
// persisted record and persists its own result before returning.
func (l *Loop) Turn(ctx context.Context, owner, draftID, message string, prior []protocol.Message) (*TurnResult, error) {
	unlock, err := l.lockDraft(draftID)
	if err != nil {
		return nil, fmt.Errorf("lock draft %s: %w", draftID, err)
	}
	defer unlock()

	rec, err := l.store.Get(ctx, owner, draftID)
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", draftID, err)
	}
	sess := &session{rec: rec}

	history := append(append([]protocol.Message{}, prior...), protocol.Message{
		Role:    "user",
		Content: message,
	})
	history = trimHistory(history, l.historyBudget)

	tools := capabilityMenu()
	if l.hub != nil {
		tools = append(tools, l.hub.Tools()...)
	}

	var invocations []string
	var lastText string

	for round := 0; round < l.maxToolRounds; round++ {
		resp, err := l.provider.Chat(ctx, &llm.ChatRequest{
			SystemPrompt: l.systemPrompt(sess),
			Messages:     history,
			Tools:        tools,
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

		// Execute in the model's order: later calls may depend on
		// earlier side effects.
		results := make([]protocol.ToolResultBlock, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			invocations = append(invocations, call.Name)
			tr := l.dispatch(ctx, sess, call)
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

	// Function-call-free closing turn: summarize for the human.
	if len(invocations) > 0 {
		resp, err := l.provider.Chat(ctx, &llm.ChatRequest{
			SystemPrompt: l.systemPrompt(sess) + "\n\nSummarize for the user what just happened and what is still needed. Do not call any functions.",
			Messages:     history,
		})
		if err != nil {
			log.Printf("[chat] summary turn failed for %s: %v", draftID, err)
		} else if resp.Content != "" {
			lastText = resp.Content
		}
	} else if !sess.complete && looksComplete(lastText) {
		// fallback detector, only when no capability was invoked
		sess.complete = true
	}

	if sess.complete {
		log.Printf("[chat] draft %s declared complete", draftID)
	}
	// All mutations from this turn (saved parameters, step replacements)
	// land in one write here. The draft lock is still held, so no other
	// turn can observe the record between a mutation and this persist.
	if err := l.store.Update(ctx, sess.rec); err != nil {
		return nil, fmt.Errorf("persist draft %s: %w", draftID, err)
	}

	return &TurnResult{
		Message:     lastText,
		Invocations: invocations,
		Complete:    sess.complete,
		Modified:    sess.modified,
		Collected:   sess.rec.Collected,
	}, nil
}

// lockDraft serializes turns per draft across processes.
func (l *Loop) lockDraft(draftID string) (func(), error) {
	if err := os.MkdirAll(l.lockDir, 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(filepath.Join(l.lockDir, draftID+".lock"))
	for i := 0; i < lockAttempts; i++ {
		locked, err := fl.TryLock()
		if err != nil {
			return nil, err
		}
		if locked {
			return func() {
				if err := fl.Unlock(); err != nil {
					log.Printf("[chat] unlock draft %s: %v", draftID, err)
				}
			}, nil
		}
		time.Sleep(lockRetryInterval)
	}
	return nil, fmt.Errorf("another turn is still running")
}

// systemPrompt presents the current draft state: steps, missing info, and
// collected parameters, plus the ground rules for the capability menu.
func (l *Loop) systemPrompt(sess *session) string {
	merged := steps.MergeCollected(sess.rec.Steps, sess.rec.Collected)
	analysis := l.analyzer.Analyze(merged)

	var b strings.Builder
	b.WriteString("You are setting up an automation workflow with the user. ")
	b.WriteString("Collect every missing parameter, one question at a time. ")
	b.WriteString("Record each answer with save_workflow_parameter the moment you get it. ")
	b.WriteString("When every required parameter is collected, call mark_workflow_complete; never declare completion in prose alone.\n\n")

	b.WriteString("Sheet range format:\n")
	b.WriteString("- Valid: \"C2:C6\", \"A1:B10\", \"B2:B1000\"\n")
	b.WriteString("- Invalid: \"Sheet1!C2:C6\" (drop the sheet-name prefix) and open-ended forms like \"C2:C\"\n")
	b.WriteString("- \"column C rows 2-6\" means \"C2:C6\"; \"column C from row 2\" with no end means \"C2:C1000\"\n")
	b.WriteString("- Save the exact values the user gives; never invent placeholders\n\n")

	b.WriteString("Current steps:\n")
	writeJSON(&b, sess.rec.Steps)

	if len(analysis.MissingInfo) > 0 {
		b.WriteString("\nStill missing:\n")
		writeJSON(&b, analysis.MissingInfo)
	} else {
		b.WriteString("\nNo required parameters are missing.\n")
	}

	if len(sess.rec.Collected) > 0 {
		b.WriteString("\nCollected so far:\n")
		writeJSON(&b, sess.rec.Collected)
	}
	return b.String()
}

func writeJSON(b *strings.Builder, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(b, "(unavailable: %v)\n", err)
		return
	}
	b.Write(data)
	b.WriteString("\n")
}

func looksComplete(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range completionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
