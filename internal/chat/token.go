package chat

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/showrun-ai/showrun/internal/protocol"
)

var (
	tkm     *tiktoken.Tiktoken
	tkmOnce sync.Once
)

func getTokenizer() *tiktoken.Tiktoken {
	tkmOnce.Do(func() {
		var err error
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("[chat] failed to load tiktoken encoding: %v, falling back to heuristic", err)
		}
	})
	return tkm
}

// estimateTokens counts tokens in a string, falling back to a 1:4
// character heuristic when the encoding is unavailable.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	if t := getTokenizer(); t != nil {
		return len(t.Encode(text, nil, nil))
	}
	return len(text) / 4
}

func estimateMessageTokens(msg protocol.Message) int {
	tokens := estimateTokens(msg.Content)
	for _, tc := range msg.ToolUse {
		tokens += estimateTokens(tc.Name)
		tokens += estimateTokens(string(tc.Input))
	}
	for _, tr := range msg.ToolResults {
		tokens += estimateTokens(tr.Content)
	}
	// per-message framing overhead
	return tokens + 4
}

// trimHistory drops the oldest messages until the history fits the token
// budget. The newest message is always kept even if it alone exceeds the
// budget; losing it would lose the turn.
func trimHistory(history []protocol.Message, budget int) []protocol.Message {
	if budget <= 0 || len(history) <= 1 {
		return history
	}
	total := 0
	counts := make([]int, len(history))
	for i, m := range history {
		counts[i] = estimateMessageTokens(m)
		total += counts[i]
	}
	start := 0
	for total > budget && start < len(history)-1 {
		total -= counts[start]
		start++
	}
	if start > 0 {
		log.Printf("[chat] trimmed %d oldest message(s) to fit token budget", start)
	}
	return history[start:]
}
