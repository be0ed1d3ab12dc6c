// Package telegram relays the acquisition conversation over Telegram:
// each allowed chat binds itself to one workflow draft and every message
// becomes one turn of that draft's conversation.
package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/gofrs/flock"

	"github.com/showrun-ai/showrun/internal/chat"
	"github.com/showrun-ai/showrun/internal/format"
)

// Bot wraps the Telegram transport around the acquisition loop.
type Bot struct {
	bot            *bot.Bot
	token          string
	allowedUserIDs map[int64]bool
	loop           *chat.Loop

	// chatID -> bound draft
	draftsMu sync.Mutex
	drafts   map[int64]binding

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// New creates the relay. The loop does the actual work; the bot only
// carries text back and forth.
func New(token string, allowedIDs []int64, loop *chat.Loop) (*Bot, error) {
	allowed := make(map[int64]bool)
	for _, id := range allowedIDs {
		allowed[id] = true
	}
	b := &Bot{
		token:          token,
		allowedUserIDs: allowed,
		loop:           loop,
		drafts:         make(map[int64]binding),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.handleUpdate),
		bot.WithErrorsHandler(func(err error) {
			if err == nil {
				return
			}
			if strings.Contains(strings.ToLower(err.Error()), "conflict") {
				log.Printf("[telegram] conflict: another process polls this token, stopping: %v", err)
				b.cancelMu.Lock()
				if b.cancel != nil {
					b.cancel()
				}
				b.cancelMu.Unlock()
				return
			}
			log.Printf("[telegram] error: %v", err)
		}),
	}
	tgBot, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	b.bot = tgBot
	return b, nil
}

// Start begins long polling. A cross-process file lock keyed by the token
// keeps two instances from fighting over the same bot.
func (b *Bot) Start(ctx context.Context) {
	homeDir, _ := os.UserHomeDir()
	tokenHash := sha256.Sum256([]byte(b.token))
	lockPath := filepath.Join(homeDir, ".showrun", fmt.Sprintf("tg-bot-%s.lock", hex.EncodeToString(tokenHash[:8])))
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		log.Printf("[telegram] create lock dir: %v", err)
	}

	fileLock := flock.New(lockPath)
	var locked bool
	for i := 0; i < 10; i++ {
		var err error
		locked, err = fileLock.TryLock()
		if err != nil {
			log.Printf("[telegram] acquire lock: %v", err)
			return
		}
		if locked {
			break
		}
		if i == 0 {
			log.Println("[telegram] lock held by another process, waiting...")
		}
		time.Sleep(500 * time.Millisecond)
	}
	if !locked {
		log.Println("[telegram] bot already running in another instance, not starting")
		return
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			log.Printf("[telegram] release lock: %v", err)
		}
	}()

	b.cancelMu.Lock()
	ctx, b.cancel = context.WithCancel(ctx)
	b.cancelMu.Unlock()

	log.Println("[telegram] bot started")
	b.bot.Start(ctx)
}

func (b *Bot) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if len(b.allowedUserIDs) > 0 && !b.allowedUserIDs[userID] {
		log.Printf("[telegram] ignoring message from unauthorized user %d", userID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "":
		return
	case strings.HasPrefix(text, "/start"):
		b.reply(ctx, chatID, "Send /use <workflow-id> to pick the workflow draft you want to finish setting up, then just answer my questions. Add the owner after the id if the draft was created from the app.")
	case strings.HasPrefix(text, "/use"):
		b.bindDraft(ctx, chatID, userID, text)
	default:
		b.relayTurn(ctx, chatID, userID, text)
	}
}

// binding ties a chat to one draft under the owner it was created with.
type binding struct {
	Owner   string
	DraftID string
}

// parseUse handles "/use <workflow-id> [owner]". Drafts created through
// other surfaces carry that surface's owner, so the command accepts it
// explicitly; without one the chat falls back to its Telegram identity.
func parseUse(text string, userID int64) (binding, error) {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		return binding{}, fmt.Errorf("usage: /use <workflow-id> [owner]")
	}
	bnd := binding{DraftID: parts[1], Owner: fmt.Sprintf("tg:%d", userID)}
	if len(parts) > 2 {
		bnd.Owner = parts[2]
	}
	return bnd, nil
}

func (b *Bot) bindDraft(ctx context.Context, chatID, userID int64, text string) {
	bnd, err := parseUse(text, userID)
	if err != nil {
		b.reply(ctx, chatID, "Usage: /use <workflow-id> [owner]")
		return
	}
	b.draftsMu.Lock()
	b.drafts[chatID] = bnd
	b.draftsMu.Unlock()
	log.Printf("[telegram] chat %d bound to draft %s (owner %s)", chatID, bnd.DraftID, bnd.Owner)
	b.reply(ctx, chatID, fmt.Sprintf("Working on workflow %s. What would you like to tell me about it?", bnd.DraftID))
}

func (b *Bot) relayTurn(ctx context.Context, chatID, userID int64, text string) {
	b.draftsMu.Lock()
	bnd := b.drafts[chatID]
	b.draftsMu.Unlock()
	if bnd.DraftID == "" {
		b.reply(ctx, chatID, "No workflow selected yet. Send /use <workflow-id> first.")
		return
	}

	res, err := b.loop.Turn(ctx, bnd.Owner, bnd.DraftID, text, nil)
	if err != nil {
		log.Printf("[telegram] turn for draft %s: %v", bnd.DraftID, err)
		b.reply(ctx, chatID, fmt.Sprintf("Something went wrong: %v", err))
		return
	}

	answer := res.Message
	if answer == "" {
		answer = "Noted."
	}
	if res.Complete {
		answer += "\n\nThe workflow is fully configured. You can activate it from the app."
	}
	b.reply(ctx, chatID, answer)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      format.TelegramHTML(text),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		// Malformed HTML gets rejected by the API; fall back to plain text.
		_, err = b.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		})
	}
	if err != nil {
		log.Printf("[telegram] send to %d: %v", chatID, err)
	}
}
