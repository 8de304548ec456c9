// Package bot exposes verification runs over a Telegram chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hazz-dev/shipcheck/internal/evidence"
	"github.com/hazz-dev/shipcheck/internal/logger"
	"github.com/hazz-dev/shipcheck/internal/verify"
)

// maxMessageLen is Telegram's limit for one message, minus room for the
// code fence.
const maxMessageLen = 4096 - 16

// Runner performs one verification run.
type Runner interface {
	Run(ctx context.Context, phase string) *verify.Run
}

// Reports gives access to the newest stored report.
type Reports interface {
	LatestReport() (path, text string, err error)
}

// Sender delivers replies.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text, parseMode string) error
}

// Source yields incoming updates.
type Source interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// Bot answers chat messages. Runs are serialized, so updates arriving through
// the webhook and the poll loop never trigger overlapping runs.
type Bot struct {
	runner  Runner
	reports Reports
	sender  Sender
	phase   string
	allowed map[int64]bool
	logger  *zap.Logger
	mu      sync.Mutex
}

// New creates a Bot. An empty allowed list accepts every chat. Pass nil
// logger to discard logs.
func New(runner Runner, reports Reports, sender Sender, phase string, allowed []int64, log *zap.Logger) *Bot {
	b := &Bot{
		runner:  runner,
		reports: reports,
		sender:  sender,
		phase:   phase,
		logger:  logger.OrNop(log),
	}
	if len(allowed) > 0 {
		b.allowed = make(map[int64]bool, len(allowed))
		for _, id := range allowed {
			b.allowed[id] = true
		}
	}
	return b
}

// Handle processes one update and replies to its chat. Only transport
// errors are returned.
func (b *Bot) Handle(ctx context.Context, u Update) error {
	if u.Message == nil || u.Message.Text == "" {
		return nil
	}
	chatID := u.Message.Chat.ID
	intent := Classify(u.Message.Text)
	b.logger.Info("message received",
		zap.Int64("chat_id", chatID),
		zap.Int64("update_id", u.UpdateID),
		zap.String("intent", string(intent)),
	)

	if b.allowed != nil && !b.allowed[chatID] {
		b.logger.Warn("message from chat not in allowed_chats", zap.Int64("chat_id", chatID))
		return b.sender.SendMessage(ctx, chatID, "This chat is not allowed to use this bot.", "")
	}

	switch intent {
	case IntentRun:
		return b.handleRun(ctx, chatID)
	case IntentStatus:
		return b.handleStatus(ctx, chatID)
	default:
		return b.sender.SendMessage(ctx, chatID, HelpText(), "")
	}
}

func (b *Bot) handleRun(ctx context.Context, chatID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.sender.SendMessage(ctx, chatID, "Starting verification...", ""); err != nil {
		b.logger.Warn("sending acknowledgement", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	run := b.runner.Run(ctx, b.phase)
	b.logger.Info("verification requested from chat",
		zap.Int64("chat_id", chatID),
		zap.String("run_id", run.ID),
		zap.String("outcome", verify.Summary(run)),
	)
	return b.sender.SendMessage(ctx, chatID, codeBlock(run.Report), "Markdown")
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) error {
	_, text, err := b.reports.LatestReport()
	if errors.Is(err, evidence.ErrNoReport) {
		return b.sender.SendMessage(ctx, chatID, "No verification report yet. Send 'Run verification' to start one.", "")
	}
	if err != nil {
		b.logger.Error("reading latest report", zap.Error(err))
		return b.sender.SendMessage(ctx, chatID, fmt.Sprintf("Could not read the latest report: %v", err), "")
	}
	return b.sender.SendMessage(ctx, chatID, codeBlock(text), "Markdown")
}

// codeBlock fences text for Markdown, trimming it to fit one message.
func codeBlock(text string) string {
	if len(text) > maxMessageLen {
		cut := maxMessageLen - 4
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "\n..."
	}
	return "```\n" + text + "\n```"
}

// Poll long-polls src and handles updates in order until ctx is cancelled.
// Transport failures are logged and retried after retryDelay.
func (b *Bot) Poll(ctx context.Context, src Source, pollTimeout, retryDelay time.Duration) {
	b.logger.Info("bot polling started", zap.Duration("poll_timeout", pollTimeout))
	var offset int64
	for {
		if ctx.Err() != nil {
			b.logger.Info("bot polling stopped")
			return
		}

		updates, err := src.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			b.logger.Warn("fetching updates", zap.Error(err), zap.Duration("retry_in", retryDelay))
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if err := b.Handle(ctx, u); err != nil {
				b.logger.Warn("replying to update", zap.Int64("update_id", u.UpdateID), zap.Error(err))
			}
		}
	}
}
