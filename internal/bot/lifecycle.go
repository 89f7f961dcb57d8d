package bot

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Start polls Telegram for updates until ctx is cancelled.
//
// Each cycle asks for updates after the cursor with a 30s long-poll. Any
// failure, transport or "not ok" API answer alike, is retried after a fixed
// 5s delay; a successful cycle is followed by a 2s pause.
func (b *Bot) Start(ctx context.Context) error {
	cursor, err := b.cursors.Load(ctx)
	if err != nil {
		b.logger.Warn("Failed to load update cursor, starting from 0", zap.Error(err))
	} else if cursor > 0 {
		b.cursor.Store(int64(cursor))
		b.logger.Info("Resuming after stored update cursor", zap.Int("cursor", cursor))
	}

	b.logger.Info("Starting bot in polling mode")

	for {
		delay := b.pollIn
		if err := b.poll(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			delay = b.retryIn
		}

		select {
		case <-ctx.Done():
			b.logger.Info("Polling stopped", zap.Int("cursor", b.Cursor()))
			return nil
		case <-time.After(delay):
		}
	}

	b.logger.Info("Polling stopped", zap.Int("cursor", b.Cursor()))
	return nil
}

// poll performs one getUpdates cycle
func (b *Bot) poll(ctx context.Context) error {
	u := tgbotapi.NewUpdate(b.Cursor() + 1)
	u.Timeout = pollTimeoutSec

	updates, err := b.getUpdates(ctx, u)
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			b.logger.Warn("Telegram API returned an error",
				zap.Int("code", apiErr.Code),
				zap.String("description", apiErr.Message),
				zap.Duration("retry_in", b.retryIn),
			)
		} else if ctx.Err() == nil {
			b.logger.Warn("Network error while polling", zap.Error(err), zap.Duration("retry_in", b.retryIn))
		}
		return err
	}

	b.logger.Debug("Received updates", zap.Int("count", len(updates)), zap.Int("offset", u.Offset))
	b.processUpdates(ctx, updates)
	return nil
}

// getUpdates runs the blocking long-poll in its own goroutine so a cancelled
// ctx stops the loop without waiting for the server-side timeout
func (b *Bot) getUpdates(ctx context.Context, u tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	type result struct {
		updates []tgbotapi.Update
		err     error
	}
	done := make(chan result, 1)
	go func() {
		updates, err := b.api.GetUpdates(u)
		done <- result{updates, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.updates, r.err
	}
}

// processUpdates handles a batch in array order. Updates at or below the
// cursor were already seen and are skipped.
func (b *Bot) processUpdates(ctx context.Context, updates []tgbotapi.Update) {
	before := b.Cursor()

	for _, update := range updates {
		if update.UpdateID <= b.Cursor() {
			b.logger.Debug("Skipping already processed update", zap.Int("update_id", update.UpdateID))
			continue
		}
		b.cursor.Store(int64(update.UpdateID))
		b.HandleUpdate(ctx, update)
	}

	if after := b.Cursor(); after > before {
		if err := b.cursors.Save(ctx, after); err != nil {
			b.logger.Warn("Failed to persist update cursor", zap.Int("cursor", after), zap.Error(err))
		}
	}

	if removed := b.pruneSessions(); removed > 0 {
		b.logger.Debug("Dropped idle sessions", zap.Int("removed", removed), zap.Int("remaining", b.SessionCount()))
	}
}

// HandleUpdate processes a single update
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	message := update.Message
	if message == nil {
		message = update.EditedMessage
	}
	if message == nil {
		b.logger.Warn("Update without message or edited_message", zap.Int("update_id", update.UpdateID))
		return
	}

	if message.Chat == nil || message.Chat.ID == 0 {
		b.logger.Warn("Dropping message with chat id 0", zap.Int("update_id", update.UpdateID))
		return
	}

	b.handleMessage(ctx, message)
}
