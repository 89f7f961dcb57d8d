package bot

import (
	"context"
	"fmt"
	"slices"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (b *Bot) handleBroadcastStart(ctx context.Context, message *tgbotapi.Message, s *Session) {
	if !b.requireAdmin(ctx, message) {
		return
	}

	s.AwaitingBroadcast = true
	b.sendWithKeyboard(s.ChatID, "📢 Введіть текст розсилки:", backToMainKeyboard())
}

// handleBroadcastText sends the admin's text to every approved user and admin,
// one message per pacing interval, then reports the outcome
func (b *Bot) handleBroadcastText(ctx context.Context, message *tgbotapi.Message, s *Session, text string) {
	s.AwaitingBroadcast = false

	if !b.requireAdmin(ctx, message) {
		return
	}

	body := strings.TrimSpace(message.Text)
	if body == "" {
		body = text
	}

	recipients, err := b.broadcastRecipients(ctx)
	if err != nil {
		b.logger.Error("Failed to collect broadcast recipients", zap.Error(err))
		b.sendText(s.ChatID, "❌ Не вдалося отримати список отримувачів.")
		return
	}

	b.logger.Info("Broadcast started", zap.Int64("admin_id", senderID(message)), zap.Int("recipients", len(recipients)))

	sent, failed := 0, 0
	for i, id := range recipients {
		if err := b.pace.Wait(ctx); err != nil {
			b.logger.Warn("Broadcast interrupted", zap.Error(err))
			failed += len(recipients) - i
			break
		}
		if b.sendText(id, "📢 "+body) {
			sent++
		} else {
			failed++
		}
	}

	b.logger.Info("Broadcast finished", zap.Int("sent", sent), zap.Int("failed", failed))
	b.sendWithKeyboard(s.ChatID,
		fmt.Sprintf("✅ Розсилку завершено.\nНадіслано: %d\nПомилок: %d", sent, failed),
		mainMenuKeyboard(true),
	)
}

// broadcastRecipients returns approved users and admins without duplicates
func (b *Bot) broadcastRecipients(ctx context.Context) ([]int64, error) {
	users, err := b.access.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	recipients := b.adminRecipients(ctx)
	for _, user := range users {
		recipients = append(recipients, user.ID)
	}
	slices.Sort(recipients)
	return slices.Compact(recipients), nil
}
