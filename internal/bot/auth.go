package bot

import (
	"context"
	"fmt"
	"html"
	"slices"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"shadowfax/internal/models"
)

// authorize decides whether a message may be processed. Blacklisted senders
// are dropped without a reply. Store failures deny access.
func (b *Bot) authorize(ctx context.Context, message *tgbotapi.Message) bool {
	chatID := message.Chat.ID
	userID := senderID(message)

	blacklisted, err := b.access.IsBlacklisted(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to check blacklist", zap.Int64("user_id", userID), zap.Error(err))
		b.sendText(chatID, "❌ Не вдалося перевірити доступ. Спробуйте пізніше.")
		return false
	}
	if blacklisted {
		b.logger.Warn("Message from blacklisted user dropped", zap.Int64("user_id", userID))
		return false
	}

	if b.isAdmin(ctx, userID) {
		return true
	}

	if !b.useAuth {
		if len(b.whitelist) == 0 || b.whitelist[chatID] {
			return true
		}
		b.logger.Warn("Access denied", zap.Int64("chat_id", chatID), zap.Int64("user_id", userID))
		b.sendText(chatID, "❌ У вас немає доступу до цього бота.")
		return false
	}

	if b.whitelist[chatID] {
		return true
	}

	approved, err := b.access.IsApproved(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to check approved users", zap.Int64("user_id", userID), zap.Error(err))
		b.sendText(chatID, "❌ Не вдалося перевірити доступ. Спробуйте пізніше.")
		return false
	}
	if approved {
		return true
	}

	b.requestApproval(ctx, message, userID)
	return false
}

// requestApproval asks every admin to approve the sender. Admins are asked
// only once per pending user.
func (b *Bot) requestApproval(ctx context.Context, message *tgbotapi.Message, userID int64) {
	chatID := message.Chat.ID

	b.pendingMu.Lock()
	_, alreadyPending := b.pending[userID]
	annotation := describeUser(message.From, userID)
	if !alreadyPending {
		b.pending[userID] = annotation
	}
	b.pendingMu.Unlock()

	if alreadyPending {
		b.sendText(chatID, "⏳ Ваш запит на доступ ще розглядається адміністратором.")
		return
	}

	admins := b.adminRecipients(ctx)
	if len(admins) == 0 {
		b.logger.Warn("No admins to approve access request", zap.Int64("user_id", userID))
	}

	username := "—"
	if message.From != nil && message.From.UserName != "" {
		username = "@" + message.From.UserName
	}
	request := fmt.Sprintf(
		"🔐 <b>Запит на доступ</b>\nID: <code>%d</code>\nІм'я: %s\nUsername: %s\n\n/approve %d\n/reject %d",
		userID, html.EscapeString(displayName(message.From)), html.EscapeString(username), userID, userID,
	)
	for _, adminID := range admins {
		b.sendHTML(adminID, request)
	}

	b.logger.Info("Access requested", zap.Int64("user_id", userID), zap.String("user", annotation), zap.Int("admins", len(admins)))
	b.sendText(chatID, "⏳ Запит на доступ надіслано адміністратору. Очікуйте підтвердження.")
}

// isAdmin reports whether id is the configured admin or listed in the admins store
func (b *Bot) isAdmin(ctx context.Context, id int64) bool {
	if b.adminID != 0 && id == b.adminID {
		return true
	}

	admins, err := b.access.ListAdmins(ctx)
	if err != nil {
		b.logger.Error("Failed to list admins", zap.Error(err))
		return false
	}
	return slices.Contains(admins, id)
}

// adminRecipients returns the configured admin and the admins store, deduplicated
func (b *Bot) adminRecipients(ctx context.Context) []int64 {
	admins, err := b.access.ListAdmins(ctx)
	if err != nil {
		b.logger.Error("Failed to list admins", zap.Error(err))
	}
	admins = slices.Clone(admins)
	if b.adminID != 0 {
		admins = append(admins, b.adminID)
	}
	slices.Sort(admins)
	return slices.Compact(admins)
}

// requireAdmin replies with a refusal when the sender is not an admin
func (b *Bot) requireAdmin(ctx context.Context, message *tgbotapi.Message) bool {
	if b.isAdmin(ctx, senderID(message)) {
		return true
	}
	b.sendText(message.Chat.ID, "❌ Ця команда доступна лише адміністраторам.")
	return false
}

func (b *Bot) handleApprove(ctx context.Context, message *tgbotapi.Message, args string) {
	if !b.requireAdmin(ctx, message) {
		return
	}
	chatID := message.Chat.ID

	idArg, note, _ := strings.Cut(args, " ")
	userID, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil || userID == 0 {
		b.sendText(chatID, "Використання: /approve <id> [примітка]")
		return
	}

	note = strings.TrimSpace(note)
	if note == "" {
		b.pendingMu.Lock()
		note = b.pending[userID]
		b.pendingMu.Unlock()
	}

	added, err := b.access.Approve(ctx, models.UserRecord{ID: userID, Annotation: note})
	if err != nil {
		b.logger.Error("Failed to approve user", zap.Int64("user_id", userID), zap.Error(err))
		b.sendText(chatID, "❌ Не вдалося зберегти рішення.")
		return
	}
	b.clearPending(userID)

	if !added {
		b.sendText(chatID, fmt.Sprintf("ℹ️ Користувач %d вже має доступ.", userID))
		return
	}

	b.logger.Info("User approved", zap.Int64("user_id", userID), zap.Int64("admin_id", senderID(message)))
	b.sendText(chatID, fmt.Sprintf("✅ Користувачу %d надано доступ.", userID))
	b.sendText(userID, "✅ Доступ до бота надано. Натисніть /start.")
}

func (b *Bot) handleReject(ctx context.Context, message *tgbotapi.Message, args string) {
	if !b.requireAdmin(ctx, message) {
		return
	}
	chatID := message.Chat.ID

	userID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil || userID == 0 {
		b.sendText(chatID, "Використання: /reject <id>")
		return
	}

	added, err := b.access.Blacklist(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to blacklist user", zap.Int64("user_id", userID), zap.Error(err))
		b.sendText(chatID, "❌ Не вдалося зберегти рішення.")
		return
	}
	b.clearPending(userID)

	if !added {
		b.sendText(chatID, fmt.Sprintf("ℹ️ Користувач %d вже заблокований.", userID))
		return
	}

	b.logger.Info("User rejected", zap.Int64("user_id", userID), zap.Int64("admin_id", senderID(message)))
	b.sendText(chatID, fmt.Sprintf("🚫 Користувача %d заблоковано.", userID))
	b.sendText(userID, "❌ У доступі до бота відмовлено.")
}

// handleUsers lists approved users with their annotations
func (b *Bot) handleUsers(ctx context.Context, message *tgbotapi.Message) {
	if !b.requireAdmin(ctx, message) {
		return
	}
	chatID := message.Chat.ID

	users, err := b.access.ListUsers(ctx)
	if err != nil {
		b.logger.Error("Failed to list users", zap.Error(err))
		b.sendText(chatID, "❌ Не вдалося отримати список користувачів.")
		return
	}
	if len(users) == 0 {
		b.sendText(chatID, "ℹ️ Немає користувачів з доступом.")
		return
	}

	lines := make([]string, 0, len(users))
	for _, user := range users {
		line := fmt.Sprintf("• <code>%d</code>", user.ID)
		if user.Annotation != "" {
			line += " — " + html.EscapeString(user.Annotation)
		}
		lines = append(lines, line)
	}
	b.sendChunks(ctx, chatID, fmt.Sprintf("👥 <b>Користувачі з доступом</b> (%d):", len(users)), lines)
}

func (b *Bot) clearPending(userID int64) {
	b.pendingMu.Lock()
	delete(b.pending, userID)
	b.pendingMu.Unlock()
}

// senderID identifies the author of a message, falling back to the chat
func senderID(message *tgbotapi.Message) int64 {
	if message.From != nil && message.From.ID != 0 {
		return message.From.ID
	}
	return message.Chat.ID
}

func displayName(user *tgbotapi.User) string {
	if user == nil {
		return "—"
	}
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		return "—"
	}
	return name
}

// describeUser builds the "Name (@username)" annotation stored on approval
func describeUser(user *tgbotapi.User, id int64) string {
	if user == nil {
		return strconv.FormatInt(id, 10)
	}
	annotation := displayName(user)
	if user.UserName != "" {
		annotation += " (@" + user.UserName + ")"
	}
	return annotation
}
