package bot

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"shadowfax/internal/storage"
)

const (
	pollTimeoutSec = 30
	pollInterval   = 2 * time.Second
	retryDelay     = 5 * time.Second
	sessionTimeout = 30 * time.Minute

	// sessions idle this long are dropped and the chat starts over on next contact
	sessionRetention = 24 * time.Hour
)

// NewBot creates a new Telegram bot
func NewBot(token string, backend Backend, access storage.AccessStore, cursors storage.CursorStore, settings Settings, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))

	return newBot(api, backend, access, cursors, settings, logger), nil
}

func newBot(api TelegramAPI, backend Backend, access storage.AccessStore, cursors storage.CursorStore, settings Settings, logger *zap.Logger) *Bot {
	whitelist := make(map[int64]bool)
	for _, id := range settings.Whitelist {
		whitelist[id] = true
	}

	pace := rate.NewLimiter(rate.Inf, 1)
	if settings.SendDelay > 0 {
		pace = rate.NewLimiter(rate.Every(settings.SendDelay), 1)
	}

	return &Bot{
		api:       api,
		backend:   backend,
		access:    access,
		cursors:   cursors,
		logger:    logger,
		useAuth:   settings.UseAuth,
		adminID:   settings.AdminID,
		whitelist: whitelist,
		sessions:  make(map[int64]*Session),
		clients:   newClientDirectory(),
		pending:   make(map[int64]string),
		pace:      pace,
		now:       time.Now,
		retryIn:   retryDelay,
		pollIn:    pollInterval,
	}
}

// Cursor returns the highest processed update id
func (b *Bot) Cursor() int {
	return int(b.cursor.Load())
}

// SessionCount returns the number of chats with a session
func (b *Bot) SessionCount() int {
	b.sessionsMu.RLock()
	defer b.sessionsMu.RUnlock()
	return len(b.sessions)
}
