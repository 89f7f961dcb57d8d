package bot

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"shadowfax/internal/models"
	"shadowfax/internal/palantir"
)

// handleTerminalInput accepts the terminal number the chat was asked for.
// Non-numeric input keeps the chat waiting.
func (b *Bot) handleTerminalInput(ctx context.Context, message *tgbotapi.Message, s *Session, text string) {
	terminalID, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		b.sendText(s.ChatID, "❌ Будь ласка, введіть числовий номер терміналу.")
		return
	}

	s.AwaitingTerminal = false
	s.SelectedTerminalID = terminalID
	s.Terminal = nil

	b.logger.Info("Terminal number received",
		zap.Int64("chat_id", s.ChatID),
		zap.Int64("client_id", s.SelectedClientID),
		zap.Int64("terminal_id", terminalID),
	)
	b.loadTerminal(ctx, message, s)
}

// loadTerminal fetches and shows the selected terminal's card. An unreachable
// or garbled backend sends the chat back to the main menu; a backend error
// message keeps the client selected.
func (b *Bot) loadTerminal(ctx context.Context, message *tgbotapi.Message, s *Session) {
	info, err := b.backend.TerminalInfo(ctx, s.SelectedClientID, s.SelectedTerminalID)
	if err != nil {
		b.reportBackendError(s.ChatID, "terminal_info", err)
		if isHardFailure(err) {
			s.Reset()
			b.sendWithKeyboard(s.ChatID, "🔙 Головне меню:", mainMenuKeyboard(b.isAdmin(ctx, senderID(message))))
			return
		}
		b.showClientMenu(s, "Спробуйте інший номер терміналу.")
		return
	}

	s.Terminal = info
	b.sendWithKeyboard(s.ChatID, palantir.FormatTerminalInfo(info), terminalMenuKeyboard())
}

// requireTerminal reports whether a terminal is selected, prompting for one otherwise
func (b *Bot) requireTerminal(s *Session) bool {
	if s.SelectedTerminalID != 0 {
		return true
	}
	b.sendWithKeyboard(s.ChatID, "❌ Спочатку вкажіть номер терміналу.", clientMenuKeyboard())
	return false
}

func (b *Bot) handleShowTerminal(ctx context.Context, message *tgbotapi.Message, s *Session) {
	if !b.requireTerminal(s) {
		return
	}
	b.loadTerminal(ctx, message, s)
}

func (b *Bot) handlePos(ctx context.Context, s *Session) {
	if !b.requireTerminal(s) {
		return
	}

	pos, err := b.backend.PosDatas(ctx, s.SelectedClientID, s.SelectedTerminalID)
	if err != nil {
		b.reportBackendError(s.ChatID, "posdatas", err)
		return
	}
	b.sendTerminalListing(ctx, s, "🧾 <b>РРО</b>", palantir.PosLines(pos))
}

func (b *Bot) handleReservoirs(ctx context.Context, s *Session) {
	if !b.requireTerminal(s) {
		return
	}

	reservoirs, err := b.backend.Reservoirs(ctx, s.SelectedClientID, s.SelectedTerminalID)
	if err != nil {
		b.reportBackendError(s.ChatID, "reservoirs_info", err)
		return
	}
	b.sendTerminalListing(ctx, s, "🛢 <b>Резервуари</b>", palantir.ReservoirLines(reservoirs))
}

func (b *Bot) handleDispensers(ctx context.Context, s *Session) {
	if !b.requireTerminal(s) {
		return
	}

	dispensers, err := b.backend.Dispensers(ctx, s.SelectedClientID, s.SelectedTerminalID)
	if err != nil {
		b.reportBackendError(s.ChatID, "prk_info", err)
		return
	}
	b.sendTerminalListing(ctx, s, "⛽ <b>ПРК</b>", palantir.DispenserLines(dispensers))
}

func (b *Bot) sendTerminalListing(ctx context.Context, s *Session, title string, lines []string) {
	if len(lines) == 0 {
		b.sendText(s.ChatID, "ℹ️ Дані відсутні.")
		return
	}
	header := fmt.Sprintf("%s, термінал %d:", title, s.SelectedTerminalID)
	b.sendChunks(ctx, s.ChatID, header, lines)
}

// handleMap sends the terminal's coordinates as a location pin
func (b *Bot) handleMap(ctx context.Context, s *Session) {
	if !b.requireTerminal(s) {
		return
	}

	info := s.Terminal
	if info == nil || info.TerminalID != s.SelectedTerminalID {
		fetched, err := b.backend.TerminalInfo(ctx, s.SelectedClientID, s.SelectedTerminalID)
		if err != nil {
			b.reportBackendError(s.ChatID, "terminal_info", err)
			return
		}
		info = fetched
		s.Terminal = fetched
	}

	if !hasLocation(info) {
		b.sendText(s.ChatID, "📍 Координати терміналу відсутні.")
		return
	}
	b.sendLocation(s.ChatID, info.Latitude, info.Longitude)
}

func hasLocation(info *models.TerminalInfo) bool {
	return info != nil && info.HasLocation()
}
