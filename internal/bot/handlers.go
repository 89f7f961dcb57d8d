package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleMessage processes a single message
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r), zap.Int64("chat_id", chatID))
			b.sendText(chatID, "❌ Сталася помилка під час обробки запиту. Спробуйте ще раз.")
		}
	}()

	if message.Text == "" {
		b.logger.Debug("Ignoring non-text message", zap.Int64("chat_id", chatID))
		return
	}

	if !b.authorize(ctx, message) {
		return
	}

	s := b.session(chatID)
	b.touch(s)

	text := normalize(message.Text)
	b.logger.Info("Processing message",
		zap.Int64("chat_id", chatID),
		zap.String("text", text),
		zap.String("state", s.State().String()),
	)
	b.dispatch(ctx, message, s, text)
}

// dispatch routes normalized text through the session state machine
func (b *Bot) dispatch(ctx context.Context, message *tgbotapi.Message, s *Session, text string) {
	command, args := parseCommand(text)

	if command == "/start" {
		b.handleStart(ctx, message, s)
		return
	}

	switch s.State() {
	case StateAwaitingBroadcastText:
		b.handleBroadcastText(ctx, message, s, text)
		return
	case StateAwaitingTerminalNumber:
		b.handleTerminalInput(ctx, message, s, text)
		return
	}

	if clientID, ok := b.clients.lookup(text); ok {
		b.handleSelectClient(s, clientID, text)
		return
	}

	if command == "" {
		b.sendText(s.ChatID, "❌ Виберіть команду з меню!")
		return
	}

	switch command {
	case "/help":
		b.handleHelp(ctx, message, s)
	case "/clients":
		b.handleClients(ctx, s)
	case "/get_terminal_id":
		b.handleGetTerminalID(s)
	case "/azs_list":
		b.handleStations(ctx, s)
	case "/terminal":
		b.handleShowTerminal(ctx, message, s)
	case "/rro":
		b.handlePos(ctx, s)
	case "/reservoirs":
		b.handleReservoirs(ctx, s)
	case "/prk":
		b.handleDispensers(ctx, s)
	case "/map":
		b.handleMap(ctx, s)
	case "/back":
		b.handleBack(s)
	case "/broadcast":
		b.handleBroadcastStart(ctx, message, s)
	case "/approve":
		b.handleApprove(ctx, message, args)
	case "/reject":
		b.handleReject(ctx, message, args)
	case "/users":
		b.handleUsers(ctx, message)
	default:
		b.sendText(s.ChatID, "❌ Невідома команда.")
	}
}

// normalize collapses whitespace and rewrites keyboard labels to commands
func normalize(text string) string {
	text = collapseSpaces(text)
	if command, ok := buttonCommands[text]; ok {
		return command
	}
	return text
}

// collapseSpaces trims text and joins inner whitespace runs into single spaces
func collapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// parseCommand splits "/cmd@bot args" into "/cmd" and "args".
// Text that is not a command yields an empty command.
func parseCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}

	command, args, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	return strings.ToLower(command), strings.TrimSpace(args)
}
