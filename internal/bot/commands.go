package bot

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"shadowfax/internal/palantir"
)

const helpText = `❓ Доступні команди:
/start - Почати взаємодію з ботом
/help - Показати список команд
/clients - Показати список клієнтів
/get_terminal_id - Вказати номер терміналу вибраного клієнта
/azs_list - Список АЗС вибраного клієнта
/terminal - Картка вибраного терміналу
/rro, /reservoirs, /prk, /map - Дані вибраного терміналу`

const adminHelpText = `

Адміністратор:
/broadcast - Розсилка всім користувачам
/approve <id> [примітка] - Надати доступ
/reject <id> - Заблокувати користувача
/users - Список користувачів з доступом`

// handleStart resets the session and shows the main menu
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message, s *Session) {
	s.Reset()
	b.sendWithKeyboard(s.ChatID, "Привіт! Виберіть дію:", mainMenuKeyboard(b.isAdmin(ctx, senderID(message))))
}

func (b *Bot) handleHelp(ctx context.Context, message *tgbotapi.Message, s *Session) {
	text := helpText
	if b.isAdmin(ctx, senderID(message)) {
		text += adminHelpText
	}
	b.sendText(s.ChatID, text)
}

// handleClients fetches the client list, rebuilds the directory and shows one
// button per client
func (b *Bot) handleClients(ctx context.Context, s *Session) {
	clients, err := b.backend.Clients(ctx)
	if err != nil {
		b.reportBackendError(s.ChatID, "clients", err)
		return
	}

	if len(clients) == 0 {
		b.sendText(s.ChatID, "❌ Дані про клієнтів недоступні.")
		return
	}

	b.clients.replace(clients)
	b.logger.Debug("Client directory rebuilt", zap.Int("clients", len(clients)))

	b.sendWithKeyboard(s.ChatID, "📋 Виберіть клієнта:", clientsKeyboard(clients))
}

func (b *Bot) handleSelectClient(s *Session, clientID int64, name string) {
	s.SelectedClientID = clientID
	s.SelectedClientName = name
	s.SelectedTerminalID = 0
	s.Terminal = nil

	b.logger.Info("Client selected",
		zap.Int64("chat_id", s.ChatID),
		zap.Int64("client_id", clientID),
		zap.String("client", name),
	)
	b.showClientMenu(s, "Оберіть дію:")
}

func (b *Bot) showClientMenu(s *Session, prompt string) {
	text := fmt.Sprintf("🏪 Мережа АЗС - <b>%s</b>.\n%s", html.EscapeString(s.SelectedClientName), prompt)
	b.sendWithKeyboard(s.ChatID, text, clientMenuKeyboard())
}

func (b *Bot) handleGetTerminalID(s *Session) {
	s.AwaitingTerminal = true
	text := fmt.Sprintf("🏪 Мережа АЗС - <b>%s</b>.\nВкажіть номер терміналу:", html.EscapeString(s.SelectedClientName))
	b.sendWithKeyboard(s.ChatID, text, backToMainKeyboard())
}

// handleStations lists the АЗС of the selected client
func (b *Bot) handleStations(ctx context.Context, s *Session) {
	stations, err := b.backend.Stations(ctx, s.SelectedClientID)
	if err != nil {
		b.reportBackendError(s.ChatID, "azs_list", err)
		return
	}

	if len(stations) == 0 {
		b.sendText(s.ChatID, "ℹ️ Немає даних для цього клієнта.")
		return
	}

	header := fmt.Sprintf("⛽ <b>Список АЗС</b> (%s, %d):", html.EscapeString(s.SelectedClientName), len(stations))
	b.sendChunks(ctx, s.ChatID, header, palantir.StationLines(stations))
}

// handleBack leaves the terminal view for the client menu
func (b *Bot) handleBack(s *Session) {
	s.SelectedTerminalID = 0
	s.Terminal = nil
	b.showClientMenu(s, "Оберіть дію:")
}
