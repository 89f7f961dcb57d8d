package bot

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shadowfax/internal/models"
)

const (
	labelHelp      = "📜 Допомога"
	labelClients   = "📋 Список клієнтів"
	labelStart     = "🚀 Почати"
	labelMainMenu  = "🔙 Головне меню"
	labelBroadcast = "📢 Розсилка"

	labelTerminalID = "🔢 Номер терміналу"
	labelStations   = "⛽ Список АЗС"

	labelRRO        = "🧾 РРО"
	labelReservoirs = "🛢 Резервуари"
	labelPRK        = "⛽ ПРК"
	labelMap        = "🗺 Карта"
	labelBack       = "🔙 Назад"

	clientsPerRow = 3
)

// buttonCommands maps reply keyboard labels to the command they stand for
var buttonCommands = map[string]string{
	labelHelp:       "/help",
	labelClients:    "/clients",
	labelStart:      "/start",
	labelMainMenu:   "/start",
	labelBroadcast:  "/broadcast",
	labelTerminalID: "/get_terminal_id",
	labelStations:   "/azs_list",
	labelRRO:        "/rro",
	labelReservoirs: "/reservoirs",
	labelPRK:        "/prk",
	labelMap:        "/map",
	labelBack:       "/back",
}

func mainMenuKeyboard(admin bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(labelHelp),
			tgbotapi.NewKeyboardButton(labelClients),
		),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(labelStart)),
	}
	if admin {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(labelBroadcast)))
	}
	return resizable(rows...)
}

func backToMainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return resizable(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(labelMainMenu)))
}

func clientMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return resizable(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(labelTerminalID),
			tgbotapi.NewKeyboardButton(labelStations),
		),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(labelMainMenu)),
	)
}

func terminalMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return resizable(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(labelRRO),
			tgbotapi.NewKeyboardButton(labelReservoirs),
			tgbotapi.NewKeyboardButton(labelPRK),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(labelMap),
			tgbotapi.NewKeyboardButton(labelBack),
		),
	)
}

// clientsKeyboard lays client names out three per row followed by a back row
func clientsKeyboard(clients []models.Client) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	var row []tgbotapi.KeyboardButton
	for _, client := range clients {
		row = append(row, tgbotapi.NewKeyboardButton(collapseSpaces(client.Name)))
		if len(row) == clientsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(labelMainMenu)))
	return resizable(rows...)
}

func resizable(rows ...[]tgbotapi.KeyboardButton) tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.ResizeKeyboard = true
	return keyboard
}

// clientDirectory resolves client button labels to backend client ids. Names
// are keyed the way incoming text is normalized. It is rebuilt in full on
// every client listing.
type clientDirectory struct {
	mu     sync.RWMutex
	byName map[string]int64
}

func newClientDirectory() *clientDirectory {
	return &clientDirectory{byName: make(map[string]int64)}
}

func (d *clientDirectory) replace(clients []models.Client) {
	byName := make(map[string]int64, len(clients))
	for _, client := range clients {
		byName[collapseSpaces(client.Name)] = client.ID
	}

	d.mu.Lock()
	d.byName = byName
	d.mu.Unlock()
}

func (d *clientDirectory) lookup(name string) (int64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byName[name]
	return id, ok
}
