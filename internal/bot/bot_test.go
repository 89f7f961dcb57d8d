package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowfax/internal/models"
	"shadowfax/internal/palantir"
)

func TestBot_TerminalNumberInput(t *testing.T) {
	tb := newTestBot(t, Settings{})
	tb.backend.terminal = &models.TerminalInfo{ClientName: "ShellCo", TerminalID: 42}
	ctx := context.Background()

	chatID := int64(456)
	s := tb.session(chatID)
	s.SelectedClientID = 7
	s.SelectedClientName = "ShellCo"
	s.AwaitingTerminal = true

	tb.handleMessage(ctx, textMessage(chatID, "abc"))

	if s.State() != StateAwaitingTerminalNumber {
		t.Errorf("Expected state to stay awaiting_terminal, got %s", s.State())
	}
	if got := tb.backend.count("terminal_info"); got != 0 {
		t.Errorf("Expected no backend call for non-numeric input, got %d", got)
	}
	if !strings.Contains(tb.api.lastText(chatID), "числовий номер") {
		t.Errorf("Expected validation message, got %q", tb.api.lastText(chatID))
	}

	tb.handleMessage(ctx, textMessage(chatID, "42"))

	if s.State() != StateIdle {
		t.Errorf("Expected idle state after a number, got %s", s.State())
	}
	if s.SelectedTerminalID != 42 {
		t.Errorf("Expected terminal id 42, got %d", s.SelectedTerminalID)
	}
	if got := tb.backend.count("terminal_info"); got != 1 {
		t.Fatalf("Expected exactly one terminal fetch, got %d", got)
	}
	if tb.backend.lastClientID != 7 || tb.backend.lastTerminalID != 42 {
		t.Errorf("Expected fetch for client 7 terminal 42, got %d/%d", tb.backend.lastClientID, tb.backend.lastTerminalID)
	}
	if !strings.Contains(tb.api.lastText(chatID), "<b>Номер терміналу:</b> 42") {
		t.Errorf("Expected terminal card, got %q", tb.api.lastText(chatID))
	}
}

func TestBot_ClientsEndToEnd(t *testing.T) {
	tb := newTestBot(t, Settings{})
	tb.backend.clients = []models.Client{{ID: 7, Name: "ShellCo"}}
	ctx := context.Background()
	chatID := int64(456)

	tb.handleMessage(ctx, textMessage(chatID, "/clients"))

	messages := tb.api.messages(chatID)
	require.Len(t, messages, 1)
	keyboard, ok := messages[0].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok, "expected a reply keyboard")
	require.Len(t, keyboard.Keyboard, 2)
	assert.Equal(t, "ShellCo", keyboard.Keyboard[0][0].Text)
	assert.Equal(t, labelMainMenu, keyboard.Keyboard[1][0].Text)

	tb.handleMessage(ctx, textMessage(chatID, "ShellCo"))

	s := tb.session(chatID)
	assert.Equal(t, int64(7), s.SelectedClientID)
	assert.Equal(t, "ShellCo", s.SelectedClientName)

	messages = tb.api.messages(chatID)
	keyboard, ok = messages[len(messages)-1].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, labelTerminalID, keyboard.Keyboard[0][0].Text)
	assert.Equal(t, labelStations, keyboard.Keyboard[0][1].Text)
}

func TestBot_ClientNameWithStraySpaces(t *testing.T) {
	tb := newTestBot(t, Settings{})
	tb.backend.clients = []models.Client{{ID: 7, Name: "ShellCo "}, {ID: 8, Name: "Wog  Retail"}}
	ctx := context.Background()
	chatID := int64(456)

	tb.handleMessage(ctx, textMessage(chatID, "/clients"))

	messages := tb.api.messages(chatID)
	require.Len(t, messages, 1)
	keyboard, ok := messages[0].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "ShellCo", keyboard.Keyboard[0][0].Text)
	assert.Equal(t, "Wog Retail", keyboard.Keyboard[0][1].Text)

	tb.handleMessage(ctx, textMessage(chatID, "ShellCo "))

	s := tb.session(chatID)
	assert.Equal(t, int64(7), s.SelectedClientID)
	assert.Equal(t, "ShellCo", s.SelectedClientName)

	tb.handleMessage(ctx, textMessage(chatID, "/start"))
	tb.handleMessage(ctx, textMessage(chatID, "Wog Retail"))
	assert.Equal(t, int64(8), s.SelectedClientID)
	assert.NotContains(t, tb.api.texts(chatID), "❌ Виберіть команду з меню!")
}

func TestBot_ClientsKeyboardLayout(t *testing.T) {
	var clients []models.Client
	for i := 1; i <= 7; i++ {
		clients = append(clients, models.Client{ID: int64(i), Name: fmt.Sprintf("C%d", i)})
	}

	keyboard := clientsKeyboard(clients)

	require.Len(t, keyboard.Keyboard, 4)
	assert.Len(t, keyboard.Keyboard[0], 3)
	assert.Len(t, keyboard.Keyboard[1], 3)
	assert.Len(t, keyboard.Keyboard[2], 1)
	assert.Equal(t, labelMainMenu, keyboard.Keyboard[3][0].Text)
}

func TestBot_ButtonLabelsAreCommands(t *testing.T) {
	tb := newTestBot(t, Settings{})
	tb.backend.clients = []models.Client{{ID: 1, Name: "OKKO"}}
	chatID := int64(456)

	tb.handleMessage(context.Background(), textMessage(chatID, "  📋   Список клієнтів "))

	assert.Equal(t, 1, tb.backend.count("clients"))
}

func TestBot_StartResetsAnyState(t *testing.T) {
	tb := newTestBot(t, Settings{})
	chatID := int64(456)
	s := tb.session(chatID)
	s.SelectedClientID = 7
	s.SelectedTerminalID = 42
	s.AwaitingTerminal = true

	tb.handleMessage(context.Background(), textMessage(chatID, labelMainMenu))

	if s.State() != StateIdle || s.SelectedClientID != 0 || s.SelectedTerminalID != 0 {
		t.Errorf("Expected a reset session, got %+v", s)
	}
	if tb.api.lastText(chatID) != "Привіт! Виберіть дію:" {
		t.Errorf("Expected main menu, got %q", tb.api.lastText(chatID))
	}
}

func TestBot_UnknownInput(t *testing.T) {
	tb := newTestBot(t, Settings{})
	chatID := int64(456)
	s := tb.session(chatID)
	s.SelectedClientID = 7

	tb.handleMessage(context.Background(), textMessage(chatID, "hello there"))
	assert.Equal(t, "❌ Виберіть команду з меню!", tb.api.lastText(chatID))

	tb.handleMessage(context.Background(), textMessage(chatID, "/nope"))
	assert.Equal(t, "❌ Невідома команда.", tb.api.lastText(chatID))

	assert.Equal(t, int64(7), s.SelectedClientID, "state must not change")
}

func TestBot_CommandWithBotName(t *testing.T) {
	testCases := []struct {
		text    string
		command string
		args    string
	}{
		{"/start", "/start", ""},
		{"/start@ShadowfaxBot", "/start", ""},
		{"/approve 5 Олег з Shell", "/approve", "5 Олег з Shell"},
		{"/HELP", "/help", ""},
		{"ShellCo", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			command, args := parseCommand(tc.text)
			assert.Equal(t, tc.command, command)
			assert.Equal(t, tc.args, args)
		})
	}
}

func TestBot_SessionTimeout(t *testing.T) {
	tb := newTestBot(t, Settings{})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tb.now = func() time.Time { return now }
	chatID := int64(456)

	s := tb.session(chatID)
	s.SelectedClientID = 7
	s.AwaitingTerminal = true
	s.LastActivity = now.Add(-31 * time.Minute)

	tb.handleMessage(context.Background(), textMessage(chatID, "/help"))

	texts := tb.api.texts(chatID)
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "30 хвилин")
	assert.Contains(t, texts[1], "Доступні команди")
	assert.Equal(t, int64(0), s.SelectedClientID)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, now, s.LastActivity)
}

func TestBot_SessionSurvivesExactlyThirtyMinutes(t *testing.T) {
	tb := newTestBot(t, Settings{})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tb.now = func() time.Time { return now }
	chatID := int64(456)

	s := tb.session(chatID)
	s.SelectedClientID = 7
	s.LastActivity = now.Add(-30 * time.Minute)

	tb.handleMessage(context.Background(), textMessage(chatID, "/help"))

	texts := tb.api.texts(chatID)
	require.Len(t, texts, 1)
	assert.NotContains(t, texts[0], "неактивності")
	assert.Equal(t, int64(7), s.SelectedClientID)
	assert.Equal(t, now, s.LastActivity)
}

func TestBot_NoTimeoutNoticeOnFirstContact(t *testing.T) {
	tb := newTestBot(t, Settings{})
	chatID := int64(456)

	tb.handleMessage(context.Background(), textMessage(chatID, "/help"))

	texts := tb.api.texts(chatID)
	require.Len(t, texts, 1)
	assert.NotContains(t, texts[0], "неактивності")
}

func TestBot_TerminalHardFailureResets(t *testing.T) {
	tb := newTestBot(t, Settings{})
	tb.backend.terminalErr = fmt.Errorf("terminal_info: %w", palantir.ErrUnavailable)
	chatID := int64(456)
	s := tb.session(chatID)
	s.SelectedClientID = 7
	s.AwaitingTerminal = true

	tb.handleMessage(context.Background(), textMessage(chatID, "42"))

	assert.Equal(t, int64(0), s.SelectedClientID)
	assert.Equal(t, int64(0), s.SelectedTerminalID)
	assert.Equal(t, StateIdle, s.State())
	assert.True(t, containsText(tb.api.texts(chatID), "Не вдалося отримати дані"))
}

func TestBot_TerminalHardFailureKeepsAdminMenuInGroup(t *testing.T) {
	tb := newTestBot(t, Settings{AdminID: 1})
	tb.backend.terminalErr = fmt.Errorf("terminal_info: %w", palantir.ErrUnavailable)
	groupID := int64(-100)
	s := tb.session(groupID)
	s.SelectedClientID = 7
	s.AwaitingTerminal = true

	tb.handleMessage(context.Background(), &tgbotapi.Message{
		From: &tgbotapi.User{ID: 1, FirstName: "Admin"},
		Chat: &tgbotapi.Chat{ID: groupID, Type: "group"},
		Text: "42",
	})

	messages := tb.api.messages(groupID)
	require.NotEmpty(t, messages)
	keyboard, ok := messages[len(messages)-1].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok, "expected the main menu")
	require.Len(t, keyboard.Keyboard, 3)
	assert.Equal(t, labelBroadcast, keyboard.Keyboard[2][0].Text)
}

func TestBot_TerminalDomainErrorKeepsClient(t *testing.T) {
	tb := newTestBot(t, Settings{})
	tb.backend.terminalErr = &palantir.BackendError{Message: "Термінал не знайдено"}
	chatID := int64(456)
	s := tb.session(chatID)
	s.SelectedClientID = 7
	s.SelectedClientName = "ShellCo"
	s.AwaitingTerminal = true

	tb.handleMessage(context.Background(), textMessage(chatID, "999"))

	assert.Equal(t, int64(7), s.SelectedClientID)
	assert.Nil(t, s.Terminal)
	assert.True(t, containsText(tb.api.texts(chatID), "❌ Термінал не знайдено"))
}

func TestBot_TerminalListings(t *testing.T) {
	tb := newTestBot(t, Settings{})
	tb.backend.reservoirs = []models.Reservoir{{TankID: 1, FuelName: "A-95", Volume: 100, Capacity: 400}}
	chatID := int64(456)
	s := tb.session(chatID)
	s.SelectedClientID = 7
	s.SelectedTerminalID = 42

	tb.handleMessage(context.Background(), textMessage(chatID, labelReservoirs))
	assert.Contains(t, tb.api.lastText(chatID), "A-95")
	assert.Equal(t, int64(42), tb.backend.lastTerminalID)

	tb.handleMessage(context.Background(), textMessage(chatID, "/prk"))
	assert.Equal(t, "ℹ️ Дані відсутні.", tb.api.lastText(chatID))

	tb.handleMessage(context.Background(), textMessage(chatID, "/back"))
	assert.Equal(t, int64(0), s.SelectedTerminalID)
	assert.Equal(t, int64(7), s.SelectedClientID)

	tb.handleMessage(context.Background(), textMessage(chatID, "/rro"))
	assert.Contains(t, tb.api.lastText(chatID), "Спочатку вкажіть номер терміналу")
	assert.Equal(t, 0, tb.backend.count("posdatas"))
}

func TestBot_MapSendsLocation(t *testing.T) {
	tb := newTestBot(t, Settings{})
	tb.backend.terminal = &models.TerminalInfo{TerminalID: 42, Latitude: 50.45, Longitude: 30.52}
	chatID := int64(456)
	s := tb.session(chatID)
	s.SelectedClientID = 7
	s.SelectedTerminalID = 42

	tb.handleMessage(context.Background(), textMessage(chatID, labelMap))
	tb.handleMessage(context.Background(), textMessage(chatID, labelMap))

	assert.Equal(t, 1, tb.backend.count("terminal_info"), "second tap uses the cached card")

	var locations []tgbotapi.LocationConfig
	tb.api.mu.Lock()
	for _, c := range tb.api.sent {
		if loc, ok := c.(tgbotapi.LocationConfig); ok {
			locations = append(locations, loc)
		}
	}
	tb.api.mu.Unlock()
	require.Len(t, locations, 2)
	assert.Equal(t, 50.45, locations[0].Latitude)
	assert.Equal(t, chatID, locations[0].ChatID)
}

func TestBot_MapWithoutCoordinates(t *testing.T) {
	tb := newTestBot(t, Settings{})
	tb.backend.terminal = &models.TerminalInfo{TerminalID: 42}
	chatID := int64(456)
	s := tb.session(chatID)
	s.SelectedTerminalID = 42

	tb.handleMessage(context.Background(), textMessage(chatID, "/map"))

	assert.Equal(t, "📍 Координати терміналу відсутні.", tb.api.lastText(chatID))
}

func TestBot_StationListingIsChunked(t *testing.T) {
	tb := newTestBot(t, Settings{})
	for i := 0; i < 300; i++ {
		tb.backend.stations = append(tb.backend.stations, models.Station{
			TerminalID: int64(1000 + i),
			Name:       strings.Repeat("АЗС ", 5),
		})
	}
	chatID := int64(456)
	tb.session(chatID).SelectedClientID = 7

	tb.handleMessage(context.Background(), textMessage(chatID, "/azs_list"))

	texts := tb.api.texts(chatID)
	require.Greater(t, len(texts), 1)
	total := 0
	for _, text := range texts {
		assert.LessOrEqual(t, textLen(text), maxChunkUnits)
		total += strings.Count(text, "⛽ <b>1")
	}
	assert.Equal(t, 300, total, "every station is listed exactly once")
	assert.Equal(t, int64(7), tb.backend.lastClientID)
}

func TestChunkLines(t *testing.T) {
	testCases := []struct {
		name     string
		header   string
		lines    []string
		limit    int
		expected []string
	}{
		{
			name:     "empty",
			expected: nil,
		},
		{
			name:     "fits in one chunk",
			header:   "H",
			lines:    []string{"a", "b"},
			limit:    10,
			expected: []string{"H\na\nb"},
		},
		{
			name:     "splits on line boundary",
			lines:    []string{"aaaa", "bbbb", "cc"},
			limit:    9,
			expected: []string{"aaaa\nbbbb", "cc"},
		},
		{
			name:     "long line split on runes",
			lines:    []string{"ааааа"},
			limit:    2,
			expected: []string{"аа", "аа", "а"},
		},
		{
			name:     "emoji count as two units",
			lines:    []string{"😀😀😀"},
			limit:    4,
			expected: []string{"😀😀", "😀"},
		},
		{
			name:     "emoji fill a chunk",
			lines:    []string{"😀😀", "ab"},
			limit:    5,
			expected: []string{"😀😀", "ab"},
		},
		{
			name:     "long line loses tags",
			lines:    []string{"<b>abcdef</b>"},
			limit:    4,
			expected: []string{"abcd", "ef"},
		},
		{
			name:     "entities are not cut",
			lines:    []string{"abc&lt;d"},
			limit:    6,
			expected: []string{"abc", "&lt;d"},
		},
		{
			name:     "short line keeps tags",
			lines:    []string{"<b>ab</b>", "<i>c</i>"},
			limit:    10,
			expected: []string{"<b>ab</b>", "<i>c</i>"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, chunkLines(tc.header, tc.lines, tc.limit))
		})
	}
}

func TestBot_ClientsBackendFailures(t *testing.T) {
	tb := newTestBot(t, Settings{})
	chatID := int64(456)

	tb.backend.clientsErr = fmt.Errorf("clients: %w", palantir.ErrMalformed)
	tb.handleMessage(context.Background(), textMessage(chatID, "/clients"))
	assert.Equal(t, "❌ Сталася помилка при отриманні інформації.", tb.api.lastText(chatID))

	tb.backend.clientsErr = &palantir.BackendError{Message: "База недоступна"}
	tb.handleMessage(context.Background(), textMessage(chatID, "/clients"))
	assert.Equal(t, "❌ База недоступна", tb.api.lastText(chatID))

	tb.backend.clientsErr = nil
	tb.handleMessage(context.Background(), textMessage(chatID, "/clients"))
	assert.Equal(t, "❌ Дані про клієнтів недоступні.", tb.api.lastText(chatID))
}

func TestBot_PanicRecovery(t *testing.T) {
	tb := newTestBot(t, Settings{})
	tb.backend.panicOn = "clients"
	chatID := int64(456)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("handleMessage panicked: %v", r)
		}
	}()

	tb.handleMessage(context.Background(), textMessage(chatID, "/clients"))

	if !strings.Contains(tb.api.lastText(chatID), "Сталася помилка") {
		t.Errorf("Expected a generic error reply, got %q", tb.api.lastText(chatID))
	}
}

func TestBot_NilAPIDoesNotSend(t *testing.T) {
	tb := newTestBot(t, Settings{})
	tb.Bot.api = nil

	if tb.sendText(1, "hi") {
		t.Error("Expected send without an API to report failure")
	}
}

func TestBot_Broadcast(t *testing.T) {
	tb := newTestBot(t, Settings{UseAuth: true, AdminID: 1})
	ctx := context.Background()
	_, _ = tb.store.AddAdmin(ctx, 1)
	_, _ = tb.store.Approve(ctx, models.UserRecord{ID: 2})
	_, _ = tb.store.Approve(ctx, models.UserRecord{ID: 3})
	tb.api.failSendTo[3] = true

	tb.handleMessage(ctx, textMessage(1, labelBroadcast))
	require.Equal(t, StateAwaitingBroadcastText, tb.session(1).State())

	tb.handleMessage(ctx, textMessage(1, "Планові роботи о 22:00"))

	assert.Equal(t, StateIdle, tb.session(1).State())
	assert.Contains(t, tb.api.texts(2), "📢 Планові роботи о 22:00")
	assert.Empty(t, tb.api.texts(3))

	adminTexts := tb.api.texts(1)
	assert.Equal(t, 1, strings.Count(strings.Join(adminTexts, "\n"), "📢 Планові роботи"), "admin receives the broadcast once")
	report := adminTexts[len(adminTexts)-1]
	assert.Contains(t, report, "Надіслано: 2")
	assert.Contains(t, report, "Помилок: 1")
}

func TestBot_BroadcastIsPaced(t *testing.T) {
	const delay = 50 * time.Millisecond
	tb := newTestBot(t, Settings{AdminID: 1, SendDelay: delay})
	ctx := context.Background()
	for _, id := range []int64{2, 3, 4} {
		_, _ = tb.store.Approve(ctx, models.UserRecord{ID: id})
	}

	tb.handleMessage(ctx, textMessage(1, "/broadcast"))
	before := tb.api.sentCount()
	tb.handleMessage(ctx, textMessage(1, "Оновлення цін"))

	// four recipients and the closing report
	gaps := tb.api.gaps()[before:]
	require.Len(t, gaps, 4)
	for i, gap := range gaps[:3] {
		assert.GreaterOrEqual(t, gap, delay-5*time.Millisecond, "gap %d between broadcast messages", i)
	}
}

func TestBot_ChunksArePaced(t *testing.T) {
	const delay = 50 * time.Millisecond
	tb := newTestBot(t, Settings{SendDelay: delay})
	chatID := int64(456)

	line := strings.Repeat("а", 3000)
	tb.sendChunks(context.Background(), chatID, "", []string{line, line, line})

	require.Len(t, tb.api.texts(chatID), 3)
	gaps := tb.api.gaps()
	require.Len(t, gaps, 2)
	for _, gap := range gaps {
		assert.GreaterOrEqual(t, gap, delay-5*time.Millisecond)
	}
}

func TestBot_BroadcastRequiresAdmin(t *testing.T) {
	tb := newTestBot(t, Settings{AdminID: 1})
	chatID := int64(456)

	tb.handleMessage(context.Background(), textMessage(chatID, "/broadcast"))

	assert.Equal(t, StateIdle, tb.session(chatID).State())
	assert.Contains(t, tb.api.lastText(chatID), "лише адміністраторам")
}

func TestBot_MainMenuShowsBroadcastForAdmins(t *testing.T) {
	tb := newTestBot(t, Settings{AdminID: 1})

	tb.handleMessage(context.Background(), textMessage(1, "/start"))
	tb.handleMessage(context.Background(), textMessage(2, "/start"))

	adminKeyboard := tb.api.messages(1)[0].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	userKeyboard := tb.api.messages(2)[0].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	assert.Len(t, adminKeyboard.Keyboard, 3)
	assert.Equal(t, labelBroadcast, adminKeyboard.Keyboard[2][0].Text)
	assert.Len(t, userKeyboard.Keyboard, 2)
}
