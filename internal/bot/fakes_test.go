package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"shadowfax/internal/models"
	"shadowfax/internal/storage/stubs"
)

// fakeAPI records sent messages and replays scripted update batches
type fakeAPI struct {
	mu sync.Mutex

	sent    []tgbotapi.Chattable
	sentAt  []time.Time
	offsets []int

	errs    []error
	batches [][]tgbotapi.Update
	onEmpty func()

	failSendTo map[int64]bool
}

func (f *fakeAPI) GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, config.Offset)

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return nil, err
	}
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return batch, nil
	}
	onEmpty := f.onEmpty
	f.mu.Unlock()

	if onEmpty != nil {
		onEmpty()
	}
	return nil, nil
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if msg, ok := c.(tgbotapi.MessageConfig); ok && f.failSendTo[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, c)
	f.sentAt = append(f.sentAt, time.Now())
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

// messages returns the text messages sent to chatID in order
func (f *fakeAPI) messages(chatID int64) []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok && msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeAPI) texts(chatID int64) []string {
	var out []string
	for _, msg := range f.messages(chatID) {
		out = append(out, msg.Text)
	}
	return out
}

func (f *fakeAPI) lastText(chatID int64) string {
	texts := f.texts(chatID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// gaps returns the time between consecutive sends
func (f *fakeAPI) gaps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []time.Duration
	for i := 1; i < len(f.sentAt); i++ {
		out = append(out, f.sentAt[i].Sub(f.sentAt[i-1]))
	}
	return out
}

func (f *fakeAPI) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeBackend serves canned Palantír answers and counts calls
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	clients     []models.Client
	clientsErr  error
	terminal    *models.TerminalInfo
	terminalErr error
	stations    []models.Station
	reservoirs  []models.Reservoir
	dispensers  []models.Dispenser
	pos         []models.PosData

	lastClientID   int64
	lastTerminalID int64

	panicOn string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: make(map[string]int)}
}

func (f *fakeBackend) record(op string, clientID, terminalID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	f.lastClientID = clientID
	f.lastTerminalID = terminalID
	if f.panicOn == op {
		panic("backend exploded")
	}
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) Clients(ctx context.Context) ([]models.Client, error) {
	f.record("clients", 0, 0)
	return f.clients, f.clientsErr
}

func (f *fakeBackend) TerminalInfo(ctx context.Context, clientID, terminalID int64) (*models.TerminalInfo, error) {
	f.record("terminal_info", clientID, terminalID)
	if f.terminalErr != nil {
		return nil, f.terminalErr
	}
	return f.terminal, nil
}

func (f *fakeBackend) Stations(ctx context.Context, clientID int64) ([]models.Station, error) {
	f.record("azs_list", clientID, 0)
	return f.stations, nil
}

func (f *fakeBackend) Reservoirs(ctx context.Context, clientID, terminalID int64) ([]models.Reservoir, error) {
	f.record("reservoirs_info", clientID, terminalID)
	return f.reservoirs, nil
}

func (f *fakeBackend) Dispensers(ctx context.Context, clientID, terminalID int64) ([]models.Dispenser, error) {
	f.record("prk_info", clientID, terminalID)
	return f.dispensers, nil
}

func (f *fakeBackend) PosDatas(ctx context.Context, clientID, terminalID int64) ([]models.PosData, error) {
	f.record("posdatas", clientID, terminalID)
	return f.pos, nil
}

type testBot struct {
	*Bot
	api     *fakeAPI
	backend *fakeBackend
	store   *stubs.MockStore
	cursors *stubs.MemoryCursor
}

func newTestBot(t *testing.T, settings Settings) *testBot {
	t.Helper()

	api := &fakeAPI{failSendTo: make(map[int64]bool)}
	backend := newFakeBackend()
	store := stubs.NewMockStore()
	cursors := stubs.NewMemoryCursor()
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}

	b := newBot(api, backend, store, cursors, settings, zap.NewNop())
	b.retryIn = 0
	b.pollIn = 0

	return &testBot{Bot: b, api: api, backend: backend, store: store, cursors: cursors}
}

func textMessage(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: chatID, FirstName: "Test", UserName: "tester"},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}
}

func containsText(texts []string, fragment string) bool {
	for _, text := range texts {
		if strings.Contains(text, fragment) {
			return true
		}
	}
	return false
}
