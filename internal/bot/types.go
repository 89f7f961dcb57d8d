package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"shadowfax/internal/models"
	"shadowfax/internal/storage"
)

// TelegramAPI is the subset of *tgbotapi.BotAPI the bot uses
type TelegramAPI interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Backend is the Palantír information service
type Backend interface {
	Clients(ctx context.Context) ([]models.Client, error)
	TerminalInfo(ctx context.Context, clientID, terminalID int64) (*models.TerminalInfo, error)
	Stations(ctx context.Context, clientID int64) ([]models.Station, error)
	Reservoirs(ctx context.Context, clientID, terminalID int64) ([]models.Reservoir, error)
	Dispensers(ctx context.Context, clientID, terminalID int64) ([]models.Dispenser, error)
	PosDatas(ctx context.Context, clientID, terminalID int64) ([]models.PosData, error)
}

// Settings holds the authorization and pacing options of the bot
type Settings struct {
	UseAuth   bool
	AdminID   int64
	Whitelist []int64
	// SendDelay is the pause between consecutive messages of a broadcast or a
	// chunked listing. Zero disables pacing.
	SendDelay time.Duration
}

// Bot represents the Telegram bot wrapper
type Bot struct {
	api     TelegramAPI
	backend Backend
	access  storage.AccessStore
	cursors storage.CursorStore
	logger  *zap.Logger

	useAuth   bool
	adminID   int64
	whitelist map[int64]bool

	sessions   map[int64]*Session
	sessionsMu sync.RWMutex

	clients *clientDirectory

	// pending approval requests: user id -> annotation shown to admins
	pending   map[int64]string
	pendingMu sync.Mutex

	cursor  atomic.Int64
	pace    *rate.Limiter
	now     func() time.Time
	retryIn time.Duration
	pollIn  time.Duration
}

// State is the dispatcher state of a chat
type State int

const (
	StateIdle State = iota
	StateAwaitingTerminalNumber
	StateAwaitingBroadcastText
)

func (s State) String() string {
	switch s {
	case StateAwaitingTerminalNumber:
		return "awaiting_terminal"
	case StateAwaitingBroadcastText:
		return "awaiting_broadcast"
	default:
		return "idle"
	}
}

// Session tracks the menu state of a single chat
type Session struct {
	ChatID int64

	SelectedClientID   int64
	SelectedClientName string
	SelectedTerminalID int64
	Terminal           *models.TerminalInfo // last fetched card of SelectedTerminalID

	AwaitingTerminal  bool
	AwaitingBroadcast bool

	LastActivity time.Time
}

// State derives the dispatcher state from the waiting flags
func (s *Session) State() State {
	switch {
	case s.AwaitingBroadcast:
		return StateAwaitingBroadcastText
	case s.AwaitingTerminal:
		return StateAwaitingTerminalNumber
	default:
		return StateIdle
	}
}

// Reset returns the session to Idle with nothing selected
func (s *Session) Reset() {
	s.SelectedClientID = 0
	s.SelectedClientName = ""
	s.SelectedTerminalID = 0
	s.Terminal = nil
	s.AwaitingTerminal = false
	s.AwaitingBroadcast = false
}
