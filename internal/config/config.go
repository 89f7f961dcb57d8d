package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultPath is where the key-value config file lives relative to the working directory
const DefaultPath = "config/config.env"

var (
	// ErrCreated is returned when the config file did not exist and a template was written
	ErrCreated = errors.New("config file created, fill in TELEGRAM_BOT_TOKEN and restart")
	// ErrMissingToken is returned when TELEGRAM_BOT_TOKEN is empty
	ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is required")
)

// Access store backends
const (
	StoreFile       = "file"
	StoreClickHouse = "clickhouse"
)

// Config holds the application configuration
type Config struct {
	TelegramToken string

	// Authorization
	UseAuth   bool
	AdminID   int64   // bootstrap admin, always authorized
	Whitelist []int64 // chat ids; empty means no chat restriction

	// Palantír backend
	PalantirURL string

	// Access lists
	AccessStore string // "file" or "clickhouse"
	DataDir     string

	// ClickHouse configuration
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	// StateFile enables the bbolt cursor store when set
	StateFile string

	// Port for the health endpoint
	Port string

	// Logging
	LogLevel         string
	LogDir           string
	LogMaxSizeMB     int
	LogMaxBackups    int
	LogRetentionDays int
	ArchiverPath     string // external archiver executable, optional

	BroadcastDelay time.Duration
}

// template is written when the config file does not exist yet
var template = map[string]string{
	"TELEGRAM_BOT_TOKEN": "",
	"USE_AUTH":           "true",
	"ADMIN_ID":           "",
	"AUTH_WHITELIST":     "",
	"PALANTIR_URL":       "http://localhost:8181",
	"ACCESS_STORE":       StoreFile,
	"DATA_DIR":           "data",
	"LOG_LEVEL":          "info",
	"LOG_DIR":            "logs",
	"LOG_RETENTION_DAYS": "30",
	"ARCHIVER_PATH":      "",
}

// Load reads the key-value file at path. Process environment variables take
// precedence over file values. A missing file is created from a template and
// ErrCreated is returned.
func Load(path string) (*Config, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := writeTemplate(path); err != nil {
			return nil, err
		}
		return nil, ErrCreated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return parse(func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return values[key]
	})
}

func writeTemplate(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	if err := godotenv.Write(template, path); err != nil {
		return fmt.Errorf("failed to create config %s: %w", path, err)
	}
	return nil
}

func parse(get func(string) string) (*Config, error) {
	config := &Config{}

	// Telegram Bot Token (required)
	config.TelegramToken = strings.TrimSpace(get("TELEGRAM_BOT_TOKEN"))
	if config.TelegramToken == "" {
		return nil, ErrMissingToken
	}

	var err error
	if config.UseAuth, err = parseBool(get("USE_AUTH"), true); err != nil {
		return nil, fmt.Errorf("invalid USE_AUTH: %w", err)
	}

	if s := strings.TrimSpace(get("ADMIN_ID")); s != "" {
		config.AdminID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_ID: %s", s)
		}
	}

	for _, idStr := range strings.Split(get("AUTH_WHITELIST"), ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat ID in AUTH_WHITELIST: %s", idStr)
		}
		config.Whitelist = append(config.Whitelist, id)
	}

	config.PalantirURL = strings.TrimRight(withDefault(get("PALANTIR_URL"), "http://localhost:8181"), "/")
	config.DataDir = withDefault(get("DATA_DIR"), "data")
	config.StateFile = get("STATE_FILE")
	config.Port = withDefault(get("PORT"), "8080")

	config.AccessStore = strings.ToLower(withDefault(get("ACCESS_STORE"), StoreFile))
	switch config.AccessStore {
	case StoreFile:
	case StoreClickHouse:
		if err := parseClickHouse(config, get); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid ACCESS_STORE: %s (want %q or %q)", config.AccessStore, StoreFile, StoreClickHouse)
	}

	config.LogLevel = withDefault(get("LOG_LEVEL"), "info")
	config.LogDir = withDefault(get("LOG_DIR"), "logs")
	config.ArchiverPath = get("ARCHIVER_PATH")
	if config.LogMaxSizeMB, err = parseInt(get("LOG_MAX_SIZE_MB"), 50); err != nil {
		return nil, fmt.Errorf("invalid LOG_MAX_SIZE_MB: %w", err)
	}
	if config.LogMaxBackups, err = parseInt(get("LOG_MAX_BACKUPS"), 10); err != nil {
		return nil, fmt.Errorf("invalid LOG_MAX_BACKUPS: %w", err)
	}
	if config.LogRetentionDays, err = parseInt(get("LOG_RETENTION_DAYS"), 30); err != nil {
		return nil, fmt.Errorf("invalid LOG_RETENTION_DAYS: %w", err)
	}

	delayMS, err := parseInt(get("BROADCAST_DELAY_MS"), 500)
	if err != nil {
		return nil, fmt.Errorf("invalid BROADCAST_DELAY_MS: %w", err)
	}
	config.BroadcastDelay = time.Duration(delayMS) * time.Millisecond

	return config, nil
}

func parseClickHouse(config *Config, get func(string) string) error {
	config.ClickHouseHost = get("CLICKHOUSE_HOST")
	if config.ClickHouseHost == "" {
		return fmt.Errorf("CLICKHOUSE_HOST is required when ACCESS_STORE is clickhouse")
	}

	port, err := parseInt(get("CLICKHOUSE_PORT"), 9000) // Default ClickHouse native port
	if err != nil {
		return fmt.Errorf("invalid CLICKHOUSE_PORT: %w", err)
	}
	config.ClickHousePort = port

	config.ClickHouseDatabase = withDefault(get("CLICKHOUSE_DATABASE"), "default")
	config.ClickHouseUser = withDefault(get("CLICKHOUSE_USER"), "default")
	config.ClickHousePassword = get("CLICKHOUSE_PASSWORD")
	config.ClickHouseUseTLS = get("CLICKHOUSE_USE_TLS") == "true"
	return nil
}

// Redacted returns the token with everything but the bot id masked
func (c *Config) Redacted() string {
	id, _, found := strings.Cut(c.TelegramToken, ":")
	if !found {
		return "***"
	}
	return id + ":***"
}

func withDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func parseInt(v string, def int) (int, error) {
	if v = strings.TrimSpace(v); v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func parseBool(v string, def bool) (bool, error) {
	if v = strings.TrimSpace(v); v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}
