package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	DriverTelegram = "telegram"
	DriverLocal    = "local"
)

// Settings is the persisted service configuration.
type Settings struct {
	Server   ServerSettings   `json:"server" yaml:"server"`
	Telegram TelegramSettings `json:"telegram" yaml:"telegram"`
	Backend  BackendSettings  `json:"backend" yaml:"backend"`
	Catalog  CatalogSettings  `json:"catalog" yaml:"catalog"`
	Database DatabaseSettings `json:"database" yaml:"database"`
	Log      LogSettings      `json:"log" yaml:"log"`
	Bot      BotSettings      `json:"bot" yaml:"bot"`
}

type ServerSettings struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	// PublicURL prefixes links handed out by the bot and the listing page.
	PublicURL              string `json:"publicUrl" yaml:"public_url"`
	MaxConnections         int    `json:"maxConnections" yaml:"max_connections"`
	MaxUploadMB            int    `json:"maxUploadMb" yaml:"max_upload_mb"`
	ShutdownTimeoutSeconds int    `json:"shutdownTimeoutSeconds" yaml:"shutdown_timeout_seconds"`
}

type TelegramSettings struct {
	BotToken      string `json:"botToken" yaml:"bot_token"`
	StorageChatID string `json:"storageChatId" yaml:"storage_chat_id"`
	// APIEndpoint and FileEndpoint point at a self-hosted Bot API server when set.
	APIEndpoint       string `json:"apiEndpoint" yaml:"api_endpoint"`
	FileEndpoint      string `json:"fileEndpoint" yaml:"file_endpoint"`
	ChunkSizeKB       int    `json:"chunkSizeKb" yaml:"chunk_size_kb"`
	BootstrapAttempts uint   `json:"bootstrapAttempts" yaml:"bootstrap_attempts"`
}

type BackendSettings struct {
	Driver    string `json:"driver" yaml:"driver"`
	LocalRoot string `json:"localRoot" yaml:"local_root"`
}

type CatalogSettings struct {
	ScanLimit int `json:"scanLimit" yaml:"scan_limit"`
}

type DatabaseSettings struct {
	Path string `json:"path" yaml:"path"`
}

type LogSettings struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"maxSizeMb" yaml:"max_size_mb"`
	MaxBackups int    `json:"maxBackups" yaml:"max_backups"`
	MaxAgeDays int    `json:"maxAgeDays" yaml:"max_age_days"`
}

type BotSettings struct {
	Enabled     bool `json:"enabled" yaml:"enabled"`
	Workers     int  `json:"workers" yaml:"workers"`
	PollTimeout int  `json:"pollTimeout" yaml:"poll_timeout"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host:                   "0.0.0.0",
			Port:                   5000,
			MaxConnections:         256,
			MaxUploadMB:            50,
			ShutdownTimeoutSeconds: 10,
		},
		Telegram: TelegramSettings{
			ChunkSizeKB:       512,
			BootstrapAttempts: 5,
		},
		Backend: BackendSettings{
			Driver:    DriverTelegram,
			LocalRoot: "data/objects",
		},
		Catalog:  CatalogSettings{ScanLimit: 100},
		Database: DatabaseSettings{Path: "data/journal.db"},
		Log: LogSettings{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Bot: BotSettings{Enabled: true, Workers: 4, PollTimeout: 30},
	}
}

// Validate reports settings the service cannot start with.
func (s Settings) Validate() error {
	var errs []error
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", s.Server.Port))
	}
	switch s.Backend.Driver {
	case DriverTelegram:
		if strings.TrimSpace(s.Telegram.BotToken) == "" {
			errs = append(errs, errors.New("telegram.botToken is required (BOT_TOKEN)"))
		}
		if _, err := strconv.ParseInt(strings.TrimSpace(s.Telegram.StorageChatID), 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.storageChatId must be a numeric chat id (LOG_CHANNEL), got %q", s.Telegram.StorageChatID))
		}
	case DriverLocal:
		if strings.TrimSpace(s.Backend.LocalRoot) == "" {
			errs = append(errs, errors.New("backend.localRoot is required for the local driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend.driver %q", s.Backend.Driver))
	}
	if s.Catalog.ScanLimit < 0 {
		errs = append(errs, errors.New("catalog.scanLimit must not be negative"))
	}
	return errors.Join(errs...)
}

// Manager loads and saves settings from a JSON or YAML file, chosen by extension.
type Manager struct {
	fs   afero.Fs
	path string
	mu   sync.RWMutex
}

func NewManager(path string) *Manager {
	return NewManagerWithFs(afero.NewOsFs(), path)
}

func NewManagerWithFs(fsys afero.Fs, path string) *Manager {
	return &Manager{fs: fsys, path: path}
}

// Path returns the settings file location.
func (m *Manager) Path() string { return m.path }

// Load reads the settings file over the defaults and applies environment
// overrides. A missing file is not an error.
func (m *Manager) Load() (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	settings := DefaultSettings()
	data, err := afero.ReadFile(m.fs, m.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return settings, fmt.Errorf("read settings %s: %w", m.path, err)
	default:
		if err := decode(m.path, data, &settings); err != nil {
			return settings, fmt.Errorf("parse settings %s: %w", m.path, err)
		}
	}

	applyEnv(&settings)
	return settings, nil
}

// Save writes settings atomically.
func (m *Manager) Save(settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := encode(m.path, settings)
	if err != nil {
		return err
	}
	if err := m.fs.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := afero.WriteFile(m.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := m.fs.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func decode(path string, data []byte, settings *Settings) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, settings)
	}
	return json.Unmarshal(data, settings)
}

func encode(path string, settings Settings) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(settings)
	}
	return json.MarshalIndent(settings, "", "  ")
}

// LoadDotEnv loads .env files into the process environment without overriding
// variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func applyEnv(s *Settings) {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		s.Telegram.BotToken = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.Server.Port = port
		}
	}
	if v := os.Getenv("URL"); v != "" {
		s.Server.PublicURL = v
	}
	if v := firstEnv("STORAGE_CHAT_ID", "LOG_CHANNEL"); v != "" {
		s.Telegram.StorageChatID = v
	}
	if v := os.Getenv("BACKEND_DRIVER"); v != "" {
		s.Backend.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("LOCAL_ROOT"); v != "" {
		s.Backend.LocalRoot = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.Log.Level = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
