package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgstream/internal/database"
	"tgstream/internal/localstore"
	"tgstream/internal/logging"
	"tgstream/internal/telegram"
	"tgstream/services/bot"
)

// Adapter translates Settings into the option structs of individual components.
type Adapter struct {
	settings Settings
}

// NewConfigAdapter wraps a loaded settings snapshot.
func NewConfigAdapter(settings Settings) *Adapter {
	return &Adapter{settings: settings}
}

func (a *Adapter) Settings() Settings { return a.settings }

// ListenAddr returns host:port for the HTTP server.
func (a *Adapter) ListenAddr() string {
	return net.JoinHostPort(a.settings.Server.Host, strconv.Itoa(a.settings.Server.Port))
}

// PublicURL returns the configured public base URL without a trailing slash. When
// none is configured the listener address is used with localhost for wildcard hosts.
func (a *Adapter) PublicURL() string {
	if u := strings.TrimRight(strings.TrimSpace(a.settings.Server.PublicURL), "/"); u != "" {
		return u
	}
	host := a.settings.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(a.settings.Server.Port))
}

func (a *Adapter) MaxUploadBytes() int64 {
	return int64(a.settings.Server.MaxUploadMB) << 20
}

func (a *Adapter) ShutdownTimeout() time.Duration {
	return time.Duration(a.settings.Server.ShutdownTimeoutSeconds) * time.Second
}

// StorageChat returns the storage chat id in canonical decimal form.
func (a *Adapter) StorageChat() (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(a.settings.Telegram.StorageChatID), 10, 64)
}

// APIEndpoint returns the Bot API method endpoint format.
func (a *Adapter) APIEndpoint() string {
	if a.settings.Telegram.APIEndpoint != "" {
		return a.settings.Telegram.APIEndpoint
	}
	return tgbotapi.APIEndpoint
}

func (a *Adapter) TelegramOptions() telegram.Options {
	return telegram.Options{
		Token:        a.settings.Telegram.BotToken,
		FileEndpoint: a.settings.Telegram.FileEndpoint,
		ChunkSize:    a.settings.Telegram.ChunkSizeKB << 10,
	}
}

func (a *Adapter) LocalStoreOptions() localstore.Options {
	return localstore.Options{ChunkSize: a.settings.Telegram.ChunkSizeKB << 10}
}

func (a *Adapter) DatabaseConfig() database.Config {
	return database.Config{DatabasePath: a.settings.Database.Path}
}

func (a *Adapter) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      a.settings.Log.Level,
		File:       a.settings.Log.File,
		MaxSizeMB:  a.settings.Log.MaxSizeMB,
		MaxBackups: a.settings.Log.MaxBackups,
		MaxAgeDays: a.settings.Log.MaxAgeDays,
	}
}

func (a *Adapter) BotOptions(storageLabel string) bot.Options {
	return bot.Options{BaseURL: a.PublicURL(), StorageLabel: storageLabel}
}
