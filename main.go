package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"
	"golang.org/x/net/netutil"

	"tgstream/config"
	"tgstream/handlers"
	"tgstream/internal/database"
	"tgstream/internal/localstore"
	"tgstream/internal/logging"
	"tgstream/internal/remote"
	"tgstream/internal/telegram"
	"tgstream/services/bot"
	"tgstream/services/catalog"
	"tgstream/services/media"
	"tgstream/services/streaming"
	"tgstream/utils"
)

func main() {
	if err := run(); err != nil {
		log.Printf("[main] fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "data/settings.json"
	}
	configPath := flag.String("config", defaultConfig, "settings file (.json or .yaml)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before settings")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	settings, err := config.NewManager(*configPath).Load()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	cfg := config.NewConfigAdapter(settings)

	logCloser, err := logging.Setup(cfg.LoggingOptions())
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cat := catalog.New()

	var (
		backend      remote.Remote
		storageChat  remote.ChatTarget
		storageLabel string
		botAPI       *tgbotapi.BotAPI
		tgRemote     *telegram.Remote
		chatID       int64
	)

	switch settings.Backend.Driver {
	case config.DriverTelegram:
		chatID, err = cfg.StorageChat()
		if err != nil {
			return fmt.Errorf("storage chat: %w", err)
		}
		storageChat = remote.ChatTarget(strconv.FormatInt(chatID, 10))

		botAPI, err = connectBot(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect telegram: %w", err)
		}
		log.Printf("[main] authorized as @%s", botAPI.Self.UserName)
		storageLabel = describeChat(botAPI, chatID)

		db, err := database.NewDB(cfg.DatabaseConfig())
		if err != nil {
			return err
		}
		defer db.Close()

		tgRemote = telegram.NewRemote(botAPI, db.Journal, cfg.TelegramOptions())
		backend = tgRemote

	case config.DriverLocal:
		root := settings.Backend.LocalRoot
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("create local root: %w", err)
		}
		store, err := localstore.Open(afero.NewBasePathFs(afero.NewOsFs(), root), cfg.LocalStoreOptions())
		if err != nil {
			return err
		}
		backend = store
		storageChat = "local"
		storageLabel = "local store " + root
	}

	svc := media.NewService(backend, cat, storageChat)
	if _, err := svc.Boot(ctx, settings.Catalog.ScanLimit); err != nil {
		// Non-fatal: uploads and channel posts still populate the catalog.
		log.Printf("[main] boot scan failed: %v", err)
	}

	sessions := streaming.NewSessionTracker()
	proxy := streaming.NewProxy(svc, sessions, streaming.NewMetrics(registry))

	router := utils.NewRouter()
	utils.RegisterRoutes(router, utils.Routes{
		Library:  handlers.NewLibraryHandler(cat, settings.Server.PublicURL),
		Stream:   handlers.NewStreamHandler(proxy),
		Download: handlers.NewDownloadHandler(proxy),
		Upload:   handlers.NewUploadHandler(svc, cfg.MaxUploadBytes(), settings.Server.PublicURL),
		Admin:    handlers.NewAdminHandler(sessions, svc),
		Gatherer: registry,
	})

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr(), err)
	}
	if n := settings.Server.MaxConnections; n > 0 {
		ln = netutil.LimitListener(ln, n)
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		log.Printf("[main] http listening on %s (public %s)", ln.Addr(), cfg.PublicURL())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[main] http server: %v", err)
			stop()
		}
	})

	if botAPI != nil && settings.Bot.Enabled {
		commands := bot.NewCommands(botAPI, cat, svc, sessions, cfg.BotOptions(storageLabel))
		listener := bot.NewListener(bot.ListenerConfig{
			Source:        botAPI,
			Commands:      commands,
			Observer:      tgRemote,
			Adopter:       svc,
			StorageChatID: chatID,
			Workers:       settings.Bot.Workers,
			PollTimeout:   settings.Bot.PollTimeout,
		})
		wg.Go(func() {
			if err := listener.Run(ctx); err != nil {
				log.Printf("[main] bot listener: %v", err)
			}
		})
	}

	<-ctx.Done()
	log.Printf("[main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] http shutdown: %v", err)
	}

	if recovered := wg.WaitAndRecover(); recovered != nil {
		return fmt.Errorf("component panicked: %v", recovered.Value)
	}
	return nil
}

// connectBot authenticates against the Bot API, retrying transient failures.
func connectBot(ctx context.Context, cfg *config.Adapter) (*tgbotapi.BotAPI, error) {
	settings := cfg.Settings()
	attempts := settings.Telegram.BootstrapAttempts
	if attempts == 0 {
		attempts = 1
	}

	var api *tgbotapi.BotAPI
	err := retry.Do(
		func() error {
			b, err := tgbotapi.NewBotAPIWithAPIEndpoint(settings.Telegram.BotToken, cfg.APIEndpoint())
			if err != nil {
				return err
			}
			api = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var apiErr *tgbotapi.Error
			return !errors.As(err, &apiErr) || apiErr.Code != http.StatusUnauthorized
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[main] telegram connect attempt %d failed: %v", n+1, err)
		}),
	)
	return api, err
}

func describeChat(api *tgbotapi.BotAPI, chatID int64) string {
	chat, err := api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
	if err != nil {
		log.Printf("[main] storage chat %d not reachable yet: %v", chatID, err)
		return fmt.Sprintf("chat %d", chatID)
	}
	if chat.Title != "" {
		log.Printf("[main] storage chat: %s", chat.Title)
		return chat.Title
	}
	return fmt.Sprintf("chat %d", chatID)
}
