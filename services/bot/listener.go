package bot

import (
	"context"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sourcegraph/conc/pool"

	"tgstream/internal/remote"
	"tgstream/internal/telegram"
	"tgstream/models"
)

// UpdateSource produces bot updates. *tgbotapi.BotAPI satisfies it.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Observer journals messages seen in the storage chat.
type Observer interface {
	Observe(ctx context.Context, msg *tgbotapi.Message)
}

// Adopter registers videos posted straight into the storage chat.
type Adopter interface {
	Adopt(msg remote.Message) (models.CatalogEntry, bool, error)
}

// ListenerConfig wires a Listener.
type ListenerConfig struct {
	Source        UpdateSource
	Commands      *Commands
	Observer      Observer
	Adopter       Adopter
	StorageChatID int64
	// Workers bounds concurrently handled messages.
	Workers int
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int
}

// Listener runs the long-poll update loop.
type Listener struct {
	cfg ListenerConfig
}

func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	return &Listener{cfg: cfg}
}

// Run consumes updates until ctx is done or the source closes its channel. Messages
// are handled concurrently; Run waits for in-flight handlers before returning.
func (l *Listener) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = l.cfg.PollTimeout
	u.AllowedUpdates = []string{"message", "channel_post"}

	updates := l.cfg.Source.GetUpdatesChan(u)
	defer l.cfg.Source.StopReceivingUpdates()

	workers := pool.New().WithMaxGoroutines(l.cfg.Workers)
	defer workers.Wait()

	log.Printf("[bot] listening for updates")
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			switch {
			case update.ChannelPost != nil:
				l.channelPost(ctx, update.ChannelPost)
			case update.Message != nil:
				msg := update.Message
				workers.Go(func() {
					if err := l.cfg.Commands.HandleMessage(ctx, msg); err != nil {
						log.Printf("[bot] message %d: %v", msg.MessageID, err)
					}
				})
			}
		}
	}
}

func (l *Listener) channelPost(ctx context.Context, post *tgbotapi.Message) {
	if post.Chat == nil || post.Chat.ID != l.cfg.StorageChatID {
		return
	}
	if l.cfg.Observer != nil {
		l.cfg.Observer.Observe(ctx, post)
	}
	if l.cfg.Adopter == nil {
		return
	}

	msg, err := telegram.ToMessage(post)
	if err != nil {
		log.Printf("[bot] channel post %d: %v", post.MessageID, err)
		return
	}
	entry, ok, err := l.cfg.Adopter.Adopt(msg)
	switch {
	case err != nil:
		log.Printf("[bot] channel post %d not registered: %v", post.MessageID, err)
	case ok:
		log.Printf("[bot] registered channel post %s as %q", entry.Handle, entry.DisplayName)
	}
}
