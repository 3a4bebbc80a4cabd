// Package bot implements the Telegram command surface: help, listing, status and
// ingesting videos sent to the bot in private chats.
package bot

//go:generate mockgen -source=commands.go -destination=mocks_test.go -package=bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgstream/internal/remote"
	"tgstream/models"
	"tgstream/services/catalog"
)

// Sender delivers replies. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Ingestor stores forwarded videos and reports on the boot scan.
type Ingestor interface {
	Ingest(ctx context.Context, ref remote.MessageRef) (models.CatalogEntry, error)
	LastReport() models.ScanReport
}

// StreamCounter reports how many streams are being served.
type StreamCounter interface {
	Count() int
}

// maxMessageLen stays under Telegram's 4096 character limit.
const maxMessageLen = 4000

const uploadFailedText = "❌ Error uploading video."

// Options configures the command replies.
type Options struct {
	// BaseURL is the public URL of the HTTP surface.
	BaseURL string
	// StorageLabel names the storage chat in status replies.
	StorageLabel string
}

// Commands answers bot messages.
type Commands struct {
	sender  Sender
	catalog *catalog.Catalog
	ingest  Ingestor
	streams StreamCounter
	opts    Options
	started time.Time
}

func NewCommands(sender Sender, c *catalog.Catalog, ingest Ingestor, streams StreamCounter, opts Options) *Commands {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Commands{
		sender:  sender,
		catalog: c,
		ingest:  ingest,
		streams: streams,
		opts:    opts,
		started: time.Now(),
	}
}

// HandleMessage dispatches one incoming message.
func (c *Commands) HandleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg == nil || msg.Chat == nil {
		return nil
	}

	if msg.IsCommand() {
		cmd := msg.Command()
		switch {
		case cmd == "start" || cmd == "help":
			return c.reply(msg, c.helpText(msg))
		case cmd == "list":
			return c.list(msg)
		case cmd == "status":
			return c.reply(msg, c.statusText())
		case strings.HasPrefix(cmd, "stream_"):
			return c.streamLink(msg, strings.TrimPrefix(cmd, "stream_"))
		default:
			return c.reply(msg, "Unknown command. Send /help for the list of commands.")
		}
	}

	if msg.Chat.IsPrivate() && carriesVideo(msg) {
		return c.ingestVideo(ctx, msg)
	}
	return nil
}

func carriesVideo(msg *tgbotapi.Message) bool {
	if msg.Video != nil {
		return true
	}
	return msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "video/")
}

func (c *Commands) ingestVideo(ctx context.Context, msg *tgbotapi.Message) error {
	entry, err := c.ingest.Ingest(ctx, remote.MessageRef{
		Chat: remote.ChatTarget(strconv.FormatInt(msg.Chat.ID, 10)),
		ID:   strconv.Itoa(msg.MessageID),
	})
	if err != nil {
		log.Printf("[bot] ingest message %d from chat %d failed: %v", msg.MessageID, msg.Chat.ID, err)
		return errors.Join(err, c.reply(msg, uploadFailedText))
	}

	text := fmt.Sprintf("✅ Video uploaded successfully!\n📹 Name: %s\n💾 Size: %s\n🔗 Stream URL: %s",
		entry.DisplayName, humanize.Bytes(uint64(entry.SizeBytes)), c.streamURL(entry.Handle))
	return c.reply(msg, text)
}

func (c *Commands) helpText(msg *tgbotapi.Message) string {
	name := "there"
	if msg.From != nil && msg.From.FirstName != "" {
		name = msg.From.FirstName
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🎬 Welcome %s!\n\n", name)
	b.WriteString("Send me a video file and I'll store it and give you streaming links.\n\n")
	b.WriteString("📋 Commands:\n")
	b.WriteString("/start - show this message\n")
	b.WriteString("/help - show this message\n")
	b.WriteString("/list - list stored videos\n")
	b.WriteString("/status - bot and storage status\n")
	b.WriteString("/stream_<id> - get the links for one video\n")
	if c.opts.BaseURL != "" {
		fmt.Fprintf(&b, "\n🌐 Web interface: %s/\n", c.opts.BaseURL)
	}
	return b.String()
}

func (c *Commands) list(msg *tgbotapi.Message) error {
	entries := c.catalog.List()
	if len(entries) == 0 {
		return c.reply(msg, "No videos stored yet.")
	}

	var pages []string
	var b strings.Builder
	b.WriteString("📹 Stored Videos:\n\n")
	for _, e := range entries {
		var item strings.Builder
		fmt.Fprintf(&item, "🎬 %s\n💾 Size: %s\n", e.DisplayName, humanize.Bytes(uint64(e.SizeBytes)))
		if e.DurationSeconds != nil {
			fmt.Fprintf(&item, "⏱ Duration: %.0fs\n", *e.DurationSeconds)
		}
		fmt.Fprintf(&item, "🔗 Stream: /stream_%s\n\n", e.Handle)

		if b.Len()+item.Len() > maxMessageLen {
			pages = append(pages, b.String())
			b.Reset()
		}
		b.WriteString(item.String())
	}
	pages = append(pages, b.String())

	for _, page := range pages {
		if err := c.reply(msg, strings.TrimRight(page, "\n")); err != nil {
			return err
		}
	}
	return nil
}

func (c *Commands) statusText() string {
	var b strings.Builder
	b.WriteString("📊 Bot Status Report\n\n")
	b.WriteString("🤖 Bot: ✅ Online\n")
	fmt.Fprintf(&b, "📹 Videos stored: %d\n", c.catalog.Len())
	if c.opts.StorageLabel != "" {
		fmt.Fprintf(&b, "💾 Storage: %s\n", c.opts.StorageLabel)
	}
	streams := 0
	if c.streams != nil {
		streams = c.streams.Count()
	}
	fmt.Fprintf(&b, "⚡ Active streams: %d\n", streams)
	fmt.Fprintf(&b, "⏳ Uptime: %s\n", time.Since(c.started).Truncate(time.Second))

	report := c.ingest.LastReport()
	switch report.Status {
	case models.ScanStatusCompleted:
		fmt.Fprintf(&b, "🔎 Last scan: %d messages, %d videos, %d skipped", report.Scanned, report.Added, report.Skipped)
	case models.ScanStatusFailed:
		fmt.Fprintf(&b, "🔎 Last scan: failed (%s)", report.Error)
	default:
		b.WriteString("🔎 Last scan: pending")
	}
	return b.String()
}

func (c *Commands) streamLink(msg *tgbotapi.Message, handle string) error {
	entry, err := c.catalog.Get(handle)
	if err != nil {
		return c.reply(msg, "Video not found.")
	}
	text := fmt.Sprintf("🎬 %s\n💾 Size: %s\n🔗 Stream: %s\n⬇️ Download: %s",
		entry.DisplayName, humanize.Bytes(uint64(entry.SizeBytes)),
		c.streamURL(entry.Handle), c.opts.BaseURL+"/download/"+entry.Handle)
	return c.reply(msg, text)
}

func (c *Commands) streamURL(handle string) string {
	return c.opts.BaseURL + "/stream/" + handle
}

func (c *Commands) reply(msg *tgbotapi.Message, text string) error {
	cfg := tgbotapi.NewMessage(msg.Chat.ID, text)
	cfg.ReplyToMessageID = msg.MessageID
	cfg.DisableWebPagePreview = true
	if _, err := c.sender.Send(cfg); err != nil {
		return fmt.Errorf("reply to chat %d: %w", msg.Chat.ID, err)
	}
	return nil
}
