// Package telegram implements remote.Remote on the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgstream/internal/database"
	"tgstream/internal/remote"
	"tgstream/models"
)

// BotAPI is the subset of *tgbotapi.BotAPI the remote uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// Journal stores and replays storage-chat messages.
type Journal interface {
	Record(ctx context.Context, entry database.JournalEntry) error
	Recent(ctx context.Context, chatID int64, limit int) ([]database.JournalEntry, error)
}

// Options configures a Remote.
type Options struct {
	Token string
	// FileEndpoint is a format string taking the token and the file path,
	// tgbotapi.FileEndpoint for the public Bot API.
	FileEndpoint string
	ChunkSize    int
	HTTPClient   *http.Client
}

// Remote talks to Telegram. Every message it sends, forwards or observes is
// journaled so History can replay the storage chat.
type Remote struct {
	bot          BotAPI
	journal      Journal
	token        string
	fileEndpoint string
	chunkSize    int
	httpClient   *http.Client
}

var _ remote.Remote = (*Remote)(nil)

func NewRemote(bot BotAPI, journal Journal, opts Options) *Remote {
	if opts.FileEndpoint == "" {
		opts.FileEndpoint = tgbotapi.FileEndpoint
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = remote.DefaultChunkSize
	}
	if opts.HTTPClient == nil {
		// No overall timeout: bodies are long-lived and bound to the request context.
		opts.HTTPClient = &http.Client{}
	}
	return &Remote{
		bot:          bot,
		journal:      journal,
		token:        opts.Token,
		fileEndpoint: opts.FileEndpoint,
		chunkSize:    opts.ChunkSize,
		httpClient:   opts.HTTPClient,
	}
}

func (r *Remote) SendMedia(ctx context.Context, chat remote.ChatTarget, file remote.Upload) (remote.Message, error) {
	chatID, err := ParseChatID(chat)
	if err != nil {
		return remote.Message{}, err
	}
	if file.Reader == nil {
		return remote.Message{}, fmt.Errorf("%w: no file content", remote.ErrRejected)
	}

	name := strings.TrimSpace(file.Name)
	if name == "" {
		name = "video.mp4"
	}

	cfg := tgbotapi.NewVideo(chatID, tgbotapi.FileReader{Name: name, Reader: file.Reader})
	cfg.Caption = "📹 " + name
	cfg.SupportsStreaming = true

	sent, err := r.bot.Send(cfg)
	if err != nil {
		return remote.Message{}, classify(err)
	}
	if err := ctx.Err(); err != nil {
		slog.Warn("telegram.send.context_done", "chat", chatID, "message_id", sent.MessageID, "error", err)
	}

	r.record(ctx, &sent)
	return ToMessage(&sent)
}

func (r *Remote) Forward(ctx context.Context, msg remote.MessageRef, chat remote.ChatTarget) (remote.Message, error) {
	chatID, err := ParseChatID(chat)
	if err != nil {
		return remote.Message{}, err
	}
	fromID, err := ParseChatID(msg.Chat)
	if err != nil {
		return remote.Message{}, err
	}
	messageID, err := strconv.Atoi(msg.ID)
	if err != nil {
		return remote.Message{}, fmt.Errorf("%w: message id %q", remote.ErrObjectNotFound, msg.ID)
	}

	forwarded, err := r.bot.Send(tgbotapi.NewForward(chatID, fromID, messageID))
	if err != nil {
		return remote.Message{}, classify(err)
	}

	r.record(ctx, &forwarded)
	return ToMessage(&forwarded)
}

func (r *Remote) History(ctx context.Context, chat remote.ChatTarget, limit int) (remote.HistoryIterator, error) {
	chatID, err := ParseChatID(chat)
	if err != nil {
		return nil, err
	}
	if r.journal == nil {
		return nil, fmt.Errorf("%w: no message journal configured", remote.ErrUnavailable)
	}

	rows, err := r.journal.Recent(ctx, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}

	it := &remote.SliceIterator{Errs: make(map[int]error)}
	for i, row := range rows {
		var tgMsg tgbotapi.Message
		if err := json.Unmarshal(row.Payload, &tgMsg); err != nil {
			it.Messages = append(it.Messages, remote.Message{})
			it.Errs[i] = fmt.Errorf("%w: journal row %d/%d: %v", remote.ErrMalformedMessage, row.ChatID, row.MessageID, err)
			continue
		}
		msg, err := ToMessage(&tgMsg)
		if err != nil {
			it.Messages = append(it.Messages, remote.Message{})
			it.Errs[i] = err
			continue
		}
		it.Messages = append(it.Messages, msg)
	}
	return it, nil
}

func (r *Remote) OpenMediaStream(ctx context.Context, ref models.SourceRef) (remote.ChunkStream, error) {
	if strings.TrimSpace(string(ref)) == "" {
		return nil, fmt.Errorf("%w: empty file reference", remote.ErrObjectNotFound)
	}

	file, err := r.bot.GetFile(tgbotapi.FileConfig{FileID: string(ref)})
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: %s", remote.ErrObjectNotFound, apiErr.Message)
		}
		return nil, classify(err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("%w: telegram returned no file path", remote.ErrUnavailable)
	}

	fileURL := fmt.Sprintf(r.fileEndpoint, r.token, strings.TrimPrefix(path.Clean(file.FilePath), "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build file request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch file: %v", remote.ErrUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: file endpoint returned 404", remote.ErrObjectNotFound)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: file endpoint returned %s", remote.ErrUnavailable, resp.Status)
	}

	return remote.NewReaderChunkStream(resp.Body, r.chunkSize), nil
}

// Observe journals a message seen in an update, e.g. a video posted straight into the
// storage channel.
func (r *Remote) Observe(ctx context.Context, msg *tgbotapi.Message) {
	r.record(ctx, msg)
}

func (r *Remote) record(ctx context.Context, msg *tgbotapi.Message) {
	if r.journal == nil || msg == nil || msg.Chat == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("telegram.journal.encode_failed", "message_id", msg.MessageID, "error", err)
		return
	}
	entry := database.JournalEntry{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		PostedAt:  time.Unix(int64(msg.Date), 0).UTC(),
		Payload:   payload,
	}
	if err := r.journal.Record(ctx, entry); err != nil {
		slog.Warn("telegram.journal.record_failed", "chat", msg.Chat.ID, "message_id", msg.MessageID, "error", err)
	}
}

// ParseChatID converts a chat target into a Telegram chat id.
func ParseChatID(chat remote.ChatTarget) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(string(chat)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", chat, err)
	}
	return id, nil
}

// ToMessage converts a Telegram message. Messages without media convert to a
// remote.Message with nil Media.
func ToMessage(msg *tgbotapi.Message) (remote.Message, error) {
	if msg == nil || msg.Chat == nil || msg.MessageID == 0 {
		return remote.Message{}, fmt.Errorf("%w: message without chat or id", remote.ErrMalformedMessage)
	}

	out := remote.Message{
		Ref: remote.MessageRef{
			Chat: remote.ChatTarget(strconv.FormatInt(msg.Chat.ID, 10)),
			ID:   strconv.Itoa(msg.MessageID),
		},
		Date: time.Unix(int64(msg.Date), 0).UTC(),
	}

	switch {
	case msg.Video != nil:
		v := msg.Video
		media := &remote.Media{
			FileRef:  models.SourceRef(v.FileID),
			FileName: v.FileName,
			MimeType: v.MimeType,
			Size:     int64(v.FileSize),
			Video:    true,
		}
		if v.Duration > 0 {
			d := float64(v.Duration)
			media.DurationSeconds = &d
		}
		out.Media = media
	case msg.Document != nil:
		d := msg.Document
		out.Media = &remote.Media{
			FileRef:  models.SourceRef(d.FileID),
			FileName: d.FileName,
			MimeType: d.MimeType,
			Size:     int64(d.FileSize),
			Video:    strings.HasPrefix(d.MimeType, "video/"),
		}
	}
	return out, nil
}

func classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
			return fmt.Errorf("%w: %s", remote.ErrRejected, apiErr.Message)
		}
		return fmt.Errorf("%w: telegram error %d: %s", remote.ErrUnavailable, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
}
