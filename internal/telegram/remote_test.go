package telegram

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgstream/internal/database"
	"tgstream/internal/remote"
	"tgstream/models"
)

type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	reply   tgbotapi.Message
	sendErr error
	file    tgbotapi.File
	fileErr error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	return f.reply, nil
}

func (f *fakeBot) GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error) {
	if f.fileErr != nil {
		return tgbotapi.File{}, f.fileErr
	}
	out := f.file
	out.FileID = config.FileID
	return out, nil
}

type memJournal struct {
	mu      sync.Mutex
	entries []database.JournalEntry
}

func (j *memJournal) Record(_ context.Context, entry database.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, e := range j.entries {
		if e.ChatID == entry.ChatID && e.MessageID == entry.MessageID {
			j.entries[i] = entry
			return nil
		}
	}
	j.entries = append(j.entries, entry)
	return nil
}

func (j *memJournal) Recent(_ context.Context, chatID int64, limit int) ([]database.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []database.JournalEntry
	for _, e := range j.entries {
		if e.ChatID == chatID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].MessageID > out[b].MessageID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func videoMessage(chatID int64, id int, fileID string, size int) tgbotapi.Message {
	return tgbotapi.Message{
		MessageID: id,
		Date:      1700000000 + id,
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "channel"},
		Video: &tgbotapi.Video{
			FileID:   fileID,
			FileName: "clip.mp4",
			MimeType: "video/mp4",
			FileSize: size,
			Duration: 42,
		},
	}
}

func TestSendMediaUploadsVideoAndJournals(t *testing.T) {
	bot := &fakeBot{reply: videoMessage(-1001, 7, "file-7", 1024)}
	journal := &memJournal{}
	r := NewRemote(bot, journal, Options{Token: "t"})

	msg, err := r.SendMedia(context.Background(), "-1001", remote.Upload{Name: "clip.mp4", Reader: strings.NewReader("data")})
	require.NoError(t, err)

	require.Len(t, bot.sent, 1)
	cfg, ok := bot.sent[0].(tgbotapi.VideoConfig)
	require.True(t, ok, "expected VideoConfig, got %T", bot.sent[0])
	assert.Equal(t, int64(-1001), cfg.ChatID)
	assert.Equal(t, "📹 clip.mp4", cfg.Caption)
	assert.True(t, cfg.SupportsStreaming)

	assert.Equal(t, remote.MessageRef{Chat: "-1001", ID: "7"}, msg.Ref)
	require.NotNil(t, msg.Media)
	assert.Equal(t, models.SourceRef("file-7"), msg.Media.FileRef)
	assert.Equal(t, int64(1024), msg.Media.Size)
	require.NotNil(t, msg.Media.DurationSeconds)
	assert.Equal(t, 42.0, *msg.Media.DurationSeconds)

	require.Len(t, journal.entries, 1)
	assert.Equal(t, 7, journal.entries[0].MessageID)
}

func TestSendMediaMapsAPIErrors(t *testing.T) {
	bot := &fakeBot{sendErr: &tgbotapi.Error{Code: http.StatusRequestEntityTooLarge, Message: "Request Entity Too Large"}}
	r := NewRemote(bot, nil, Options{})

	_, err := r.SendMedia(context.Background(), "-1001", remote.Upload{Name: "a.mp4", Reader: strings.NewReader("x")})
	require.ErrorIs(t, err, remote.ErrRejected)

	bot.sendErr = errors.New("dial tcp: connection refused")
	_, err = r.SendMedia(context.Background(), "-1001", remote.Upload{Name: "a.mp4", Reader: strings.NewReader("x")})
	require.ErrorIs(t, err, remote.ErrUnavailable)

	bot.sendErr = &tgbotapi.Error{Code: http.StatusUnauthorized, Message: "Unauthorized"}
	_, err = r.SendMedia(context.Background(), "-1001", remote.Upload{Name: "a.mp4", Reader: strings.NewReader("x")})
	require.ErrorIs(t, err, remote.ErrUnavailable)
}

func TestSendMediaRejectsBadChat(t *testing.T) {
	r := NewRemote(&fakeBot{}, nil, Options{})
	_, err := r.SendMedia(context.Background(), "@channel", remote.Upload{Reader: strings.NewReader("x")})
	require.Error(t, err)
}

func TestForwardBuildsForwardConfig(t *testing.T) {
	bot := &fakeBot{reply: videoMessage(-1001, 9, "file-9", 10)}
	journal := &memJournal{}
	r := NewRemote(bot, journal, Options{})

	msg, err := r.Forward(context.Background(), remote.MessageRef{Chat: "555", ID: "3"}, "-1001")
	require.NoError(t, err)
	assert.Equal(t, "9", msg.Ref.ID)

	cfg, ok := bot.sent[0].(tgbotapi.ForwardConfig)
	require.True(t, ok)
	assert.Equal(t, int64(-1001), cfg.ChatID)
	assert.Equal(t, int64(555), cfg.FromChatID)
	assert.Equal(t, 3, cfg.MessageID)
	require.Len(t, journal.entries, 1)
}

func TestHistoryReplaysJournalNewestFirst(t *testing.T) {
	journal := &memJournal{}
	r := NewRemote(&fakeBot{}, journal, Options{})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		msg := videoMessage(-1001, i, "file", 100)
		r.Observe(ctx, &msg)
	}
	other := videoMessage(-2002, 99, "elsewhere", 1)
	r.Observe(ctx, &other)
	require.NoError(t, journal.Record(ctx, database.JournalEntry{ChatID: -1001, MessageID: 4, Payload: []byte("{broken")}))

	it, err := r.History(ctx, "-1001", 0)
	require.NoError(t, err)
	defer it.Close()

	var ids []string
	malformed := 0
	for {
		msg, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, remote.ErrMalformedMessage) {
			malformed++
			continue
		}
		require.NoError(t, err)
		ids = append(ids, msg.Ref.ID)
	}
	assert.Equal(t, 1, malformed)
	assert.Equal(t, []string{"3", "2", "1"}, ids)
}

func TestToMessageDocumentVideo(t *testing.T) {
	msg, err := ToMessage(&tgbotapi.Message{
		MessageID: 5,
		Chat:      &tgbotapi.Chat{ID: 1},
		Document:  &tgbotapi.Document{FileID: "doc", FileName: "movie.mkv", MimeType: "video/x-matroska", FileSize: 77},
	})
	require.NoError(t, err)
	require.NotNil(t, msg.Media)
	assert.True(t, msg.Media.Video)
	assert.Nil(t, msg.Media.DurationSeconds)

	msg, err = ToMessage(&tgbotapi.Message{MessageID: 6, Chat: &tgbotapi.Chat{ID: 1}, Text: "hello"})
	require.NoError(t, err)
	assert.Nil(t, msg.Media)

	_, err = ToMessage(&tgbotapi.Message{MessageID: 6})
	require.ErrorIs(t, err, remote.ErrMalformedMessage)
}

func TestOpenMediaStreamFetchesFileInChunks(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/botsecret/videos/file_1.mp4" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	bot := &fakeBot{file: tgbotapi.File{FilePath: "videos/file_1.mp4"}}
	r := NewRemote(bot, nil, Options{
		Token:        "secret",
		FileEndpoint: srv.URL + "/file/bot%s/%s",
		ChunkSize:    32,
	})

	stream, err := r.OpenMediaStream(context.Background(), "file-1")
	require.NoError(t, err)
	defer stream.Close()

	var got []byte
	var sizes []int
	for {
		chunk, err := stream.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, len(chunk))
		got = append(got, chunk...)
	}
	assert.Equal(t, payload, got)
	assert.Equal(t, []int{32, 32, 32, 4}, sizes)
}

func TestOpenMediaStreamMissingObject(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := NewRemote(&fakeBot{file: tgbotapi.File{FilePath: "gone.mp4"}}, nil, Options{FileEndpoint: srv.URL + "/file/bot%s/%s"})
	_, err := r.OpenMediaStream(context.Background(), "file-1")
	require.ErrorIs(t, err, remote.ErrObjectNotFound)

	r = NewRemote(&fakeBot{fileErr: &tgbotapi.Error{Code: 400, Message: "Bad Request: invalid file_id"}}, nil, Options{})
	_, err = r.OpenMediaStream(context.Background(), "file-1")
	require.ErrorIs(t, err, remote.ErrObjectNotFound)
}
