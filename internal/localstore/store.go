// Package localstore implements remote.Remote on top of an afero filesystem. It backs
// the "local" driver used for offline runs and tests.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"tgstream/internal/remote"
	"tgstream/models"
)

const (
	objectsDir = "objects"
	indexFile  = "messages.json"
)

// Options configures a Store.
type Options struct {
	ChunkSize int
}

// Store keeps objects as files and the chat log as a JSON index.
type Store struct {
	fs        afero.Fs
	chunkSize int

	mu      sync.Mutex
	nextID  int64
	records []json.RawMessage
}

type indexDocument struct {
	NextID   int64             `json:"nextId"`
	Messages []json.RawMessage `json:"messages"`
}

type storedMessage struct {
	ID    int64        `json:"id"`
	Chat  string       `json:"chat"`
	Date  time.Time    `json:"date"`
	Media *storedMedia `json:"media,omitempty"`
}

type storedMedia struct {
	Object          string   `json:"object"`
	FileName        string   `json:"fileName,omitempty"`
	MimeType        string   `json:"mimeType,omitempty"`
	Size            int64    `json:"size"`
	DurationSeconds *float64 `json:"durationSeconds,omitempty"`
	Video           bool     `json:"video"`
}

// Open loads (or initialises) a store rooted at fsys.
func Open(fsys afero.Fs, opts Options) (*Store, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = remote.DefaultChunkSize
	}
	if err := fsys.MkdirAll(objectsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create objects directory: %w", err)
	}

	s := &Store{fs: fsys, chunkSize: opts.ChunkSize, nextID: 1}

	data, err := afero.ReadFile(fsys, indexFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read message index: %w", err)
	}
	if len(data) > 0 {
		var doc indexDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode message index: %w", err)
		}
		s.records = doc.Messages
		if doc.NextID > s.nextID {
			s.nextID = doc.NextID
		}
	}

	return s, nil
}

func (s *Store) SendMedia(ctx context.Context, chat remote.ChatTarget, file remote.Upload) (remote.Message, error) {
	if file.Reader == nil {
		return remote.Message{}, fmt.Errorf("%w: no file content", remote.ErrRejected)
	}

	object := uuid.NewString()
	objectPath := path.Join(objectsDir, object)

	f, err := s.fs.Create(objectPath)
	if err != nil {
		return remote.Message{}, fmt.Errorf("%w: create object: %v", remote.ErrUnavailable, err)
	}
	size, copyErr := io.Copy(f, contextReader{ctx: ctx, r: file.Reader})
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = s.fs.Remove(objectPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return remote.Message{}, fmt.Errorf("%w: write object: %v", remote.ErrUnavailable, copyErr)
	}
	if size == 0 {
		_ = s.fs.Remove(objectPath)
		return remote.Message{}, fmt.Errorf("%w: empty file", remote.ErrRejected)
	}

	media := &storedMedia{
		Object:   object,
		FileName: strings.TrimSpace(file.Name),
		MimeType: file.MimeType,
		Size:     size,
		Video:    strings.HasPrefix(file.MimeType, "video/"),
	}

	return s.append(chat, media)
}

func (s *Store) Forward(ctx context.Context, msg remote.MessageRef, chat remote.ChatTarget) (remote.Message, error) {
	if err := ctx.Err(); err != nil {
		return remote.Message{}, err
	}

	source, err := s.find(msg)
	if err != nil {
		return remote.Message{}, err
	}

	var media *storedMedia
	if source.Media != nil {
		copied := *source.Media
		media = &copied
	}
	return s.append(chat, media)
}

func (s *Store) History(ctx context.Context, chat remote.ChatTarget, limit int) (remote.HistoryIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	records := append([]json.RawMessage(nil), s.records...)
	s.mu.Unlock()

	type row struct {
		id  int64
		msg remote.Message
		err error
	}
	var rows []row
	for i, raw := range records {
		var stored storedMessage
		if err := json.Unmarshal(raw, &stored); err != nil {
			rows = append(rows, row{id: -int64(i), err: fmt.Errorf("%w: record %d: %v", remote.ErrMalformedMessage, i, err)})
			continue
		}
		if stored.Chat != string(chat) {
			continue
		}
		rows = append(rows, row{id: stored.ID, msg: stored.toMessage()})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].id > rows[j].id })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	it := &remote.SliceIterator{Errs: make(map[int]error)}
	for i, r := range rows {
		it.Messages = append(it.Messages, r.msg)
		if r.err != nil {
			it.Errs[i] = r.err
		}
	}
	return it, nil
}

func (s *Store) OpenMediaStream(ctx context.Context, ref models.SourceRef) (remote.ChunkStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	object := string(ref)
	if object == "" || strings.ContainsAny(object, `/\`) {
		return nil, fmt.Errorf("%w: %q", remote.ErrObjectNotFound, object)
	}

	f, err := s.fs.Open(path.Join(objectsDir, object))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", remote.ErrObjectNotFound, object)
		}
		return nil, fmt.Errorf("%w: open object: %v", remote.ErrUnavailable, err)
	}

	return remote.NewReaderChunkStream(f, s.chunkSize), nil
}

func (s *Store) find(ref remote.MessageRef) (storedMessage, error) {
	id, err := strconv.ParseInt(ref.ID, 10, 64)
	if err != nil {
		return storedMessage{}, fmt.Errorf("%w: message id %q", remote.ErrObjectNotFound, ref.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, raw := range s.records {
		var stored storedMessage
		if json.Unmarshal(raw, &stored) != nil {
			continue
		}
		if stored.ID == id && stored.Chat == string(ref.Chat) {
			return stored, nil
		}
	}
	return storedMessage{}, fmt.Errorf("%w: message %s/%s", remote.ErrObjectNotFound, ref.Chat, ref.ID)
}

func (s *Store) append(chat remote.ChatTarget, media *storedMedia) (remote.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := storedMessage{
		ID:    s.nextID,
		Chat:  string(chat),
		Date:  time.Now().UTC(),
		Media: media,
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return remote.Message{}, fmt.Errorf("encode message: %w", err)
	}

	s.records = append(s.records, raw)
	s.nextID++

	if err := s.persistLocked(); err != nil {
		s.records = s.records[:len(s.records)-1]
		s.nextID--
		return remote.Message{}, fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}

	slog.Debug("localstore.message.appended", "chat", chat, "id", stored.ID)
	return stored.toMessage(), nil
}

func (s *Store) persistLocked() error {
	data, err := json.Marshal(indexDocument{NextID: s.nextID, Messages: s.records})
	if err != nil {
		return fmt.Errorf("encode message index: %w", err)
	}
	tmp := indexFile + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write message index: %w", err)
	}
	if err := s.fs.Rename(tmp, indexFile); err != nil {
		return fmt.Errorf("replace message index: %w", err)
	}
	return nil
}

func (m storedMessage) toMessage() remote.Message {
	msg := remote.Message{
		Ref:  remote.MessageRef{Chat: remote.ChatTarget(m.Chat), ID: strconv.FormatInt(m.ID, 10)},
		Date: m.Date,
	}
	if m.Media != nil {
		msg.Media = &remote.Media{
			FileRef:         models.SourceRef(m.Media.Object),
			FileName:        m.Media.FileName,
			MimeType:        m.Media.MimeType,
			Size:            m.Media.Size,
			DurationSeconds: m.Media.DurationSeconds,
			Video:           m.Media.Video,
		}
	}
	return msg
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
