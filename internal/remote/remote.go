// Package remote defines the contract of the chat-based object store the service
// streams from. Implementations live in internal/telegram and internal/localstore.
package remote

import (
	"context"
	"errors"
	"io"
	"time"

	"tgstream/models"
)

var (
	// ErrMalformedMessage marks a single history record that cannot be decoded.
	// History consumers skip it and keep iterating.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnavailable reports a connect, auth or transport failure.
	ErrUnavailable = errors.New("remote unavailable")
	// ErrRejected reports that the remote refused an upload.
	ErrRejected = errors.New("remote rejected media")
	// ErrObjectNotFound reports that a source reference no longer resolves.
	ErrObjectNotFound = errors.New("remote object not found")
)

// ChatTarget identifies a chat on the remote, e.g. the storage channel.
type ChatTarget string

// MessageRef points at one message in one chat.
type MessageRef struct {
	Chat ChatTarget
	ID   string
}

// Media is the file payload attached to a message.
type Media struct {
	FileRef         models.SourceRef
	FileName        string
	MimeType        string
	Size            int64
	DurationSeconds *float64
	Video           bool
}

// Message is a chat message as seen by the service.
type Message struct {
	Ref   MessageRef
	Date  time.Time
	Media *Media
}

// Upload is a file pushed to the remote by SendMedia.
type Upload struct {
	Name     string
	MimeType string
	Reader   io.Reader
}

// ChunkStream yields an object's bytes from its start in backend-defined chunks.
// Next returns io.EOF after the last chunk. Close releases the session and may be
// called at any time, including before EOF.
type ChunkStream interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// HistoryIterator walks chat history newest-first. Next returns io.EOF when done.
type HistoryIterator interface {
	Next(ctx context.Context) (Message, error)
	Close() error
}

// Remote is the only surface of the backend the service relies on.
type Remote interface {
	SendMedia(ctx context.Context, chat ChatTarget, file Upload) (Message, error)
	Forward(ctx context.Context, msg MessageRef, chat ChatTarget) (Message, error)
	History(ctx context.Context, chat ChatTarget, limit int) (HistoryIterator, error)
	OpenMediaStream(ctx context.Context, ref models.SourceRef) (ChunkStream, error)
}
