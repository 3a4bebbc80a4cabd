// Package media adapts a remote.Remote into the operations the catalog, stream
// proxy and upload surfaces need.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"tgstream/internal/remote"
	"tgstream/models"
	"tgstream/services/catalog"
)

var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrUploadRejected     = errors.New("upload rejected")
)

// sniffLen is how many leading bytes are read to detect the media type.
const sniffLen = 3072

// Service is the backend adapter. It owns no state besides the last scan report;
// entries live in the injected catalog.
type Service struct {
	remote  remote.Remote
	catalog *catalog.Catalog
	chat    remote.ChatTarget

	mu         sync.RWMutex
	lastReport models.ScanReport
}

func NewService(r remote.Remote, c *catalog.Catalog, storageChat remote.ChatTarget) *Service {
	return &Service{
		remote:     r,
		catalog:    c,
		chat:       storageChat,
		lastReport: models.ScanReport{Status: models.ScanStatusPending},
	}
}

// Catalog returns the catalog the service registers entries in.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// ScanRecent reads up to limit history messages newest-first and returns one entry
// per video message. Malformed messages are logged and skipped.
func (s *Service) ScanRecent(ctx context.Context, limit int) (models.ScanReport, []models.CatalogEntry, error) {
	report := models.ScanReport{Status: models.ScanStatusCompleted}

	it, err := s.remote.History(ctx, s.chat, limit)
	if err != nil {
		report.Status = models.ScanStatusFailed
		report.Error = err.Error()
		report.FinishedAt = time.Now().UTC()
		return report, nil, fmt.Errorf("%w: open history: %w", ErrBackendUnavailable, err)
	}
	defer it.Close()

	var entries []models.CatalogEntry
	for limit <= 0 || report.Scanned < limit {
		msg, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, remote.ErrMalformedMessage) {
				report.Scanned++
				report.Skipped++
				log.Printf("[media] skipping malformed history record: %v", err)
				continue
			}
			report.Status = models.ScanStatusFailed
			report.Error = err.Error()
			report.Added = len(entries)
			report.FinishedAt = time.Now().UTC()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, entries, ctxErr
			}
			return report, entries, fmt.Errorf("%w: read history: %w", ErrBackendUnavailable, err)
		}
		report.Scanned++

		if !isVideo(msg.Media) {
			continue
		}
		entry, err := entryFromMessage(msg)
		if err != nil {
			report.Skipped++
			log.Printf("[media] skipping message %s: %v", msg.Ref.ID, err)
			continue
		}
		entries = append(entries, entry)
	}

	report.Added = len(entries)
	report.FinishedAt = time.Now().UTC()
	return report, entries, nil
}

// Boot scans recent history into the catalog. Older messages are put first so the
// listing keeps chronological order.
func (s *Service) Boot(ctx context.Context, limit int) (models.ScanReport, error) {
	report, entries, err := s.ScanRecent(ctx, limit)
	for i := len(entries) - 1; i >= 0; i-- {
		s.catalog.Put(entries[i])
	}

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	log.Printf("[media] boot scan %s: scanned=%d added=%d skipped=%d", report.Status, report.Scanned, report.Added, report.Skipped)
	return report, err
}

// LastReport returns the outcome of the most recent Boot.
func (s *Service) LastReport() models.ScanReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// Resolve returns the source reference registered for handle.
func (s *Service) Resolve(handle string) (models.SourceRef, error) {
	entry, err := s.catalog.Get(handle)
	if err != nil {
		return "", err
	}
	return entry.SourceRef, nil
}

// Lookup returns the full catalog entry for handle.
func (s *Service) Lookup(handle string) (models.CatalogEntry, error) {
	return s.catalog.Get(handle)
}

// OpenChunkStream opens a fresh backend session reading ref from offset zero.
func (s *Service) OpenChunkStream(ctx context.Context, ref models.SourceRef) (remote.ChunkStream, error) {
	stream, err := s.remote.OpenMediaStream(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: open media stream: %w", ErrBackendUnavailable, err)
	}
	return stream, nil
}

// Store uploads a file into the storage chat and registers the resulting entry.
func (s *Service) Store(ctx context.Context, body io.Reader, displayName string) (models.CatalogEntry, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return models.CatalogEntry{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return models.CatalogEntry{}, fmt.Errorf("%w: empty file", ErrUploadRejected)
	}

	mtype := mimetype.Detect(head)
	name := cleanName(displayName)
	if name == "" {
		name = "upload_" + uuid.NewString()[:8] + mtype.Extension()
	}

	msg, err := s.remote.SendMedia(ctx, s.chat, remote.Upload{
		Name:     name,
		MimeType: mtype.String(),
		Reader:   io.MultiReader(bytes.NewReader(head), body),
	})
	if err != nil {
		return models.CatalogEntry{}, mapRemoteErr(err)
	}
	return s.register(msg, name, mtype.String())
}

// Ingest forwards a message the bot received into the storage chat and registers
// the copy.
func (s *Service) Ingest(ctx context.Context, ref remote.MessageRef) (models.CatalogEntry, error) {
	msg, err := s.remote.Forward(ctx, ref, s.chat)
	if err != nil {
		return models.CatalogEntry{}, mapRemoteErr(err)
	}
	return s.register(msg, "", "")
}

// Adopt registers a video message observed in the storage chat, e.g. one posted
// there directly. Non-video messages are ignored and report ok=false.
func (s *Service) Adopt(msg remote.Message) (entry models.CatalogEntry, ok bool, err error) {
	if msg.Ref.Chat != s.chat || !isVideo(msg.Media) {
		return models.CatalogEntry{}, false, nil
	}
	entry, err = s.register(msg, "", "")
	if err != nil {
		return models.CatalogEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Service) register(msg remote.Message, fallbackName, fallbackType string) (models.CatalogEntry, error) {
	if msg.Media == nil {
		return models.CatalogEntry{}, fmt.Errorf("%w: stored message %s carries no media", ErrUploadRejected, msg.Ref.ID)
	}
	if msg.Media.FileName == "" {
		msg.Media.FileName = fallbackName
	}
	if msg.Media.MimeType == "" {
		msg.Media.MimeType = fallbackType
	}
	entry, err := entryFromMessage(msg)
	if err != nil {
		return models.CatalogEntry{}, fmt.Errorf("%w: %w", ErrUploadRejected, err)
	}
	s.catalog.Put(entry)
	log.Printf("[media] registered %s (%s, %d bytes)", entry.Handle, entry.DisplayName, entry.SizeBytes)
	return entry, nil
}

func isVideo(m *remote.Media) bool {
	if m == nil {
		return false
	}
	return m.Video || strings.HasPrefix(m.MimeType, "video/")
}

func entryFromMessage(msg remote.Message) (models.CatalogEntry, error) {
	m := msg.Media
	switch {
	case strings.TrimSpace(msg.Ref.ID) == "":
		return models.CatalogEntry{}, fmt.Errorf("%w: message has no id", remote.ErrMalformedMessage)
	case m.FileRef == "":
		return models.CatalogEntry{}, fmt.Errorf("%w: empty file reference", remote.ErrMalformedMessage)
	case m.Size < 0:
		return models.CatalogEntry{}, fmt.Errorf("%w: negative size %d", remote.ErrMalformedMessage, m.Size)
	case m.DurationSeconds != nil && *m.DurationSeconds < 0:
		return models.CatalogEntry{}, fmt.Errorf("%w: negative duration", remote.ErrMalformedMessage)
	}

	name := cleanName(m.FileName)
	if name == "" {
		name = models.DefaultDisplayName(msg.Ref.ID)
	}
	entry := models.CatalogEntry{
		Handle:      msg.Ref.ID,
		SourceRef:   m.FileRef,
		DisplayName: name,
		SizeBytes:   m.Size,
		MimeType:    m.MimeType,
		AddedAt:     msg.Date,
	}
	if m.DurationSeconds != nil {
		d := *m.DurationSeconds
		entry.DurationSeconds = &d
	}
	return entry, nil
}

// cleanName normalises a user supplied file name and strips any directory part.
func cleanName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func mapRemoteErr(err error) error {
	if errors.Is(err, remote.ErrRejected) {
		return fmt.Errorf("%w: %w", ErrUploadRejected, err)
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
