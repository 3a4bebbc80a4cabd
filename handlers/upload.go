package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"tgstream/models"
	"tgstream/services/media"
)

type uploadStore interface {
	Store(ctx context.Context, body io.Reader, displayName string) (models.CatalogEntry, error)
}

var _ uploadStore = (*media.Service)(nil)

// DefaultMaxUploadBytes matches the Bot API upload ceiling.
const DefaultMaxUploadBytes int64 = 50 << 20

// multipart framing allowance on top of the file limit
const formOverhead = 1 << 20

// UploadHandler accepts multipart uploads and stores them in the backend.
type UploadHandler struct {
	store    uploadStore
	maxBytes int64
	baseURL  string
}

func NewUploadHandler(store uploadStore, maxBytes int64, baseURL string) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &UploadHandler{store: store, maxBytes: maxBytes, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload streams the "video" (or "file") part straight to the backend. A "name" field
// must precede the file part to be used as the display name.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expected multipart/form-data", http.StatusBadRequest)
		return
	}

	var displayName string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			http.Error(w, "missing video file", http.StatusBadRequest)
			return
		}
		if err != nil {
			if statusFor(err) == http.StatusRequestEntityTooLarge {
				writeError(w, "upload", err)
				return
			}
			http.Error(w, "malformed multipart body", http.StatusBadRequest)
			return
		}

		switch part.FormName() {
		case "name":
			value, err := io.ReadAll(io.LimitReader(part, 1024))
			part.Close()
			if err != nil {
				http.Error(w, "malformed name field", http.StatusBadRequest)
				return
			}
			displayName = strings.TrimSpace(string(value))
		case "video", "file":
			if displayName == "" {
				displayName = part.FileName()
			}
			h.storePart(w, r, part, displayName)
			part.Close()
			return
		default:
			part.Close()
		}
	}
}

func (h *UploadHandler) storePart(w http.ResponseWriter, r *http.Request, body io.Reader, name string) {
	limited := &limitedReader{r: body, remaining: h.maxBytes}
	entry, err := h.store.Store(r.Context(), limited, name)
	if limited.exceeded {
		err = errUploadTooLarge
	}
	if err != nil {
		log.Printf("[upload] store %q failed: %v", name, err)
		writeError(w, "upload", err)
		return
	}

	base := h.baseURL
	if base == "" {
		base = requestBase(r)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(BuildLinks(base, entry))
}

// limitedReader fails once more than remaining bytes are read.
type limitedReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, errUploadTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	if int64(n) > l.remaining {
		l.exceeded = true
		return 0, errUploadTooLarge
	}
	l.remaining -= int64(n)
	return n, err
}
