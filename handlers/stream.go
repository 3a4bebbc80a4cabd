package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/mozillazg/go-unidecode"

	"tgstream/services/streaming"
)

// StreamHandler exposes catalog entries over a byte-range capable endpoint.
type StreamHandler struct {
	streamer streaming.Provider
	download bool
}

// NewStreamHandler serves entries inline with their declared media type.
func NewStreamHandler(provider streaming.Provider) *StreamHandler {
	return &StreamHandler{streamer: provider}
}

// NewDownloadHandler serves entries as attachments.
func NewDownloadHandler(provider streaming.Provider) *StreamHandler {
	return &StreamHandler{streamer: provider, download: true}
}

func (h *StreamHandler) tag() string {
	if h.download {
		return "download"
	}
	return "stream"
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.streamer == nil {
		http.Error(w, "stream provider not configured", http.StatusServiceUnavailable)
		return
	}

	handle := strings.TrimSpace(mux.Vars(r)["handle"])
	if handle == "" {
		http.Error(w, "video not found", http.StatusNotFound)
		return
	}

	rangeHeader := r.Header.Get("Range")
	log.Printf("[%s] request handle=%q method=%s range=%q", h.tag(), handle, r.Method, rangeHeader)

	resp, err := h.streamer.Stream(r.Context(), streaming.Request{
		Handle:      handle,
		RangeHeader: rangeHeader,
		Method:      r.Method,
		Download:    h.download,
		ClientIP:    clientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		writeError(w, h.tag(), err)
		return
	}
	defer resp.Close()

	for key, values := range resp.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	if w.Header().Get("Accept-Ranges") == "" {
		w.Header().Set("Accept-Ranges", "bytes")
	}
	if h.download && resp.Filename != "" {
		w.Header().Set("Content-Disposition", attachmentDisposition(resp.Filename))
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	w.WriteHeader(status)
	if r.Method == http.MethodHead || resp.Body == nil {
		return
	}

	buf := make([]byte, 256*1024)
	flusher, _ := w.(http.Flusher)
	var written int64

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				log.Printf("[%s] client gone handle=%q after %d bytes: %v", h.tag(), handle, written, writeErr)
				return
			}
			written += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return
			}
			if r.Context().Err() != nil {
				log.Printf("[%s] client cancelled handle=%q after %d bytes", h.tag(), handle, written)
				return
			}
			// Headers are already committed; abort so the client sees a truncated body.
			log.Printf("[%s] backend failure handle=%q: %v", h.tag(), handle, readErr)
			panic(http.ErrAbortHandler)
		}
	}
}

// attachmentDisposition builds an attachment header with an ASCII fallback name and
// the exact UTF-8 name in filename*.
func attachmentDisposition(name string) string {
	fallback := asciiFilename(name)
	if fallback == name {
		return fmt.Sprintf(`attachment; filename="%s"`, fallback)
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback, encodeRFC5987(name))
}

func asciiFilename(name string) string {
	ascii := unidecode.Unidecode(name)
	var b strings.Builder
	for _, c := range ascii {
		switch {
		case c == '"' || c == '\\' || c == '/':
			b.WriteByte('_')
		case c < 0x20 || c > 0x7e:
		default:
			b.WriteRune(c)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "video"
	}
	return out
}

func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
