package handlers

import (
	"errors"
	"log"
	"net/http"

	"tgstream/services/catalog"
	"tgstream/services/media"
	"tgstream/services/streaming"
)

var errUploadTooLarge = errors.New("upload exceeds size limit")

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, streaming.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errUploadTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, media.ErrUploadRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, media.ErrBackendUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a plain-text error. Internal details stay in the log.
func writeError(w http.ResponseWriter, tag string, err error) {
	status := statusFor(err)
	msg := http.StatusText(status)
	switch status {
	case http.StatusNotFound:
		msg = "video not found"
	case http.StatusBadGateway:
		msg = "storage backend unavailable"
	case http.StatusUnprocessableEntity:
		msg = "upload rejected by storage backend"
	case http.StatusRequestEntityTooLarge:
		msg = "upload too large"
	}
	if status >= http.StatusInternalServerError {
		log.Printf("[%s] %d: %v", tag, status, err)
	}
	http.Error(w, msg, status)
}
