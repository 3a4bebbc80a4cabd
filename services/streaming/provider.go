package streaming

import (
	"context"
	"errors"
	"io"
	"net/http"
)

var ErrNotFound = errors.New("stream not found")

// Request encapsulates a streaming request coming from the handler layer.
type Request struct {
	Handle      string
	RangeHeader string
	Method      string
	// Download selects attachment semantics: generic content type.
	Download  bool
	ClientIP  string
	UserAgent string
}

// Response wraps the streaming body and metadata needed by the HTTP layer.
// Body is nil for HEAD requests, empty windows and 416 responses.
type Response struct {
	Body          io.ReadCloser
	Headers       http.Header
	Status        int
	ContentLength int64
	Filename      string
}

// Close closes the underlying response body if present.
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// Provider supplies streaming data for a given request.
type Provider interface {
	Stream(ctx context.Context, req Request) (*Response, error)
}
