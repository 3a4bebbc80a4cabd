package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"

	"tgstream/internal/httprange"
	"tgstream/internal/remote"
	"tgstream/models"
	"tgstream/services/catalog"
)

// Backend is the part of the backend adapter the proxy reads from.
type Backend interface {
	Lookup(handle string) (models.CatalogEntry, error)
	OpenChunkStream(ctx context.Context, ref models.SourceRef) (remote.ChunkStream, error)
}

// Proxy serves byte windows of catalog entries over a chunk stream that can only be
// read sequentially from offset zero. A range starting at N costs N discarded bytes
// fetched from the backend before the first byte is emitted.
type Proxy struct {
	backend  Backend
	sessions *SessionTracker
	metrics  *Metrics
}

var _ Provider = (*Proxy)(nil)

func NewProxy(backend Backend, sessions *SessionTracker, metrics *Metrics) *Proxy {
	return &Proxy{backend: backend, sessions: sessions, metrics: metrics}
}

// Sessions returns the tracker of active streams.
func (p *Proxy) Sessions() *SessionTracker { return p.sessions }

func (p *Proxy) Stream(ctx context.Context, req Request) (*Response, error) {
	entry, err := p.backend.Lookup(req.Handle)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, req.Handle)
		}
		return nil, err
	}

	size := entry.SizeBytes
	headers := http.Header{}
	headers.Set("Accept-Ranges", "bytes")

	window, err := httprange.Resolve(req.RangeHeader, size)
	if err != nil {
		headers.Set("Content-Range", httprange.UnsatisfiedRange(size))
		p.metrics.response(http.StatusRequestedRangeNotSatisfiable)
		log.Printf("[stream] handle=%s range=%q unsatisfiable for size %d", req.Handle, req.RangeHeader, size)
		return &Response{
			Headers:  headers,
			Status:   http.StatusRequestedRangeNotSatisfiable,
			Filename: entry.DisplayName,
		}, nil
	}

	contentType := entry.MimeType
	if req.Download || contentType == "" {
		contentType = "application/octet-stream"
	}
	headers.Set("Content-Type", contentType)
	headers.Set("Content-Length", strconv.FormatInt(window.Length(), 10))

	status := http.StatusOK
	if window.Partial {
		status = http.StatusPartialContent
		headers.Set("Content-Range", window.ContentRange(size))
	}

	resp := &Response{
		Headers:       headers,
		Status:        status,
		ContentLength: window.Length(),
		Filename:      entry.DisplayName,
	}
	if req.Method == http.MethodHead || window.Length() == 0 {
		p.metrics.response(status)
		return resp, nil
	}

	stream, err := p.backend.OpenChunkStream(ctx, entry.SourceRef)
	if err != nil {
		return nil, err
	}
	p.metrics.opened()
	p.metrics.response(status)

	sessionID := p.sessions.Start(Session{
		Handle:        entry.Handle,
		Filename:      entry.DisplayName,
		ClientIP:      req.ClientIP,
		UserAgent:     req.UserAgent,
		RangeStart:    window.Start,
		ContentLength: window.Length(),
	})

	resp.Body = &windowReader{
		ctx:       ctx,
		stream:    stream,
		handle:    entry.Handle,
		start:     window.Start,
		end:       window.End,
		skip:      window.Start,
		remaining: window.Length(),
		release: func() {
			p.sessions.Finish(sessionID)
			p.metrics.closed()
		},
		progress: func(n int) {
			p.sessions.Progress(sessionID, int64(n))
			p.metrics.emitted(n)
		},
		skipped: p.metrics.skipped,
	}
	return resp, nil
}

// windowReader discards backend bytes before start, then emits exactly the bytes of
// [start, end]. The backend stream is closed as soon as the window is complete.
type windowReader struct {
	ctx    context.Context
	stream remote.ChunkStream
	handle string
	start  int64
	end    int64

	skip      int64
	remaining int64
	emitted   int64
	pending   []byte
	err       error

	release  func()
	progress func(int)
	skipped  func(int)

	closeOnce sync.Once
}

func (r *windowReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	for len(r.pending) == 0 {
		if r.remaining == 0 {
			r.Close()
			return 0, io.EOF
		}

		chunk, err := r.stream.Next(r.ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			r.err = &StreamInterruptedError{
				Handle:   r.handle,
				Offset:   r.start + r.emitted,
				Expected: r.end,
				Err:      err,
			}
			r.Close()
			return 0, r.err
		}

		if r.skip > 0 {
			if int64(len(chunk)) <= r.skip {
				r.skip -= int64(len(chunk))
				r.skipped(len(chunk))
				continue
			}
			r.skipped(int(r.skip))
			chunk = chunk[r.skip:]
			r.skip = 0
		}
		if int64(len(chunk)) > r.remaining {
			chunk = chunk[:r.remaining]
		}
		r.pending = chunk
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	r.remaining -= int64(n)
	r.emitted += int64(n)
	r.progress(n)

	if r.remaining == 0 {
		r.Close()
	}
	return n, nil
}

// Close ends the backend session. It is safe to call more than once.
func (r *windowReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.stream.Close()
		if r.release != nil {
			r.release()
		}
	})
	return err
}
