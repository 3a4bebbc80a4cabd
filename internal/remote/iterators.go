package remote

import (
	"context"
	"io"
)

// SliceIterator serves a pre-fetched history page. Err, when set for an index,
// is returned instead of the message at that position.
type SliceIterator struct {
	Messages []Message
	Errs     map[int]error
	pos      int
}

func (it *SliceIterator) Next(ctx context.Context) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if it.pos >= len(it.Messages) {
		return Message{}, io.EOF
	}
	idx := it.pos
	it.pos++
	if err, ok := it.Errs[idx]; ok && err != nil {
		return Message{}, err
	}
	return it.Messages[idx], nil
}

func (it *SliceIterator) Close() error { return nil }

// ReaderChunkStream slices an io.ReadCloser into chunks of at most chunkSize bytes.
type ReaderChunkStream struct {
	body      io.ReadCloser
	chunkSize int
	done      bool
}

func NewReaderChunkStream(body io.ReadCloser, chunkSize int) *ReaderChunkStream {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ReaderChunkStream{body: body, chunkSize: chunkSize}
}

// DefaultChunkSize matches the chunk size used by common chat media downloaders.
const DefaultChunkSize = 64 * 1024

func (s *ReaderChunkStream) Next(ctx context.Context) ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, s.chunkSize)
	n, err := io.ReadFull(s.body, buf)
	switch {
	case err == nil:
		return buf[:n], nil
	case err == io.ErrUnexpectedEOF:
		s.done = true
		return buf[:n], nil
	case err == io.EOF:
		s.done = true
		return nil, io.EOF
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
}

func (s *ReaderChunkStream) Close() error {
	s.done = true
	return s.body.Close()
}
