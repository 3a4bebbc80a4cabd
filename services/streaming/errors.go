package streaming

import "fmt"

// StreamInterruptedError reports a backend failure after the response headers were
// committed. Offset is the absolute object offset reached by the emitted body.
type StreamInterruptedError struct {
	Handle   string
	Offset   int64
	Expected int64
	Err      error
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream %s interrupted at offset %d (window end %d): %v", e.Handle, e.Offset, e.Expected, e.Err)
}

func (e *StreamInterruptedError) Unwrap() error {
	return e.Err
}
