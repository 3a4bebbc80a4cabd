// Package httprange parses single byte-range requests and resolves them against
// an object size.
package httprange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRange reports a Range header that is not a well-formed bytes range.
	ErrInvalidRange = errors.New("invalid range header")
	// ErrMultiRange reports a header carrying more than one range.
	ErrMultiRange = errors.New("multiple ranges not supported")
	// ErrUnsatisfiable reports a range that does not overlap the object.
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// RangeHeader is a single parsed byte range. -1 marks an absent bound:
// Start == -1 is a suffix range of End bytes, End == -1 is open-ended.
type RangeHeader struct {
	Start int64
	End   int64
}

// ParseRangeHeader parses "bytes=start-end", "bytes=start-" and "bytes=-suffix".
func ParseRangeHeader(s string) (*RangeHeader, error) {
	s = strings.TrimSpace(s)
	const preamble = "bytes="
	if !strings.HasPrefix(s, preamble) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	rangeSet := strings.TrimSpace(s[len(preamble):])
	if strings.Contains(rangeSet, ",") {
		return nil, ErrMultiRange
	}

	startText, endText, ok := strings.Cut(rangeSet, "-")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	startText = strings.TrimSpace(startText)
	endText = strings.TrimSpace(endText)

	hdr := &RangeHeader{Start: -1, End: -1}
	if startText == "" && endText == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	if startText != "" {
		v, err := parseOffset(startText)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
		}
		hdr.Start = v
	}
	if endText != "" {
		v, err := parseOffset(endText)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
		}
		hdr.End = v
	}
	if hdr.Start >= 0 && hdr.End >= 0 && hdr.Start > hdr.End {
		return nil, fmt.Errorf("%w: start after end in %q", ErrUnsatisfiable, s)
	}
	return hdr, nil
}

func parseOffset(s string) (int64, error) {
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

// FixRangeHeader returns the range with absent bounds filled in and the end
// clamped to size-1. Suffix ranges larger than the object cover all of it.
func FixRangeHeader(h *RangeHeader, size int64) *RangeHeader {
	if h == nil {
		return nil
	}
	fixed := *h
	if fixed.Start < 0 {
		n := fixed.End
		if n > size {
			n = size
		}
		fixed.Start = size - n
		fixed.End = size - 1
		return &fixed
	}
	if fixed.End < 0 || fixed.End > size-1 {
		fixed.End = size - 1
	}
	return &fixed
}

// Decode returns the offset and byte count of the range, with -1 meaning
// "to the end of the object".
func (h *RangeHeader) Decode(size int64) (offset, limit int64) {
	if h.Start < 0 {
		n := h.End
		if n > size {
			n = size
		}
		return size - n, -1
	}
	if h.End < 0 {
		return h.Start, -1
	}
	return h.Start, h.End - h.Start + 1
}

// Window is a resolved inclusive byte window.
type Window struct {
	Start   int64
	End     int64
	Partial bool
}

// Length returns the number of bytes in the window.
func (w Window) Length() int64 {
	if w.End < w.Start {
		return 0
	}
	return w.End - w.Start + 1
}

// ContentRange formats the Content-Range value for a partial response.
func (w Window) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", w.Start, w.End, size)
}

// UnsatisfiedRange formats the Content-Range value sent with a 416.
func UnsatisfiedRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// Resolve maps a raw Range header onto an object of the given size. An empty
// header or a multi-range header selects the whole object. Malformed headers,
// starts at or past size and empty suffixes resolve to ErrUnsatisfiable.
func Resolve(header string, size int64) (Window, error) {
	full := Window{Start: 0, End: size - 1}
	if strings.TrimSpace(header) == "" {
		return full, nil
	}

	hdr, err := ParseRangeHeader(header)
	switch {
	case errors.Is(err, ErrMultiRange):
		return full, nil
	case errors.Is(err, ErrUnsatisfiable):
		return Window{}, err
	case err != nil:
		return Window{}, fmt.Errorf("%w: %v", ErrUnsatisfiable, err)
	}

	if hdr.Start < 0 {
		if hdr.End == 0 || size == 0 {
			return Window{}, fmt.Errorf("%w: empty suffix range", ErrUnsatisfiable)
		}
	} else if hdr.Start >= size {
		return Window{}, fmt.Errorf("%w: start %d >= size %d", ErrUnsatisfiable, hdr.Start, size)
	}

	fixed := FixRangeHeader(hdr, size)
	if fixed.Start > fixed.End {
		return Window{}, fmt.Errorf("%w: start %d > end %d", ErrUnsatisfiable, fixed.Start, fixed.End)
	}
	return Window{Start: fixed.Start, End: fixed.End, Partial: true}, nil
}
