package models

import (
	"fmt"
	"time"
)

// SourceRef is the backend-internal reference used to re-fetch an object's bytes.
// Only the remote that produced it knows how to read it.
type SourceRef string

// CatalogEntry describes one streamable item known to the service.
type CatalogEntry struct {
	Handle          string    `json:"handle"`
	SourceRef       SourceRef `json:"-"`
	DisplayName     string    `json:"name"`
	SizeBytes       int64     `json:"size"`
	DurationSeconds *float64  `json:"durationSeconds,omitempty"`
	MimeType        string    `json:"mimeType,omitempty"`
	AddedAt         time.Time `json:"addedAt"`
}

// Clone returns a copy that shares no mutable state with e.
func (e CatalogEntry) Clone() CatalogEntry {
	out := e
	if e.DurationSeconds != nil {
		d := *e.DurationSeconds
		out.DurationSeconds = &d
	}
	return out
}

// HasDuration reports whether the backend reported a duration.
func (e CatalogEntry) HasDuration() bool {
	return e.DurationSeconds != nil
}

// DefaultDisplayName is used when the backend provides no file name.
func DefaultDisplayName(handle string) string {
	return fmt.Sprintf("video_%s.mp4", handle)
}
