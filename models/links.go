package models

// StreamLinks contains the public URLs derived for a catalog entry.
type StreamLinks struct {
	Handle      string   `json:"handle"`
	Name        string   `json:"name"`
	Size        int64    `json:"size"`
	Duration    *float64 `json:"duration,omitempty"`
	StreamURL   string   `json:"streamUrl"`
	DownloadURL string   `json:"downloadUrl"`
}
