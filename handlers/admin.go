package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"tgstream/models"
	"tgstream/services/streaming"
)

type scanReporter interface {
	LastReport() models.ScanReport
}

// AdminHandler provides administrative endpoints for monitoring the server
type AdminHandler struct {
	sessions *streaming.SessionTracker
	scans    scanReporter
	started  time.Time
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sessions *streaming.SessionTracker, scans scanReporter) *AdminHandler {
	return &AdminHandler{sessions: sessions, scans: scans, started: time.Now()}
}

// StreamInfo represents information about an active stream
type StreamInfo struct {
	ID            string    `json:"id"`
	Handle        string    `json:"handle"`
	Filename      string    `json:"filename"`
	ClientIP      string    `json:"client_ip,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastAccess    time.Time `json:"last_access"`
	RangeStart    int64     `json:"range_start"`
	BytesStreamed int64     `json:"bytes_streamed"`
	ContentLength int64     `json:"content_length"`
}

// StreamsResponse is the response for the streams endpoint
type StreamsResponse struct {
	Streams  []StreamInfo       `json:"streams"`
	Count    int                `json:"count"`
	Uptime   string             `json:"uptime"`
	LastScan *models.ScanReport `json:"last_scan,omitempty"`
}

// GetActiveStreams returns the streams currently being proxied.
func (h *AdminHandler) GetActiveStreams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := StreamsResponse{
		Streams: []StreamInfo{},
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
	}

	for _, s := range h.sessions.Active() {
		response.Streams = append(response.Streams, StreamInfo{
			ID:            s.ID,
			Handle:        s.Handle,
			Filename:      s.Filename,
			ClientIP:      s.ClientIP,
			UserAgent:     s.UserAgent,
			CreatedAt:     s.StartedAt,
			LastAccess:    s.LastActivity,
			RangeStart:    s.RangeStart,
			BytesStreamed: s.BytesStreamed,
			ContentLength: s.ContentLength,
		})
	}
	if h.scans != nil {
		report := h.scans.LastReport()
		response.LastScan = &report
	}

	response.Count = len(response.Streams)
	json.NewEncoder(w).Encode(response)
}
