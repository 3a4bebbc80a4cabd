package models

import "time"

// ScanReport describes the outcome of the last boot-time history scan.
type ScanReport struct {
	Status     string    `json:"status"`
	Scanned    int       `json:"scanned"`
	Added      int       `json:"added"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}

const (
	ScanStatusPending   = "pending"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)
