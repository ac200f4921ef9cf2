package models

import "time"

// UsageRecord is the ledger row for one user on one UTC day.
type UsageRecord struct {
	UserID       string    `json:"user_id"`
	Date         string    `json:"date"` // YYYY-MM-DD, UTC
	RequestCount int64     `json:"request_count"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// UsageStatus reports today's consumption against the daily limit.
type UsageStatus struct {
	UserID    string `json:"user_id"`
	Date      string `json:"date"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
}
