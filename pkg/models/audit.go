package models

import "time"

// Outcome classifies a check-and-consume decision.
type Outcome string

const (
	OutcomeAllowed          Outcome = "allowed"
	OutcomeQuotaExceeded    Outcome = "quota_exceeded"
	OutcomeInvalidRequest   Outcome = "invalid_request"
	OutcomeStoreUnavailable Outcome = "store_unavailable"
)

// Decision is the recorded result of one check-and-consume call.
type Decision struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id,omitempty"`
	UserID       string    `json:"user_id"`
	Date         string    `json:"date"`
	Cost         int64     `json:"cost"`
	Allowed      bool      `json:"allowed"`
	Outcome      Outcome   `json:"outcome"`
	RequestCount int64     `json:"request_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditConfig controls the decision audit log.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// AuditQueryOpts specifies filters for querying decisions.
type AuditQueryOpts struct {
	UserID  string
	Outcome Outcome
	Since   time.Time
	Limit   int
}

// AuditStat holds aggregate decision counts for an outcome/day combination.
type AuditStat struct {
	Outcome Outcome
	Day     string
	Count   int
	Units   int64
}
