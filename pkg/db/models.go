package db

import (
	"encoding/json"
	"time"
)

// ReleaseRow represents a row in the command_releases table.
type ReleaseRow struct {
	Release  string    `json:"release"`
	Version  string    `json:"version"`
	Commands int       `json:"commands"`
	Modified time.Time `json:"modified"`
}

// AuditRecord represents a row in the command_audit table.
type AuditRecord struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id"`
	Release    string          `json:"release"`
	Command    string          `json:"command"`
	Args       json.RawMessage `json:"args,omitempty"`
	Outcome    string          `json:"outcome"`
	Code       string          `json:"code,omitempty"`
	Message    string          `json:"message,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Created    time.Time       `json:"created"`
}

// ListAuditParams holds parameters for ListAudit.
type ListAuditParams struct {
	Command string
	Outcome string
	Limit   int
}
