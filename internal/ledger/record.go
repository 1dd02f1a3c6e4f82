package ledger

import "time"

// FieldChange captures one field's old and new value inside a correction.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// CorrectionRecord is one append-only audit log entry. Every correction
// engine invocation produces exactly one, success or failure, and records
// are never mutated afterwards.
type CorrectionRecord struct {
	ID             string                 `json:"id"`
	EntryTimestamp time.Time              `json:"entry_timestamp"`
	Command        string                 `json:"command"`
	Changes        map[string]FieldChange `json:"changes,omitempty"`
	Success        bool                   `json:"success"`
	Error          string                 `json:"error,omitempty"`
	ExecutedAt     time.Time              `json:"executed_at"`
	Duration       time.Duration          `json:"duration"`
}
