package model

import (
	"time"
)

// StampOutcome records the result of one (document, stamp type) pair
type StampOutcome struct {
	ID            int64     `json:"id"`
	CycleID       string    `json:"cycle_id"`
	DocumentID    int       `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	StampType     string    `json:"stamp_type"`
	StampText     string    `json:"stamp_text"`
	StampDate     string    `json:"stamp_date,omitempty"`
	SequenceIndex int       `json:"sequence_index"` // NoSequence when not applied
	Status        string    `json:"status"` // success, error
	ErrorMessage  string    `json:"error_message,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// NoSequence marks an outcome whose stamp was never placed on the page
const NoSequence = -1

// Outcome status constants
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Succeeded reports whether the stamp was applied
func (o *StampOutcome) Succeeded() bool {
	return o.Status == StatusSuccess
}
