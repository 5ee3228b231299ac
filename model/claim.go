package model

import (
	"time"
)

// Claim journal states
const (
	ClaimClaimed = "claimed"
	ClaimPushed  = "pushed"
)

// Claim is a journal entry for a document whose trigger tags were removed
// and whose tags have not been finalized yet
type Claim struct {
	DocumentID int       `json:"document_id"`
	StampTypes []string  `json:"stamp_types"`
	State      string    `json:"state"` // claimed, pushed
	CycleID    string    `json:"cycle_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Pushed reports whether the stamped version was uploaded
func (c *Claim) Pushed() bool {
	return c.State == ClaimPushed
}
