package models

import (
	"errors"
	"time"
)

// ErrEmptySender is returned when a request carries no sender identity.
var ErrEmptySender = errors.New("sender is required")

// CandidateRecord is the outcome of a finished interview, upserted by sender.
type CandidateRecord struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Answers   Answers   `json:"answers"`
	Qualified bool      `json:"qualified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CandidateUpsertRequest is an externally assembled candidate.
// When Qualified is nil the service scores the answers itself.
type CandidateUpsertRequest struct {
	Sender    string  `json:"sender"`
	Answers   Answers `json:"answers"`
	Qualified *bool   `json:"qualified,omitempty"`
}

// Validate validates a CandidateUpsertRequest.
func (r *CandidateUpsertRequest) Validate() error {
	if r.Sender == "" {
		return ErrEmptySender
	}
	return nil
}
