package payment

import (
	"errors"
	"time"
)

// Status represents the lifecycle of a payment attempt.
type Status string

const (
	StatusInitiated            Status = "INITIATED"
	StatusAwaitingVerification Status = "AWAITING_VERIFICATION"
	StatusVerified             Status = "VERIFIED"
	StatusFailed               Status = "FAILED"
)

var ErrInvalidTransition = errors.New("invalid payment attempt transition")

// Attempt represents one attempt to pay for a job with the external payment
// provider. Terminal on Verified or Failed; a fresh attempt is created to
// retry after a failure.
type Attempt struct {
	JobID     string    `json:"jobId"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewAttempt creates an attempt in the initiated state for a provider
// reference returned by the payment collaborator.
func NewAttempt(jobID, reference string, amount int64, method string) *Attempt {
	return &Attempt{
		JobID:     jobID,
		Reference: reference,
		Amount:    amount,
		Method:    method,
		Status:    StatusInitiated,
		CreatedAt: time.Now().UTC(),
	}
}

var transitions = map[Status][]Status{
	StatusInitiated:            {StatusAwaitingVerification, StatusFailed},
	StatusAwaitingVerification: {StatusVerified, StatusFailed},
	StatusVerified:             {},
	StatusFailed:               {},
}

// CanTransitionTo validates an attempt status transition.
func (a *Attempt) CanTransitionTo(target Status) bool {
	for _, s := range transitions[a.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the attempt is settled.
func (a *Attempt) IsTerminal() bool {
	return len(transitions[a.Status]) == 0
}

// AwaitVerification marks the provider flow complete, verification pending.
func (a *Attempt) AwaitVerification() error {
	if !a.CanTransitionTo(StatusAwaitingVerification) {
		return ErrInvalidTransition
	}
	a.Status = StatusAwaitingVerification
	return nil
}

// Verify settles the attempt successfully.
func (a *Attempt) Verify() error {
	if !a.CanTransitionTo(StatusVerified) {
		return ErrInvalidTransition
	}
	a.Status = StatusVerified
	return nil
}

// Fail settles the attempt unsuccessfully.
func (a *Attempt) Fail() error {
	if !a.CanTransitionTo(StatusFailed) {
		return ErrInvalidTransition
	}
	a.Status = StatusFailed
	return nil
}
