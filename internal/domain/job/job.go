package job

import (
	"errors"
	"time"
)

// Kind distinguishes negotiated jobs from direct-upload assignments.
type Kind string

const (
	KindNegotiation  Kind = "NEGOTIATION"
	KindDirectUpload Kind = "DIRECT_UPLOAD"
)

// Status represents job status. Values match the server wire format.
type Status string

const (
	// Negotiation statuses.
	StatusPending                 Status = "pending"
	StatusTranscriberCounter      Status = "transcriber_counter"
	StatusClientCounter           Status = "client_counter"
	StatusAcceptedAwaitingPayment Status = "accepted_awaiting_payment"
	StatusHired                   Status = "hired"

	// Direct-upload statuses.
	StatusAvailable Status = "available"
	StatusTaken     Status = "taken"

	// Terminal statuses, shared by both kinds.
	StatusCompleted       Status = "completed"
	StatusClientCompleted Status = "client_completed"
	StatusRejected        Status = "rejected"
	StatusCancelled       Status = "cancelled"
)

var (
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrStaleEvent        = errors.New("stale job event")
)

// Event is an authoritative status update received for a job. Seq is the
// server-side monotonic counter used to discard duplicate or out-of-order
// deliveries.
type Event struct {
	JobID        string
	TargetStatus Status
	Seq          int64
}

// Job represents a negotiation or direct-upload assignment between a client
// and a transcriber. Status only changes through ApplyEvent.
type Job struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Status       Status    `json:"status"`
	ClientID     string    `json:"clientId"`
	ProviderID   string    `json:"providerId"`
	AgreedPrice  int64     `json:"agreedPrice"`
	CreatedAt    time.Time `json:"createdAt"`
	LastEventSeq int64     `json:"lastEventSeq"`
}

var negotiationTransitions = map[Status][]Status{
	StatusPending:                 {StatusTranscriberCounter, StatusRejected, StatusCancelled},
	StatusTranscriberCounter:      {StatusClientCounter, StatusAcceptedAwaitingPayment, StatusRejected},
	StatusClientCounter:           {StatusTranscriberCounter, StatusRejected, StatusCancelled},
	StatusAcceptedAwaitingPayment: {StatusHired},
	StatusHired:                   {StatusCompleted, StatusClientCompleted},
	StatusCompleted:               {},
	StatusClientCompleted:         {},
	StatusRejected:                {},
	StatusCancelled:               {},
}

var directUploadTransitions = map[Status][]Status{
	StatusAvailable:       {StatusTaken, StatusCancelled},
	StatusTaken:           {StatusCompleted, StatusClientCompleted},
	StatusCompleted:       {},
	StatusClientCompleted: {},
	StatusCancelled:       {},
}

func (j *Job) transitions() map[Status][]Status {
	if j.Kind == KindDirectUpload {
		return directUploadTransitions
	}
	return negotiationTransitions
}

// CanTransitionTo validates a job status transition.
func (j *Job) CanTransitionTo(target Status) bool {
	allowed := j.transitions()[j.Status]
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is defined.
func (j *Job) IsTerminal() bool {
	return len(j.transitions()[j.Status]) == 0
}

// ApplyEvent applies an authoritative status update. Events at or below the
// last applied sequence return ErrStaleEvent and leave the job untouched;
// unreachable targets return ErrInvalidTransition. On success status and
// LastEventSeq are updated together.
func (j *Job) ApplyEvent(e Event) error {
	if e.Seq <= j.LastEventSeq {
		return ErrStaleEvent
	}
	if !j.CanTransitionTo(e.TargetStatus) {
		return ErrInvalidTransition
	}
	j.Status = e.TargetStatus
	j.LastEventSeq = e.Seq
	return nil
}
