package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scribemarket/scribemarket/internal/domain/job"
)

// Name identifies an event on the real-time transport.
type Name string

const (
	// NameConnect is the server's connection acknowledgement. The room
	// rejoins it implies are issued by the connection manager on every
	// transport establishment, so no handler subscribes to it.
	NameConnect                  Name = "connect"
	NameNewChatMessage           Name = "newChatMessage"
	NameNegotiationAccepted      Name = "negotiation_accepted"
	NameNegotiationRejected      Name = "negotiation_rejected"
	NameNegotiationCountered     Name = "negotiation_countered"
	NameNegotiationCancelled     Name = "negotiation_cancelled"
	NameJobCompleted             Name = "job_completed"
	NameDirectJobTaken           Name = "direct_job_taken"
	NameDirectJobCompleted       Name = "direct_job_completed"
	NameDirectJobClientCompleted Name = "direct_job_client_completed"
	NameUnreadCountUpdate        Name = "unreadMessageCountUpdate"
)

// JobEventNames lists every event that carries a job status update.
var JobEventNames = []Name{
	NameNegotiationAccepted,
	NameNegotiationRejected,
	NameNegotiationCountered,
	NameNegotiationCancelled,
	NameJobCompleted,
	NameDirectJobTaken,
	NameDirectJobCompleted,
	NameDirectJobClientCompleted,
}

// Envelope is the wire frame: a named event with an opaque payload, decoded
// into a typed value at the transport boundary.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrUnknownEvent wraps event names this client does not understand.
type ErrUnknownEvent struct {
	Name Name
}

func (e *ErrUnknownEvent) Error() string {
	return fmt.Sprintf("unknown event: %s", e.Name)
}

// Connected is the payload-free server acknowledgement of a connection.
type Connected struct{}

// ChatMessage is the payload of newChatMessage.
type ChatMessage struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	JobID          string    `json:"job_id,omitempty"`
	TrainingRoomID string    `json:"training_room_id,omitempty"`
	ClientRef      string    `json:"client_ref,omitempty"`
	Content        string    `json:"content"`
	FileURL        string    `json:"file_url,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// JobUpdate is the payload shared by all job status events. Older server
// builds key the entity by negotiationId rather than jobId.
type JobUpdate struct {
	JobID         string `json:"jobId,omitempty"`
	NegotiationID string `json:"negotiationId,omitempty"`
	NewStatus     string `json:"newStatus,omitempty"`
	Seq           int64  `json:"seq"`
}

// EntityID returns the job id regardless of which wire key carried it.
func (u JobUpdate) EntityID() string {
	if u.JobID != "" {
		return u.JobID
	}
	return u.NegotiationID
}

// UnreadCountUpdate is the payload of unreadMessageCountUpdate.
type UnreadCountUpdate struct {
	UserID string `json:"userId"`
	Change int    `json:"change"`
}

// impliedStatus maps event names to the job status they announce when the
// payload omits newStatus. negotiation_countered has no implied status: the
// counter direction is only known from the payload.
var impliedStatus = map[Name]job.Status{
	NameNegotiationAccepted:      job.StatusAcceptedAwaitingPayment,
	NameNegotiationRejected:      job.StatusRejected,
	NameNegotiationCancelled:     job.StatusCancelled,
	NameJobCompleted:             job.StatusCompleted,
	NameDirectJobTaken:           job.StatusTaken,
	NameDirectJobCompleted:       job.StatusCompleted,
	NameDirectJobClientCompleted: job.StatusClientCompleted,
}

// TargetStatus resolves the job status announced by a job event, preferring
// the payload's explicit newStatus over the status implied by the name.
func TargetStatus(name Name, u JobUpdate) (job.Status, bool) {
	if u.NewStatus != "" {
		return job.Status(u.NewStatus), true
	}
	s, ok := impliedStatus[name]
	return s, ok
}

// Decode turns an envelope into its typed payload. Unknown names return
// *ErrUnknownEvent so the router can drop them without failing the read loop.
func Decode(env Envelope) (any, error) {
	switch env.Event {
	case NameConnect:
		return Connected{}, nil
	case NameNewChatMessage:
		var m ChatMessage
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Event, err)
		}
		return m, nil
	case NameNegotiationAccepted, NameNegotiationRejected, NameNegotiationCountered,
		NameNegotiationCancelled, NameJobCompleted, NameDirectJobTaken,
		NameDirectJobCompleted, NameDirectJobClientCompleted:
		var u JobUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Event, err)
		}
		return u, nil
	case NameUnreadCountUpdate:
		var u UnreadCountUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Event, err)
		}
		return u, nil
	default:
		return nil, &ErrUnknownEvent{Name: env.Event}
	}
}
