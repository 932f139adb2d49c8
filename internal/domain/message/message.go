package message

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryState represents how far a chat message has progressed towards
// server confirmation.
type DeliveryState string

const (
	// DeliveryOptimistic marks a locally created message shown before the
	// server has echoed it back.
	DeliveryOptimistic DeliveryState = "OPTIMISTIC"
	// DeliveryConfirmed marks a message with a server-assigned id.
	DeliveryConfirmed DeliveryState = "CONFIRMED"
)

// Message represents a chat message between two marketplace parties,
// optionally scoped to a job or training room. Content is immutable once
// confirmed; only ID, CreatedAt and DeliveryState change on confirmation.
type Message struct {
	ID             string        `json:"id"`
	ClientRef      string        `json:"clientRef,omitempty"`
	JobID          string        `json:"jobId,omitempty"`
	TrainingRoomID string        `json:"trainingRoomId,omitempty"`
	SenderID       string        `json:"senderId"`
	ReceiverID     string        `json:"receiverId"`
	Content        string        `json:"content"`
	FileURL        string        `json:"fileUrl,omitempty"`
	FileName       string        `json:"fileName,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	DeliveryState  DeliveryState `json:"deliveryState"`
}

// NewOptimistic creates the local-first representation of an outgoing
// message. The temporary id and the client reference are both generated
// here; the client reference is sent to the server and echoed back so the
// confirmed copy can be matched without relying on content equality.
func NewOptimistic(senderID, receiverID, jobID, trainingRoomID, content, fileURL, fileName string) *Message {
	return &Message{
		ID:             "tmp-" + uuid.NewString(),
		ClientRef:      uuid.NewString(),
		JobID:          jobID,
		TrainingRoomID: trainingRoomID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		FileURL:        fileURL,
		FileName:       fileName,
		CreatedAt:      time.Now().UTC(),
		DeliveryState:  DeliveryOptimistic,
	}
}

// IsOptimistic reports whether the message still awaits server confirmation.
func (m *Message) IsOptimistic() bool {
	return m.DeliveryState == DeliveryOptimistic
}

// MatchesEcho reports whether a server echo plausibly confirms this
// optimistic message, ignoring server-assigned id and timestamp. Used only
// as a fallback when the server did not round-trip the client reference.
func (m *Message) MatchesEcho(echo *Message) bool {
	return m.IsOptimistic() &&
		m.SenderID == echo.SenderID &&
		m.Content == echo.Content &&
		m.FileURL == echo.FileURL &&
		m.JobID == echo.JobID &&
		m.TrainingRoomID == echo.TrainingRoomID
}

// Confirm replaces the local identity of the message with the
// server-assigned one.
func (m *Message) Confirm(serverID string, serverTime time.Time) {
	m.ID = serverID
	if !serverTime.IsZero() {
		m.CreatedAt = serverTime
	}
	m.DeliveryState = DeliveryConfirmed
}
