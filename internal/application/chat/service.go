// Package chat maintains the canonical ordered chat message lists, merging
// locally originated optimistic messages with server-confirmed echoes.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/scribemarket/scribemarket/internal/domain/message"
	"github.com/scribemarket/scribemarket/internal/events"
	"github.com/scribemarket/scribemarket/internal/restapi"
)

var (
	// ErrSendFailed wraps a failed send after the optimistic entry was
	// rolled back. The caller decides whether to offer a retry.
	ErrSendFailed = errors.New("message send failed")
	// ErrNoIdentity is returned for sends before an identity is set.
	ErrNoIdentity = errors.New("no identity set")
)

// SendInput describes an outgoing chat message.
type SendInput struct {
	ReceiverID     string
	JobID          string
	TrainingRoomID string
	Content        string
	FileURL        string
	FileName       string
}

// Service is the message reconciler. The canonical lists are only mutated
// here: optimistically on send, authoritatively on event application.
type Service struct {
	api    restapi.Client
	logger zerolog.Logger

	mu            sync.Mutex
	selfID        string
	conversations map[string][]*message.Message
	confirmedIDs  map[string]struct{}
	unread        map[string]int
}

// NewService creates a chat service.
func NewService(api restapi.Client, logger zerolog.Logger) *Service {
	return &Service{
		api:           api,
		logger:        logger.With().Str("service", "chat").Logger(),
		conversations: make(map[string][]*message.Message),
		confirmedIDs:  make(map[string]struct{}),
		unread:        make(map[string]int),
	}
}

// SetIdentity binds the service to the logged-in identity and resets all
// canonical state, since conversations belong to a single session.
func (s *Service) SetIdentity(identityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = identityID
	s.conversations = make(map[string][]*message.Message)
	s.confirmedIDs = make(map[string]struct{})
	s.unread = make(map[string]int)
}

// Bind registers the service's event handlers on the router and returns the
// subscriptions for later release.
func (s *Service) Bind(r *events.Router) []events.Subscription {
	return []events.Subscription{
		r.On(events.NameNewChatMessage, func(evt any) {
			if m, ok := evt.(events.ChatMessage); ok {
				s.Reconcile(m)
			}
		}),
		r.On(events.NameUnreadCountUpdate, func(evt any) {
			if u, ok := evt.(events.UnreadCountUpdate); ok {
				s.HandleUnread(u)
			}
		}),
	}
}

// Send appends an optimistic message and issues the REST send. On failure
// the optimistic entry is rolled back; no automatic retry.
func (s *Service) Send(ctx context.Context, in SendInput) (*message.Message, error) {
	s.mu.Lock()
	if s.selfID == "" {
		s.mu.Unlock()
		return nil, ErrNoIdentity
	}
	m := message.NewOptimistic(s.selfID, in.ReceiverID, in.JobID, in.TrainingRoomID, in.Content, in.FileURL, in.FileName)
	s.appendLocked(m)
	// snapshot before releasing the lock: once the REST call is in
	// flight the echo may confirm the stored entry concurrently
	out := *m
	s.mu.Unlock()

	err := s.api.SendMessage(ctx, restapi.SendMessageRequest{
		ReceiverID:     in.ReceiverID,
		JobID:          in.JobID,
		TrainingRoomID: in.TrainingRoomID,
		MessageText:    in.Content,
		FileURL:        in.FileURL,
		FileName:       in.FileName,
		ClientRef:      out.ClientRef,
	})
	if err != nil {
		s.Rollback(out.ID)
		if errors.Is(err, restapi.ErrAuthExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	return &out, nil
}

// AppendOptimistic adds a locally created message and returns its temporary
// id. Exposed for callers that manage the REST send themselves.
func (s *Service) AppendOptimistic(m *message.Message) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(m)
	return m.ID
}

// Rollback removes an optimistic entry after a failed send.
func (s *Service) Rollback(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, list := range s.conversations {
		for i, m := range list {
			if m.ID == tempID && m.IsOptimistic() {
				s.conversations[key] = append(list[:i:i], list[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Reconcile merges a server-confirmed message into the canonical list.
// Matching order: already-seen confirmed id (no-op), client token, content
// equality against optimistic entries from this sender, then append.
func (s *Service) Reconcile(in events.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.confirmedIDs[in.ID]; seen {
		return
	}

	key := s.conversationKey(in.JobID, in.TrainingRoomID, in.SenderID, in.ReceiverID)
	list := s.conversations[key]

	if in.ClientRef != "" {
		for _, m := range list {
			if m.IsOptimistic() && m.ClientRef == in.ClientRef {
				m.Confirm(in.ID, in.Timestamp)
				s.confirmedIDs[in.ID] = struct{}{}
				return
			}
		}
	}

	echo := &message.Message{
		SenderID:       in.SenderID,
		Content:        in.Content,
		FileURL:        in.FileURL,
		JobID:          in.JobID,
		TrainingRoomID: in.TrainingRoomID,
	}
	if in.SenderID == s.selfID {
		for _, m := range list {
			if m.MatchesEcho(echo) {
				m.Confirm(in.ID, in.Timestamp)
				s.confirmedIDs[in.ID] = struct{}{}
				return
			}
		}
	}

	confirmed := &message.Message{
		ID:             in.ID,
		ClientRef:      in.ClientRef,
		JobID:          in.JobID,
		TrainingRoomID: in.TrainingRoomID,
		SenderID:       in.SenderID,
		ReceiverID:     in.ReceiverID,
		Content:        in.Content,
		FileURL:        in.FileURL,
		FileName:       in.FileName,
		CreatedAt:      in.Timestamp,
		DeliveryState:  message.DeliveryConfirmed,
	}
	s.appendLocked(confirmed)
	s.confirmedIDs[in.ID] = struct{}{}
}

// ListForJob returns the canonical ordered list for a job conversation.
func (s *Service) ListForJob(jobID string) []*message.Message {
	return s.list("job:" + jobID)
}

// ListForPeer returns the canonical ordered list for a direct conversation.
func (s *Service) ListForPeer(peerID string) []*message.Message {
	return s.list("peer:" + peerID)
}

// ListForRoom returns the canonical ordered list for a training room.
func (s *Service) ListForRoom(roomID string) []*message.Message {
	return s.list("room:" + roomID)
}

// UploadAttachment stores an attachment and returns its URL for a
// subsequent Send.
func (s *Service) UploadAttachment(ctx context.Context, fileName string, content io.Reader) (*restapi.Upload, error) {
	up, err := s.api.UploadAttachment(ctx, fileName, content)
	if err != nil {
		if errors.Is(err, restapi.ErrAuthExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return up, nil
}

// HandleUnread applies a badge counter delta. The counter lives outside the
// canonical message list.
func (s *Service) HandleUnread(u events.UnreadCountUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.unread[u.UserID] + u.Change
	if n < 0 {
		n = 0
	}
	s.unread[u.UserID] = n
}

// Unread returns the badge count for a peer.
func (s *Service) Unread(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[userID]
}

// MarkRead clears the badge count for a peer.
func (s *Service) MarkRead(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unread, userID)
}

func (s *Service) list(key string) []*message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.conversations[key]
	out := make([]*message.Message, len(list))
	for i, m := range list {
		cp := *m
		out[i] = &cp
	}
	return out
}

// appendLocked inserts a message keeping the list ordered by CreatedAt.
// Existing entries are never re-sorted: an optimistic entry that receives a
// later server timestamp on confirmation keeps its position.
func (s *Service) appendLocked(m *message.Message) {
	key := s.conversationKey(m.JobID, m.TrainingRoomID, m.SenderID, m.ReceiverID)
	list := s.conversations[key]
	i := len(list)
	for i > 0 && list[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = m
	s.conversations[key] = list
}

func (s *Service) conversationKey(jobID, roomID, senderID, receiverID string) string {
	switch {
	case jobID != "":
		return "job:" + jobID
	case roomID != "":
		return "room:" + roomID
	}
	peer := senderID
	if senderID == s.selfID {
		peer = receiverID
	}
	return "peer:" + peer
}
