package negotiation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scribemarket/scribemarket/internal/domain/job"
	"github.com/scribemarket/scribemarket/internal/events"
	"github.com/scribemarket/scribemarket/internal/restapi"
	"github.com/scribemarket/scribemarket/internal/restapi/mocks"
)

func seededService(status job.Status, seq int64) (*Service, *mocks.MockClient) {
	api := &mocks.MockClient{}
	s := NewService(api, zerolog.Nop())
	s.Upsert(&job.Job{
		ID:           "J1",
		Kind:         job.KindNegotiation,
		Status:       status,
		ClientID:     "client-1",
		ProviderID:   "provider-1",
		CreatedAt:    time.Now().UTC(),
		LastEventSeq: seq,
	})
	return s, api
}

func TestApply_ValidTransition(t *testing.T) {
	s, _ := seededService(job.StatusAcceptedAwaitingPayment, 3)

	j, err := s.Apply(job.Event{JobID: "J1", TargetStatus: job.StatusHired, Seq: 4})

	require.NoError(t, err)
	assert.Equal(t, job.StatusHired, j.Status)
	assert.Equal(t, int64(4), j.LastEventSeq)
}

func TestApply_UnreachableStatusRejected(t *testing.T) {
	// hired is unreachable from pending; the job and its seq stay put.
	s, _ := seededService(job.StatusPending, 3)

	j, err := s.Apply(job.Event{JobID: "J1", TargetStatus: job.StatusHired, Seq: 5})

	require.ErrorIs(t, err, job.ErrInvalidTransition)
	assert.Equal(t, job.StatusPending, j.Status)
	assert.Equal(t, int64(3), j.LastEventSeq)
}

func TestApply_StaleEventIsNoOp(t *testing.T) {
	s, _ := seededService(job.StatusPending, 3)

	j, err := s.Apply(job.Event{JobID: "J1", TargetStatus: job.StatusTranscriberCounter, Seq: 2})

	require.ErrorIs(t, err, job.ErrStaleEvent)
	assert.Equal(t, job.StatusPending, j.Status)
}

func TestApply_UnknownJob(t *testing.T) {
	s, _ := seededService(job.StatusPending, 0)

	_, err := s.Apply(job.Event{JobID: "nope", TargetStatus: job.StatusRejected, Seq: 1})

	require.ErrorIs(t, err, ErrUnknownJob)
}

func TestUpsert_NeverRegressesAppliedState(t *testing.T) {
	s, _ := seededService(job.StatusPending, 1)
	_, err := s.Apply(job.Event{JobID: "J1", TargetStatus: job.StatusTranscriberCounter, Seq: 5})
	require.NoError(t, err)

	// A resync snapshot taken before the event landed must not win.
	s.Upsert(&job.Job{ID: "J1", Kind: job.KindNegotiation, Status: job.StatusPending, LastEventSeq: 3})

	j, ok := s.Get("J1")
	require.True(t, ok)
	assert.Equal(t, job.StatusTranscriberCounter, j.Status)
	assert.Equal(t, int64(5), j.LastEventSeq)
}

func TestUpsert_NewerSnapshotWins(t *testing.T) {
	s, _ := seededService(job.StatusPending, 1)

	s.Upsert(&job.Job{ID: "J1", Kind: job.KindNegotiation, Status: job.StatusHired, LastEventSeq: 9})

	j, _ := s.Get("J1")
	assert.Equal(t, job.StatusHired, j.Status)
}

func TestBind_AppliesRoutedJobEvents(t *testing.T) {
	s, _ := seededService(job.StatusTranscriberCounter, 1)
	r := events.NewRouter(zerolog.Nop())
	s.Bind(r)

	r.Dispatch(events.Envelope{
		Event: events.NameNegotiationAccepted,
		Data:  json.RawMessage(`{"jobId":"J1","seq":2}`),
	})

	j, _ := s.Get("J1")
	assert.Equal(t, job.StatusAcceptedAwaitingPayment, j.Status)
}

func TestBind_LegacyNegotiationIDKey(t *testing.T) {
	s, _ := seededService(job.StatusPending, 1)
	r := events.NewRouter(zerolog.Nop())
	s.Bind(r)

	r.Dispatch(events.Envelope{
		Event: events.NameNegotiationRejected,
		Data:  json.RawMessage(`{"negotiationId":"J1","seq":2}`),
	})

	j, _ := s.Get("J1")
	assert.Equal(t, job.StatusRejected, j.Status)
}

func TestBind_CounteredUsesExplicitNewStatus(t *testing.T) {
	s, _ := seededService(job.StatusTranscriberCounter, 1)
	r := events.NewRouter(zerolog.Nop())
	s.Bind(r)

	r.Dispatch(events.Envelope{
		Event: events.NameNegotiationCountered,
		Data:  json.RawMessage(`{"jobId":"J1","newStatus":"client_counter","seq":2}`),
	})

	j, _ := s.Get("J1")
	assert.Equal(t, job.StatusClientCounter, j.Status)
}

func TestBind_RedeliveredEventIsDiscardedQuietly(t *testing.T) {
	s, _ := seededService(job.StatusTranscriberCounter, 1)
	r := events.NewRouter(zerolog.Nop())
	s.Bind(r)
	env := events.Envelope{
		Event: events.NameNegotiationAccepted,
		Data:  json.RawMessage(`{"jobId":"J1","seq":2}`),
	}

	r.Dispatch(env)
	r.Dispatch(env)

	j, _ := s.Get("J1")
	assert.Equal(t, job.StatusAcceptedAwaitingPayment, j.Status)
	assert.Equal(t, int64(2), j.LastEventSeq)
}

func TestBind_DirectJobEvents(t *testing.T) {
	api := &mocks.MockClient{}
	s := NewService(api, zerolog.Nop())
	s.Upsert(&job.Job{ID: "D1", Kind: job.KindDirectUpload, Status: job.StatusAvailable, LastEventSeq: 0})
	r := events.NewRouter(zerolog.Nop())
	s.Bind(r)

	r.Dispatch(events.Envelope{Event: events.NameDirectJobTaken, Data: json.RawMessage(`{"jobId":"D1","seq":1}`)})
	r.Dispatch(events.Envelope{Event: events.NameDirectJobClientCompleted, Data: json.RawMessage(`{"jobId":"D1","seq":2}`)})

	j, _ := s.Get("D1")
	assert.Equal(t, job.StatusClientCompleted, j.Status)
}

func TestLocalActions_OnlyIssueRESTCalls(t *testing.T) {
	s, api := seededService(job.StatusTranscriberCounter, 1)
	ctx := context.Background()
	api.On("AcceptNegotiation", mock.Anything, "J1").Return(nil)
	api.On("CounterNegotiation", mock.Anything, "J1", int64(7500)).Return(nil)
	api.On("RejectNegotiation", mock.Anything, "J1").Return(nil)
	api.On("CancelNegotiation", mock.Anything, "J1").Return(nil)

	require.NoError(t, s.AcceptCounter(ctx, "J1"))
	require.NoError(t, s.Counter(ctx, "J1", 7500))
	require.NoError(t, s.Reject(ctx, "J1"))
	require.NoError(t, s.Cancel(ctx, "J1"))

	// The canonical job only moves when the event arrives.
	j, _ := s.Get("J1")
	assert.Equal(t, job.StatusTranscriberCounter, j.Status)
	assert.Equal(t, int64(1), j.LastEventSeq)
	api.AssertExpectations(t)
}

func TestComplete_FeedbackValidation(t *testing.T) {
	s, api := seededService(job.StatusHired, 1)
	api.On("CompleteJob", mock.Anything, "J1", mock.Anything).Return(nil)

	require.ErrorIs(t, s.Complete(context.Background(), "J1", &restapi.Feedback{Rating: 0}), ErrInvalidFeedback)
	require.ErrorIs(t, s.Complete(context.Background(), "J1", &restapi.Feedback{Rating: 6}), ErrInvalidFeedback)
	require.NoError(t, s.Complete(context.Background(), "J1", &restapi.Feedback{Rating: 5, Comment: "great"}))
	require.NoError(t, s.Complete(context.Background(), "J1", nil), "provider completion has no feedback")
}

func TestList_SortedCopies(t *testing.T) {
	s, _ := seededService(job.StatusPending, 1)
	s.Upsert(&job.Job{ID: "A9", Kind: job.KindNegotiation, Status: job.StatusPending})

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "A9", list[0].ID)
	assert.Equal(t, "J1", list[1].ID)

	list[0].Status = job.StatusCancelled
	j, _ := s.Get("A9")
	assert.Equal(t, job.StatusPending, j.Status, "List returns copies")
}
