// Package negotiation holds the canonical job map and applies
// server-authoritative status transitions. Local user actions only issue
// REST calls; the resulting state change always arrives as an event, so
// two parties racing on the same job converge on whichever transition the
// server accepted first.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/scribemarket/scribemarket/internal/domain/job"
	"github.com/scribemarket/scribemarket/internal/events"
	"github.com/scribemarket/scribemarket/internal/restapi"
)

var (
	// ErrUnknownJob marks events for jobs this process has no record of.
	ErrUnknownJob = errors.New("unknown job")
	// ErrInvalidFeedback rejects completion feedback outside the 1..5 range.
	ErrInvalidFeedback = errors.New("feedback rating must be between 1 and 5")
)

// Service is the job state machine.
type Service struct {
	api    restapi.Client
	logger zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*job.Job
}

// NewService creates a negotiation service.
func NewService(api restapi.Client, logger zerolog.Logger) *Service {
	return &Service{
		api:    api,
		logger: logger.With().Str("service", "negotiation").Logger(),
		jobs:   make(map[string]*job.Job),
	}
}

// Bind registers handlers for every job status event.
func (s *Service) Bind(r *events.Router) []events.Subscription {
	subs := make([]events.Subscription, 0, len(events.JobEventNames))
	for _, name := range events.JobEventNames {
		name := name
		subs = append(subs, r.On(name, func(evt any) {
			u, ok := evt.(events.JobUpdate)
			if !ok {
				return
			}
			target, ok := events.TargetStatus(name, u)
			if !ok {
				s.logger.Warn().Str("event", string(name)).Str("job", u.EntityID()).
					Msg("job event without resolvable status")
				return
			}
			_, err := s.Apply(job.Event{JobID: u.EntityID(), TargetStatus: target, Seq: u.Seq})
			switch {
			case err == nil:
			case errors.Is(err, job.ErrStaleEvent), errors.Is(err, job.ErrInvalidTransition):
				// a race already resolved elsewhere; nothing user-facing
				s.logger.Debug().Err(err).Str("job", u.EntityID()).Msg("job event discarded")
			case errors.Is(err, ErrUnknownJob):
				s.logger.Debug().Str("job", u.EntityID()).Msg("event for unknown job ignored")
			default:
				s.logger.Error().Err(err).Str("job", u.EntityID()).Msg("job event failed")
			}
		}))
	}
	return subs
}

// Apply validates and applies one authoritative status event, returning the
// updated job. Stale and invalid events leave the job untouched and return
// the corresponding typed error alongside the unchanged job.
func (s *Service) Apply(e job.Event) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[e.JobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, e.JobID)
	}
	if err := j.ApplyEvent(e); err != nil {
		cp := *j
		return &cp, err
	}
	cp := *j
	return &cp, nil
}

// Upsert seeds or refreshes a job from an authoritative fetch. A stored job
// that has already applied a newer event than the fetched snapshot wins.
func (s *Service) Upsert(j *job.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[j.ID]; ok && existing.LastEventSeq > j.LastEventSeq {
		return
	}
	cp := *j
	s.jobs[j.ID] = &cp
}

// Get returns a copy of a job.
func (s *Service) Get(jobID string) (*job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	cp := *j
	return &cp, true
}

// List returns copies of all known jobs, ordered by id.
func (s *Service) List() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// AcceptCounter asks the server to accept the standing counter-offer. The
// local job is not touched; the accepted state arrives as an event.
func (s *Service) AcceptCounter(ctx context.Context, jobID string) error {
	return s.api.AcceptNegotiation(ctx, jobID)
}

// Reject asks the server to reject the negotiation.
func (s *Service) Reject(ctx context.Context, jobID string) error {
	return s.api.RejectNegotiation(ctx, jobID)
}

// Counter proposes a new price.
func (s *Service) Counter(ctx context.Context, jobID string, price int64) error {
	return s.api.CounterNegotiation(ctx, jobID, price)
}

// Cancel asks the server to cancel the negotiation.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	return s.api.CancelNegotiation(ctx, jobID)
}

// Complete marks a hired job finished. Client-initiated completion carries
// mandatory feedback; provider-initiated completion passes nil.
func (s *Service) Complete(ctx context.Context, jobID string, fb *restapi.Feedback) error {
	if fb != nil && (fb.Rating < 1 || fb.Rating > 5) {
		return fmt.Errorf("%w: got %d", ErrInvalidFeedback, fb.Rating)
	}
	return s.api.CompleteJob(ctx, jobID, fb)
}
