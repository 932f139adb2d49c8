// Package syncer re-fetches authoritative state after reconnects. The
// transport does not replay events missed while disconnected, so every
// Connected transition flagged for resync triggers a full fetch of the job
// list and per-room message history, replayed through the idempotent
// apply/reconcile paths.
package syncer

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/scribemarket/scribemarket/internal/application/chat"
	"github.com/scribemarket/scribemarket/internal/application/connection"
	"github.com/scribemarket/scribemarket/internal/application/negotiation"
	"github.com/scribemarket/scribemarket/internal/domain/job"
	"github.com/scribemarket/scribemarket/internal/domain/session"
	"github.com/scribemarket/scribemarket/internal/restapi"
)

// Service listens for connection state changes and resynchronizes.
type Service struct {
	api    restapi.Client
	jobs   *negotiation.Service
	chat   *chat.Service
	mgr    *connection.Manager
	logger zerolog.Logger

	// OnAuthExpired is invoked when a resync fetch is rejected for a stale
	// bearer token; the composition root tears the session down.
	OnAuthExpired func()
}

// NewService creates a syncer.
func NewService(api restapi.Client, jobs *negotiation.Service, chatSvc *chat.Service, mgr *connection.Manager, logger zerolog.Logger) *Service {
	return &Service{
		api:    api,
		jobs:   jobs,
		chat:   chatSvc,
		mgr:    mgr,
		logger: logger.With().Str("service", "syncer").Logger(),
	}
}

// Run blocks consuming connection state changes until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ch, cancel := s.mgr.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			if change.State == session.StateConnected && change.Resync {
				s.Resync(ctx)
			}
		}
	}
}

// Resync fetches the authoritative job list and message history for every
// joined room. Overlap with events that did arrive is discarded by the
// seq guard and the confirmed-id check.
func (s *Service) Resync(ctx context.Context) {
	s.logger.Info().Msg("resynchronizing after reconnect")

	records, err := s.api.ListJobs(ctx)
	if err != nil {
		s.fetchFailed("jobs", err)
		return
	}
	for _, rec := range records {
		s.jobs.Upsert(recordToJob(rec))
	}

	for _, room := range s.mgr.Rooms() {
		msgs, err := s.api.ListMessages(ctx, room)
		if err != nil {
			s.fetchFailed("messages", err)
			return
		}
		for _, m := range msgs {
			s.chat.Reconcile(m)
		}
	}
}

func (s *Service) fetchFailed(what string, err error) {
	if errors.Is(err, restapi.ErrAuthExpired) {
		s.logger.Warn().Msg("bearer token expired during resync")
		if s.OnAuthExpired != nil {
			s.OnAuthExpired()
		}
		return
	}
	s.logger.Error().Err(err).Str("fetch", what).Msg("resync fetch failed")
}

func recordToJob(rec restapi.JobRecord) *job.Job {
	return &job.Job{
		ID:           rec.ID,
		Kind:         job.Kind(rec.Kind),
		Status:       job.Status(rec.Status),
		ClientID:     rec.ClientID,
		ProviderID:   rec.ProviderID,
		AgreedPrice:  rec.AgreedPrice,
		CreatedAt:    rec.CreatedAt,
		LastEventSeq: rec.Seq,
	}
}
