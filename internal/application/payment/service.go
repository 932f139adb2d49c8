// Package payment drives the pay, verify, transition sequence against the
// external payment collaborator.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/scribemarket/scribemarket/internal/application/negotiation"
	"github.com/scribemarket/scribemarket/internal/domain/job"
	domainpayment "github.com/scribemarket/scribemarket/internal/domain/payment"
	"github.com/scribemarket/scribemarket/internal/restapi"
)

var (
	// ErrVerificationFailed is user-facing and never auto-retried: without
	// a settled reference a retry risks a double charge.
	ErrVerificationFailed = errors.New("payment verification failed, contact support")
	// ErrUnknownReference marks provider returns for references this
	// process never initiated.
	ErrUnknownReference = errors.New("unknown payment reference")
	// ErrJobNotPayable rejects initiation for jobs not awaiting payment.
	ErrJobNotPayable = errors.New("job is not awaiting payment")
)

// Widget is the external provider widget. Close must complete before the
// verify call is issued so widget teardown and verification never overlap.
type Widget interface {
	Close(reference string)
}

// NopWidget is used when no provider widget is mounted.
type NopWidget struct{}

func (NopWidget) Close(string) {}

// Service is the payment callback handler.
type Service struct {
	api    restapi.Client
	jobs   *negotiation.Service
	widget Widget
	logger zerolog.Logger

	mu       sync.Mutex
	attempts map[string]*domainpayment.Attempt
}

// NewService creates a payment service.
func NewService(api restapi.Client, jobs *negotiation.Service, widget Widget, logger zerolog.Logger) *Service {
	if widget == nil {
		widget = NopWidget{}
	}
	return &Service{
		api:      api,
		jobs:     jobs,
		widget:   widget,
		logger:   logger.With().Str("service", "payment").Logger(),
		attempts: make(map[string]*domainpayment.Attempt),
	}
}

// Initiate starts a payment attempt with the provider for a job awaiting
// payment. The returned attempt carries the provider reference the later
// browser return is keyed by.
func (s *Service) Initiate(ctx context.Context, jobID string, amount int64, method string) (*domainpayment.Attempt, error) {
	j, ok := s.jobs.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", negotiation.ErrUnknownJob, jobID)
	}
	if j.Status != job.StatusAcceptedAwaitingPayment {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotPayable, jobID, j.Status)
	}

	init, err := s.api.InitiatePayment(ctx, restapi.InitiatePaymentRequest{
		JobID:  jobID,
		Amount: amount,
		Method: method,
	})
	if err != nil {
		return nil, err
	}

	a := domainpayment.NewAttempt(jobID, init.Reference, amount, method)
	s.mu.Lock()
	s.attempts[init.Reference] = a
	s.mu.Unlock()

	s.logger.Info().Str("job", jobID).Str("reference", init.Reference).Msg("payment initiated")
	cp := *a
	return &cp, nil
}

// HandleProviderReturn processes the provider's success callback: close the
// widget, verify the payment, and apply the hired transition. On
// verification failure the job stays in accepted_awaiting_payment and a
// fresh attempt may be initiated.
func (s *Service) HandleProviderReturn(ctx context.Context, reference string) (*job.Job, error) {
	s.mu.Lock()
	a, ok := s.attempts[reference]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownReference, reference)
	}
	switch a.Status {
	case domainpayment.StatusVerified:
		// duplicate provider redirect after a settled attempt
		jobID := a.JobID
		s.mu.Unlock()
		j, _ := s.jobs.Get(jobID)
		return j, nil
	case domainpayment.StatusFailed:
		s.mu.Unlock()
		return nil, ErrVerificationFailed
	}
	s.mu.Unlock()

	// widget teardown must finish before verification starts
	s.widget.Close(reference)

	s.mu.Lock()
	if a.Status == domainpayment.StatusInitiated {
		_ = a.AwaitVerification()
	}
	s.mu.Unlock()

	v, err := s.api.VerifyPayment(ctx, reference)
	if err != nil {
		if errors.Is(err, restapi.ErrAuthExpired) {
			return nil, err
		}
		// no automatic retry without a settled reference
		s.logger.Error().Err(err).Str("reference", reference).Msg("verify call failed")
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if !v.Verified {
		s.mu.Lock()
		_ = a.Fail()
		s.mu.Unlock()
		return nil, ErrVerificationFailed
	}

	s.mu.Lock()
	_ = a.Verify()
	jobID := a.JobID
	s.mu.Unlock()

	j, err := s.jobs.Apply(job.Event{JobID: jobID, TargetStatus: job.StatusHired, Seq: v.Seq})
	if err != nil && !errors.Is(err, job.ErrStaleEvent) {
		// the hired event may also arrive over the transport first; a
		// stale seq here just means it already won
		s.logger.Warn().Err(err).Str("job", jobID).Msg("hired transition rejected")
		return j, err
	}
	return j, nil
}

// HandleProviderCancel processes the widget's closed-by-user callback. The
// attempt settles failed so a fresh one can be created; the job is
// untouched and nothing is surfaced to the user.
func (s *Service) HandleProviderCancel(reference string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[reference]
	if !ok {
		return
	}
	if !a.IsTerminal() {
		_ = a.Fail()
		s.logger.Info().Str("reference", reference).Msg("payment cancelled by user")
	}
}

// Attempt returns a copy of an attempt by provider reference.
func (s *Service) Attempt(reference string) (*domainpayment.Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[reference]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}
