// Package httpapi serves the payment provider's browser-return callbacks.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	apppayment "github.com/scribemarket/scribemarket/internal/application/payment"
	"github.com/scribemarket/scribemarket/internal/restapi"
)

// Server holds dependencies for the callback handlers.
type Server struct {
	paymentSvc *apppayment.Service
	logger     zerolog.Logger
}

// NewServer creates the callback server.
func NewServer(paymentSvc *apppayment.Service, logger zerolog.Logger) *Server {
	return &Server{
		paymentSvc: paymentSvc,
		logger:     logger.With().Str("service", "httpapi").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health)
	r.Route("/payments", func(r chi.Router) {
		r.Get("/return", s.paymentReturn)
		r.Get("/cancel", s.paymentCancel)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// paymentReturn is the provider's success redirect: verify the attempt and
// report the resulting job status.
func (s *Server) paymentReturn(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "reference is required")
		return
	}

	j, err := s.paymentSvc.HandleProviderReturn(r.Context(), reference)
	switch {
	case errors.Is(err, apppayment.ErrUnknownReference):
		respondError(w, http.StatusNotFound, "UNKNOWN_REFERENCE", err.Error())
	case errors.Is(err, restapi.ErrAuthExpired):
		respondError(w, http.StatusUnauthorized, "AUTH_EXPIRED", "session expired, sign in again")
	case errors.Is(err, apppayment.ErrVerificationFailed):
		respondError(w, http.StatusBadGateway, "VERIFICATION_FAILED", err.Error())
	case err != nil:
		s.logger.Error().Err(err).Str("reference", reference).Msg("payment return failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	default:
		respondJSON(w, http.StatusOK, map[string]any{
			"status": "verified",
			"job":    j,
		})
	}
}

// paymentCancel is the provider's closed-by-user redirect; it never errors.
func (s *Server) paymentCancel(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference != "" {
		s.paymentSvc.HandleProviderCancel(reference)
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}
