package http

import (
	"context"
	"net/http"
	"time"

	"subtrack/internal/log"
	"subtrack/internal/rates"
)

const readyTimeout = 3 * time.Second

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ServiceUnavailableError("backend not ready").Write(w)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if s.rates == nil {
		OK(rates.Fallback()).Write(w)
		return
	}
	OK(s.rates.Current(r.Context())).Write(w)
}

// handleRefreshRates forces a fetch. The provider never fails: on error it
// answers with the stale or fallback table, whose source says which.
func (s *Server) handleRefreshRates(w http.ResponseWriter, r *http.Request) {
	if s.rates == nil {
		ServiceUnavailableError("exchange rates are not configured").Write(w)
		return
	}
	table := s.rates.Refresh(r.Context())
	log.FromContext(r.Context()).InfoContext(r.Context(), "Exchange rates refreshed on request",
		log.FieldRatesSource, table.Source)
	OK(table).Write(w)
}
