package http

import (
	"errors"
	"net/http"
	"slices"

	"subtrack/internal/core"
	"subtrack/internal/log"
	"subtrack/internal/services"
)

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	by, err := ParseSort(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	now := s.now()
	key := string(by) + "|" + services.Today(now).String()
	if views, found := s.listCache.Get(key); found {
		log.FromContext(ctx).DebugContext(ctx, "List cache hit", "sort", by, log.FieldCount, len(views))
		OK(slices.Clone(views)).Write(w)
		return
	}

	subs, err := s.service.List(ctx, by, now)
	if err != nil {
		log.FromContext(ctx).LogError(ctx, "List subscriptions failed", err, log.OpList)
		InternalServerError("could not list subscriptions").Write(w)
		return
	}
	views := newSubscriptionViews(subs, now)
	s.listCache.Set(key, views)
	OK(views).Write(w)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err, log.OpRead)
		return
	}
	OK(newSubscriptionView(sub, services.Today(s.now()))).Write(w)
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readInput(w, r)
	if !ok {
		return
	}
	sub, err := s.service.Create(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpCreate)
		return
	}
	s.invalidateLists()
	Created(newSubscriptionView(sub, services.Today(s.now()))).
		Header("Location", "/api/subscriptions/"+sub.ID).
		Write(w)
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readInput(w, r)
	if !ok {
		return
	}
	sub, err := s.service.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpUpdate)
		return
	}
	s.invalidateLists()
	OK(newSubscriptionView(sub, services.Today(s.now()))).Write(w)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err, log.OpDelete)
		return
	}
	s.invalidateLists()
	NoContent().Write(w)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.service.Totals(r.Context(), s.now())
	if err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Totals failed", err, log.OpRead)
		InternalServerError("could not compute totals").Write(w)
		return
	}
	OK(totals).Write(w)
}

// readInput decodes and converts a create/update body. On failure the error
// response has already been written.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request) (core.SubscriptionInput, bool) {
	var req SubscriptionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rejected request body", log.FieldError, err)
		BadRequestError(err.Error()).Write(w)
		return core.SubscriptionInput{}, false
	}
	in, err := req.ToInput()
	if err != nil {
		UnprocessableEntityError(err).Write(w)
		return core.SubscriptionInput{}, false
	}
	return in, true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		NotFoundError("subscription not found").Write(w)
	case errors.Is(err, core.ErrValidation):
		UnprocessableEntityError(err).Write(w)
	default:
		log.FromContext(r.Context()).LogError(r.Context(), "Subscription operation failed", err, op,
			log.FieldSubscriptionID, r.PathValue("id"))
		InternalServerError("could not store subscription").Write(w)
	}
}
