package dispatchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/warden/internal/dispatch"
)

// DispatchService defines the business operations dispatchapi needs.
type DispatchService interface {
	SubmitSignal(ctx context.Context, in *dispatch.SignalInput) (*dispatch.SubmitResult, error)
	RespondToAlert(ctx context.Context, alertID, guardID string, decision dispatch.Decision) (*dispatch.RespondResult, error)
	UpdateGuardLocation(ctx context.Context, guardID, beaconID string, at time.Time) error
	MarkInProgress(ctx context.Context, incidentID, guardID string) error
	ResolveIncident(ctx context.Context, incidentID string, actor dispatch.Actor) error
	IncidentDetail(ctx context.Context, id string) (*dispatch.IncidentDetail, bool, error)
	ListIncidents(ctx context.Context, status dispatch.IncidentStatus) ([]*dispatch.Incident, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    DispatchService
}

// New creates a new API handler.
func New(logger log.Logger, svc DispatchService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("dispatch service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/signals", a.handleSubmitSignal)
		r.Post("/guards/{id}/location", a.handleGuardLocation)
		r.Post("/alerts/{id}/respond", a.handleRespond)
		r.Post("/incidents/{id}/progress", a.handleMarkInProgress)
		r.Post("/incidents/{id}/resolve", a.handleResolve)
		r.Get("/incidents/{id}", a.handleGetIncident)
		r.Get("/incidents", a.handleListIncidents)
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dispatch.ErrValidation):
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, dispatch.ErrUnknownBeacon):
		a.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, dispatch.ErrNotFound):
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	case errors.Is(err, dispatch.ErrNotEligible):
		http.Error(w, `{"error":"not eligible"}`, http.StatusForbidden)
	case errors.Is(err, dispatch.ErrIncidentClosed):
		http.Error(w, `{"error":"incident resolved"}`, http.StatusConflict)
	default:
		a.logger.Error(r.Context(), err, "request failed",
			"method", r.Method,
			"path", r.URL.Path,
		)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
