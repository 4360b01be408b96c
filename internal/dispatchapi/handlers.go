package dispatchapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/warden/internal/authmw"
	"github.com/linnemanlabs/warden/internal/dispatch"
)

type signalRequest struct {
	BeaconID   string              `json:"beacon_id"`
	Location   string              `json:"location"`
	Type       dispatch.SignalType `json:"signal_type"`
	Confidence *float64            `json:"confidence"`
	SourceUser string              `json:"source_user"`
}

func (a *API) handleSubmitSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	res, err := a.svc.SubmitSignal(r.Context(), &dispatch.SignalInput{
		BeaconID:   req.BeaconID,
		Location:   req.Location,
		Type:       req.Type,
		Confidence: req.Confidence,
		SourceUser: req.SourceUser,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("warden.signal.outcome", string(res.Outcome)),
		attribute.String("warden.incident.id", res.IncidentID),
	)

	a.writeJSON(w, http.StatusAccepted, res)
}

type locationRequest struct {
	BeaconID string     `json:"beacon_id"`
	At       *time.Time `json:"at"`
}

func (a *API) handleGuardLocation(w http.ResponseWriter, r *http.Request) {
	guardID := chi.URLParam(r, "id")

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	at := time.Now()
	if req.At != nil {
		at = *req.At
	}

	if err := a.svc.UpdateGuardLocation(r.Context(), guardID, req.BeaconID, at); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type respondRequest struct {
	GuardID  string            `json:"guard_id"`
	Decision dispatch.Decision `json:"decision"`
}

func (a *API) handleRespond(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	res, err := a.svc.RespondToAlert(r.Context(), alertID, req.GuardID, req.Decision)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("warden.alert.id", alertID),
		attribute.String("warden.respond.outcome", string(res.Outcome)),
	)

	a.writeJSON(w, http.StatusOK, res)
}

type progressRequest struct {
	GuardID string `json:"guard_id"`
}

func (a *API) handleMarkInProgress(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "id")

	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	if err := a.svc.MarkInProgress(r.Context(), incidentID, req.GuardID); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type resolveRequest struct {
	ActorID string `json:"actor_id"`
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "id")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	actor := dispatch.Actor{
		ID:    req.ActorID,
		Admin: authmw.IsAdmin(r.Context()),
	}

	if err := a.svc.ResolveIncident(r.Context(), incidentID, actor); err != nil {
		a.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("warden.incident.id", id))

	detail, ok, err := a.svc.IncidentDetail(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("warden.incident.status", string(detail.Incident.Status)))

	a.writeJSON(w, http.StatusOK, detail)
}

var listStatuses = map[dispatch.IncidentStatus]bool{
	"":                          true,
	dispatch.IncidentCreated:    true,
	dispatch.IncidentAssigned:   true,
	dispatch.IncidentInProgress: true,
	dispatch.IncidentResolved:   true,
}

func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	status := dispatch.IncidentStatus(r.URL.Query().Get("status"))
	if !listStatuses[status] {
		http.Error(w, `{"error":"unknown status"}`, http.StatusBadRequest)
		return
	}

	incidents, err := a.svc.ListIncidents(r.Context(), status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"incidents": incidents,
	})
}
