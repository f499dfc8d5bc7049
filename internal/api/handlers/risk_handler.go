package handlers

import (
	"context"
	"net/http"
	"path"

	"github.com/google/uuid"

	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/limits"
	"riskgate/internal/domain/profile"
	"riskgate/internal/engine"
	"riskgate/internal/services/admission"
	"riskgate/pkg/auth"
	"riskgate/pkg/logger"
)

// RiskEngine is implemented by *engine.Engine
type RiskEngine interface {
	Activate(ctx context.Context, userID uuid.UUID, plan string) (*profile.RiskProfile, error)
	Deactivate(ctx context.Context, userID uuid.UUID) error
	Evaluate(ctx context.Context, userID uuid.UUID, op admission.Operation) *admission.Result
	GetProfile(ctx context.Context, userID uuid.UUID) (*profile.RiskProfile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, patch profile.Patch) (*profile.RiskProfile, error)
	ProfileHistory(ctx context.Context, userID uuid.UUID) ([]*profile.RiskProfile, error)
	GetActiveAlerts(ctx context.Context, userID *uuid.UUID) ([]*alert.RiskAlert, error)
	ResolveAlert(ctx context.Context, alertID uuid.UUID) error
	DismissAlert(ctx context.Context, alertID uuid.UUID) error
	DailyLossUsage(ctx context.Context, userID uuid.UUID) limits.Usage
	GetRiskReport(ctx context.Context, userID *uuid.UUID, windowHours int) (*engine.Report, error)
}

var _ RiskEngine = (*engine.Engine)(nil)

// RiskHandler serves the /v1 risk API
type RiskHandler struct {
	engine RiskEngine
	log    *logger.Logger
}

// NewRiskHandler creates a new risk API handler
func NewRiskHandler(e RiskEngine, log *logger.Logger) *RiskHandler {
	return &RiskHandler{engine: e, log: log.With("component", "risk_api")}
}

// EvaluateRequest is a proposed operation for a user
type EvaluateRequest struct {
	UserID uuid.UUID `json:"user_id"`
	admission.Operation
}

// Evaluate runs admission. A denial is a normal 200 response.
// POST /v1/evaluate
func (h *RiskHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.engine.Evaluate(r.Context(), req.UserID, req.Operation))
}

// ActivateRequest carries the subscription plan
type ActivateRequest struct {
	Plan string `json:"plan"`
}

// Activate starts monitoring a user
// POST /v1/users/{id}/activate
func (h *RiskHandler) Activate(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req ActivateRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			h.respondError(w, r, err)
			return
		}
	}

	p, err := h.engine.Activate(r.Context(), userID, req.Plan)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Deactivate stops monitoring a user
// POST /v1/users/{id}/deactivate
func (h *RiskHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.engine.Deactivate(r.Context(), userID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetProfile returns the active risk profile
// GET /v1/users/{id}/profile
func (h *RiskHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	p, err := h.engine.GetProfile(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// UpdateProfile applies a partial update
// PATCH /v1/users/{id}/profile
func (h *RiskHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var patch profile.Patch
	if err := decodeBody(w, r, &patch); err != nil {
		h.respondError(w, r, err)
		return
	}

	p, err := h.engine.UpdateProfile(r.Context(), userID, patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ProfileHistory lists stored profile versions
// GET /v1/users/{id}/profile/history
func (h *RiskHandler) ProfileHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	history, err := h.engine.ProfileHistory(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// DailyLoss returns the daily loss counter
// GET /v1/users/{id}/limits/daily-loss
func (h *RiskHandler) DailyLoss(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.engine.DailyLossUsage(r.Context(), userID))
}

// ListAlerts lists active alerts
// GET /v1/alerts?user_id=
func (h *RiskHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	userID, err := optionalUserID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	active, err := h.engine.GetActiveAlerts(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if active == nil {
		active = []*alert.RiskAlert{}
	}
	respondJSON(w, http.StatusOK, active)
}

// ResolveAlert marks an alert resolved
// POST /v1/alerts/{id}/resolve
func (h *RiskHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.closeAlert(w, r, h.engine.ResolveAlert)
}

// DismissAlert marks an alert dismissed
// POST /v1/alerts/{id}/dismiss
func (h *RiskHandler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	h.closeAlert(w, r, h.engine.DismissAlert)
}

func (h *RiskHandler) closeAlert(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) error) {
	alertID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := fn(r.Context(), alertID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.log.Infow("Alert closed via API", "alert_id", alertID, "action", path.Base(r.URL.Path), "caller", caller(r))
	w.WriteHeader(http.StatusNoContent)
}

func caller(r *http.Request) string {
	if c := auth.FromContext(r.Context()); c != nil {
		return c.Service
	}
	return "anonymous"
}

// Report summarises alerts and events over a window
// GET /v1/report?user_id=&window_hours=
func (h *RiskHandler) Report(w http.ResponseWriter, r *http.Request) {
	userID, err := optionalUserID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	window, err := queryInt(r, "window_hours")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	report, err := h.engine.GetRiskReport(r.Context(), userID, window)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
