package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	adjudication "veristay/internal/adjudication/service"
	"veristay/internal/override/models"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/httputil"
	request "veristay/pkg/platform/middleware/request"
)

// Service is the override surface the handler delegates to.
type Service interface {
	Create(ctx context.Context, reqType models.RequestType, targetKey, explanation string) (*models.OverrideRequest, error)
	Get(ctx context.Context, overrideID id.OverrideID) (*models.OverrideRequest, error)
	ListPending(ctx context.Context) ([]*models.OverrideRequest, error)
	ResolveUnitCountDiscrepancy(ctx context.Context, discrepancyID id.DiscrepancyID, notes string) (*models.UnitCountDiscrepancy, error)
	WaiveUnitCountDiscrepancy(ctx context.Context, discrepancyID id.DiscrepancyID, notes string) (*models.UnitCountDiscrepancy, error)
	ListPendingDiscrepancies(ctx context.Context) ([]*models.UnitCountDiscrepancy, error)
}

// Adjudicator decides pending override requests.
type Adjudicator interface {
	Decide(ctx context.Context, overrideID id.OverrideID, action adjudication.Action, adminNotes string) (*models.OverrideRequest, error)
}

type Handler struct {
	service     Service
	adjudicator Adjudicator
	logger      *slog.Logger
}

func New(service Service, adjudicator Adjudicator, logger *slog.Logger) *Handler {
	return &Handler{service: service, adjudicator: adjudicator, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/overrides", h.handleCreate)
	r.Get("/overrides/{overrideID}", h.handleGet)
}

// RegisterAdmin mounts the adjudication routes; the router wraps them with
// the admin middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/overrides", h.handleListPending)
	r.Post("/overrides/{overrideID}/decide", h.handleDecide)
	r.Get("/discrepancies", h.handleListDiscrepancies)
	r.Post("/discrepancies/{discrepancyID}/resolve", h.handleResolveDiscrepancy)
	r.Post("/discrepancies/{discrepancyID}/waive", h.handleWaiveDiscrepancy)
}

type createRequest struct {
	Type        string `json:"type"`
	TargetKey   string `json:"target_key"`
	Explanation string `json:"explanation"`
}

type overrideResponse struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	TargetKey   string     `json:"target_key"`
	Explanation string     `json:"explanation"`
	RequesterID string     `json:"requester_id"`
	AdminNotes  string     `json:"admin_notes,omitempty"`
	ReviewerID  *string    `json:"reviewer_id,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toResponse(req *models.OverrideRequest) overrideResponse {
	out := overrideResponse{
		ID:          req.ID.String(),
		Type:        string(req.Type),
		Status:      string(req.Status),
		TargetKey:   req.TargetKey,
		Explanation: req.Explanation,
		RequesterID: req.RequesterID.String(),
		AdminNotes:  req.AdminNotes,
		ReviewedAt:  req.ReviewedAt,
		CreatedAt:   req.CreatedAt,
	}
	if req.ReviewerID != nil {
		reviewer := req.ReviewerID.String()
		out.ReviewerID = &reviewer
	}
	return out
}

type discrepancyResponse struct {
	ID                string     `json:"id"`
	PropertyID        string     `json:"property_id"`
	DeclaredUnits     int        `json:"declared_units"`
	ActualUnits       int        `json:"actual_units"`
	PaymentDifference int64      `json:"payment_difference_cents"`
	Status            string     `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	ResolvedBy        *string    `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toDiscrepancyResponse(d *models.UnitCountDiscrepancy) discrepancyResponse {
	out := discrepancyResponse{
		ID:                d.ID.String(),
		PropertyID:        d.PropertyID.String(),
		DeclaredUnits:     d.DeclaredUnits,
		ActualUnits:       d.ActualUnits,
		PaymentDifference: int64(d.PaymentDifference),
		Status:            string(d.Status),
		Notes:             d.Notes,
		ResolvedAt:        d.ResolvedAt,
		CreatedAt:         d.CreatedAt,
	}
	if d.ResolvedBy != nil {
		resolver := d.ResolvedBy.String()
		out.ResolvedBy = &resolver
	}
	return out
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[createRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	created, err := h.service.Create(ctx, models.RequestType(req.Type), req.TargetKey, req.Explanation)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	overrideID, err := id.ParseOverrideID(chi.URLParam(r, "overrideID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid override ID"))
		return
	}
	req, err := h.service.Get(r.Context(), overrideID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(req))
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.ListPending(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]overrideResponse, 0, len(pending))
	for _, req := range pending {
		out = append(out, toResponse(req))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": out})
}

type decideRequest struct {
	Action     string `json:"action"`
	AdminNotes string `json:"admin_notes"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overrideID, err := id.ParseOverrideID(chi.URLParam(r, "overrideID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid override ID"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[decideRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	decided, err := h.adjudicator.Decide(ctx, overrideID, adjudication.Action(req.Action), req.AdminNotes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(decided))
}

func (h *Handler) handleListDiscrepancies(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.ListPendingDiscrepancies(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]discrepancyResponse, 0, len(pending))
	for _, d := range pending {
		out = append(out, toDiscrepancyResponse(d))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"discrepancies": out})
}

type discrepancyNotesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) handleResolveDiscrepancy(w http.ResponseWriter, r *http.Request) {
	h.closeDiscrepancy(w, r, h.service.ResolveUnitCountDiscrepancy)
}

func (h *Handler) handleWaiveDiscrepancy(w http.ResponseWriter, r *http.Request) {
	h.closeDiscrepancy(w, r, h.service.WaiveUnitCountDiscrepancy)
}

func (h *Handler) closeDiscrepancy(w http.ResponseWriter, r *http.Request, close func(context.Context, id.DiscrepancyID, string) (*models.UnitCountDiscrepancy, error)) {
	ctx := r.Context()
	discrepancyID, err := id.ParseDiscrepancyID(chi.URLParam(r, "discrepancyID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid discrepancy ID"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[discrepancyNotesRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	closed, err := close(ctx, discrepancyID, req.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDiscrepancyResponse(closed))
}
