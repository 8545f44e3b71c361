package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	omodels "veristay/internal/override/models"
	"veristay/internal/property/models"
	"veristay/internal/property/service"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/httputil"
	request "veristay/pkg/platform/middleware/request"
)

// Service is the property surface the handler delegates to.
type Service interface {
	Create(ctx context.Context, in service.CreateInput) (*models.Property, error)
	Get(ctx context.Context, propertyID id.PropertyID) (*models.Property, error)
	CreateLease(ctx context.Context, unitID id.UnitID) (*models.Lease, error)
}

// OverrideFiler files the PROPERTY_DELETION ask that gates removal.
type OverrideFiler interface {
	Create(ctx context.Context, reqType omodels.RequestType, targetKey, explanation string) (*omodels.OverrideRequest, error)
}

type Handler struct {
	service   Service
	overrides OverrideFiler
	logger    *slog.Logger
}

func New(service Service, overrides OverrideFiler, logger *slog.Logger) *Handler {
	return &Handler{service: service, overrides: overrides, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/properties", h.handleCreate)
	r.Get("/properties/{propertyID}", h.handleGet)
	r.Delete("/properties/{propertyID}", h.handleRequestDeletion)
	r.Post("/units/{unitID}/leases", h.handleCreateLease)
}

type createRequest struct {
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	NumberOfUnits int      `json:"number_of_units"`
	ServiceTier   string   `json:"service_tier"`
	UnitLabels    []string `json:"unit_labels"`
}

func (r *createRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

type propertyResponse struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	NumberOfUnits int       `json:"number_of_units"`
	ServiceTier   string    `json:"service_tier"`
	CreatedAt     time.Time `json:"created_at"`
}

func toResponse(p *models.Property) propertyResponse {
	return propertyResponse{
		ID:            p.ID.String(),
		OwnerID:       p.OwnerID.String(),
		Name:          p.Name,
		Address:       p.Address,
		NumberOfUnits: p.NumberOfUnits,
		ServiceTier:   string(p.ServiceTier),
		CreatedAt:     p.CreatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[createRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	property, err := h.service.Create(ctx, service.CreateInput{
		Name:          req.Name,
		Address:       req.Address,
		NumberOfUnits: req.NumberOfUnits,
		ServiceTier:   models.ServiceTier(req.ServiceTier),
		UnitLabels:    req.UnitLabels,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(property))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid property ID"))
		return
	}
	property, err := h.service.Get(r.Context(), propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(property))
}

type deletionRequest struct {
	Explanation string `json:"explanation"`
}

// handleRequestDeletion files the PROPERTY_DELETION ask instead of deleting.
// The property stays live until an admin approves; adjudication performs the
// actual removal.
func (h *Handler) handleRequestDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid property ID"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[deletionRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if _, err := h.service.Get(ctx, propertyID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	ask, err := h.overrides.Create(ctx, omodels.TypePropertyDeletion, omodels.TargetProperty(propertyID), req.Explanation)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"override_request_id": ask.ID.String(),
		"status":              string(ask.Status),
	})
}

type leaseResponse struct {
	ID          string    `json:"id"`
	UnitID      string    `json:"unit_id"`
	Provisional bool      `json:"provisional"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *Handler) handleCreateLease(w http.ResponseWriter, r *http.Request) {
	unitID, err := id.ParseUnitID(chi.URLParam(r, "unitID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid unit ID"))
		return
	}
	lease, err := h.service.CreateLease(r.Context(), unitID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, leaseResponse{
		ID:          lease.ID.String(),
		UnitID:      lease.UnitID.String(),
		Provisional: lease.Provisional(),
		CreatedAt:   lease.CreatedAt,
	})
}
