package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"veristay/internal/resident/models"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/httputil"
	request "veristay/pkg/platform/middleware/request"
)

// Service is the resident surface the handler delegates to.
type Service interface {
	Create(ctx context.Context, leaseID id.LeaseID, firstName, lastName string, declaredIncome id.Cents) (*models.Resident, error)
	Get(ctx context.Context, residentID id.ResidentID) (*models.Resident, error)
	Finalize(ctx context.Context, residentID id.ResidentID, verifiedIncome id.Cents) (*models.Resident, error)
	MarkNoIncome(ctx context.Context, residentID id.ResidentID) (*models.Resident, error)
	Unfinalize(ctx context.Context, residentID id.ResidentID) (*models.Resident, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/leases/{leaseID}/residents", h.handleCreate)
	r.Get("/residents/{residentID}", h.handleGet)
	r.Post("/residents/{residentID}/finalize", h.handleFinalize)
	r.Post("/residents/{residentID}/no-income", h.handleMarkNoIncome)
	r.Post("/residents/{residentID}/unfinalize", h.handleUnfinalize)
}

type createRequest struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	DeclaredIncome int64  `json:"declared_income_cents"`
}

func (r *createRequest) Validate() error {
	if r.FirstName == "" || r.LastName == "" {
		return dErrors.New(dErrors.CodeValidation, "first and last name are required")
	}
	if r.DeclaredIncome < 0 {
		return dErrors.New(dErrors.CodeValidation, "declared income must not be negative")
	}
	return nil
}

type residentResponse struct {
	ID                         string     `json:"id"`
	LeaseID                    string     `json:"lease_id"`
	FirstName                  string     `json:"first_name"`
	LastName                   string     `json:"last_name"`
	AnnualizedIncome           int64      `json:"annualized_income_cents"`
	VerifiedIncome             int64      `json:"verified_income_cents"`
	CalculatedAnnualizedIncome int64      `json:"calculated_annualized_income_cents"`
	IncomeFinalized            bool       `json:"income_finalized"`
	HasNoIncome                bool       `json:"has_no_income"`
	FinalizedAt                *time.Time `json:"finalized_at,omitempty"`
}

func toResponse(res *models.Resident) residentResponse {
	return residentResponse{
		ID:                         res.ID.String(),
		LeaseID:                    res.LeaseID.String(),
		FirstName:                  res.FirstName,
		LastName:                   res.LastName,
		AnnualizedIncome:           int64(res.AnnualizedIncome),
		VerifiedIncome:             int64(res.VerifiedIncome),
		CalculatedAnnualizedIncome: int64(res.CalculatedAnnualizedIncome),
		IncomeFinalized:            res.IncomeFinalized,
		HasNoIncome:                res.HasNoIncome,
		FinalizedAt:                res.FinalizedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	leaseID, err := id.ParseLeaseID(chi.URLParam(r, "leaseID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid lease ID"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[createRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	resident, err := h.service.Create(ctx, leaseID, req.FirstName, req.LastName, id.Cents(req.DeclaredIncome))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(resident))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	residentID, err := id.ParseResidentID(chi.URLParam(r, "residentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid resident ID"))
		return
	}
	resident, err := h.service.Get(r.Context(), residentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(resident))
}

type finalizeRequest struct {
	VerifiedIncome int64 `json:"verified_income_cents"`
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	residentID, err := id.ParseResidentID(chi.URLParam(r, "residentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid resident ID"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[finalizeRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	resident, err := h.service.Finalize(ctx, residentID, id.Cents(req.VerifiedIncome))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(resident))
}

func (h *Handler) handleMarkNoIncome(w http.ResponseWriter, r *http.Request) {
	residentID, err := id.ParseResidentID(chi.URLParam(r, "residentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid resident ID"))
		return
	}
	resident, err := h.service.MarkNoIncome(r.Context(), residentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(resident))
}

func (h *Handler) handleUnfinalize(w http.ResponseWriter, r *http.Request) {
	residentID, err := id.ParseResidentID(chi.URLParam(r, "residentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid resident ID"))
		return
	}
	resident, err := h.service.Unfinalize(r.Context(), residentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(resident))
}
