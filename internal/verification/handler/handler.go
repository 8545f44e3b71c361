package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"veristay/internal/verification/models"
	"veristay/internal/verification/service"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/httputil"
	request "veristay/pkg/platform/middleware/request"
)

// Service is the verification surface the handler delegates to.
type Service interface {
	Create(ctx context.Context, leaseID id.LeaseID, params service.CreateParams) (*models.IncomeVerification, error)
	Get(ctx context.Context, verificationID id.VerificationID) (*models.IncomeVerification, error)
	Cancel(ctx context.Context, verificationID id.VerificationID) error
	Finalize(ctx context.Context, verificationID id.VerificationID) (*models.IncomeVerification, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/leases/{leaseID}/verifications", h.handleCreate)
	r.Get("/verifications/{verificationID}", h.handleGet)
	r.Delete("/verifications/{verificationID}", h.handleCancel)
	r.Post("/verifications/{verificationID}/finalize", h.handleFinalize)
}

type createRequest struct {
	Reason      string `json:"reason"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	DueDate     string `json:"due_date"`
}

type verificationResponse struct {
	ID                       string     `json:"id"`
	LeaseID                  string     `json:"lease_id"`
	UnitID                   string     `json:"unit_id"`
	PropertyID               string     `json:"property_id"`
	Status                   string     `json:"status"`
	Reason                   string     `json:"reason"`
	PeriodStart              time.Time  `json:"period_start"`
	PeriodEnd                time.Time  `json:"period_end"`
	DueDate                  time.Time  `json:"due_date"`
	CalculatedVerifiedIncome int64      `json:"calculated_verified_income_cents"`
	FinalizedAt              *time.Time `json:"finalized_at,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
}

func toResponse(v *models.IncomeVerification) verificationResponse {
	return verificationResponse{
		ID:                       v.ID.String(),
		LeaseID:                  v.LeaseID.String(),
		UnitID:                   v.UnitID.String(),
		PropertyID:               v.PropertyID.String(),
		Status:                   string(v.Status),
		Reason:                   string(v.Reason),
		PeriodStart:              v.PeriodStart,
		PeriodEnd:                v.PeriodEnd,
		DueDate:                  v.DueDate,
		CalculatedVerifiedIncome: int64(v.CalculatedVerifiedIncome),
		FinalizedAt:              v.FinalizedAt,
		CreatedAt:                v.CreatedAt,
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
	params := service.CreateParams{Reason: models.Reason(req.Reason)}
	if params.PeriodStart, err = parseDate(req.PeriodStart); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid period_start"))
		return
	}
	if params.PeriodEnd, err = parseDate(req.PeriodEnd); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid period_end"))
		return
	}
	if params.DueDate, err = parseDate(req.DueDate); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid due_date"))
		return
	}

	verification, err := h.service.Create(ctx, leaseID, params)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(verification))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	verificationID, err := id.ParseVerificationID(chi.URLParam(r, "verificationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid verification ID"))
		return
	}
	verification, err := h.service.Get(r.Context(), verificationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(verification))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	verificationID, err := id.ParseVerificationID(chi.URLParam(r, "verificationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid verification ID"))
		return
	}
	if err := h.service.Cancel(r.Context(), verificationID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	verificationID, err := id.ParseVerificationID(chi.URLParam(r, "verificationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid verification ID"))
		return
	}
	verification, err := h.service.Finalize(r.Context(), verificationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(verification))
}

// parseDate accepts date-only and RFC 3339 timestamps.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
