package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	omodels "veristay/internal/override/models"
	"veristay/internal/rentroll/models"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/httputil"
	request "veristay/pkg/platform/middleware/request"
)

// Service is the rent-roll surface the handler delegates to.
type Service interface {
	IngestSnapshot(ctx context.Context, propertyID id.PropertyID, rows []models.SnapshotRow) (*models.Snapshot, error)
	Get(ctx context.Context, snapshotID id.SnapshotID) (*models.Snapshot, error)
	ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Snapshot, error)
	RequestDeletion(ctx context.Context, snapshotID id.SnapshotID, explanation string) (*omodels.OverrideRequest, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/properties/{propertyID}/rentroll", h.handleIngest)
	r.Get("/properties/{propertyID}/rentroll", h.handleList)
	r.Get("/rentroll/{snapshotID}", h.handleGet)
	r.Delete("/rentroll/{snapshotID}", h.handleRequestDeletion)
}

type ingestRow struct {
	UnitLabel      string `json:"unit_label"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	DeclaredIncome int64  `json:"declared_income_cents"`
}

type ingestRequest struct {
	Rows []ingestRow `json:"rows"`
}

type snapshotResponse struct {
	ID            string    `json:"id"`
	PropertyID    string    `json:"property_id"`
	UnitsObserved int       `json:"units_observed"`
	Rows          int       `json:"rows"`
	IngestedAt    time.Time `json:"ingested_at"`
}

func toResponse(snap *models.Snapshot) snapshotResponse {
	return snapshotResponse{
		ID:            snap.ID.String(),
		PropertyID:    snap.PropertyID.String(),
		UnitsObserved: snap.UnitsObserved,
		Rows:          len(snap.Rows),
		IngestedAt:    snap.IngestedAt,
	}
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid property ID"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[ingestRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	rows := make([]models.SnapshotRow, 0, len(req.Rows))
	for _, row := range req.Rows {
		rows = append(rows, models.SnapshotRow{
			UnitLabel:      row.UnitLabel,
			FirstName:      row.FirstName,
			LastName:       row.LastName,
			DeclaredIncome: id.Cents(row.DeclaredIncome),
		})
	}
	snap, err := h.service.IngestSnapshot(ctx, propertyID, rows)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(snap))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid property ID"))
		return
	}
	snaps, err := h.service.ListByProperty(r.Context(), propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]snapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toResponse(snap))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"snapshots": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	snapshotID, err := id.ParseSnapshotID(chi.URLParam(r, "snapshotID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid snapshot ID"))
		return
	}
	snap, err := h.service.Get(r.Context(), snapshotID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(snap))
}

type deletionRequest struct {
	Explanation string `json:"explanation"`
}

func (h *Handler) handleRequestDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snapshotID, err := id.ParseSnapshotID(chi.URLParam(r, "snapshotID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid snapshot ID"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[deletionRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	ask, err := h.service.RequestDeletion(ctx, snapshotID, req.Explanation)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"override_request_id": ask.ID.String(),
		"status":              string(ask.Status),
	})
}
