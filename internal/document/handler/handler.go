package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"veristay/internal/document/models"
	"veristay/internal/document/service"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/httputil"
	request "veristay/pkg/platform/middleware/request"
)

// Service is the document surface the handler delegates to.
type Service interface {
	Upload(ctx context.Context, verificationID id.VerificationID, residentID id.ResidentID, docType models.Type, fileRef string) (*models.IncomeDocument, error)
	Get(ctx context.Context, docID id.DocumentID) (*models.IncomeDocument, error)
	ListByResident(ctx context.Context, residentID id.ResidentID) ([]*models.IncomeDocument, error)
	Delete(ctx context.Context, docID id.DocumentID) error
	RecordAnalysis(ctx context.Context, docID id.DocumentID, result service.AnalysisResult) (*models.IncomeDocument, error)
}

type Handler struct {
	service       Service
	analyzerToken string
	logger        *slog.Logger
}

func New(service Service, analyzerToken string, logger *slog.Logger) *Handler {
	return &Handler{service: service, analyzerToken: analyzerToken, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/verifications/{verificationID}/documents", h.handleUpload)
	r.Get("/documents/{documentID}", h.handleGet)
	r.Get("/residents/{residentID}/documents", h.handleListByResident)
	r.Delete("/documents/{documentID}", h.handleDelete)
}

// RegisterCallback mounts the analyzer callback outside the user auth
// chain; it authenticates with the shared analyzer token instead.
func (h *Handler) RegisterCallback(r chi.Router) {
	r.Post("/documents/{documentID}/analysis", h.handleRecordAnalysis)
}

type uploadRequest struct {
	ResidentID string `json:"resident_id"`
	Type       string `json:"type"`
	FileRef    string `json:"file_ref"`
}

func (r *uploadRequest) Validate() error {
	if r.FileRef == "" {
		return dErrors.New(dErrors.CodeValidation, "file_ref is required")
	}
	return nil
}

type documentResponse struct {
	ID                         string     `json:"id"`
	ResidentID                 string     `json:"resident_id"`
	VerificationID             string     `json:"verification_id"`
	Type                       string     `json:"type"`
	Status                     string     `json:"status"`
	ReviewReason               string     `json:"review_reason,omitempty"`
	CalculatedAnnualizedIncome int64      `json:"calculated_annualized_income_cents"`
	UploadDate                 time.Time  `json:"upload_date"`
	AnalyzedAt                 *time.Time `json:"analyzed_at,omitempty"`
}

func toResponse(d *models.IncomeDocument) documentResponse {
	return documentResponse{
		ID:                         d.ID.String(),
		ResidentID:                 d.ResidentID.String(),
		VerificationID:             d.VerificationID.String(),
		Type:                       string(d.Type),
		Status:                     string(d.Status),
		ReviewReason:               d.ReviewReason,
		CalculatedAnnualizedIncome: int64(d.CalculatedAnnualizedIncome),
		UploadDate:                 d.UploadDate,
		AnalyzedAt:                 d.AnalyzedAt,
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	verificationID, err := id.ParseVerificationID(chi.URLParam(r, "verificationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid verification ID"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[uploadRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	residentID, err := id.ParseResidentID(req.ResidentID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid resident ID"))
		return
	}
	doc, err := h.service.Upload(ctx, verificationID, residentID, models.Type(req.Type), req.FileRef)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(doc))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid document ID"))
		return
	}
	doc, err := h.service.Get(r.Context(), docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(doc))
}

func (h *Handler) handleListByResident(w http.ResponseWriter, r *http.Request) {
	residentID, err := id.ParseResidentID(chi.URLParam(r, "residentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid resident ID"))
		return
	}
	docs, err := h.service.ListByResident(r.Context(), residentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toResponse(d))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid document ID"))
		return
	}
	if err := h.service.Delete(r.Context(), docID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type analysisRequest struct {
	Fields models.ExtractedFields `json:"fields"`
	Failed bool                   `json:"failed"`
	Error  string                 `json:"error"`
}

func (h *Handler) handleRecordAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.authorizeAnalyzer(r) {
		h.logger.WarnContext(ctx, "analysis callback rejected, bad token",
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid analyzer token"))
		return
	}
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid document ID"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[analysisRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	doc, err := h.service.RecordAnalysis(ctx, docID, service.AnalysisResult{
		Fields: req.Fields,
		Failed: req.Failed,
		Error:  req.Error,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(doc))
}

func (h *Handler) authorizeAnalyzer(r *http.Request) bool {
	if h.analyzerToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.analyzerToken)) == 1
}
