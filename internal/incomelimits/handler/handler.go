package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"veristay/internal/incomelimits"
	propmodels "veristay/internal/property/models"
	resmodels "veristay/internal/resident/models"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/httputil"
)

// LeaseAuthorizer resolves lease ownership and enforces the caller's access.
type LeaseAuthorizer interface {
	AuthorizeLease(ctx context.Context, leaseID id.LeaseID) (*propmodels.LeaseRef, error)
}

// ResidentReader lists the household for a lease.
type ResidentReader interface {
	ListByLease(ctx context.Context, leaseID id.LeaseID) ([]*resmodels.Resident, error)
}

// Classifier maps household income to an AMI band.
type Classifier interface {
	Classify(ctx context.Context, state, county string, year int, householdIncome id.Cents, householdSize int) incomelimits.Bucket
}

type Handler struct {
	leases     LeaseAuthorizer
	residents  ResidentReader
	classifier Classifier
	logger     *slog.Logger
}

func New(leases LeaseAuthorizer, residents ResidentReader, classifier Classifier, logger *slog.Logger) *Handler {
	return &Handler{leases: leases, residents: residents, classifier: classifier, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/leases/{leaseID}/ami", h.handleClassify)
}

type amiResponse struct {
	LeaseID         string `json:"lease_id"`
	Bucket          string `json:"bucket"`
	HouseholdIncome int64  `json:"household_income_cents"`
	HouseholdSize   int    `json:"household_size"`
	Year            int    `json:"year"`
}

// handleClassify classifies the household's verified income. Only
// income-finalized residents contribute; an unfinished household
// classifies against a partial total, which the caller can see from the
// returned income figure.
func (h *Handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	leaseID, err := id.ParseLeaseID(chi.URLParam(r, "leaseID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid lease ID"))
		return
	}
	state := r.URL.Query().Get("state")
	county := r.URL.Query().Get("county")
	if state == "" || county == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "state and county are required"))
		return
	}
	year := time.Now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		if year, err = strconv.Atoi(raw); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid year"))
			return
		}
	}

	if _, err := h.leases.AuthorizeLease(ctx, leaseID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	residents, err := h.residents.ListByLease(ctx, leaseID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list residents"))
		return
	}
	if len(residents) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "lease has no residents"))
		return
	}

	var income id.Cents
	for _, res := range residents {
		if res.IncomeFinalized {
			income += res.VerifiedIncome
		}
	}
	bucket := h.classifier.Classify(ctx, state, county, year, income, len(residents))
	httputil.WriteJSON(w, http.StatusOK, amiResponse{
		LeaseID:         leaseID.String(),
		Bucket:          string(bucket),
		HouseholdIncome: int64(income),
		HouseholdSize:   len(residents),
		Year:            year,
	})
}
