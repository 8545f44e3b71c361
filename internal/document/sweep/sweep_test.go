package sweep

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"veristay/internal/document/models"
	"veristay/internal/document/store"
	omodels "veristay/internal/override/models"
	ostore "veristay/internal/override/store"
	id "veristay/pkg/domain"

	"github.com/stretchr/testify/suite"
)

// storeFiler adapts the override memory store to the sweep's filer port,
// standing in for the override service.
type storeFiler struct {
	store *ostore.Memory
}

func (f *storeFiler) Create(ctx context.Context, reqType omodels.RequestType, targetKey, explanation string) (*omodels.OverrideRequest, error) {
	req := &omodels.OverrideRequest{
		ID:          id.NewOverrideID(),
		Type:        reqType,
		Status:      omodels.StatusPending,
		TargetKey:   targetKey,
		Explanation: explanation,
		CreatedAt:   time.Now().UTC(),
	}
	winner, _, err := f.store.CreateRequest(ctx, req)
	return winner, err
}

type SweeperSuite struct {
	suite.Suite
	documents *store.Memory
	overrides *ostore.Memory
	sweeper   *Sweeper
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.documents = store.NewMemory()
	s.overrides = ostore.NewMemory()
	s.sweeper = New(s.documents, &storeFiler{store: s.overrides}, time.Minute, time.Hour, nil, slog.Default())
}

func (s *SweeperSuite) seedDocument(status models.Status, uploaded time.Time) *models.IncomeDocument {
	doc := &models.IncomeDocument{
		ID:             id.NewDocumentID(),
		ResidentID:     id.NewResidentID(),
		VerificationID: id.NewVerificationID(),
		Type:           models.TypeW2,
		Status:         status,
		UploadDate:     uploaded,
	}
	s.Require().NoError(s.documents.Create(context.Background(), doc))
	return doc
}

func (s *SweeperSuite) TestSweepOnce() {
	ctx := context.Background()

	s.Run("moves stale processing documents and files review asks", func() {
		stale := s.seedDocument(models.StatusProcessing, time.Now().Add(-2*time.Hour))
		fresh := s.seedDocument(models.StatusProcessing, time.Now().Add(-5*time.Minute))

		s.sweeper.SweepOnce(ctx)

		got, err := s.documents.Find(ctx, stale.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusNeedsReview, got.Status)
		s.Equal(StaleReason, got.ReviewReason)

		untouched, err := s.documents.Find(ctx, fresh.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusProcessing, untouched.Status)

		pending, err := s.overrides.ListPendingRequests(ctx)
		s.Require().NoError(err)
		s.Require().Len(pending, 1)
		s.Equal(omodels.TargetDocument(stale.ID), pending[0].TargetKey)
	})

	s.Run("running twice changes nothing more", func() {
		s.seedDocument(models.StatusProcessing, time.Now().Add(-3*time.Hour))

		s.sweeper.SweepOnce(ctx)
		first, err := s.overrides.ListPendingRequests(ctx)
		s.Require().NoError(err)

		s.sweeper.SweepOnce(ctx)
		second, err := s.overrides.ListPendingRequests(ctx)
		s.Require().NoError(err)
		s.Len(second, len(first))
	})

	s.Run("covers needs-review documents without a pending ask", func() {
		doc := s.seedDocument(models.StatusNeedsReview, time.Now().Add(-time.Minute))

		s.sweeper.SweepOnce(ctx)

		pending, err := s.overrides.ListPendingRequests(ctx)
		s.Require().NoError(err)
		var found bool
		for _, req := range pending {
			if req.TargetKey == omodels.TargetDocument(doc.ID) {
				found = true
			}
		}
		s.True(found)
	})
}
