package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	docmodels "veristay/internal/document/models"
	docstore "veristay/internal/document/store"
	propmodels "veristay/internal/property/models"
	"veristay/internal/resident/models"
	"veristay/internal/resident/store"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/requestcontext"

	"github.com/stretchr/testify/suite"
)

type allowAllLeases struct{}

func (allowAllLeases) AuthorizeLease(_ context.Context, leaseID id.LeaseID) (*propmodels.LeaseRef, error) {
	return &propmodels.LeaseRef{LeaseID: leaseID}, nil
}

type denyLeases struct{}

func (denyLeases) AuthorizeLease(context.Context, id.LeaseID) (*propmodels.LeaseRef, error) {
	return nil, dErrors.New(dErrors.CodeForbidden, "not your lease")
}

type recordingReevaluator struct {
	leases []id.LeaseID
}

func (r *recordingReevaluator) ReevaluateLease(_ context.Context, leaseID id.LeaseID) error {
	r.leases = append(r.leases, leaseID)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	residents   *store.Memory
	documents   *docstore.Memory
	reevaluator *recordingReevaluator
	service     *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.residents = store.NewMemory()
	s.documents = docstore.NewMemory()
	s.reevaluator = &recordingReevaluator{}
	s.service = New(s.residents, s.documents, allowAllLeases{}, s.reevaluator, slog.Default())
}

func (s *ServiceSuite) seedResident() *models.Resident {
	resident := &models.Resident{
		ID:               id.NewResidentID(),
		LeaseID:          id.NewLeaseID(),
		FirstName:        "Dana",
		LastName:         "Okafor",
		AnnualizedIncome: 3_200_000,
	}
	s.Require().NoError(s.residents.Create(context.Background(), resident))
	return resident
}

func (s *ServiceSuite) seedCompletedDocument(residentID id.ResidentID, income id.Cents) *docmodels.IncomeDocument {
	now := time.Now().UTC()
	doc := &docmodels.IncomeDocument{
		ID:                         id.NewDocumentID(),
		ResidentID:                 residentID,
		Type:                       docmodels.TypeW2,
		Status:                     docmodels.StatusCompleted,
		UploadDate:                 now,
		CalculatedAnnualizedIncome: income,
		AnalyzedAt:                 &now,
	}
	s.Require().NoError(s.documents.Create(context.Background(), doc))
	return doc
}

func (s *ServiceSuite) TestRecordDocumentIncome() {
	ctx := context.Background()

	s.Run("resums over all completed documents", func() {
		resident := s.seedResident()
		s.seedCompletedDocument(resident.ID, 2_500_000)
		s.seedCompletedDocument(resident.ID, 1_000_000)

		updated, err := s.service.RecordDocumentIncome(ctx, resident.ID)
		s.Require().NoError(err)
		s.Equal(id.Cents(3_500_000), updated.CalculatedAnnualizedIncome)
	})

	s.Run("deleting a document lowers the total to the remainder", func() {
		resident := s.seedResident()
		d1 := s.seedCompletedDocument(resident.ID, 2_500_000)
		s.seedCompletedDocument(resident.ID, 1_000_000)

		_, err := s.service.RecordDocumentIncome(ctx, resident.ID)
		s.Require().NoError(err)

		s.Require().NoError(s.documents.Delete(ctx, d1.ID))
		updated, err := s.service.RecordDocumentIncome(ctx, resident.ID)
		s.Require().NoError(err)
		s.Equal(id.Cents(1_000_000), updated.CalculatedAnnualizedIncome)
	})

	s.Run("zero completed documents revokes document finalization", func() {
		resident := s.seedResident()
		doc := s.seedCompletedDocument(resident.ID, 2_500_000)
		_, err := s.service.RecordDocumentIncome(ctx, resident.ID)
		s.Require().NoError(err)
		_, err = s.service.Finalize(ctx, resident.ID, 2_500_000)
		s.Require().NoError(err)

		s.Require().NoError(s.documents.Delete(ctx, doc.ID))
		updated, err := s.service.RecordDocumentIncome(ctx, resident.ID)
		s.Require().NoError(err)
		s.False(updated.IncomeFinalized)
		s.Nil(updated.FinalizedAt)
		s.Equal(id.Cents(0), updated.CalculatedAnnualizedIncome)
		s.Contains(s.reevaluator.leases, resident.LeaseID)
	})

	s.Run("unknown resident returns not found", func() {
		_, err := s.service.RecordDocumentIncome(ctx, id.NewResidentID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestFinalize() {
	ctx := context.Background()

	s.Run("finalizes with a completed document", func() {
		resident := s.seedResident()
		s.seedCompletedDocument(resident.ID, 2_500_000)

		now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
		updated, err := s.service.Finalize(requestcontext.WithTime(ctx, now), resident.ID, 2_500_000)
		s.Require().NoError(err)
		s.True(updated.IncomeFinalized)
		s.Equal(id.Cents(2_500_000), updated.VerifiedIncome)
		s.Require().NotNil(updated.FinalizedAt)
		s.Equal(now, *updated.FinalizedAt)
	})

	s.Run("refuses without completed documents", func() {
		resident := s.seedResident()

		_, err := s.service.Finalize(ctx, resident.ID, 2_500_000)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("refuses double finalization", func() {
		resident := s.seedResident()
		s.seedCompletedDocument(resident.ID, 2_500_000)
		_, err := s.service.Finalize(ctx, resident.ID, 2_500_000)
		s.Require().NoError(err)

		_, err = s.service.Finalize(ctx, resident.ID, 2_600_000)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("refuses while marked no-income", func() {
		resident := s.seedResident()
		_, err := s.service.MarkNoIncome(ctx, resident.ID)
		s.Require().NoError(err)
		s.seedCompletedDocument(resident.ID, 2_500_000)

		_, err = s.service.Finalize(ctx, resident.ID, 2_500_000)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("rejects negative verified income", func() {
		resident := s.seedResident()
		_, err := s.service.Finalize(ctx, resident.ID, -1)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("forbidden lease owner is rejected", func() {
		resident := s.seedResident()
		svc := New(s.residents, s.documents, denyLeases{}, s.reevaluator, slog.Default())
		_, err := svc.Finalize(ctx, resident.ID, 2_500_000)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestNoIncomeAndUnfinalize() {
	ctx := context.Background()

	s.Run("mark no-income settles the resident", func() {
		resident := s.seedResident()
		updated, err := s.service.MarkNoIncome(ctx, resident.ID)
		s.Require().NoError(err)
		s.True(updated.HasNoIncome)
		s.True(updated.Settled())
	})

	s.Run("mark no-income refused while finalized", func() {
		resident := s.seedResident()
		s.seedCompletedDocument(resident.ID, 2_500_000)
		_, err := s.service.Finalize(ctx, resident.ID, 2_500_000)
		s.Require().NoError(err)

		_, err = s.service.MarkNoIncome(ctx, resident.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unfinalize clears settlement and triggers reevaluation", func() {
		resident := s.seedResident()
		s.seedCompletedDocument(resident.ID, 2_500_000)
		_, err := s.service.Finalize(ctx, resident.ID, 2_500_000)
		s.Require().NoError(err)

		updated, err := s.service.Unfinalize(ctx, resident.ID)
		s.Require().NoError(err)
		s.False(updated.IncomeFinalized)
		s.Nil(updated.FinalizedAt)
		s.False(updated.HasNoIncome)
		s.Equal(id.Cents(2_500_000), updated.CalculatedAnnualizedIncome)
		s.Contains(s.reevaluator.leases, resident.LeaseID)
	})

	s.Run("unfinalize clears a no-income designation too", func() {
		resident := s.seedResident()
		_, err := s.service.MarkNoIncome(ctx, resident.ID)
		s.Require().NoError(err)

		updated, err := s.service.Unfinalize(ctx, resident.ID)
		s.Require().NoError(err)
		s.False(updated.HasNoIncome)
		s.False(updated.Settled())
	})
}
