package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"veristay/internal/analysis"
	"veristay/internal/document/models"
	"veristay/internal/document/store"
	omodels "veristay/internal/override/models"
	oservice "veristay/internal/override/service"
	ostore "veristay/internal/override/store"
	propmodels "veristay/internal/property/models"
	propstore "veristay/internal/property/store"
	resmodels "veristay/internal/resident/models"
	resstore "veristay/internal/resident/store"
	vermodels "veristay/internal/verification/models"
	verstore "veristay/internal/verification/store"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/audit"
	"veristay/pkg/requestcontext"

	"github.com/stretchr/testify/suite"
)

type allowAllLeases struct{}

func (allowAllLeases) AuthorizeLease(_ context.Context, leaseID id.LeaseID) (*propmodels.LeaseRef, error) {
	return &propmodels.LeaseRef{LeaseID: leaseID}, nil
}

type denyAllLeases struct{}

func (denyAllLeases) AuthorizeLease(context.Context, id.LeaseID) (*propmodels.LeaseRef, error) {
	return nil, dErrors.New(dErrors.CodeForbidden, "lease belongs to another owner")
}

type recordingRecomputer struct {
	residents []id.ResidentID
}

func (r *recordingRecomputer) RecordDocumentIncome(_ context.Context, residentID id.ResidentID) (*resmodels.Resident, error) {
	r.residents = append(r.residents, residentID)
	return nil, nil
}

type nopAuditor struct{}

func (nopAuditor) Emit(context.Context, audit.Event) {}

type ServiceSuite struct {
	suite.Suite
	documents     *store.Memory
	verifications *verstore.Memory
	residents     *resstore.Memory
	overrides     *oservice.Service
	overrideStore *ostore.Memory
	recomputer    *recordingRecomputer
	service       *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.documents = store.NewMemory()
	s.verifications = verstore.NewMemory()
	s.residents = resstore.NewMemory()
	s.overrideStore = ostore.NewMemory()
	s.overrides = oservice.New(s.overrideStore, s.residents, s.verifications, propstore.NewMemory(), nopAuditor{}, nil, slog.Default())
	s.recomputer = &recordingRecomputer{}
	s.service = New(s.documents, s.verifications, s.residents, s.recomputer, allowAllLeases{}, analysis.NopSubmitter{}, s.overrides, nil, slog.Default())
}

func (s *ServiceSuite) seedVerification(status vermodels.Status) *vermodels.IncomeVerification {
	v := &vermodels.IncomeVerification{
		ID:         id.NewVerificationID(),
		LeaseID:    id.NewLeaseID(),
		UnitID:     id.NewUnitID(),
		PropertyID: id.NewPropertyID(),
		Status:     status,
		Reason:     vermodels.ReasonInitialLease,
		CreatedAt:  time.Now().UTC(),
	}
	s.Require().NoError(s.verifications.Create(context.Background(), v))
	return v
}

func (s *ServiceSuite) seedResident(leaseID id.LeaseID, first, last string) *resmodels.Resident {
	r := &resmodels.Resident{
		ID:        id.NewResidentID(),
		LeaseID:   leaseID,
		FirstName: first,
		LastName:  last,
	}
	s.Require().NoError(s.residents.Create(context.Background(), r))
	return r
}

func (s *ServiceSuite) upload(v *vermodels.IncomeVerification, r *resmodels.Resident, docType models.Type) *models.IncomeDocument {
	doc, err := s.service.Upload(context.Background(), v.ID, r.ID, docType, "s3://uploads/doc.pdf")
	s.Require().NoError(err)
	return doc
}

func cents(v int64) *id.Cents {
	c := id.Cents(v)
	return &c
}

func (s *ServiceSuite) TestUpload() {
	ctx := context.Background()

	s.Run("creates processing document", func() {
		v := s.seedVerification(vermodels.StatusInProgress)
		r := s.seedResident(v.LeaseID, "Dana", "Okafor")

		doc := s.upload(v, r, models.TypeW2)
		s.Equal(models.StatusProcessing, doc.Status)
		s.False(doc.Analyzed())
	})

	s.Run("unknown type rejected", func() {
		v := s.seedVerification(vermodels.StatusInProgress)
		r := s.seedResident(v.LeaseID, "Dana", "Okafor")

		_, err := s.service.Upload(ctx, v.ID, r.ID, "TAX_RETURN", "ref")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("finalized verification refuses uploads", func() {
		v := s.seedVerification(vermodels.StatusFinalized)
		r := s.seedResident(v.LeaseID, "Dana", "Okafor")

		_, err := s.service.Upload(ctx, v.ID, r.ID, models.TypeW2, "ref")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("resident from another lease rejected", func() {
		v := s.seedVerification(vermodels.StatusInProgress)
		stranger := s.seedResident(id.NewLeaseID(), "Sam", "Reyes")

		_, err := s.service.Upload(ctx, v.ID, stranger.ID, models.TypeW2, "ref")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestRecordAnalysis() {
	ctx := context.Background()

	s.Run("w2 completes with the max box and triggers recompute", func() {
		v := s.seedVerification(vermodels.StatusInProgress)
		r := s.seedResident(v.LeaseID, "Dana", "Okafor")
		doc := s.upload(v, r, models.TypeW2)

		recorded, err := s.service.RecordAnalysis(ctx, doc.ID, AnalysisResult{
			Fields: models.ExtractedFields{
				Name:                   "OKAFOR, DANA",
				Box1Wages:              cents(4_800_000),
				Box3SocialSecurityWage: cents(5_000_000),
				Box5MedicareWages:      cents(4_900_000),
			},
		})
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, recorded.Status)
		s.Equal(id.Cents(5_000_000), recorded.CalculatedAnnualizedIncome)
		s.Contains(s.recomputer.residents, r.ID)
	})

	s.Run("redelivery after completion changes nothing", func() {
		v := s.seedVerification(vermodels.StatusInProgress)
		r := s.seedResident(v.LeaseID, "Dana", "Okafor")
		doc := s.upload(v, r, models.TypeW2)

		first, err := s.service.RecordAnalysis(ctx, doc.ID, AnalysisResult{
			Fields: models.ExtractedFields{Name: "Dana Okafor", Box1Wages: cents(4_800_000)},
		})
		s.Require().NoError(err)
		recomputes := len(s.recomputer.residents)

		second, err := s.service.RecordAnalysis(ctx, doc.ID, AnalysisResult{
			Fields: models.ExtractedFields{Name: "Dana Okafor", Box1Wages: cents(9_900_000)},
		})
		s.Require().NoError(err)
		s.Equal(first.CalculatedAnnualizedIncome, second.CalculatedAnnualizedIncome)
		s.Len(s.recomputer.residents, recomputes)
	})

	s.Run("name mismatch goes to needs-review and files a review ask", func() {
		v := s.seedVerification(vermodels.StatusInProgress)
		r := s.seedResident(v.LeaseID, "Dana", "Okafor")
		doc := s.upload(v, r, models.TypeW2)

		recorded, err := s.service.RecordAnalysis(ctx, doc.ID, AnalysisResult{
			Fields: models.ExtractedFields{Name: "Sam Reyes", Box1Wages: cents(4_800_000)},
		})
		s.Require().NoError(err)
		s.Equal(models.StatusNeedsReview, recorded.Status)
		s.Equal(ReasonNameMismatch, recorded.ReviewReason)

		pending, err := s.overrides.ListPending(ctx)
		s.Require().NoError(err)
		s.Require().Len(pending, 1)
		s.Equal(omodels.TypeDocumentReview, pending[0].Type)
		s.Equal(omodels.TargetDocument(doc.ID), pending[0].TargetKey)
	})

	s.Run("paystub without frequency goes to needs-review", func() {
		v := s.seedVerification(vermodels.StatusInProgress)
		r := s.seedResident(v.LeaseID, "Dana", "Okafor")
		doc := s.upload(v, r, models.TypePaystub)

		recorded, err := s.service.RecordAnalysis(ctx, doc.ID, AnalysisResult{
			Fields: models.ExtractedFields{Name: "Dana Okafor", GrossPay: cents(200_000)},
		})
		s.Require().NoError(err)
		s.Equal(models.StatusNeedsReview, recorded.Status)
		s.Equal(ReasonIncomeUncomputed, recorded.ReviewReason)
	})

	s.Run("failed analysis records the error", func() {
		v := s.seedVerification(vermodels.StatusInProgress)
		r := s.seedResident(v.LeaseID, "Dana", "Okafor")
		doc := s.upload(v, r, models.TypeW2)

		recorded, err := s.service.RecordAnalysis(ctx, doc.ID, AnalysisResult{
			Failed: true,
			Error:  "unreadable scan",
		})
		s.Require().NoError(err)
		s.Equal(models.StatusNeedsReview, recorded.Status)
		s.Contains(recorded.ReviewReason, "unreadable scan")
	})
}

func (s *ServiceSuite) TestDelete() {
	ctx := context.Background()

	s.Run("delete recomputes and withdraws the pending review ask", func() {
		v := s.seedVerification(vermodels.StatusInProgress)
		r := s.seedResident(v.LeaseID, "Dana", "Okafor")
		doc := s.upload(v, r, models.TypeW2)
		_, err := s.service.RecordAnalysis(ctx, doc.ID, AnalysisResult{
			Fields: models.ExtractedFields{Name: "Sam Reyes", Box1Wages: cents(4_800_000)},
		})
		s.Require().NoError(err)

		s.Require().NoError(s.service.Delete(ctx, doc.ID))
		s.Contains(s.recomputer.residents, r.ID)
		pending, err := s.overrides.ListPending(ctx)
		s.Require().NoError(err)
		s.Empty(pending)
	})

	s.Run("deleting an unknown document is not found", func() {
		err := s.service.Delete(ctx, id.NewDocumentID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("delete refuses a caller the lease check rejects", func() {
		v := s.seedVerification(vermodels.StatusInProgress)
		r := s.seedResident(v.LeaseID, "Dana", "Okafor")
		doc := s.upload(v, r, models.TypeW2)

		denied := New(s.documents, s.verifications, s.residents, s.recomputer, denyAllLeases{}, analysis.NopSubmitter{}, s.overrides, nil, slog.Default())
		err := denied.Delete(ctx, doc.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		kept, err := s.documents.Find(ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(doc.ID, kept.ID)
	})

	s.Run("delete refuses when the owning verification cannot be loaded", func() {
		doc := &models.IncomeDocument{
			ID:             id.NewDocumentID(),
			ResidentID:     id.NewResidentID(),
			VerificationID: id.NewVerificationID(),
			Type:           models.TypeW2,
			Status:         models.StatusCompleted,
			UploadDate:     time.Now().UTC(),
		}
		s.Require().NoError(s.documents.Create(ctx, doc))

		denied := New(s.documents, s.verifications, s.residents, s.recomputer, denyAllLeases{}, analysis.NopSubmitter{}, s.overrides, nil, slog.Default())
		err := denied.Delete(ctx, doc.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		kept, err := s.documents.Find(ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(doc.ID, kept.ID)
	})
}

func (s *ServiceSuite) TestListByResident() {
	ctx := context.Background()
	v := s.seedVerification(vermodels.StatusInProgress)
	r := s.seedResident(v.LeaseID, "Dana", "Okafor")
	first := s.upload(v, r, models.TypeW2)
	second := s.upload(v, r, models.TypePaystub)

	s.Run("lists the resident's documents oldest first", func() {
		docs, err := s.service.ListByResident(ctx, r.ID)
		s.Require().NoError(err)
		s.Require().Len(docs, 2)
		s.Equal(first.ID, docs[0].ID)
		s.Equal(second.ID, docs[1].ID)
	})

	s.Run("unknown resident is not found", func() {
		_, err := s.service.ListByResident(ctx, id.NewResidentID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("refuses a caller the lease check rejects", func() {
		denied := New(s.documents, s.verifications, s.residents, s.recomputer, denyAllLeases{}, analysis.NopSubmitter{}, s.overrides, nil, slog.Default())
		_, err := denied.ListByResident(ctx, r.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestGetChecksOwnership() {
	ctx := context.Background()
	v := s.seedVerification(vermodels.StatusInProgress)
	r := s.seedResident(v.LeaseID, "Dana", "Okafor")
	doc := s.upload(v, r, models.TypeW2)

	got, err := s.service.Get(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(doc.ID, got.ID)

	denied := New(s.documents, s.verifications, s.residents, s.recomputer, denyAllLeases{}, analysis.NopSubmitter{}, s.overrides, nil, slog.Default())
	_, err = denied.Get(ctx, doc.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestRecordAnalysisUsesRequestTime() {
	v := s.seedVerification(vermodels.StatusInProgress)
	r := s.seedResident(v.LeaseID, "Dana", "Okafor")
	doc := s.upload(v, r, models.TypeW2)

	now := time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)
	recorded, err := s.service.RecordAnalysis(requestcontext.WithTime(context.Background(), now), doc.ID, AnalysisResult{
		Fields: models.ExtractedFields{Name: "Dana Okafor", Box1Wages: cents(4_800_000)},
	})
	s.Require().NoError(err)
	s.Require().NotNil(recorded.AnalyzedAt)
	s.Equal(now, *recorded.AnalyzedAt)
}
