package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	docmodels "veristay/internal/document/models"
	docstore "veristay/internal/document/store"
	propmodels "veristay/internal/property/models"
	resmodels "veristay/internal/resident/models"
	resstore "veristay/internal/resident/store"
	"veristay/internal/verification/models"
	"veristay/internal/verification/store"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"

	"github.com/stretchr/testify/suite"
)

// unitLeases maps every lease onto a fixed unit/property so singleton
// checks can be exercised across leases.
type unitLeases struct {
	units map[id.LeaseID]id.UnitID
	prop  id.PropertyID
}

func (f *unitLeases) AuthorizeLease(_ context.Context, leaseID id.LeaseID) (*propmodels.LeaseRef, error) {
	unitID, ok := f.units[leaseID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "lease not found")
	}
	return &propmodels.LeaseRef{
		LeaseID:    leaseID,
		UnitID:     unitID,
		PropertyID: f.prop,
	}, nil
}

type recordingChecker struct {
	leases []id.LeaseID
}

func (c *recordingChecker) CheckIncomeDiscrepancy(_ context.Context, leaseID id.LeaseID) error {
	c.leases = append(c.leases, leaseID)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	verifications *store.Memory
	residents     *resstore.Memory
	documents     *docstore.Memory
	leases        *unitLeases
	checker       *recordingChecker
	service       *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.verifications = store.NewMemory()
	s.residents = resstore.NewMemory()
	s.documents = docstore.NewMemory()
	s.leases = &unitLeases{units: make(map[id.LeaseID]id.UnitID), prop: id.NewPropertyID()}
	s.checker = &recordingChecker{}
	s.service = New(s.verifications, s.residents, s.documents, s.leases, s.checker, nil, slog.Default())
}

func (s *ServiceSuite) seedLease(unitID id.UnitID) id.LeaseID {
	leaseID := id.NewLeaseID()
	s.leases.units[leaseID] = unitID
	return leaseID
}

func (s *ServiceSuite) seedResident(leaseID id.LeaseID, mutate func(*resmodels.Resident)) *resmodels.Resident {
	r := &resmodels.Resident{
		ID:      id.NewResidentID(),
		LeaseID: leaseID,
	}
	if mutate != nil {
		mutate(r)
	}
	s.Require().NoError(s.residents.Create(context.Background(), r))
	return r
}

func (s *ServiceSuite) createVerification(leaseID id.LeaseID) *models.IncomeVerification {
	v, err := s.service.Create(context.Background(), leaseID, CreateParams{
		Reason:      models.ReasonAnnualRecertification,
		PeriodStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		DueDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)
	return v
}

func (s *ServiceSuite) TestCreate() {
	ctx := context.Background()

	s.Run("opens an in-progress verification", func() {
		leaseID := s.seedLease(id.NewUnitID())
		v := s.createVerification(leaseID)
		s.Equal(models.StatusInProgress, v.Status)
		s.Equal(leaseID, v.LeaseID)
		s.Nil(v.FinalizedAt)
	})

	s.Run("second in-progress verification for the unit conflicts", func() {
		unitID := id.NewUnitID()
		leaseID := s.seedLease(unitID)
		s.createVerification(leaseID)

		_, err := s.service.Create(ctx, leaseID, CreateParams{Reason: models.ReasonIncomeChange})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("conflict applies across leases on the same unit", func() {
		unitID := id.NewUnitID()
		s.createVerification(s.seedLease(unitID))

		otherLease := s.seedLease(unitID)
		_, err := s.service.Create(ctx, otherLease, CreateParams{Reason: models.ReasonLeaseRenewal})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown reason rejected", func() {
		leaseID := s.seedLease(id.NewUnitID())
		_, err := s.service.Create(ctx, leaseID, CreateParams{Reason: "QUARTERLY"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("a new verification is allowed once the prior one is finalized", func() {
		unitID := id.NewUnitID()
		leaseID := s.seedLease(unitID)
		v := s.createVerification(leaseID)
		s.seedResident(leaseID, func(r *resmodels.Resident) { r.HasNoIncome = true })
		_, err := s.service.Finalize(ctx, v.ID)
		s.Require().NoError(err)

		_, err = s.service.Create(ctx, leaseID, CreateParams{Reason: models.ReasonAnnualRecertification})
		s.Require().NoError(err)
	})
}

func (s *ServiceSuite) TestCancel() {
	ctx := context.Background()

	s.Run("cancel deletes a document-free verification", func() {
		leaseID := s.seedLease(id.NewUnitID())
		v := s.createVerification(leaseID)

		s.Require().NoError(s.service.Cancel(ctx, v.ID))
		_, err := s.service.Get(ctx, v.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("cancel refused while documents exist", func() {
		leaseID := s.seedLease(id.NewUnitID())
		v := s.createVerification(leaseID)
		doc := &docmodels.IncomeDocument{
			ID:             id.NewDocumentID(),
			ResidentID:     id.NewResidentID(),
			VerificationID: v.ID,
			Type:           docmodels.TypeW2,
			Status:         docmodels.StatusProcessing,
			UploadDate:     time.Now().UTC(),
		}
		s.Require().NoError(s.documents.Create(ctx, doc))

		err := s.service.Cancel(ctx, v.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("cancel refused for finalized verification", func() {
		leaseID := s.seedLease(id.NewUnitID())
		v := s.createVerification(leaseID)
		s.seedResident(leaseID, func(r *resmodels.Resident) { r.HasNoIncome = true })
		_, err := s.service.Finalize(ctx, v.ID)
		s.Require().NoError(err)

		err = s.service.Cancel(ctx, v.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestFinalize() {
	ctx := context.Background()

	s.Run("finalizes when every resident is settled", func() {
		leaseID := s.seedLease(id.NewUnitID())
		v := s.createVerification(leaseID)
		s.seedResident(leaseID, func(r *resmodels.Resident) {
			r.IncomeFinalized = true
			r.VerifiedIncome = 3_000_000
		})
		s.seedResident(leaseID, func(r *resmodels.Resident) { r.HasNoIncome = true })

		finalized, err := s.service.Finalize(ctx, v.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusFinalized, finalized.Status)
		s.Equal(id.Cents(3_000_000), finalized.CalculatedVerifiedIncome)
		s.Require().NotNil(finalized.FinalizedAt)
		s.Contains(s.checker.leases, leaseID)
	})

	s.Run("refused with unsettled residents, reporting counts", func() {
		leaseID := s.seedLease(id.NewUnitID())
		v := s.createVerification(leaseID)
		s.seedResident(leaseID, func(r *resmodels.Resident) {
			r.IncomeFinalized = true
			r.VerifiedIncome = 3_000_000
		})
		s.seedResident(leaseID, nil)

		_, err := s.service.Finalize(ctx, v.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		var de *dErrors.Error
		s.Require().ErrorAs(err, &de)
		s.Equal(1, de.Details["settled_count"])
		s.Equal(2, de.Details["total_count"])
	})

	s.Run("double finalize refused", func() {
		leaseID := s.seedLease(id.NewUnitID())
		v := s.createVerification(leaseID)
		s.seedResident(leaseID, func(r *resmodels.Resident) { r.HasNoIncome = true })
		_, err := s.service.Finalize(ctx, v.ID)
		s.Require().NoError(err)

		_, err = s.service.Finalize(ctx, v.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestReevaluateLease() {
	ctx := context.Background()

	s.Run("unsettled resident reverts finalized verification", func() {
		leaseID := s.seedLease(id.NewUnitID())
		v := s.createVerification(leaseID)
		resident := s.seedResident(leaseID, func(r *resmodels.Resident) {
			r.IncomeFinalized = true
			r.VerifiedIncome = 3_000_000
		})
		_, err := s.service.Finalize(ctx, v.ID)
		s.Require().NoError(err)

		_, err = s.residents.Execute(ctx, resident.ID, nil, func(r *resmodels.Resident) {
			r.IncomeFinalized = false
			r.FinalizedAt = nil
		})
		s.Require().NoError(err)

		s.Require().NoError(s.service.ReevaluateLease(ctx, leaseID))
		reverted, err := s.verifications.Find(ctx, v.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, reverted.Status)
		s.Equal(id.Cents(0), reverted.CalculatedVerifiedIncome)
		s.Nil(reverted.FinalizedAt)
	})

	s.Run("all residents settled leaves finalization standing", func() {
		leaseID := s.seedLease(id.NewUnitID())
		v := s.createVerification(leaseID)
		s.seedResident(leaseID, func(r *resmodels.Resident) {
			r.IncomeFinalized = true
			r.VerifiedIncome = 3_000_000
		})
		_, err := s.service.Finalize(ctx, v.ID)
		s.Require().NoError(err)

		s.Require().NoError(s.service.ReevaluateLease(ctx, leaseID))
		still, err := s.verifications.Find(ctx, v.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusFinalized, still.Status)
		s.Equal(id.Cents(3_000_000), still.CalculatedVerifiedIncome)
	})

	s.Run("running twice is a no-op the second time", func() {
		leaseID := s.seedLease(id.NewUnitID())
		v := s.createVerification(leaseID)
		resident := s.seedResident(leaseID, func(r *resmodels.Resident) {
			r.IncomeFinalized = true
			r.VerifiedIncome = 3_000_000
		})
		_, err := s.service.Finalize(ctx, v.ID)
		s.Require().NoError(err)
		_, err = s.residents.Execute(ctx, resident.ID, nil, func(r *resmodels.Resident) {
			r.IncomeFinalized = false
		})
		s.Require().NoError(err)

		s.Require().NoError(s.service.ReevaluateLease(ctx, leaseID))
		s.Require().NoError(s.service.ReevaluateLease(ctx, leaseID))
		after, err := s.verifications.Find(ctx, v.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, after.Status)
	})
}
