package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"veristay/internal/override/models"
	"veristay/internal/override/store"
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

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Emit(_ context.Context, event audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

type ServiceSuite struct {
	suite.Suite
	overrides     *store.Memory
	residents     *resstore.Memory
	verifications *verstore.Memory
	properties    *propstore.Memory
	auditor       *recordingAuditor
	service       *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.overrides = store.NewMemory()
	s.residents = resstore.NewMemory()
	s.verifications = verstore.NewMemory()
	s.properties = propstore.NewMemory()
	s.auditor = &recordingAuditor{}
	s.service = New(s.overrides, s.residents, s.verifications, s.properties, s.auditor, nil, slog.Default())
}

func (s *ServiceSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *ServiceSuite) seedFinalizedVerification(leaseID id.LeaseID, income id.Cents) {
	now := time.Now().UTC()
	v := &vermodels.IncomeVerification{
		ID:                       id.NewVerificationID(),
		LeaseID:                  leaseID,
		UnitID:                   id.NewUnitID(),
		PropertyID:               id.NewPropertyID(),
		Status:                   vermodels.StatusFinalized,
		Reason:                   vermodels.ReasonAnnualRecertification,
		CalculatedVerifiedIncome: income,
		FinalizedAt:              &now,
		CreatedAt:                now,
	}
	s.Require().NoError(s.verifications.Create(context.Background(), v))
}

func (s *ServiceSuite) seedResidentWithDeclared(leaseID id.LeaseID, declared id.Cents) {
	r := &resmodels.Resident{
		ID:               id.NewResidentID(),
		LeaseID:          leaseID,
		AnnualizedIncome: declared,
	}
	s.Require().NoError(s.residents.Create(context.Background(), r))
}

func (s *ServiceSuite) seedProperty(declaredUnits int, tier propmodels.ServiceTier) *propmodels.Property {
	p := &propmodels.Property{
		ID:            id.NewPropertyID(),
		OwnerID:       id.NewUserID(),
		Name:          "Cedar Grove",
		NumberOfUnits: declaredUnits,
		ServiceTier:   tier,
	}
	s.Require().NoError(s.properties.CreateProperty(context.Background(), p))
	return p
}

func (s *ServiceSuite) TestCreate() {
	ctx := context.Background()

	s.Run("second create returns the first pending request", func() {
		unitID := id.NewUnitID()
		first, err := s.service.Create(ctx, models.TypeIncomeDiscrepancy, models.TargetUnit(unitID), "declared vs verified mismatch")
		s.Require().NoError(err)

		second, err := s.service.Create(ctx, models.TypeIncomeDiscrepancy, models.TargetUnit(unitID), "again")
		s.Require().NoError(err)
		s.Equal(first.ID, second.ID)

		pending, err := s.service.ListPending(ctx)
		s.Require().NoError(err)
		s.Len(pending, 1)
	})

	s.Run("same target different type creates separately", func() {
		unitID := id.NewUnitID()
		first, err := s.service.Create(ctx, models.TypeIncomeDiscrepancy, models.TargetUnit(unitID), "income")
		s.Require().NoError(err)
		second, err := s.service.Create(ctx, models.TypeValidationException, models.TargetUnit(unitID), "validation")
		s.Require().NoError(err)
		s.NotEqual(first.ID, second.ID)
	})

	s.Run("unknown type rejected", func() {
		_, err := s.service.Create(ctx, "ESCALATION", "unit:x", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestCheckIncomeDiscrepancy() {
	ctx := context.Background()

	s.Run("difference inside the one dollar tolerance is absorbed", func() {
		leaseID := id.NewLeaseID()
		s.seedFinalizedVerification(leaseID, 5_200_000)
		s.seedResidentWithDeclared(leaseID, 5_200_040)

		s.Require().NoError(s.service.CheckIncomeDiscrepancy(ctx, leaseID))
		pending, err := s.service.ListPending(ctx)
		s.Require().NoError(err)
		s.Empty(pending)
	})

	s.Run("difference above the tolerance files a request", func() {
		leaseID := id.NewLeaseID()
		s.seedFinalizedVerification(leaseID, 5_200_000)
		s.seedResidentWithDeclared(leaseID, 5_200_200)

		s.Require().NoError(s.service.CheckIncomeDiscrepancy(ctx, leaseID))
		pending, err := s.service.ListPending(ctx)
		s.Require().NoError(err)
		s.Require().Len(pending, 1)
		s.Equal(models.TypeIncomeDiscrepancy, pending[0].Type)
		s.Equal(models.TargetLease(leaseID), pending[0].TargetKey)
	})

	s.Run("exactly one dollar is still tolerated", func() {
		leaseID := id.NewLeaseID()
		s.seedFinalizedVerification(leaseID, 5_200_000)
		s.seedResidentWithDeclared(leaseID, 5_200_100)

		s.Require().NoError(s.service.CheckIncomeDiscrepancy(ctx, leaseID))
		pending, err := s.service.ListPending(ctx)
		s.Require().NoError(err)
		s.Empty(pending)
	})

	s.Run("lease without finalized verification is skipped", func() {
		leaseID := id.NewLeaseID()
		s.seedResidentWithDeclared(leaseID, 5_200_000)

		s.Require().NoError(s.service.CheckIncomeDiscrepancy(ctx, leaseID))
		pending, err := s.service.ListPending(ctx)
		s.Require().NoError(err)
		s.Empty(pending)
	})

	s.Run("repeat checks dedup onto one request", func() {
		leaseID := id.NewLeaseID()
		s.seedFinalizedVerification(leaseID, 5_200_000)
		s.seedResidentWithDeclared(leaseID, 5_300_000)

		s.Require().NoError(s.service.CheckIncomeDiscrepancy(ctx, leaseID))
		s.Require().NoError(s.service.CheckIncomeDiscrepancy(ctx, leaseID))
		pending, err := s.service.ListPending(ctx)
		s.Require().NoError(err)
		s.Len(pending, 1)
	})
}

func (s *ServiceSuite) TestCheckUnitCountDiscrepancy() {
	ctx := context.Background()

	s.Run("shortfall records nothing", func() {
		p := s.seedProperty(100, propmodels.TierStandard)
		d, err := s.service.CheckUnitCountDiscrepancy(ctx, p.ID, 95)
		s.Require().NoError(err)
		s.Nil(d)
	})

	s.Run("overage records payment difference at the standard rate", func() {
		p := s.seedProperty(100, propmodels.TierStandard)
		d, err := s.service.CheckUnitCountDiscrepancy(ctx, p.ID, 103)
		s.Require().NoError(err)
		s.Require().NotNil(d)
		s.Equal(100, d.DeclaredUnits)
		s.Equal(103, d.ActualUnits)
		s.Equal(id.Cents(1500), d.PaymentDifference)
	})

	s.Run("premium tier doubles the rate", func() {
		p := s.seedProperty(50, propmodels.TierPremium)
		d, err := s.service.CheckUnitCountDiscrepancy(ctx, p.ID, 52)
		s.Require().NoError(err)
		s.Require().NotNil(d)
		s.Equal(id.Cents(2000), d.PaymentDifference)
	})

	s.Run("repeat checks return the existing pending record", func() {
		p := s.seedProperty(100, propmodels.TierStandard)
		first, err := s.service.CheckUnitCountDiscrepancy(ctx, p.ID, 103)
		s.Require().NoError(err)
		second, err := s.service.CheckUnitCountDiscrepancy(ctx, p.ID, 104)
		s.Require().NoError(err)
		s.Equal(first.ID, second.ID)
	})

	s.Run("equal counts record nothing", func() {
		p := s.seedProperty(100, propmodels.TierStandard)
		d, err := s.service.CheckUnitCountDiscrepancy(ctx, p.ID, 100)
		s.Require().NoError(err)
		s.Nil(d)
	})
}

func (s *ServiceSuite) TestCloseDiscrepancy() {
	adminID := id.NewUserID()
	ctx := requestcontext.WithUserID(context.Background(), adminID)

	s.Run("resolve records admin and notes and audits", func() {
		p := s.seedProperty(100, propmodels.TierStandard)
		d, err := s.service.CheckUnitCountDiscrepancy(ctx, p.ID, 103)
		s.Require().NoError(err)

		closed, err := s.service.ResolveUnitCountDiscrepancy(ctx, d.ID, "billing corrected")
		s.Require().NoError(err)
		s.Equal(models.DiscrepancyResolved, closed.Status)
		s.Require().NotNil(closed.ResolvedBy)
		s.Equal(adminID, *closed.ResolvedBy)
		s.Equal("billing corrected", closed.Notes)
		s.Require().NotEmpty(s.auditor.events)
		s.Equal(audit.ActionDiscrepancyResolved, s.auditor.events[len(s.auditor.events)-1].Action)
	})

	s.Run("resolve twice is idempotent", func() {
		p := s.seedProperty(100, propmodels.TierStandard)
		d, err := s.service.CheckUnitCountDiscrepancy(ctx, p.ID, 101)
		s.Require().NoError(err)

		_, err = s.service.ResolveUnitCountDiscrepancy(ctx, d.ID, "fixed")
		s.Require().NoError(err)
		before := len(s.auditor.events)
		again, err := s.service.ResolveUnitCountDiscrepancy(ctx, d.ID, "fixed again")
		s.Require().NoError(err)
		s.Equal(models.DiscrepancyResolved, again.Status)
		s.Equal("fixed", again.Notes)
		s.Len(s.auditor.events, before)
	})

	s.Run("waive after resolve conflicts", func() {
		p := s.seedProperty(100, propmodels.TierStandard)
		d, err := s.service.CheckUnitCountDiscrepancy(ctx, p.ID, 102)
		s.Require().NoError(err)

		_, err = s.service.ResolveUnitCountDiscrepancy(ctx, d.ID, "fixed")
		s.Require().NoError(err)
		_, err = s.service.WaiveUnitCountDiscrepancy(ctx, d.ID, "never mind")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown discrepancy not found", func() {
		_, err := s.service.ResolveUnitCountDiscrepancy(ctx, id.NewDiscrepancyID(), "n/a")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
