//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veristay/internal/override/models"
	"veristay/internal/override/store"
	id "veristay/pkg/domain"
	"veristay/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "override_requests", "unit_count_discrepancies")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newRequest(targetKey string) *models.OverrideRequest {
	return &models.OverrideRequest{
		ID:          id.NewOverrideID(),
		Type:        models.TypeDocumentReview,
		Status:      models.StatusPending,
		TargetKey:   targetKey,
		Explanation: "needs a human decision",
		RequesterID: id.NewUserID(),
		CreatedAt:   time.Now().UTC(),
	}
}

// TestConcurrentCreateRequestDedup verifies the partial unique index
// collapses racing inserts for the same (type, target) onto one PENDING
// winner.
func (s *PostgresStoreSuite) TestConcurrentCreateRequestDedup() {
	ctx := context.Background()
	targetKey := models.TargetDocument(id.NewDocumentID())
	const goroutines = 20

	var wg sync.WaitGroup
	winners := make([]id.OverrideID, goroutines)
	createdFlags := make([]bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			winner, created, err := s.store.CreateRequest(ctx, s.newRequest(targetKey))
			s.Require().NoError(err)
			winners[i] = winner.ID
			createdFlags[i] = created
		}(i)
	}

	wg.Wait()

	createdCount := 0
	for i := 1; i < goroutines; i++ {
		s.Equal(winners[0], winners[i], "all callers should see the same winner")
	}
	for _, created := range createdFlags {
		if created {
			createdCount++
		}
	}
	s.Equal(1, createdCount, "exactly one insert should win")

	pending, err := s.store.ListPendingRequests(ctx)
	s.Require().NoError(err)
	s.Len(pending, 1)
}

func (s *PostgresStoreSuite) TestDistinctTargetsBothInsert() {
	ctx := context.Background()

	_, created, err := s.store.CreateRequest(ctx, s.newRequest(models.TargetDocument(id.NewDocumentID())))
	s.Require().NoError(err)
	s.True(created)

	_, created, err = s.store.CreateRequest(ctx, s.newRequest(models.TargetDocument(id.NewDocumentID())))
	s.Require().NoError(err)
	s.True(created)

	pending, err := s.store.ListPendingRequests(ctx)
	s.Require().NoError(err)
	s.Len(pending, 2)
}

// TestPendingReopensAfterDecision verifies the uniqueness constraint only
// covers PENDING rows: once a request is decided, a fresh ask for the same
// target inserts again.
func (s *PostgresStoreSuite) TestPendingReopensAfterDecision() {
	ctx := context.Background()
	targetKey := models.TargetDocument(id.NewDocumentID())

	first, created, err := s.store.CreateRequest(ctx, s.newRequest(targetKey))
	s.Require().NoError(err)
	s.True(created)

	reviewer := id.NewUserID()
	now := time.Now().UTC()
	_, err = s.store.ExecuteRequest(ctx, first.ID,
		func(req *models.OverrideRequest) error { return nil },
		func(req *models.OverrideRequest) {
			req.Status = models.StatusApproved
			req.ReviewerID = &reviewer
			req.ReviewedAt = &now
			req.AdminNotes = "looks fine"
		})
	s.Require().NoError(err)

	second, created, err := s.store.CreateRequest(ctx, s.newRequest(targetKey))
	s.Require().NoError(err)
	s.True(created)
	s.NotEqual(first.ID, second.ID)

	decided, err := s.store.FindRequest(ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, decided.Status)
	s.Require().NotNil(decided.ReviewerID)
	s.Equal(reviewer, *decided.ReviewerID)
}

// TestConcurrentCreateDiscrepancyDedup verifies the one-PENDING-per-property
// index under racing inserts.
func (s *PostgresStoreSuite) TestConcurrentCreateDiscrepancyDedup() {
	ctx := context.Background()
	propertyID := id.NewPropertyID()
	const goroutines = 20

	var wg sync.WaitGroup
	winners := make([]id.DiscrepancyID, goroutines)
	createdFlags := make([]bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			winner, created, err := s.store.CreateDiscrepancy(ctx, &models.UnitCountDiscrepancy{
				ID:                id.NewDiscrepancyID(),
				PropertyID:        propertyID,
				DeclaredUnits:     10,
				ActualUnits:       12,
				PaymentDifference: id.Cents(100000),
				Status:            models.DiscrepancyPending,
				CreatedAt:         time.Now().UTC(),
			})
			s.Require().NoError(err)
			winners[i] = winner.ID
			createdFlags[i] = created
		}(i)
	}

	wg.Wait()

	createdCount := 0
	for i := 1; i < goroutines; i++ {
		s.Equal(winners[0], winners[i])
	}
	for _, created := range createdFlags {
		if created {
			createdCount++
		}
	}
	s.Equal(1, createdCount)

	pending, err := s.store.ListPendingDiscrepancies(ctx)
	s.Require().NoError(err)
	s.Len(pending, 1)
}
