package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"veristay/internal/override/models"
	"veristay/internal/override/store"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/audit"
	"veristay/pkg/requestcontext"

	"github.com/stretchr/testify/suite"
)

type fakeDeleter struct {
	err     error
	deleted []id.PropertyID
}

func (d *fakeDeleter) Delete(_ context.Context, propertyID id.PropertyID) error {
	if d.err != nil {
		return d.err
	}
	d.deleted = append(d.deleted, propertyID)
	return nil
}

type fakeSnapshotDeleter struct {
	deleted []id.SnapshotID
}

func (d *fakeSnapshotDeleter) DeleteSnapshot(_ context.Context, snapshotID id.SnapshotID) error {
	d.deleted = append(d.deleted, snapshotID)
	return nil
}

type recordingNotifier struct {
	notified []*models.OverrideRequest
}

func (n *recordingNotifier) NotifyDecision(_ context.Context, req *models.OverrideRequest) error {
	n.notified = append(n.notified, req)
	return nil
}

type recordingAuditor struct {
	events []audit.Event
}

func (a *recordingAuditor) Emit(_ context.Context, event audit.Event) {
	a.events = append(a.events, event)
}

type ServiceSuite struct {
	suite.Suite
	overrides   *store.Memory
	deleter     *fakeDeleter
	snapDeleter *fakeSnapshotDeleter
	notifier    *recordingNotifier
	auditor     *recordingAuditor
	service     *Service
	adminCtx    context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.overrides = store.NewMemory()
	s.deleter = &fakeDeleter{}
	s.snapDeleter = &fakeSnapshotDeleter{}
	s.notifier = &recordingNotifier{}
	s.auditor = &recordingAuditor{}
	s.service = New(s.overrides, s.deleter, s.snapDeleter, s.notifier, s.auditor, nil, slog.Default())
	s.adminCtx = requestcontext.WithUserID(context.Background(), id.NewUserID())
}

func (s *ServiceSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *ServiceSuite) seedRequest(reqType models.RequestType, targetKey string) *models.OverrideRequest {
	req := &models.OverrideRequest{
		ID:          id.NewOverrideID(),
		Type:        reqType,
		Status:      models.StatusPending,
		TargetKey:   targetKey,
		RequesterID: id.NewUserID(),
	}
	created, _, err := s.overrides.CreateRequest(context.Background(), req)
	s.Require().NoError(err)
	return created
}

func (s *ServiceSuite) TestDecide() {
	s.Run("empty notes rejected", func() {
		req := s.seedRequest(models.TypeValidationException, "unit:a")
		_, err := s.service.Decide(s.adminCtx, req.ID, ActionApprove, "   ")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown action rejected", func() {
		req := s.seedRequest(models.TypeValidationException, "unit:b")
		_, err := s.service.Decide(s.adminCtx, req.ID, "escalate", "notes")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("approval records reviewer and notifies", func() {
		req := s.seedRequest(models.TypeIncomeDiscrepancy, "lease:x")
		decided, err := s.service.Decide(s.adminCtx, req.ID, ActionApprove, "looks fine")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, decided.Status)
		s.Equal("looks fine", decided.AdminNotes)
		s.Require().NotNil(decided.ReviewerID)
		s.Require().NotNil(decided.ReviewedAt)
		s.Len(s.notifier.notified, 1)
		s.Require().Len(s.auditor.events, 1)
		s.Equal(audit.ActionOverrideApproved, s.auditor.events[0].Action)
	})

	s.Run("denial audits as denied", func() {
		req := s.seedRequest(models.TypeDocumentReview, "document:y")
		decided, err := s.service.Decide(s.adminCtx, req.ID, ActionDeny, "illegible scan")
		s.Require().NoError(err)
		s.Equal(models.StatusDenied, decided.Status)
		s.Equal(audit.ActionOverrideDenied, s.auditor.events[len(s.auditor.events)-1].Action)
	})

	s.Run("deciding an already decided request conflicts", func() {
		req := s.seedRequest(models.TypeValidationException, "unit:c")
		_, err := s.service.Decide(s.adminCtx, req.ID, ActionApprove, "first")
		s.Require().NoError(err)

		_, err = s.service.Decide(s.adminCtx, req.ID, ActionApprove, "second")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown request not found", func() {
		_, err := s.service.Decide(s.adminCtx, id.NewOverrideID(), ActionDeny, "n/a")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestPropertyDeletionApproval() {
	s.Run("approval deletes the property", func() {
		propertyID := id.NewPropertyID()
		req := s.seedRequest(models.TypePropertyDeletion, models.TargetProperty(propertyID))

		decided, err := s.service.Decide(s.adminCtx, req.ID, ActionApprove, "confirmed vacant")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, decided.Status)
		s.Equal([]id.PropertyID{propertyID}, s.deleter.deleted)
	})

	s.Run("denial does not touch the property", func() {
		propertyID := id.NewPropertyID()
		req := s.seedRequest(models.TypePropertyDeletion, models.TargetProperty(propertyID))

		_, err := s.service.Decide(s.adminCtx, req.ID, ActionDeny, "still occupied")
		s.Require().NoError(err)
		s.Empty(s.deleter.deleted)
	})

	s.Run("failed deletion reverts the request to pending", func() {
		propertyID := id.NewPropertyID()
		req := s.seedRequest(models.TypePropertyDeletion, models.TargetProperty(propertyID))
		s.deleter.err = errors.New("store unavailable")

		_, err := s.service.Decide(s.adminCtx, req.ID, ActionApprove, "confirmed vacant")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		reverted, findErr := s.overrides.FindRequest(context.Background(), req.ID)
		s.Require().NoError(findErr)
		s.Equal(models.StatusPending, reverted.Status)
		s.Contains(reverted.AdminNotes, "side effect failed")
		s.Nil(reverted.ReviewerID)

		// Retry succeeds once the store recovers.
		s.deleter.err = nil
		decided, err := s.service.Decide(s.adminCtx, req.ID, ActionApprove, "confirmed vacant, retry")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, decided.Status)
	})
}

func (s *ServiceSuite) TestSnapshotDeletionApproval() {
	s.Run("approval removes the snapshot", func() {
		snapshotID := id.NewSnapshotID()
		req := s.seedRequest(models.TypeSnapshotDeletion, models.TargetSnapshot(snapshotID))

		decided, err := s.service.Decide(s.adminCtx, req.ID, ActionApprove, "duplicate upload")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, decided.Status)
		s.Equal([]id.SnapshotID{snapshotID}, s.snapDeleter.deleted)
	})

	s.Run("denial leaves the snapshot alone", func() {
		snapshotID := id.NewSnapshotID()
		req := s.seedRequest(models.TypeSnapshotDeletion, models.TargetSnapshot(snapshotID))

		_, err := s.service.Decide(s.adminCtx, req.ID, ActionDeny, "snapshot is the audit record")
		s.Require().NoError(err)
		s.Empty(s.snapDeleter.deleted)
	})
}
