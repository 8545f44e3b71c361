package models

import (
	"fmt"
	"time"

	id "veristay/pkg/domain"
)

// RequestType classifies what an override request is asking permission for.
type RequestType string

const (
	TypeDocumentReview      RequestType = "DOCUMENT_REVIEW"
	TypeIncomeDiscrepancy   RequestType = "INCOME_DISCREPANCY"
	TypeDuplicateDocument   RequestType = "DUPLICATE_DOCUMENT"
	TypeValidationException RequestType = "VALIDATION_EXCEPTION"
	TypePropertyDeletion    RequestType = "PROPERTY_DELETION"
	TypeSnapshotDeletion    RequestType = "SNAPSHOT_DELETION"
)

func (t RequestType) Valid() bool {
	switch t {
	case TypeDocumentReview, TypeIncomeDiscrepancy, TypeDuplicateDocument,
		TypeValidationException, TypePropertyDeletion, TypeSnapshotDeletion:
		return true
	}
	return false
}

// RequestStatus is the adjudication state of an override request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusDenied   RequestStatus = "DENIED"
)

// Target key constructors. The (type, target) pair identifies the one
// PENDING request an ask is deduplicated onto.
func TargetLease(leaseID id.LeaseID) string      { return fmt.Sprintf("lease:%s", leaseID) }
func TargetUnit(unitID id.UnitID) string         { return fmt.Sprintf("unit:%s", unitID) }
func TargetDocument(docID id.DocumentID) string  { return fmt.Sprintf("document:%s", docID) }
func TargetProperty(propID id.PropertyID) string { return fmt.Sprintf("property:%s", propID) }
func TargetSnapshot(snapID id.SnapshotID) string { return fmt.Sprintf("snapshot:%s", snapID) }

// OverrideRequest is a human-adjudicated exception ticket gating an
// otherwise-blocked action.
type OverrideRequest struct {
	ID          id.OverrideID
	Type        RequestType
	Status      RequestStatus
	TargetKey   string
	Explanation string
	RequesterID id.UserID
	AdminNotes  string
	ReviewerID  *id.UserID
	ReviewedAt  *time.Time
	CreatedAt   time.Time
}

// Pending reports whether the request still awaits adjudication.
func (r *OverrideRequest) Pending() bool {
	return r.Status == StatusPending
}

// DiscrepancyStatus is the lifecycle of a unit-count discrepancy.
// RESOLVED and WAIVED are distinct terminal actions.
type DiscrepancyStatus string

const (
	DiscrepancyPending  DiscrepancyStatus = "PENDING"
	DiscrepancyResolved DiscrepancyStatus = "RESOLVED"
	DiscrepancyWaived   DiscrepancyStatus = "WAIVED"
)

// UnitCountDiscrepancy records a billing undercount: the rent roll showed
// more occupied units than the property declared.
type UnitCountDiscrepancy struct {
	ID                id.DiscrepancyID
	PropertyID        id.PropertyID
	DeclaredUnits     int
	ActualUnits       int
	PaymentDifference id.Cents
	Status            DiscrepancyStatus
	Notes             string
	ResolvedBy        *id.UserID
	ResolvedAt        *time.Time
	CreatedAt         time.Time
}
