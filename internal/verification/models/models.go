package models

import (
	"time"

	id "veristay/pkg/domain"
)

// Status is the verification period lifecycle state. There is no terminal
// "cancelled" state: cancellation deletes the record.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinalized  Status = "FINALIZED"
)

// Reason records why a verification period was opened.
type Reason string

const (
	ReasonInitialLease          Reason = "INITIAL_LEASE"
	ReasonAnnualRecertification Reason = "ANNUAL_RECERTIFICATION"
	ReasonLeaseRenewal          Reason = "LEASE_RENEWAL"
	ReasonIncomeChange          Reason = "INCOME_CHANGE"
	ReasonComplianceAudit       Reason = "COMPLIANCE_AUDIT"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonInitialLease, ReasonAnnualRecertification, ReasonLeaseRenewal,
		ReasonIncomeChange, ReasonComplianceAudit:
		return true
	}
	return false
}

// IncomeVerification is one recertification cycle for a lease. UnitID and
// PropertyID are denormalized from the lease at creation so singleton and
// gating checks need no join through the property tree.
type IncomeVerification struct {
	ID          id.VerificationID
	LeaseID     id.LeaseID
	UnitID      id.UnitID
	PropertyID  id.PropertyID
	Status      Status
	Reason      Reason
	PeriodStart time.Time
	PeriodEnd   time.Time
	DueDate     time.Time
	// CalculatedVerifiedIncome is the household sum captured at
	// finalization; zero while IN_PROGRESS.
	CalculatedVerifiedIncome id.Cents
	FinalizedAt              *time.Time
	CreatedAt                time.Time
}
