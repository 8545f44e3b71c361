package models

import (
	"strings"
	"time"

	id "veristay/pkg/domain"
)

// Resident is a household member on a lease.
//
// Invariant: a resident is "settled" for verification purposes iff
// IncomeFinalized or HasNoIncome. A resident cannot be unfinalized while
// carrying a non-nil FinalizedAt.
type Resident struct {
	ID        id.ResidentID
	LeaseID   id.LeaseID
	FirstName string
	LastName  string

	// AnnualizedIncome is the declared figure from the rent roll.
	AnnualizedIncome id.Cents
	// VerifiedIncome is the figure locked in at finalization.
	VerifiedIncome id.Cents
	// CalculatedAnnualizedIncome is the working total over COMPLETED
	// documents, preserved across unfinalization.
	CalculatedAnnualizedIncome id.Cents

	IncomeFinalized bool
	HasNoIncome     bool
	FinalizedAt     *time.Time
}

// Settled reports whether the resident's income status is conclusively
// determined.
func (r *Resident) Settled() bool {
	return r.IncomeFinalized || r.HasNoIncome
}

// FullName joins the name parts for document name matching.
func (r *Resident) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}
