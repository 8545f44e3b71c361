package models

import (
	"time"

	id "veristay/pkg/domain"
)

// SnapshotRow is one occupancy line from a property manager's rent roll:
// a unit, the household member reported on it, and the income they declared.
type SnapshotRow struct {
	UnitLabel      string   `json:"unit_label"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	DeclaredIncome id.Cents `json:"declared_income_cents"`
}

// Snapshot is one ingested rent roll. Rows are retained verbatim for audit;
// UnitsObserved is the distinct-unit count used for the billing check.
// Snapshots are immutable once ingested and removable only through an
// approved SNAPSHOT_DELETION override.
type Snapshot struct {
	ID            id.SnapshotID
	PropertyID    id.PropertyID
	Rows          []SnapshotRow
	UnitsObserved int
	IngestedAt    time.Time
}
