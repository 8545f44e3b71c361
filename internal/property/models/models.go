package models

import (
	"time"

	id "veristay/pkg/domain"
)

// ServiceTier determines the per-unit billing rate for a property.
type ServiceTier string

const (
	TierStandard ServiceTier = "STANDARD"
	TierPremium  ServiceTier = "PREMIUM"
)

// UnitPrice returns the monthly per-unit rate for the tier.
func (t ServiceTier) UnitPrice() id.Cents {
	if t == TierPremium {
		return 1000
	}
	return 500
}

// Property is a managed building. NumberOfUnits is the declared count the
// manager is billed for; rent-roll ingestion checks it against reality.
type Property struct {
	ID            id.PropertyID
	OwnerID       id.UserID
	Name          string
	Address       string
	NumberOfUnits int
	ServiceTier   ServiceTier
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// Unit is one rentable unit within a property.
type Unit struct {
	ID         id.UnitID
	PropertyID id.PropertyID
	Label      string
}

// Tenancy links a lease to the rent-roll snapshot that confirmed it.
type Tenancy struct {
	SnapshotID id.SnapshotID
	LinkedAt   time.Time
}

// Lease is a tenancy agreement for a unit. A lease without a Tenancy link
// is provisional: manually created and not yet reconciled against a rent
// roll. Provisional is derived, never stored.
type Lease struct {
	ID        id.LeaseID
	UnitID    id.UnitID
	Tenancy   *Tenancy
	CreatedAt time.Time
}

// Provisional reports whether the lease has no rent-roll tenancy backing it.
// Only provisional leases (and their residents) may be deleted.
func (l *Lease) Provisional() bool {
	return l.Tenancy == nil
}

// LeaseRef is the resolved ownership chain for a lease: lease → unit →
// property → owner. Services use it for authorization without walking the
// chain themselves.
type LeaseRef struct {
	LeaseID     id.LeaseID
	UnitID      id.UnitID
	PropertyID  id.PropertyID
	OwnerID     id.UserID
	Provisional bool
}
