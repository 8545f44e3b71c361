// Package domain holds typed identifiers and shared value types. Every
// entity gets its own UUID-backed ID type so the compiler rejects passing a
// resident where a lease is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "veristay/pkg/domain-errors"
)

type (
	UserID         uuid.UUID
	PropertyID     uuid.UUID
	UnitID         uuid.UUID
	LeaseID        uuid.UUID
	ResidentID     uuid.UUID
	DocumentID     uuid.UUID
	VerificationID uuid.UUID
	OverrideID     uuid.UUID
	DiscrepancyID  uuid.UUID
	SnapshotID     uuid.UUID
)

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id PropertyID) String() string     { return uuid.UUID(id).String() }
func (id UnitID) String() string         { return uuid.UUID(id).String() }
func (id LeaseID) String() string        { return uuid.UUID(id).String() }
func (id ResidentID) String() string     { return uuid.UUID(id).String() }
func (id DocumentID) String() string     { return uuid.UUID(id).String() }
func (id VerificationID) String() string { return uuid.UUID(id).String() }
func (id OverrideID) String() string     { return uuid.UUID(id).String() }
func (id DiscrepancyID) String() string  { return uuid.UUID(id).String() }
func (id SnapshotID) String() string     { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id PropertyID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id UnitID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id LeaseID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ResidentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id VerificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OverrideID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DiscrepancyID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SnapshotID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs.
func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID must not be empty")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID must not be the nil UUID")
	}
	return parsed, nil
}

func ParseUserID(raw string) (UserID, error) {
	u, err := parseUUID(raw, "user")
	return UserID(u), err
}

func ParsePropertyID(raw string) (PropertyID, error) {
	u, err := parseUUID(raw, "property")
	return PropertyID(u), err
}

func ParseUnitID(raw string) (UnitID, error) {
	u, err := parseUUID(raw, "unit")
	return UnitID(u), err
}

func ParseLeaseID(raw string) (LeaseID, error) {
	u, err := parseUUID(raw, "lease")
	return LeaseID(u), err
}

func ParseResidentID(raw string) (ResidentID, error) {
	u, err := parseUUID(raw, "resident")
	return ResidentID(u), err
}

func ParseDocumentID(raw string) (DocumentID, error) {
	u, err := parseUUID(raw, "document")
	return DocumentID(u), err
}

func ParseVerificationID(raw string) (VerificationID, error) {
	u, err := parseUUID(raw, "verification")
	return VerificationID(u), err
}

func ParseOverrideID(raw string) (OverrideID, error) {
	u, err := parseUUID(raw, "override")
	return OverrideID(u), err
}

func ParseDiscrepancyID(raw string) (DiscrepancyID, error) {
	u, err := parseUUID(raw, "discrepancy")
	return DiscrepancyID(u), err
}

func ParseSnapshotID(raw string) (SnapshotID, error) {
	u, err := parseUUID(raw, "snapshot")
	return SnapshotID(u), err
}

func NewUserID() UserID                 { return UserID(uuid.New()) }
func NewPropertyID() PropertyID         { return PropertyID(uuid.New()) }
func NewUnitID() UnitID                 { return UnitID(uuid.New()) }
func NewLeaseID() LeaseID               { return LeaseID(uuid.New()) }
func NewResidentID() ResidentID         { return ResidentID(uuid.New()) }
func NewDocumentID() DocumentID         { return DocumentID(uuid.New()) }
func NewVerificationID() VerificationID { return VerificationID(uuid.New()) }
func NewOverrideID() OverrideID         { return OverrideID(uuid.New()) }
func NewDiscrepancyID() DiscrepancyID   { return DiscrepancyID(uuid.New()) }
func NewSnapshotID() SnapshotID         { return SnapshotID(uuid.New()) }
