package models

import (
	"time"

	id "veristay/pkg/domain"
)

// Type is the kind of income artifact a document claims to be.
type Type string

const (
	TypeW2             Type = "W2"
	TypePaystub        Type = "PAYSTUB"
	TypeBankStatement  Type = "BANK_STATEMENT"
	TypeOfferLetter    Type = "OFFER_LETTER"
	TypeSocialSecurity Type = "SOCIAL_SECURITY"
	TypeSSA1099        Type = "SSA_1099"
)

// Status is the document lifecycle state. PROCESSING is the only
// non-terminal state; COMPLETED and NEEDS_REVIEW are terminal.
type Status string

const (
	StatusProcessing  Status = "PROCESSING"
	StatusCompleted   Status = "COMPLETED"
	StatusNeedsReview Status = "NEEDS_REVIEW"
)

// PayFrequency is the analyzer-asserted pay cadence for paystubs.
type PayFrequency string

const (
	FrequencyWeekly      PayFrequency = "WEEKLY"
	FrequencyBiweekly    PayFrequency = "BIWEEKLY"
	FrequencySemimonthly PayFrequency = "SEMIMONTHLY"
	FrequencyMonthly     PayFrequency = "MONTHLY"
)

// PeriodsPerYear returns the annualization multiplier, or 0 for an
// unrecognized frequency. Pay frequency is a required analyzer output:
// a paystub without one computes no income rather than assuming monthly.
func (f PayFrequency) PeriodsPerYear() int64 {
	switch f {
	case FrequencyWeekly:
		return 52
	case FrequencyBiweekly:
		return 26
	case FrequencySemimonthly:
		return 24
	case FrequencyMonthly:
		return 12
	default:
		return 0
	}
}

// ExtractedFields are the structured values the analysis service pulled
// from the raw file. Pointer fields distinguish "absent" from "zero":
// a document can legitimately assert zero income.
type ExtractedFields struct {
	Name                   string        `json:"name"`
	Box1Wages              *id.Cents     `json:"box1_wages,omitempty"`
	Box3SocialSecurityWage *id.Cents     `json:"box3_social_security_wages,omitempty"`
	Box5MedicareWages      *id.Cents     `json:"box5_medicare_wages,omitempty"`
	GrossPay               *id.Cents     `json:"gross_pay,omitempty"`
	PayFrequency           PayFrequency  `json:"pay_frequency,omitempty"`
	AnnualBenefit          *id.Cents     `json:"annual_benefit,omitempty"`
}

// IncomeDocument is one uploaded income artifact. It belongs to exactly one
// resident and one verification period; its contribution to household
// income is defined only while Status == COMPLETED.
type IncomeDocument struct {
	ID             id.DocumentID
	ResidentID     id.ResidentID
	VerificationID id.VerificationID
	Type           Type
	Status         Status
	UploadDate     time.Time
	ReviewReason   string
	Fields         ExtractedFields
	// CalculatedAnnualizedIncome is the per-document annualized figure,
	// meaningful only when Status == COMPLETED.
	CalculatedAnnualizedIncome id.Cents
	AnalyzedAt                 *time.Time
}

// Analyzed reports whether analysis has been recorded for this document.
func (d *IncomeDocument) Analyzed() bool {
	return d.AnalyzedAt != nil
}
