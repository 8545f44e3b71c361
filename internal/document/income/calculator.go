// Package income derives annualized income figures from analyzed document
// fields. Pure domain logic: no I/O, no side effects. Callers persist the
// result.
package income

import (
	"veristay/internal/document/models"
	id "veristay/pkg/domain"
)

// Annualize computes the annualized income a single analyzed document
// asserts. The second return value is false when the document carries
// insufficient data; callers must route such documents to NEEDS_REVIEW
// rather than defaulting to zero. A (0, true) result is a real zero income
// and is distinct from failure.
func Annualize(docType models.Type, fields models.ExtractedFields) (id.Cents, bool) {
	switch docType {
	case models.TypeW2:
		return annualizeW2(fields)
	case models.TypePaystub:
		return annualizePaystub(fields)
	case models.TypeSocialSecurity, models.TypeSSA1099:
		return annualizeBenefit(fields)
	default:
		// Unknown and unsupported types contribute nothing; the caller
		// routes them to review.
		return 0, false
	}
}

// annualizeW2 takes the maximum of the three wage boxes. Pre-tax deductions
// can depress any single box, so the largest one is the defensible annual
// figure.
func annualizeW2(fields models.ExtractedFields) (id.Cents, bool) {
	boxes := []*id.Cents{fields.Box1Wages, fields.Box3SocialSecurityWage, fields.Box5MedicareWages}
	var best id.Cents
	found := false
	for _, box := range boxes {
		if box == nil {
			continue
		}
		if !found || *box > best {
			best = *box
		}
		found = true
	}
	return best, found
}

// annualizePaystub multiplies the gross pay-period amount by the asserted
// pay frequency. A missing or unrecognized frequency yields no result;
// guessing a cadence is not permitted.
func annualizePaystub(fields models.ExtractedFields) (id.Cents, bool) {
	if fields.GrossPay == nil {
		return 0, false
	}
	periods := fields.PayFrequency.PeriodsPerYear()
	if periods == 0 {
		return 0, false
	}
	return *fields.GrossPay * id.Cents(periods), true
}

// annualizeBenefit passes the extracted annualized benefit through as-is.
func annualizeBenefit(fields models.ExtractedFields) (id.Cents, bool) {
	if fields.AnnualBenefit == nil {
		return 0, false
	}
	return *fields.AnnualBenefit, true
}
