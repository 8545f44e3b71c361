// Package incomelimits classifies household income against HUD area median
// income limits. Limits come from an external service and are cached; when
// the service and cache are both unavailable the classification degrades to
// BucketUnknown rather than failing the caller.
package incomelimits

import id "veristay/pkg/domain"

// Bucket is an AMI band. Bands are the standard affordable-housing set
// plus an explicit unknown for degraded lookups.
type Bucket string

const (
	Bucket30      Bucket = "AMI_30"
	Bucket50      Bucket = "AMI_50"
	Bucket60      Bucket = "AMI_60"
	Bucket80      Bucket = "AMI_80"
	Bucket120     Bucket = "AMI_120"
	BucketOver    Bucket = "OVER"
	BucketUnknown Bucket = "UNKNOWN"
)

// LimitSet is one year's limits for a county: the four-person area median
// income that household-size adjustments scale from.
type LimitSet struct {
	State            string   `json:"state"`
	County           string   `json:"county"`
	Year             int      `json:"year"`
	AreaMedianIncome id.Cents `json:"area_median_income_cents"`
}

// sizeFactor returns the HUD family-size adjustment applied to the
// four-person median: minus 10 points per person below four, plus 8 points
// per person above, floored at one person.
func sizeFactor(householdSize int) float64 {
	if householdSize < 1 {
		householdSize = 1
	}
	if householdSize <= 4 {
		return 1.0 - 0.10*float64(4-householdSize)
	}
	return 1.0 + 0.08*float64(householdSize-4)
}

// classify places an income ratio against the adjusted median into a band.
func classify(income id.Cents, limits *LimitSet, householdSize int) Bucket {
	if limits == nil || limits.AreaMedianIncome <= 0 {
		return BucketUnknown
	}
	adjusted := float64(limits.AreaMedianIncome) * sizeFactor(householdSize)
	ratio := float64(income) / adjusted
	switch {
	case ratio <= 0.30:
		return Bucket30
	case ratio <= 0.50:
		return Bucket50
	case ratio <= 0.60:
		return Bucket60
	case ratio <= 0.80:
		return Bucket80
	case ratio <= 1.20:
		return Bucket120
	default:
		return BucketOver
	}
}
