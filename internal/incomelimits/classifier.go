package incomelimits

import (
	"context"
	"log/slog"

	id "veristay/pkg/domain"
)

// Classifier maps a household income to an AMI band for a county and year.
type Classifier struct {
	reader Reader
	logger *slog.Logger
}

func NewClassifier(reader Reader, logger *slog.Logger) *Classifier {
	return &Classifier{reader: reader, logger: logger}
}

// Classify returns the AMI band for the household. Limits for the requested
// year may not be published yet, so a miss falls back to the prior year.
// When neither year resolves, the result is BucketUnknown; classification
// is advisory and never fails its caller.
func (c *Classifier) Classify(ctx context.Context, state, county string, year int, householdIncome id.Cents, householdSize int) Bucket {
	limits, err := c.reader.FetchLimits(ctx, state, county, year)
	if err != nil {
		c.logger.WarnContext(ctx, "limits lookup failed, trying prior year",
			"error", err,
			"state", state,
			"county", county,
			"year", year,
		)
		limits, err = c.reader.FetchLimits(ctx, state, county, year-1)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "limits unavailable, classification degraded",
			"error", err,
			"state", state,
			"county", county,
		)
		return BucketUnknown
	}
	return classify(householdIncome, limits, householdSize)
}
