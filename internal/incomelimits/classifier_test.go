package incomelimits

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	id "veristay/pkg/domain"

	"github.com/stretchr/testify/suite"
)

type fakeReader struct {
	limits map[int]*LimitSet
	calls  []int
}

func (r *fakeReader) FetchLimits(_ context.Context, _, _ string, year int) (*LimitSet, error) {
	r.calls = append(r.calls, year)
	limits, ok := r.limits[year]
	if !ok {
		return nil, errors.New("no limits published")
	}
	return limits, nil
}

type ClassifierSuite struct {
	suite.Suite
	reader     *fakeReader
	classifier *Classifier
}

func TestClassifierSuite(t *testing.T) {
	suite.Run(t, new(ClassifierSuite))
}

func (s *ClassifierSuite) SetupTest() {
	s.reader = &fakeReader{limits: make(map[int]*LimitSet)}
	s.classifier = NewClassifier(s.reader, slog.Default())
}

func (s *ClassifierSuite) SetupSubTest() {
	s.SetupTest()
}

// median is a four-person AMI of $100,000/year in cents.
const median = id.Cents(10_000_000)

func (s *ClassifierSuite) seedYear(year int) {
	s.reader.limits[year] = &LimitSet{
		State:            "CA",
		County:           "Alameda",
		Year:             year,
		AreaMedianIncome: median,
	}
}

func (s *ClassifierSuite) TestClassify() {
	ctx := context.Background()

	s.Run("bands for a four person household", func() {
		s.seedYear(2026)
		cases := []struct {
			income id.Cents
			want   Bucket
		}{
			{median * 25 / 100, Bucket30},
			{median * 30 / 100, Bucket30},
			{median * 45 / 100, Bucket50},
			{median * 55 / 100, Bucket60},
			{median * 75 / 100, Bucket80},
			{median, Bucket120},
			{median * 121 / 100, BucketOver},
		}
		for _, tc := range cases {
			got := s.classifier.Classify(ctx, "CA", "Alameda", 2026, tc.income, 4)
			s.Equal(tc.want, got, "income %s", tc.income)
		}
	})

	s.Run("household size adjusts the median", func() {
		s.seedYear(2026)
		// A one-person household scales the median to 70%; half of the
		// four-person median sits above 0.60 of the adjusted figure.
		got := s.classifier.Classify(ctx, "CA", "Alameda", 2026, median/2, 1)
		s.Equal(Bucket80, got)
	})

	s.Run("missing year falls back to the prior year", func() {
		s.seedYear(2025)
		got := s.classifier.Classify(ctx, "CA", "Alameda", 2026, median/2, 4)
		s.Equal(Bucket50, got)
		s.Equal([]int{2026, 2025}, s.reader.calls)
	})

	s.Run("two missing years degrade to unknown", func() {
		got := s.classifier.Classify(ctx, "CA", "Alameda", 2026, median/2, 4)
		s.Equal(BucketUnknown, got)
	})

	s.Run("zero median degrades to unknown", func() {
		s.reader.limits[2026] = &LimitSet{Year: 2026}
		got := s.classifier.Classify(ctx, "CA", "Alameda", 2026, median/2, 4)
		s.Equal(BucketUnknown, got)
	})
}

func (s *ClassifierSuite) TestCachePassthrough() {
	s.seedYear(2026)
	cached := NewCachedReader(s.reader, nil, slog.Default())
	limits, err := cached.FetchLimits(context.Background(), "CA", "Alameda", 2026)
	s.Require().NoError(err)
	s.Equal(median, limits.AreaMedianIncome)
}
