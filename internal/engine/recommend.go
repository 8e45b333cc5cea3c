package engine

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/opensource-finance/fdrates/internal/domain"
)

// DefaultTopN is the recommendation length when a request leaves it unset.
const DefaultTopN = 5

// Request describes an investor asking for recommendations.
type Request struct {
	Risk   domain.RiskPreference
	Amount float64
	TopN   int
}

// Recommendation is the result of Recommend.
type Recommendation struct {
	Summary         domain.Summary
	Recommendations []domain.RateRecord
	ProjectedReturn float64

	// Term is the bucket implied by the risk preference.
	Term domain.TermBucket

	// FellBack is set when Term had no records and the full set was used.
	FellBack bool

	// BucketSize is the number of valid records in Term.
	BucketSize int
}

// Recommend ranks the records matching the investor's horizon.
//
// An empty horizon bucket falls back to the whole validated set. The
// projected return is Amount * (1 + MaxRate/100), a single-period figure
// with no compounding.
func Recommend(records []domain.RateRecord, req Request) (Recommendation, error) {
	switch req.Risk {
	case domain.RiskConservative, domain.RiskModerate, domain.RiskAggressive:
	default:
		return Recommendation{}, fmt.Errorf("%w: %q", ErrInvalidRiskPreference, req.Risk)
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount < 0 {
		return Recommendation{}, fmt.Errorf("%w: %v", ErrInvalidAmount, req.Amount)
	}

	valid := Validate(records)
	if len(valid) == 0 {
		return Recommendation{}, ErrNoDataAvailable
	}

	term := req.Risk.Bucket()
	selected := GroupByBucket(valid)[term]
	rec := Recommendation{Term: term, BucketSize: len(selected)}
	if len(selected) == 0 {
		selected = valid
		rec.FellBack = true
	}

	summary, ok := Summarize(selected)
	if !ok {
		return Recommendation{}, ErrNoDataAvailable
	}
	rec.Summary = summary

	topN := req.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	rec.Recommendations = rankByRate(selected, topN)
	rec.ProjectedReturn = req.Amount * (1 + summary.MaxRate/100)
	return rec, nil
}

// rankByRate returns up to n records ordered by regular rate, highest first.
// Equal rates keep their input order.
func rankByRate(records []domain.RateRecord, n int) []domain.RateRecord {
	ranked := slices.Clone(records)
	slices.SortStableFunc(ranked, func(a, b domain.RateRecord) int {
		av, _ := a.RegularRate.Float()
		bv, _ := b.RegularRate.Float()
		return cmp.Compare(bv, av)
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
