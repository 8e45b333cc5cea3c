package engine

import (
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/opensource-finance/fdrates/internal/domain"
)

// DefaultTopRates is the top-banks listing length when none is given.
const DefaultTopRates = 10

// TopRates returns the n highest-rate valid records across the catalog,
// independent of any risk preference.
func TopRates(records []domain.RateRecord, n int) []domain.RateRecord {
	if n <= 0 {
		n = DefaultTopRates
	}
	return rankByRate(Validate(records), n)
}

// BankStanding is one bank's position in the leaderboard.
type BankStanding struct {
	Bank        string  `json:"bank"`
	AverageRate float64 `json:"avg_rate"`
	Products    int     `json:"num_products"`
}

// BankLeaderboard averages the regular rate per bank over valid records and
// ranks banks by that average, highest first. Ties keep first appearance.
// n <= 0 returns every bank.
func BankLeaderboard(records []domain.RateRecord, n int) []BankStanding {
	var order []string
	rates := make(map[string][]float64)
	for _, rec := range Validate(records) {
		if _, seen := rates[rec.Bank]; !seen {
			order = append(order, rec.Bank)
		}
		v, _ := rec.RegularRate.Float()
		rates[rec.Bank] = append(rates[rec.Bank], v)
	}

	board := make([]BankStanding, 0, len(order))
	for _, bank := range order {
		board = append(board, BankStanding{
			Bank:        bank,
			AverageRate: stat.Mean(rates[bank], nil),
			Products:    len(rates[bank]),
		})
	}

	slices.SortStableFunc(board, func(a, b BankStanding) int {
		switch {
		case a.AverageRate > b.AverageRate:
			return -1
		case a.AverageRate < b.AverageRate:
			return 1
		default:
			return 0
		}
	})
	if n > 0 && len(board) > n {
		board = board[:n]
	}
	return board
}

// TermsReport holds the global summary and one summary per term bucket.
// A nil summary means the segment has no data.
type TermsReport struct {
	Overall *domain.Summary `json:"overall"`
	Short   *domain.Summary `json:"short"`
	Medium  *domain.Summary `json:"medium"`
	Long    *domain.Summary `json:"long"`

	Counts map[domain.TermBucket]int `json:"counts"`
}

// Segment returns the summary for a bucket.
func (r TermsReport) Segment(b domain.TermBucket) *domain.Summary {
	switch b {
	case domain.BucketShort:
		return r.Short
	case domain.BucketMedium:
		return r.Medium
	case domain.BucketLong:
		return r.Long
	default:
		return nil
	}
}

// AnalyzeTerms validates records and summarizes them overall and per bucket.
// Empty segments are nil; there is no fallback here.
func AnalyzeTerms(records []domain.RateRecord) TermsReport {
	valid := Validate(records)
	groups := GroupByBucket(valid)

	report := TermsReport{Counts: make(map[domain.TermBucket]int, 3)}
	report.Overall = summaryPtr(valid)
	report.Short = summaryPtr(groups[domain.BucketShort])
	report.Medium = summaryPtr(groups[domain.BucketMedium])
	report.Long = summaryPtr(groups[domain.BucketLong])
	for _, b := range domain.Buckets() {
		report.Counts[b] = len(groups[b])
	}
	return report
}

func summaryPtr(records []domain.RateRecord) *domain.Summary {
	s, ok := Summarize(records)
	if !ok {
		return nil
	}
	return &s
}
