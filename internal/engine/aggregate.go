package engine

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/opensource-finance/fdrates/internal/domain"
)

// Summarize computes mean rate, max rate and the first bank at the max.
// It returns false when no record carries a regular rate; that is a
// no-data outcome, not a zero summary.
func Summarize(records []domain.RateRecord) (domain.Summary, bool) {
	rates := make([]float64, 0, len(records))
	banks := make([]string, 0, len(records))
	for _, rec := range records {
		v, ok := rec.RegularRate.Float()
		if !ok {
			continue
		}
		rates = append(rates, v)
		banks = append(banks, rec.Bank)
	}
	if len(rates) == 0 {
		return domain.Summary{}, false
	}

	// MaxIdx returns the first index attaining the maximum.
	best := floats.MaxIdx(rates)
	return domain.Summary{
		AverageRate: stat.Mean(rates, nil),
		MaxRate:     rates[best],
		BestBank:    banks[best],
	}, true
}
