package catalog

import (
	"github.com/opensource-finance/fdrates/internal/domain"
	"github.com/opensource-finance/fdrates/internal/engine"
)

// cachedSummary keeps the full-precision average that the wire form rounds.
type cachedSummary struct {
	AverageRate float64 `json:"average_rate"`
	MaxRate     float64 `json:"max_rate"`
	BestBank    string  `json:"best_bank"`
}

func newCachedSummary(s *domain.Summary) *cachedSummary {
	if s == nil {
		return nil
	}
	return &cachedSummary{AverageRate: s.AverageRate, MaxRate: s.MaxRate, BestBank: s.BestBank}
}

func (c cachedSummary) summary() domain.Summary {
	return domain.Summary{AverageRate: c.AverageRate, MaxRate: c.MaxRate, BestBank: c.BestBank}
}

func (c *cachedSummary) ptr() *domain.Summary {
	if c == nil {
		return nil
	}
	s := c.summary()
	return &s
}

type cachedTerms struct {
	Overall *cachedSummary            `json:"overall"`
	Short   *cachedSummary            `json:"short"`
	Medium  *cachedSummary            `json:"medium"`
	Long    *cachedSummary            `json:"long"`
	Counts  map[domain.TermBucket]int `json:"counts"`
}

func newCachedTerms(r engine.TermsReport) cachedTerms {
	return cachedTerms{
		Overall: newCachedSummary(r.Overall),
		Short:   newCachedSummary(r.Short),
		Medium:  newCachedSummary(r.Medium),
		Long:    newCachedSummary(r.Long),
		Counts:  r.Counts,
	}
}

func (c cachedTerms) report() engine.TermsReport {
	return engine.TermsReport{
		Overall: c.Overall.ptr(),
		Short:   c.Short.ptr(),
		Medium:  c.Medium.ptr(),
		Long:    c.Long.ptr(),
		Counts:  c.Counts,
	}
}
