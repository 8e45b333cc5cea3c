package engine

import (
	"strings"

	"github.com/opensource-finance/fdrates/internal/domain"
)

// IsValid reports whether a record may take part in analysis:
// its regular rate is present, finite and at least domain.MinValidRate.
func IsValid(rec domain.RateRecord) bool {
	v, ok := rec.RegularRate.Float()
	return ok && v >= domain.MinValidRate
}

// Validate keeps valid records in input order and normalizes them.
// Dropped records are not reported. Validate(Validate(x)) == Validate(x).
func Validate(records []domain.RateRecord) []domain.RateRecord {
	out := make([]domain.RateRecord, 0, len(records))
	for _, rec := range records {
		if !IsValid(rec) {
			continue
		}
		out = append(out, normalize(rec))
	}
	return out
}

func normalize(rec domain.RateRecord) domain.RateRecord {
	rec.Bank = strings.TrimSpace(rec.Bank)
	rec.TenureDescription = strings.TrimSpace(rec.TenureDescription)
	rec.Category = domain.ParseCategory(string(rec.Category))
	return rec
}
