package engine

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/fdrates/internal/domain"
)

// BucketOf assigns a record to a term bucket by min_days alone.
// 365 and 1095 belong to the shorter horizon.
func BucketOf(rec domain.RateRecord) domain.TermBucket {
	switch {
	case rec.MinDays <= domain.ShortTermMaxDays:
		return domain.BucketShort
	case rec.MinDays <= domain.MediumTermMaxDays:
		return domain.BucketMedium
	default:
		return domain.BucketLong
	}
}

// GroupByBucket partitions records by term bucket, keeping input order inside
// each bucket. Empty buckets are absent from the result.
func GroupByBucket(records []domain.RateRecord) map[domain.TermBucket][]domain.RateRecord {
	groups := make(map[domain.TermBucket][]domain.RateRecord, 3)
	for _, rec := range records {
		b := BucketOf(rec)
		groups[b] = append(groups[b], rec)
	}
	return groups
}

// ParseRiskPreference accepts conservative|moderate|aggressive in any case,
// plus the low|medium|high and short|medium|long aliases.
func ParseRiskPreference(text string) (domain.RiskPreference, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "conservative", "low", "short":
		return domain.RiskConservative, nil
	case "moderate", "medium":
		return domain.RiskModerate, nil
	case "aggressive", "high", "long":
		return domain.RiskAggressive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRiskPreference, text)
	}
}
