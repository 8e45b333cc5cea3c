package engine

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/opensource-finance/fdrates/internal/domain"
)

// SortKey names a sortable record field.
type SortKey string

const (
	SortNone              SortKey = ""
	SortBank              SortKey = "bank"
	SortTenureDescription SortKey = "tenure_description"
	SortMinDays           SortKey = "min_days"
	SortMaxDays           SortKey = "max_days"
	SortRegularRate       SortKey = "regular_rate"
	SortSeniorRate        SortKey = "senior_rate"
	SortCategory          SortKey = "category"
)

// SortDirection orders a table.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// ParseSortDirection accepts asc|desc in any case. Empty means descending.
func ParseSortDirection(text string) (SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "", "desc", "descending":
		return SortDescending, nil
	case "asc", "ascending":
		return SortAscending, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSortDirection, text)
	}
}

// Filter constrains a table. Unset fields impose no constraint and set
// fields are ANDed together.
type Filter struct {
	// BankSubstring and TenureSubstring match case-insensitively.
	BankSubstring   string
	TenureSubstring string

	// MinRate and MaxRate bound the regular rate inclusively.
	MinRate *float64
	MaxRate *float64

	// MinDays bounds min_days from below, MaxDays bounds max_days from above.
	MinDays *int
	MaxDays *int

	// Match is an extra predicate, typically a compiled filter expression.
	Match func(domain.RateRecord) bool
}

func (f Filter) matches(rec domain.RateRecord) bool {
	if f.BankSubstring != "" && !containsFold(rec.Bank, f.BankSubstring) {
		return false
	}
	if f.TenureSubstring != "" && !containsFold(rec.TenureDescription, f.TenureSubstring) {
		return false
	}
	if f.MinRate != nil || f.MaxRate != nil {
		v, ok := rec.RegularRate.Float()
		if !ok {
			return false
		}
		if f.MinRate != nil && v < *f.MinRate {
			return false
		}
		if f.MaxRate != nil && v > *f.MaxRate {
			return false
		}
	}
	if f.MinDays != nil && rec.MinDays < *f.MinDays {
		return false
	}
	if f.MaxDays != nil && rec.MaxDays > *f.MaxDays {
		return false
	}
	if f.Match != nil && !f.Match(rec) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// FilterAndSort validates records, applies filter and sorts the survivors by
// key. The sort is stable; missing values rank lowest, so they come first
// ascending and last descending. An empty key keeps input order.
func FilterAndSort(records []domain.RateRecord, filter Filter, key SortKey, dir SortDirection) ([]domain.RateRecord, error) {
	compare, err := comparator(key)
	if err != nil {
		return nil, err
	}
	switch dir {
	case SortAscending, SortDescending:
	case "":
		dir = SortDescending
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSortDirection, dir)
	}

	out := make([]domain.RateRecord, 0, len(records))
	for _, rec := range Validate(records) {
		if filter.matches(rec) {
			out = append(out, rec)
		}
	}

	if compare != nil {
		slices.SortStableFunc(out, func(a, b domain.RateRecord) int {
			if dir == SortDescending {
				return compare(b, a)
			}
			return compare(a, b)
		})
	}
	return out, nil
}

type recordCompare func(a, b domain.RateRecord) int

func comparator(key SortKey) (recordCompare, error) {
	switch key {
	case SortNone:
		return nil, nil
	case SortBank:
		return byString(func(r domain.RateRecord) string { return r.Bank }), nil
	case SortTenureDescription:
		return byString(func(r domain.RateRecord) string { return r.TenureDescription }), nil
	case SortCategory:
		return byString(func(r domain.RateRecord) string { return string(r.Category) }), nil
	case SortMinDays:
		return byDays(func(r domain.RateRecord) int { return r.MinDays }), nil
	case SortMaxDays:
		return byDays(func(r domain.RateRecord) int { return r.MaxDays }), nil
	case SortRegularRate:
		return byRate(func(r domain.RateRecord) domain.Rate { return r.RegularRate }), nil
	case SortSeniorRate:
		return byRate(func(r domain.RateRecord) domain.Rate { return r.SeniorRate }), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSortKey, key)
	}
}

// comparePresence orders a missing value below a present one.
// done is false when both are present and the values must decide.
func comparePresence(aOK, bOK bool) (result int, done bool) {
	switch {
	case aOK && bOK:
		return 0, false
	case aOK:
		return 1, true
	case bOK:
		return -1, true
	default:
		return 0, true
	}
}

func byString(field func(domain.RateRecord) string) recordCompare {
	return func(a, b domain.RateRecord) int {
		av, bv := field(a), field(b)
		if r, done := comparePresence(av != "", bv != ""); done {
			return r
		}
		return strings.Compare(av, bv)
	}
}

func byDays(field func(domain.RateRecord) int) recordCompare {
	return func(a, b domain.RateRecord) int {
		av, bv := field(a), field(b)
		if r, done := comparePresence(av > 0, bv > 0); done {
			return r
		}
		return cmp.Compare(av, bv)
	}
}

func byRate(field func(domain.RateRecord) domain.Rate) recordCompare {
	return func(a, b domain.RateRecord) int {
		av, aOK := field(a).Float()
		bv, bOK := field(b).Float()
		if r, done := comparePresence(aOK, bOK); done {
			return r
		}
		return cmp.Compare(av, bv)
	}
}
