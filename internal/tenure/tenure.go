// Package tenure turns free-text FD tenure labels into day bands.
package tenure

import (
	"regexp"
	"strconv"
	"strings"
)

// Unit lengths in days.
const (
	DaysPerMonth = 30
	DaysPerYear  = 365
)

// Band is an inclusive range of days.
type Band struct {
	MinDays int `json:"min_days"`
	MaxDays int `json:"max_days"`
}

const unit = `(day|month|year|yr|mth)s?`

// duration matches one or more "N unit" parts, e.g. "1 year 6 months".
const duration = `\d+\s*(?:day|month|year|yr|mth)s?(?:\s*(?:and\s+)?\d+\s*(?:day|month|year|yr|mth)s?)*`

var (
	// "7 days to 45 days", "1 year 1 day - 2 years", "1 year to less than 2 years"
	rangeRe = regexp.MustCompile(`(` + duration + `)\s*(?:-|to|up\s*to|and\s+up\s+to|till)\s*(less\s+than|below)?\s*(` + duration + `)`)

	lessThanRe = regexp.MustCompile(`(?:less\s+than|below|under)\s*(` + duration + `)`)
	moreThanRe = regexp.MustCompile(`(?:more\s+than|above|over)\s*(` + duration + `)`)
	singleRe   = regexp.MustCompile(duration)
	partRe     = regexp.MustCompile(`(\d+)\s*` + unit)
	numberRe   = regexp.MustCompile(`\d+`)
)

// Parse extracts a day band from a tenure description.
//
// Forms are tried in order: a two-sided range, "less than N", "more than N",
// a single duration, then bare numbers. A duration may combine units
// ("1 year 6 months") and a range needs a separator between its sides.
// An upper bound written as "less than N" is exclusive. "More than N" spans one year past N.
func Parse(text string) (Band, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return Band{}, false
	}

	if m := rangeRe.FindStringSubmatch(text); m != nil {
		lo, hi := sumDays(m[1]), sumDays(m[3])
		if m[2] != "" {
			hi--
		}
		return finish(lo, hi)
	}

	if m := lessThanRe.FindStringSubmatch(text); m != nil {
		return finish(1, sumDays(m[1])-1)
	}

	if m := moreThanRe.FindStringSubmatch(text); m != nil {
		n := sumDays(m[1])
		return finish(n+1, n+DaysPerYear)
	}

	if d := singleRe.FindString(text); d != "" {
		n := sumDays(d)
		return finish(n, n)
	}

	nums := numberRe.FindAllString(text, 2)
	switch len(nums) {
	case 2:
		return finish(atoi(nums[0]), atoi(nums[1]))
	case 1:
		n := atoi(nums[0])
		return finish(n, n)
	}
	return Band{}, false
}

func finish(lo, hi int) (Band, bool) {
	if lo <= 0 {
		return Band{}, false
	}
	if hi < lo {
		hi = lo
	}
	return Band{MinDays: lo, MaxDays: hi}, true
}

// sumDays adds up every "N unit" part of a duration.
func sumDays(d string) int {
	total := 0
	for _, m := range partRe.FindAllStringSubmatch(d, -1) {
		total += toDays(atoi(m[1]), m[2])
	}
	return total
}

func toDays(n int, u string) int {
	switch u {
	case "month", "mth":
		return n * DaysPerMonth
	case "year", "yr":
		return n * DaysPerYear
	default:
		return n
	}
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
