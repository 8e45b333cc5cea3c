package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MinValidRate is the lowest regular rate (in percent) treated as real data.
// Anything below it is scraping noise.
const MinValidRate = 1.0

// Rate is an annual percentage rate that may be absent.
// Upstream sources deliver rates as numbers, numeric strings, null or junk;
// decoding never fails, values that cannot be coerced become absent.
type Rate struct {
	value float64
	valid bool
}

// RateOf returns a present rate.
func RateOf(v float64) Rate {
	return Rate{value: v, valid: true}
}

// NoRate is the absent rate.
var NoRate = Rate{}

// Float returns the rate and whether it is present and finite.
func (r Rate) Float() (float64, bool) {
	if !r.valid || math.IsNaN(r.value) || math.IsInf(r.value, 0) {
		return 0, false
	}
	return r.value, true
}

// Valid reports whether the rate is present and finite.
func (r Rate) Valid() bool {
	_, ok := r.Float()
	return ok
}

// String formats the rate with two decimals, or "N/A".
func (r Rate) String() string {
	v, ok := r.Float()
	if !ok {
		return "N/A"
	}
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

// MarshalJSON writes the rate as a number or null.
func (r Rate) MarshalJSON() ([]byte, error) {
	v, ok := r.Float()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON accepts numbers and numeric strings ("7.25", "7.25%").
// Anything else decodes as an absent rate.
func (r *Rate) UnmarshalJSON(data []byte) error {
	*r = NoRate
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*r = RateOf(num)
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*r = ParseRate(text)
	}
	return nil
}

// ParseRate coerces free text into a rate, stripping a trailing percent sign.
func ParseRate(text string) Rate {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "%"))
	if text == "" {
		return NoRate
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return NoRate
	}
	return RateOf(v)
}

// Scan implements sql.Scanner.
func (r *Rate) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = NoRate
	case float64:
		*r = RateOf(v)
	case int64:
		*r = RateOf(float64(v))
	case []byte:
		*r = ParseRate(string(v))
	case string:
		*r = ParseRate(v)
	default:
		return fmt.Errorf("cannot scan %T into Rate", src)
	}
	return nil
}

// Value implements driver.Valuer; absent rates are stored as NULL.
func (r Rate) Value() (driver.Value, error) {
	v, ok := r.Float()
	if !ok {
		return nil, nil
	}
	return v, nil
}

// Category classifies an FD product.
type Category string

const (
	CategoryGeneral   Category = "General"
	CategorySpecial   Category = "Special"
	CategoryTaxSaving Category = "TaxSaving"
	CategoryNRI       Category = "NRI"
)

// ParseCategory maps free text onto a category. Unknown or empty text is General.
func ParseCategory(text string) Category {
	key := strings.ToLower(strings.TrimSpace(text))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	switch key {
	case "special", "specialrate":
		return CategorySpecial
	case "taxsaving", "taxsaver", "tax":
		return CategoryTaxSaving
	case "nri", "nre", "nro":
		return CategoryNRI
	default:
		return CategoryGeneral
	}
}

// RateRecord is one bank's FD offer for one tenure band.
type RateRecord struct {
	ID                int64      `json:"id,omitempty"`
	Bank              string     `json:"bank"`
	TenureDescription string     `json:"tenure_description,omitempty"`
	MinDays           int        `json:"min_days"`
	MaxDays           int        `json:"max_days"`
	RegularRate       Rate       `json:"regular_rate"`
	SeniorRate        Rate       `json:"senior_rate"`
	Category          Category   `json:"category,omitempty"`
	Region            string     `json:"region,omitempty"`
	Currency          string     `json:"currency,omitempty"`
	ScrapedAt         *time.Time `json:"scraped_date,omitempty"`
}

// Tenure renders the tenure label, falling back to the day count.
func (r RateRecord) Tenure() string {
	if r.TenureDescription != "" {
		return r.TenureDescription
	}
	return fmt.Sprintf("%d days", r.MinDays)
}

// TermBucket is a coarse tenure horizon.
type TermBucket string

const (
	BucketShort  TermBucket = "short"
	BucketMedium TermBucket = "medium"
	BucketLong   TermBucket = "long"
)

// Bucket boundaries in days, inclusive to the shorter horizon.
const (
	ShortTermMaxDays  = 365
	MediumTermMaxDays = 1095
)

// Buckets lists the term buckets from shortest to longest.
func Buckets() []TermBucket {
	return []TermBucket{BucketShort, BucketMedium, BucketLong}
}

// RiskPreference is the investor's stated appetite, used as a horizon proxy.
type RiskPreference string

const (
	RiskConservative RiskPreference = "conservative"
	RiskModerate     RiskPreference = "moderate"
	RiskAggressive   RiskPreference = "aggressive"
)

// Bucket returns the term bucket a risk preference is biased towards.
func (p RiskPreference) Bucket() TermBucket {
	switch p {
	case RiskConservative:
		return BucketShort
	case RiskAggressive:
		return BucketLong
	default:
		return BucketMedium
	}
}

// Summary is the aggregate of a record set.
// AverageRate keeps full precision; the JSON form rounds it to 2dp.
type Summary struct {
	AverageRate float64
	MaxRate     float64
	BestBank    string
}

// RoundedAverage returns AverageRate rounded half away from zero to 2dp.
func (s Summary) RoundedAverage() float64 {
	return decimal.NewFromFloat(s.AverageRate).Round(2).InexactFloat64()
}

type summaryJSON struct {
	AvgRate  float64 `json:"avg_rate"`
	MaxRate  float64 `json:"max_rate"`
	BestBank string  `json:"best_bank"`
}

// MarshalJSON writes {avg_rate, max_rate, best_bank}.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		AvgRate:  s.RoundedAverage(),
		MaxRate:  s.MaxRate,
		BestBank: s.BestBank,
	})
}

// UnmarshalJSON reads {avg_rate, max_rate, best_bank}.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var raw summaryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.AverageRate = raw.AvgRate
	s.MaxRate = raw.MaxRate
	s.BestBank = raw.BestBank
	return nil
}
