package rules

import "sort"

// presets are named filter expressions offered to API clients.
var presets = map[string]string{
	"short_term":    "min_days <= 365",
	"medium_term":   "min_days > 365 && min_days <= 1095",
	"long_term":     "min_days > 1095",
	"senior_bonus":  "has_senior_rate && senior_rate - regular_rate >= 0.5",
	"tax_saving":    `category == "TaxSaving"`,
	"special_rates": `category == "Special"`,
	"high_yield":    "regular_rate >= 7.5",
}

// Preset returns the expression registered under name.
func Preset(name string) (string, bool) {
	expr, ok := presets[name]
	return expr, ok
}

// PresetNames lists preset names in lexical order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
