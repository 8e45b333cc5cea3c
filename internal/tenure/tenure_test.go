package tenure

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		want Band
	}{
		{"7 days to 45 days", Band{7, 45}},
		{"46 days - 179 days", Band{46, 179}},
		{"7 Days up to 14 Days", Band{7, 14}},
		{"1 year to less than 2 years", Band{365, 729}},
		{"180 days to less than 1 year", Band{180, 364}},
		{"1 year 1 day to 2 years", Band{366, 730}},
		{"1 year 6 months to 2 years", Band{545, 730}},
		{"6 months to 9 months", Band{180, 270}},
		{"1 year 1 day", Band{366, 366}},
		{"2 years 6 months", Band{910, 910}},
		{"1 year and 6 months", Band{545, 545}},
		{"more than 1 year 6 months", Band{546, 910}},
		{"less than 1 year", Band{1, 364}},
		{"Below 90 days", Band{1, 89}},
		{"more than 5 years", Band{1826, 2190}},
		{"444 days", Band{444, 444}},
		{"5 Years", Band{1825, 1825}},
		{"Tax Saver FD (5 yrs)", Band{1825, 1825}},
		{"12 months", Band{360, 360}},
		{"12-24", Band{12, 24}},
		{"Special 400", Band{400, 400}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := Parse(tt.text)
			if !ok {
				t.Fatalf("Parse(%q) failed", tt.text)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, text := range []string{"", "   ", "N/A", "flexi deposit", "0 days"} {
		if band, ok := Parse(text); ok {
			t.Errorf("Parse(%q) = %+v, expected no band", text, band)
		}
	}
}

func TestParseOrdersBand(t *testing.T) {
	band, ok := Parse("2 years to 1 year")
	if !ok {
		t.Fatal("expected a band")
	}
	if band.MaxDays < band.MinDays {
		t.Errorf("expected min <= max, got %+v", band)
	}
}
