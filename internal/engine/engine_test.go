package engine

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/opensource-finance/fdrates/internal/domain"
)

func rec(bank string, minDays int, rate float64) domain.RateRecord {
	return domain.RateRecord{
		Bank:        bank,
		MinDays:     minDays,
		MaxDays:     minDays,
		RegularRate: domain.RateOf(rate),
	}
}

func banks(records []domain.RateRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Bank
	}
	return out
}

func floatPtr(v float64) *float64 { return &v }

func TestValidate(t *testing.T) {
	raw := []domain.RateRecord{
		rec(" SBI ", 30, 6.5),
		rec("Noise", 30, 0.5),
		{Bank: "Missing", MinDays: 30, RegularRate: domain.NoRate},
		{Bank: "NaN", MinDays: 30, RegularRate: domain.RateOf(math.NaN())},
		rec("Edge", 30, 1.0),
		{Bank: "Parsed", MinDays: 400, RegularRate: domain.ParseRate("7.1%"), Category: "special"},
	}

	t.Run("KeepsOnlyValidInOrder", func(t *testing.T) {
		got := banks(Validate(raw))
		want := []string{"SBI", "Edge", "Parsed"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("Normalizes", func(t *testing.T) {
		valid := Validate(raw)
		if valid[0].Category != domain.CategoryGeneral {
			t.Errorf("expected default category General, got %q", valid[0].Category)
		}
		if valid[2].Category != domain.CategorySpecial {
			t.Errorf("expected Special, got %q", valid[2].Category)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		once := Validate(raw)
		twice := Validate(once)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("validate is not idempotent:\n%v\n%v", once, twice)
		}
	})

	t.Run("ExcludesSubOnePercentNoise", func(t *testing.T) {
		for _, r := range Validate(raw) {
			if v, _ := r.RegularRate.Float(); v < 1 {
				t.Errorf("record %s with rate %v survived validation", r.Bank, v)
			}
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if got := Validate(nil); len(got) != 0 {
			t.Errorf("expected empty result, got %v", got)
		}
	})
}

func TestBucketOf(t *testing.T) {
	tests := []struct {
		minDays int
		want    domain.TermBucket
	}{
		{7, domain.BucketShort},
		{365, domain.BucketShort},
		{366, domain.BucketMedium},
		{1095, domain.BucketMedium},
		{1096, domain.BucketLong},
		{3650, domain.BucketLong},
	}

	for _, tt := range tests {
		if got := BucketOf(rec("X", tt.minDays, 7)); got != tt.want {
			t.Errorf("BucketOf(%d) = %s, want %s", tt.minDays, got, tt.want)
		}
	}
}

func TestGroupByBucket(t *testing.T) {
	records := []domain.RateRecord{
		rec("A", 30, 6), rec("B", 400, 7), rec("C", 200, 6.5), rec("D", 2000, 7.5),
	}

	groups := GroupByBucket(records)

	total := 0
	for _, g := range groups {
		total += len(g)
	}
	if total != len(records) {
		t.Errorf("partition lost records: %d of %d", total, len(records))
	}
	if got := banks(groups[domain.BucketShort]); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Errorf("short bucket out of order: %v", got)
	}

	onlyShort := GroupByBucket([]domain.RateRecord{rec("A", 30, 6)})
	if _, ok := onlyShort[domain.BucketLong]; ok {
		t.Error("expected empty bucket to be absent")
	}
}

func TestParseRiskPreference(t *testing.T) {
	tests := []struct {
		in   string
		want domain.RiskPreference
	}{
		{"conservative", domain.RiskConservative},
		{"CONSERVATIVE", domain.RiskConservative},
		{"low", domain.RiskConservative},
		{" Moderate ", domain.RiskModerate},
		{"medium", domain.RiskModerate},
		{"aggressive", domain.RiskAggressive},
		{"high", domain.RiskAggressive},
		{"long", domain.RiskAggressive},
	}
	for _, tt := range tests {
		got, err := ParseRiskPreference(tt.in)
		if err != nil {
			t.Errorf("ParseRiskPreference(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRiskPreference(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "yolo"} {
		if _, err := ParseRiskPreference(bad); !errors.Is(err, ErrInvalidRiskPreference) {
			t.Errorf("expected ErrInvalidRiskPreference for %q, got %v", bad, err)
		}
	}
}

func TestSummarize(t *testing.T) {
	t.Run("MeanMaxAndBestBank", func(t *testing.T) {
		s, ok := Summarize([]domain.RateRecord{rec("A", 30, 6.5), rec("B", 30, 7.2), rec("C", 30, 6.8)})
		if !ok {
			t.Fatal("expected summary")
		}
		if s.RoundedAverage() != 6.83 {
			t.Errorf("expected rounded average 6.83, got %v", s.RoundedAverage())
		}
		if math.Abs(s.AverageRate-20.5/3) > 1e-12 {
			t.Errorf("expected full precision average, got %v", s.AverageRate)
		}
		if s.MaxRate != 7.2 || s.BestBank != "B" {
			t.Errorf("expected max 7.2 at B, got %v at %s", s.MaxRate, s.BestBank)
		}
	})

	t.Run("TieGoesToFirst", func(t *testing.T) {
		s, _ := Summarize([]domain.RateRecord{rec("A", 30, 6), rec("B", 30, 7.5), rec("C", 30, 7.5)})
		if s.BestBank != "B" {
			t.Errorf("expected first bank at max, got %s", s.BestBank)
		}
	})

	t.Run("EmptyIsNoData", func(t *testing.T) {
		if _, ok := Summarize(nil); ok {
			t.Error("expected no summary for empty input")
		}
	})
}

func TestRecommend(t *testing.T) {
	records := []domain.RateRecord{
		rec("Short1", 90, 6.0),
		rec("Short2", 365, 6.9),
		rec("Medium1", 400, 7.1),
		rec("Medium2", 1095, 7.4),
		rec("Medium3", 700, 7.4),
		rec("Noise", 500, 0.5),
	}

	t.Run("ModerateUsesMediumBucket", func(t *testing.T) {
		got, err := Recommend(records, Request{Risk: domain.RiskModerate, Amount: 100000})
		if err != nil {
			t.Fatalf("Recommend failed: %v", err)
		}
		if got.FellBack {
			t.Error("did not expect fallback")
		}
		if got.Term != domain.BucketMedium || got.BucketSize != 3 {
			t.Errorf("expected 3 medium records, got %d in %s", got.BucketSize, got.Term)
		}
		want := []string{"Medium2", "Medium3", "Medium1"}
		if b := banks(got.Recommendations); !reflect.DeepEqual(b, want) {
			t.Errorf("expected stable ranking %v, got %v", want, b)
		}
		if got.Summary.BestBank != "Medium2" {
			t.Errorf("expected best bank Medium2, got %s", got.Summary.BestBank)
		}
		if got.ProjectedReturn != 100000*(1+7.4/100) {
			t.Errorf("unexpected projected return %v", got.ProjectedReturn)
		}
	})

	t.Run("EmptyBucketFallsBack", func(t *testing.T) {
		got, err := Recommend(records, Request{Risk: domain.RiskAggressive, Amount: 1000})
		if err != nil {
			t.Fatalf("Recommend failed: %v", err)
		}
		if !got.FellBack || got.BucketSize != 0 {
			t.Errorf("expected fallback with empty bucket, got %+v", got)
		}
		if len(got.Recommendations) != 5 {
			t.Errorf("expected 5 recommendations from full set, got %d", len(got.Recommendations))
		}
		if got.Summary.MaxRate != 7.4 {
			t.Errorf("expected full-set max 7.4, got %v", got.Summary.MaxRate)
		}
	})

	t.Run("TopNBoundsList", func(t *testing.T) {
		got, _ := Recommend(records, Request{Risk: domain.RiskModerate, Amount: 1, TopN: 2})
		if len(got.Recommendations) != 2 {
			t.Errorf("expected 2 recommendations, got %d", len(got.Recommendations))
		}
	})

	t.Run("DoesNotReorderInput", func(t *testing.T) {
		before := banks(records)
		_, _ = Recommend(records, Request{Risk: domain.RiskModerate})
		if !reflect.DeepEqual(before, banks(records)) {
			t.Error("input slice was mutated")
		}
	})

	t.Run("NoData", func(t *testing.T) {
		_, err := Recommend([]domain.RateRecord{rec("Noise", 30, 0.2)}, Request{Risk: domain.RiskModerate})
		if !errors.Is(err, ErrNoDataAvailable) {
			t.Errorf("expected ErrNoDataAvailable, got %v", err)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		if _, err := Recommend(records, Request{Risk: "reckless"}); !errors.Is(err, ErrInvalidRiskPreference) {
			t.Errorf("expected ErrInvalidRiskPreference, got %v", err)
		}
		if _, err := Recommend(records, Request{Risk: domain.RiskModerate, Amount: -1}); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("expected ErrInvalidAmount, got %v", err)
		}
	})
}

func TestFilterAndSort(t *testing.T) {
	records := []domain.RateRecord{
		{Bank: "SBI", TenureDescription: "1 year", MinDays: 365, MaxDays: 365, RegularRate: domain.RateOf(6.8), SeniorRate: domain.RateOf(7.3)},
		{Bank: "SBI Card", TenureDescription: "2 years", MinDays: 730, MaxDays: 730, RegularRate: domain.RateOf(7.0)},
		{Bank: "HDFC", TenureDescription: "1 year", MinDays: 365, MaxDays: 365, RegularRate: domain.RateOf(7.0), SeniorRate: domain.RateOf(7.5)},
		{Bank: "sbi small", TenureDescription: "5 years", MinDays: 1825, MaxDays: 1825, RegularRate: domain.RateOf(7.25)},
		{Bank: "Noise", MinDays: 30, RegularRate: domain.RateOf(0.5)},
	}

	t.Run("Conjunction", func(t *testing.T) {
		got, err := FilterAndSort(records, Filter{BankSubstring: "sbi", MinRate: floatPtr(7)}, SortNone, "")
		if err != nil {
			t.Fatalf("FilterAndSort failed: %v", err)
		}
		want := []string{"SBI Card", "sbi small"}
		if b := banks(got); !reflect.DeepEqual(b, want) {
			t.Errorf("expected %v, got %v", want, b)
		}
	})

	t.Run("InclusiveRange", func(t *testing.T) {
		got, _ := FilterAndSort(records, Filter{MinRate: floatPtr(6.8), MaxRate: floatPtr(7.0)}, SortNone, "")
		if len(got) != 3 {
			t.Errorf("expected 3 records in [6.8, 7.0], got %v", banks(got))
		}
	})

	t.Run("TenureSubstring", func(t *testing.T) {
		got, _ := FilterAndSort(records, Filter{TenureSubstring: "YEAR"}, SortNone, "")
		if len(got) != 4 {
			t.Errorf("expected 4 records, got %v", banks(got))
		}
	})

	t.Run("DayBounds", func(t *testing.T) {
		minDays, maxDays := 366, 1000
		got, _ := FilterAndSort(records, Filter{MinDays: &minDays, MaxDays: &maxDays}, SortNone, "")
		if b := banks(got); !reflect.DeepEqual(b, []string{"SBI Card"}) {
			t.Errorf("expected [SBI Card], got %v", b)
		}
	})

	t.Run("MatchPredicate", func(t *testing.T) {
		match := func(r domain.RateRecord) bool { return r.SeniorRate.Valid() }
		got, _ := FilterAndSort(records, Filter{Match: match}, SortNone, "")
		if b := banks(got); !reflect.DeepEqual(b, []string{"SBI", "HDFC"}) {
			t.Errorf("expected [SBI HDFC], got %v", b)
		}
	})

	t.Run("StableDescendingSort", func(t *testing.T) {
		got, _ := FilterAndSort(records, Filter{}, SortRegularRate, SortDescending)
		want := []string{"sbi small", "SBI Card", "HDFC", "SBI"}
		if b := banks(got); !reflect.DeepEqual(b, want) {
			t.Errorf("expected %v, got %v", want, b)
		}
	})

	t.Run("MissingValuesRankLowest", func(t *testing.T) {
		asc, _ := FilterAndSort(records, Filter{}, SortSeniorRate, SortAscending)
		if b := banks(asc); !reflect.DeepEqual(b, []string{"SBI Card", "sbi small", "SBI", "HDFC"}) {
			t.Errorf("ascending: unexpected order %v", b)
		}

		desc, _ := FilterAndSort(records, Filter{}, SortSeniorRate, SortDescending)
		if b := banks(desc); !reflect.DeepEqual(b, []string{"HDFC", "SBI", "SBI Card", "sbi small"}) {
			t.Errorf("descending: unexpected order %v", b)
		}
	})

	t.Run("SortByBank", func(t *testing.T) {
		got, _ := FilterAndSort(records, Filter{}, SortBank, SortAscending)
		want := []string{"HDFC", "SBI", "SBI Card", "sbi small"}
		if b := banks(got); !reflect.DeepEqual(b, want) {
			t.Errorf("expected %v, got %v", want, b)
		}
	})

	t.Run("UnknownKey", func(t *testing.T) {
		if _, err := FilterAndSort(records, Filter{}, "color", SortAscending); !errors.Is(err, ErrUnknownSortKey) {
			t.Errorf("expected ErrUnknownSortKey, got %v", err)
		}
	})

	t.Run("InvalidDirection", func(t *testing.T) {
		if _, err := FilterAndSort(records, Filter{}, SortBank, "sideways"); !errors.Is(err, ErrInvalidSortDirection) {
			t.Errorf("expected ErrInvalidSortDirection, got %v", err)
		}
	})
}

func TestParseSortDirection(t *testing.T) {
	for in, want := range map[string]SortDirection{"": SortDescending, "ASC": SortAscending, "desc": SortDescending} {
		got, err := ParseSortDirection(in)
		if err != nil || got != want {
			t.Errorf("ParseSortDirection(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := ParseSortDirection("up"); err == nil {
		t.Error("expected error for unknown direction")
	}
}

func TestTopRates(t *testing.T) {
	records := []domain.RateRecord{rec("A", 30, 6), rec("B", 400, 7.5), rec("C", 2000, 7), rec("Noise", 30, 0.1)}

	got := TopRates(records, 2)
	if b := banks(got); !reflect.DeepEqual(b, []string{"B", "C"}) {
		t.Errorf("expected [B C], got %v", b)
	}
	if all := TopRates(records, 0); len(all) != 3 {
		t.Errorf("expected default limit to include all 3 valid records, got %d", len(all))
	}
}

func TestBankLeaderboard(t *testing.T) {
	records := []domain.RateRecord{
		rec("A", 30, 6), rec("A", 400, 7),
		rec("B", 30, 6.5),
		rec("C", 30, 7), rec("C", 60, 6), rec("C", 90, 0.3),
	}

	board := BankLeaderboard(records, 0)
	if len(board) != 3 {
		t.Fatalf("expected 3 banks, got %d", len(board))
	}

	// Every bank averages 6.5 over its valid records, so first appearance decides.
	want := []string{"A", "B", "C"}
	for i, s := range board {
		if s.Bank != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], s.Bank)
		}
		if s.AverageRate != 6.5 {
			t.Errorf("%s: expected average 6.5, got %v", s.Bank, s.AverageRate)
		}
	}
	if board[2].Products != 2 {
		t.Errorf("expected C to count 2 valid products, got %d", board[2].Products)
	}

	records = append(records, rec("D", 30, 9))
	if top := BankLeaderboard(records, 1); len(top) != 1 || top[0].Bank != "D" {
		t.Errorf("expected D alone at the top, got %+v", top)
	}
}

func TestAnalyzeTerms(t *testing.T) {
	report := AnalyzeTerms([]domain.RateRecord{rec("A", 30, 6), rec("B", 400, 7), rec("C", 200, 6.5)})

	if report.Overall == nil || report.Overall.MaxRate != 7 {
		t.Errorf("unexpected overall summary: %+v", report.Overall)
	}
	if report.Short == nil || report.Short.BestBank != "C" {
		t.Errorf("unexpected short summary: %+v", report.Short)
	}
	if report.Medium == nil || report.Medium.BestBank != "B" {
		t.Errorf("unexpected medium summary: %+v", report.Medium)
	}
	if report.Long != nil {
		t.Errorf("expected no long-term data, got %+v", report.Long)
	}
	if report.Segment(domain.BucketLong) != nil {
		t.Error("expected nil long segment")
	}
	if report.Counts[domain.BucketShort] != 2 || report.Counts[domain.BucketLong] != 0 {
		t.Errorf("unexpected counts: %v", report.Counts)
	}
}
