package rules

import (
	"errors"
	"sync"
	"testing"

	"github.com/opensource-finance/fdrates/internal/domain"
)

func sampleRecord() domain.RateRecord {
	return domain.RateRecord{
		Bank:              "State Bank",
		TenureDescription: "2 years to less than 3 years",
		MinDays:           730,
		MaxDays:           1094,
		RegularRate:       domain.RateOf(7.0),
		SeniorRate:        domain.RateOf(7.5),
		Category:          domain.CategoryGeneral,
		Region:            "India",
		Currency:          "INR",
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(0)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.Count() != 0 {
		t.Errorf("expected 0 programs, got %d", engine.Count())
	}
}

func TestCompile(t *testing.T) {
	engine, _ := NewEngine(10)
	defer engine.Close()

	rec := sampleRecord()

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"RateComparison", "regular_rate >= 7.0", true},
		{"IntComparison", "min_days > 365 && max_days < 1095", true},
		{"StringFunction", `bank.startsWith("State")`, true},
		{"SeniorSpread", "has_senior_rate && senior_rate - regular_rate >= 0.5", true},
		{"Category", `category == "TaxSaving"`, false},
		{"Region", `region == "India" && currency == "INR"`, true},
		{"TenureContains", `tenure_description.contains("3 years")`, true},
		{"NoMatch", "regular_rate > 9.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := engine.Compile(tt.expr)
			if err != nil {
				t.Fatalf("compile failed: %v", err)
			}
			if got := match(rec); got != tt.want {
				t.Errorf("%s: expected %v, got %v", tt.expr, tt.want, got)
			}
		})
	}
}

func TestAbsentSeniorRate(t *testing.T) {
	engine, _ := NewEngine(10)
	rec := sampleRecord()
	rec.SeniorRate = domain.NoRate

	match, err := engine.Compile("has_senior_rate")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if match(rec) {
		t.Error("expected has_senior_rate to be false")
	}

	zero, _ := engine.Compile("senior_rate == 0.0")
	if !zero(rec) {
		t.Error("expected absent senior rate to read as 0.0")
	}
}

func TestInvalidExpressions(t *testing.T) {
	engine, _ := NewEngine(10)

	for _, expr := range []string{
		"",
		"this is not valid CEL !!!",
		"unknown_var > 1",
		"regular_rate + 1.0",
		`bank`,
	} {
		if _, err := engine.Compile(expr); !errors.Is(err, ErrInvalidExpression) {
			t.Errorf("%q: expected ErrInvalidExpression, got %v", expr, err)
		}
		if err := engine.Validate(expr); !errors.Is(err, ErrInvalidExpression) {
			t.Errorf("%q: Validate expected ErrInvalidExpression, got %v", expr, err)
		}
	}
}

func TestEvaluationErrorDoesNotMatch(t *testing.T) {
	engine, _ := NewEngine(10)

	// Integer division by zero fails at evaluation time only.
	match, err := engine.Compile("min_days / (max_days - max_days) > 0")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if match(sampleRecord()) {
		t.Error("expected evaluation error to yield no match")
	}
}

func TestProgramCache(t *testing.T) {
	engine, _ := NewEngine(2)

	_, _ = engine.Compile("regular_rate > 1.0")
	_, _ = engine.Compile(" regular_rate > 1.0 ")
	if engine.Count() != 1 {
		t.Errorf("expected trimmed duplicate to share a program, got %d", engine.Count())
	}

	_, _ = engine.Compile("regular_rate > 2.0")
	_, _ = engine.Compile("regular_rate > 3.0")
	if engine.Count() > 2 {
		t.Errorf("expected cache to stay within 2 programs, got %d", engine.Count())
	}

	if err := engine.Validate("regular_rate > 4.0"); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if engine.Count() > 2 {
		t.Errorf("validate must not grow the cache, got %d", engine.Count())
	}

	engine.Close()
	if engine.Count() != 0 {
		t.Errorf("expected empty cache after close, got %d", engine.Count())
	}
}

func TestConcurrentCompile(t *testing.T) {
	engine, _ := NewEngine(100)
	rec := sampleRecord()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			match, err := engine.Compile("regular_rate >= 7.0")
			if err != nil {
				t.Errorf("compile failed: %v", err)
				return
			}
			if !match(rec) {
				t.Error("expected match")
			}
		}()
	}
	wg.Wait()
}

func TestPresets(t *testing.T) {
	engine, _ := NewEngine(20)

	names := PresetNames()
	if len(names) == 0 {
		t.Fatal("expected presets")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Errorf("preset names not sorted: %v", names)
		}
	}

	for _, name := range names {
		expr, ok := Preset(name)
		if !ok {
			t.Fatalf("preset %s missing", name)
		}
		if err := engine.Validate(expr); err != nil {
			t.Errorf("preset %s does not compile: %v", name, err)
		}
	}

	medium, _ := Preset("medium_term")
	match, _ := engine.Compile(medium)
	if !match(sampleRecord()) {
		t.Error("expected sample record to be medium term")
	}

	if _, ok := Preset("nope"); ok {
		t.Error("expected unknown preset to be missing")
	}
}
