//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running fdrates server.
//
// The tests cover the ingest pipeline end to end:
//
//	POST /rates -> event bus -> ingest worker -> store -> cached reports
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server URL is read from FDRATES_TEST_URL (default http://localhost:5000).
// Each test ingests rows under a unique bank name so it can run against a
// server that already holds data.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("FDRATES_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	return TestConfig{BaseURL: baseURL}
}

// RateRecord mirrors the API representation of one offer.
type RateRecord struct {
	ID                int64    `json:"id,omitempty"`
	Bank              string   `json:"bank"`
	TenureDescription string   `json:"tenure_description,omitempty"`
	MinDays           int      `json:"min_days"`
	MaxDays           int      `json:"max_days"`
	RegularRate       *float64 `json:"regular_rate"`
	SeniorRate        *float64 `json:"senior_rate"`
	Category          string   `json:"category,omitempty"`
}

type ratesResponse struct {
	Rates []RateRecord `json:"rates"`
	Count int          `json:"count"`
}

type analyzeResponse struct {
	AvgRate         float64      `json:"avg_rate"`
	MaxRate         float64      `json:"max_rate"`
	BestBank        string       `json:"best_bank"`
	Recommendations []RateRecord `json:"recommendations"`
	ProjectedReturn float64      `json:"projected_return"`
	Term            string       `json:"term"`
	Fallback        bool         `json:"fallback"`
}

func rate(v float64) *float64 { return &v }

func uniqueBank(t *testing.T) string {
	return fmt.Sprintf("IT-%s-%d", t.Name(), time.Now().UnixNano())
}

func call(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	config := getTestConfig()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func ingest(t *testing.T, records []RateRecord) {
	t.Helper()
	status, body := call(t, http.MethodPost, "/rates", map[string]any{
		"source":  "integration",
		"records": records,
	})
	if status != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", status, body)
	}
}

// waitForBank polls /rates until want rows for bank are visible.
func waitForBank(t *testing.T, bank string, want int) []RateRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, body := call(t, http.MethodGet, "/rates?bank="+url.QueryEscape(bank)+"&sort=min_days&order=asc", nil)
		if status != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", status, body)
		}
		var resp ratesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, body)
		}
		if resp.Count >= want {
			return resp.Rates
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d rates for %s, got %d", want, bank, resp.Count)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func TestIngestAndBrowse(t *testing.T) {
	bank := uniqueBank(t)
	ingest(t, []RateRecord{
		{Bank: bank, TenureDescription: "7 days to 45 days", RegularRate: rate(3.0)},
		{Bank: bank, TenureDescription: "1 year to 2 years", RegularRate: rate(6.9), SeniorRate: rate(7.4)},
		{Bank: bank, TenureDescription: "junk", MinDays: 10, RegularRate: rate(0.2)},
	})

	rates := waitForBank(t, bank, 2)
	if len(rates) != 2 {
		t.Fatalf("Expected 2 valid rates (junk row filtered), got %d", len(rates))
	}
	if rates[0].MinDays != 7 || rates[0].MaxDays != 45 {
		t.Errorf("Expected 7-45 days parsed from tenure, got %d-%d", rates[0].MinDays, rates[0].MaxDays)
	}
	if rates[1].MinDays != 365 || rates[1].MaxDays != 730 {
		t.Errorf("Expected 365-730 days parsed from tenure, got %d-%d", rates[1].MinDays, rates[1].MaxDays)
	}

	t.Logf("✓ Ingested and browsed %d rates for %s", len(rates), bank)
}

func TestReplaceOnReingest(t *testing.T) {
	bank := uniqueBank(t)
	ingest(t, []RateRecord{{Bank: bank, TenureDescription: "400 days", RegularRate: rate(7.0)}})
	waitForBank(t, bank, 1)

	ingest(t, []RateRecord{{Bank: bank, TenureDescription: "400 days", RegularRate: rate(7.25)}})

	deadline := time.Now().Add(5 * time.Second)
	for {
		rates := waitForBank(t, bank, 1)
		if len(rates) != 1 {
			t.Fatalf("Expected re-ingest to replace the row, got %d rows", len(rates))
		}
		if rates[0].RegularRate != nil && *rates[0].RegularRate == 7.25 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected rate 7.25 after re-ingest, got %v", rates[0].RegularRate)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func TestAnalyzeAfterIngest(t *testing.T) {
	bank := uniqueBank(t)
	ingest(t, []RateRecord{{Bank: bank, TenureDescription: "500 days", RegularRate: rate(7.1)}})
	waitForBank(t, bank, 1)

	status, body := call(t, http.MethodPost, "/analyze", map[string]any{
		"risk_preference":   "moderate",
		"investment_amount": 50000,
		"top_n":             3,
	})
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}

	var result analyzeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, body)
	}
	if result.Term != "medium" {
		t.Errorf("Expected medium term, got %s", result.Term)
	}
	if len(result.Recommendations) == 0 || len(result.Recommendations) > 3 {
		t.Errorf("Expected 1 to 3 recommendations, got %d", len(result.Recommendations))
	}
	want := 50000 * (1 + result.MaxRate/100)
	if diff := result.ProjectedReturn - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("Expected projected return %.2f, got %.2f", want, result.ProjectedReturn)
	}

	t.Logf("✓ Analyze: best=%s max=%.2f projected=%.2f", result.BestBank, result.MaxRate, result.ProjectedReturn)
}

func TestDeleteRate(t *testing.T) {
	bank := uniqueBank(t)
	ingest(t, []RateRecord{{Bank: bank, TenureDescription: "2 years", RegularRate: rate(6.6)}})
	rates := waitForBank(t, bank, 1)

	path := fmt.Sprintf("/rates/%d", rates[0].ID)
	if status, body := call(t, http.MethodDelete, path, nil); status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}
	if status, _ := call(t, http.MethodGet, path, nil); status != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", status)
	}
}

func TestBadQueries_Error(t *testing.T) {
	paths := []string{
		"/rates?sort=colour",
		"/rates?order=sideways",
		"/rates?expr=" + url.QueryEscape("regular_rate +"),
		"/analyze?risk_preference=reckless",
		"/analyze?investment_amount=-1",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			if status, body := call(t, http.MethodGet, path, nil); status != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d: %s", status, body)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	status, body := call(t, http.MethodGet, "/health", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}

	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", resp["status"])
	}
}
