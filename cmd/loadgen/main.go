// Load generator for the fdrates API.
//
// Usage:
//
//	go run ./cmd/loadgen -url http://localhost:5000 -banks 20 -requests 5000
//
// This tool:
//  1. Seeds a synthetic catalog through POST /rates
//  2. Waits until the ingest worker has stored it
//  3. Replays a mix of /analyze, /rates and report queries with concurrent workers
//  4. Prints status counts and latency quantiles
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Record is the POST /rates row format.
type Record struct {
	Bank              string  `json:"bank"`
	TenureDescription string  `json:"tenure_description"`
	RegularRate       float64 `json:"regular_rate"`
	SeniorRate        float64 `json:"senior_rate"`
	Category          string  `json:"category,omitempty"`
}

var tenures = []struct {
	label string
	base  float64
}{
	{"7 days to 45 days", 3.0},
	{"46 days to 179 days", 4.75},
	{"180 days to less than 1 year", 5.75},
	{"1 year to less than 2 years", 6.8},
	{"444 days", 7.25},
	{"2 years to less than 3 years", 7.0},
	{"3 years to less than 5 years", 6.75},
	{"5 years to 10 years", 6.5},
}

// queries is the replayed request mix.
var queries = []string{
	"/analyze?risk_preference=conservative&investment_amount=50000",
	"/analyze?risk_preference=moderate&investment_amount=100000",
	"/analyze?risk_preference=aggressive&investment_amount=250000&top_n=10",
	"/rates?sort=regular_rate&order=desc",
	"/rates?min_rate=7&preset=medium_term",
	"/rates?expr=has_senior_rate%20%26%26%20senior_rate%20%3E%3D%207.5",
	"/summary",
	"/analysis/terms",
	"/top-banks",
	"/banks/leaderboard",
}

// Metrics tracks load results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64

	mu        sync.Mutex
	statuses  map[int]int64
	latencies []float64 // milliseconds
}

func (m *Metrics) record(status int, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = make(map[int]int64)
	}
	m.statuses[status]++
	m.latencies = append(m.latencies, float64(elapsed.Microseconds())/1000)
}

func main() {
	baseURL := flag.String("url", "http://localhost:5000", "fdrates base URL")
	banks := flag.Int("banks", 20, "Number of synthetic banks to seed (0 = skip seeding)")
	batch := flag.Int("batch", 50, "Records per POST /rates batch")
	requests := flag.Int("requests", 5000, "Number of query requests to replay")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seedValue := flag.Uint64("seed", 1, "Random seed for the synthetic catalog")
	verbose := flag.Bool("verbose", false, "Print each request result")
	flag.Parse()

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|                 FDRATES LOAD GENERATOR                        |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nURL:       %s\n", *baseURL)
	fmt.Printf("Banks:     %d\n", *banks)
	fmt.Printf("Requests:  %d\n", *requests)
	fmt.Printf("Workers:   %d\n", *workers)
	fmt.Println()

	client := &http.Client{Timeout: 10 * time.Second}

	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: fdrates not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure fdrates is running:")
		fmt.Println("  go run ./cmd/fdrates")
		os.Exit(1)
	}
	fmt.Println("OK fdrates is healthy")

	if *banks > 0 {
		rng := rand.New(rand.NewPCG(*seedValue, *seedValue))
		records := synthRecords(rng, *banks)
		fmt.Printf("\nSeeding %d records...\n", len(records))
		if err := seed(client, *baseURL, records, *batch); err != nil {
			fmt.Printf("ERROR: failed to seed: %v\n", err)
			os.Exit(1)
		}
		if err := waitForData(client, *baseURL, 30*time.Second); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("OK catalog seeded")
	}

	fmt.Printf("\nReplaying %d requests with %d workers...\n", *requests, *workers)
	start := time.Now()
	metrics := runLoad(client, *baseURL, *requests, *workers, *verbose)
	printResults(metrics, time.Since(start))
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// synthRecords builds one row per bank and tenure with jittered rates.
// Roughly one bank in ten is missing its senior rates.
func synthRecords(rng *rand.Rand, banks int) []Record {
	records := make([]Record, 0, banks*len(tenures))
	for b := 0; b < banks; b++ {
		bank := fmt.Sprintf("Load Bank %03d", b+1)
		bias := rng.Float64()*1.0 - 0.5
		for _, t := range tenures {
			regular := round2(t.base + bias + rng.Float64()*0.3)
			rec := Record{
				Bank:              bank,
				TenureDescription: t.label,
				RegularRate:       regular,
			}
			if b%10 != 9 {
				rec.SeniorRate = round2(regular + 0.5)
			}
			records = append(records, rec)
		}
	}
	return records
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func seed(client *http.Client, baseURL string, records []Record, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(records)
	}
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		body, err := json.Marshal(map[string]any{
			"source":  "loadgen",
			"records": records[start:end],
		})
		if err != nil {
			return err
		}
		resp, err := client.Post(baseURL+"/rates", "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("POST /rates: status %d", resp.StatusCode)
		}
	}
	return nil
}

func waitForData(client *http.Client, baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		resp, err := client.Get(baseURL + "/summary")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no summary after %v", timeout)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func runLoad(client *http.Client, baseURL string, requests, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	work := make(chan string, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range work {
				start := time.Now()
				resp, err := client.Get(baseURL + path)
				elapsed := time.Since(start)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", path, err)
					}
					continue
				}
				resp.Body.Close()
				if resp.StatusCode >= http.StatusInternalServerError {
					atomic.AddInt64(&metrics.TotalErrors, 1)
				}
				metrics.record(resp.StatusCode, elapsed)

				if verbose {
					fmt.Printf("%d %8.2fms %s\n", resp.StatusCode, float64(elapsed.Microseconds())/1000, path)
				}
			}
		}()
	}

	for i := 0; i < requests; i++ {
		work <- queries[i%len(queries)]
	}
	close(work)
	wg.Wait()

	return metrics
}

// Latency summarizes request latencies in milliseconds.
type Latency struct {
	Mean, P50, P95, P99, Max float64
}

func latencySummary(samples []float64) Latency {
	if len(samples) == 0 {
		return Latency{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return Latency{
		Mean: stat.Mean(sorted, nil),
		P50:  stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95:  stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99:  stat.Quantile(0.99, stat.Empirical, sorted, nil),
		Max:  sorted[len(sorted)-1],
	}
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n+---------------------------------------------------------------+")
	fmt.Println("|                        LOAD RESULTS                           |")
	fmt.Println("+---------------------------------------------------------------+")

	fmt.Printf("\nREQUESTS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	codes := make([]int, 0, len(m.statuses))
	for code := range m.statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("   HTTP %d:         %d\n", code, m.statuses[code])
	}

	lat := latencySummary(m.latencies)
	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   Mean Latency:     %.2f ms\n", lat.Mean)
	fmt.Printf("   p50 / p95 / p99:  %.2f / %.2f / %.2f ms\n", lat.P50, lat.P95, lat.P99)
	fmt.Printf("   Max Latency:      %.2f ms\n", lat.Max)
	if m.TotalProcessed > 0 && duration > 0 {
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
