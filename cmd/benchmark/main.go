package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	planID      string
	token       string
	concurrency int
	duration    time.Duration
	workload    string
	replayRate  float64
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Posted
	successReplay uint64 // Idempotent replays
	success201    uint64 // Drafts recorded
	fail409       uint64 // Conflicts (key in flight)
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.StringVar(&planID, "plan", "", "Active plan to contribute to (required)")
	flag.StringVar(&token, "token", os.Getenv("BENCH_TOKEN"), "Bearer token for mutating routes")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.Float64Var(&replayRate, "replay", 0.1, "Fraction of posts retried with the same Idempotency-Key")
}

func main() {
	flag.Parse()
	if planID == "" {
		log.Fatal("-plan is required")
	}

	parties, err := loadParties()
	if err != nil {
		log.Fatalf("Load plan: %v", err)
	}
	if len(parties) == 0 {
		log.Fatal("plan has no obligations; activate it first")
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s | Parties: %d", workload, concurrency, duration, len(parties))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, parties)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// loadParties reads the party ids off the plan's obligation snapshot.
func loadParties() ([]string, error) {
	resp, err := http.Get(targetURL + "/api/v1/plans/" + planID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET plan: status %d", resp.StatusCode)
	}
	var body struct {
		Obligations []struct {
			PartyID string `json:"party_id"`
		} `json:"obligations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(body.Obligations))
	for _, o := range body.Obligations {
		ids = append(ids, o.PartyID)
	}
	return ids, nil
}

func worker(wg *sync.WaitGroup, start time.Time, parties []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		party := pickParty(parties)

		payload := map[string]interface{}{
			"plan_id":        planID,
			"party_id":       party,
			"amount":         100_000,
			"contributed_on": time.Now().Format("2006-01-02"),
			"settlement_ref": fmt.Sprintf("BENCH-%d", time.Now().UnixNano()),
		}
		status, body, err := send(client, "/api/v1/contributions", payload, "")
		if err != nil || status != http.StatusCreated {
			count(status, err, false)
			continue
		}
		count(status, nil, false)

		var created struct {
			Contribution struct {
				ID string `json:"id"`
			} `json:"contribution"`
		}
		if err := json.Unmarshal(body, &created); err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		key := fmt.Sprintf("bench-%s", created.Contribution.ID)
		path := "/api/v1/contributions/" + created.Contribution.ID + "/post"
		status, _, err = send(client, path, map[string]string{}, key)
		count(status, err, false)

		if rand.Float64() < replayRate {
			status, _, err = send(client, path, map[string]string{}, key)
			count(status, err, true)
		}
	}
}

// pickParty sends 90% of hotspot traffic to the first party, which
// serializes on its advisory lock.
func pickParty(parties []string) string {
	if workload == "hotspot" && rand.Float32() < 0.90 {
		return parties[0]
	}
	return parties[rand.Intn(len(parties))]
}

func send(client *http.Client, path string, payload interface{}, key string) (int, []byte, error) {
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", targetURL+path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes(), nil
}

func count(status int, err error, replay bool) {
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}
	atomic.AddUint64(&totalRequests, 1)
	switch {
	case status == 200 && replay:
		atomic.AddUint64(&successReplay, 1)
	case status == 200:
		atomic.AddUint64(&success200, 1)
	case status == 201:
		atomic.AddUint64(&success201, 1)
	case status == 409:
		atomic.AddUint64(&fail409, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	s200 := atomic.LoadUint64(&success200)
	sReplay := atomic.LoadUint64(&successReplay)
	f409 := atomic.LoadUint64(&fail409)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	var abortRate float64
	if total > 0 {
		abortRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  tps,
		"drafts_recorded": s201,
		"posted":          s200,
		"success_replay":  sReplay,
		"aborts_conflict": f409,
		"abort_rate_pct":  abortRate,
		"errors":          fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("save results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
