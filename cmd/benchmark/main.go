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

// Benchmark settings
var (
	targetURL   string
	token       string
	ruleID      string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Idempotent replays
	success201    uint64 // Issued
	fail409       uint64 // Conflicts (aborts)
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.StringVar(&token, "token", "", "Bearer token of an issuing staff account")
	flag.StringVar(&ruleID, "rule", "", "Coin rule id to issue against")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	if token == "" || ruleID == "" {
		log.Fatal("both -token and -rule are required")
	}

	students, err := fetchStudents()
	if err != nil {
		log.Fatalf("Fetching students failed: %v", err)
	}
	if len(students) == 0 {
		log.Fatal("no approved students found; run the seeder first")
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s | Students: %d",
		workload, concurrency, duration, len(students))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, students)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// fetchStudents pulls one page of approved students to issue against.
func fetchStudents() ([]string, error) {
	req, _ := http.NewRequest("GET", targetURL+"/api/v1/student/students?status=approved&page_size=100", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var page struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(page.Results))
	for _, s := range page.Results {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func worker(wg *sync.WaitGroup, start time.Time, students []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		student := pickStudent(students)
		key := fmt.Sprintf("bench-%s-%d", student, time.Now().UnixNano())

		payload := map[string]interface{}{
			"student_id":   student,
			"coin_rule_id": ruleID,
			"comment":      "benchmark issuance",
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/coins/transactions/issue", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&success201, 1)
		case 200:
			atomic.AddUint64(&success200, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickStudent(students []string) string {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic hits the first student's balance row
		if rand.Float32() < 0.90 {
			return students[0]
		}
	}
	return students[rand.Intn(len(students))]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	s200 := atomic.LoadUint64(&success200)
	f409 := atomic.LoadUint64(&fail409)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	abortRate := 0.0
	if total > 0 {
		abortRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_tps": tps,
		"success_issued": s201,
		"success_replay": s200,
		"aborts_conflict": f409,
		"abort_rate_pct": abortRate,
		"errors":         fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
