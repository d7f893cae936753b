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
	concurrency int
	duration    time.Duration
	workload    string
	totalUsers  int
	password    string
)

// Metrics
var (
	totalRequests uint64
	success200    uint64
	fail400       uint64
	fail404       uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&totalUsers, "users", 1000, "Number of seeded users (ids 1..N)")
	flag.StringVar(&password, "password", "secret123", "Seed user password")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, i, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, n int, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	// Each worker acts as one seeded sender.
	senderID := int64(n%totalUsers + 1)
	token, err := login(client, senderID)
	if err != nil {
		log.Printf("worker %d: login failed: %v", n, err)
		return
	}

	for time.Since(start) < duration {
		receiver := pickReceiver(senderID)

		payload := map[string]interface{}{
			"sender_id": senderID,
			"phone":     seedPhone(receiver),
			"amount":    int64(100),
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/transfer/initiate", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&success200, 1)
		case 400:
			atomic.AddUint64(&fail400, 1)
		case 404:
			atomic.AddUint64(&fail404, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func login(client *http.Client, senderID int64) (string, error) {
	payload := map[string]string{
		"email":    fmt.Sprintf("seed%04d@peerpay.test", senderID),
		"password": password,
	}
	body, _ := json.Marshal(payload)

	resp, err := client.Post(targetURL+"/api/v1/login", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("login status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func seedPhone(id int64) string {
	return fmt.Sprintf("+2126%08d", id)
}

func pickReceiver(sender int64) int64 {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic targets user 1 (or 2 when 1 sends)
		if rand.Float32() < 0.90 {
			if sender == 1 {
				return 2
			}
			return 1
		}
	}

	r := int64(rand.Intn(totalUsers) + 1)
	for r == sender {
		r = int64(rand.Intn(totalUsers) + 1)
	}
	return r
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s200 := atomic.LoadUint64(&success200)
	f400 := atomic.LoadUint64(&fail400)
	f404 := atomic.LoadUint64(&fail404)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_rps": tps,
		"initiated":      s200,
		"rejected_400":   f400,
		"not_found_404":  f404,
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
