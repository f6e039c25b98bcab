package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type punchRequest struct {
	Credential string    `json:"employeeCredential"`
	Scheme     string    `json:"credentialScheme"`
	Kind       string    `json:"punchKind"`
	Timestamp  time.Time `json:"timestamp"`
}

func main() {
	// Cards LOAD-0..LOAD-n must be registered as RAW credentials of active employees.
	url := "http://localhost:8080/api/v1/punches"
	contentType := "application/json"

	numEmployees := 5000
	kinds := []string{"IN", "OUTSIDE", "RETURN", "OUT"}
	totalRequests := numEmployees * len(kinds)
	concurrency := 50 // Number of concurrent requests to avoid local port exhaustion

	fmt.Printf("Starting load test: %d employees (%d punches each) to %s with concurrency %d\n", numEmployees, len(kinds), url, concurrency)

	var g errgroup.Group
	g.SetLimit(concurrency)

	var accepted, queued, failed int64
	shiftStart := time.Now().UTC().Truncate(time.Minute)
	startTime := time.Now()

	for i := 0; i < numEmployees; i++ {
		card := fmt.Sprintf("LOAD-%d", i)
		g.Go(func() error {
			// A card's taps go out in order; the state machine rejects anything else.
			for j, kind := range kinds {
				payload, _ := json.Marshal(punchRequest{
					Credential: card,
					Scheme:     "RAW",
					Kind:       kind,
					Timestamp:  shiftStart.Add(time.Duration(j) * 2 * time.Hour),
				})
				resp, err := http.Post(url, contentType, bytes.NewReader(payload))
				if err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}

				var result struct {
					Accepted bool `json:"accepted"`
					Queued   bool `json:"queued"`
				}
				_ = json.NewDecoder(resp.Body).Decode(&result)
				resp.Body.Close()

				switch {
				case resp.StatusCode != http.StatusAccepted:
					atomic.AddInt64(&failed, 1)
				case result.Queued:
					atomic.AddInt64(&queued, 1)
				default:
					atomic.AddInt64(&accepted, 1)
				}
			}
			return nil
		})
	}

	_ = g.Wait()
	duration := time.Since(startTime)

	fmt.Println("\n--- Load Test Results ---")
	fmt.Printf("Total Duration: %v\n", duration)
	fmt.Printf("Total Requests: %d\n", totalRequests)
	fmt.Printf("Accepted:       %d\n", accepted)
	fmt.Printf("Queued:         %d\n", queued)
	fmt.Printf("Failed:         %d\n", failed)
	fmt.Printf("Requests/Sec:   %.2f\n", float64(totalRequests)/duration.Seconds())
}
