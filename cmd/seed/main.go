// Command seed populates a running instance with demo technicians and
// service requests over the HTTP API, then optionally triggers assignment
// for each created request.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// Default configuration constants.
const (
	defaultTechnicians = 8
	defaultRequests    = 20
	defaultTimeout     = 10 * time.Second
	defaultSeedTimeout = 2 * time.Minute
)

var (
	serviceTypes = []string{"oil_change", "brake_service", "engine_diagnostics", "tire_rotation", "transmission"}
	skillSets    = [][]string{
		{"maintenance"},
		{"brakes", "maintenance"},
		{"diagnostics", "engine"},
		{"transmission", "diagnostics"},
		{"maintenance", "brakes", "diagnostics", "engine", "transmission"},
	}
	brands = []string{"Toyota", "BMW", "Ford", "Honda", "Volvo"}
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		technicians = flag.Int("technicians", defaultTechnicians, "Number of technicians to create")
		requests    = flag.Int("requests", defaultRequests, "Number of service requests to create")
		assign      = flag.Bool("assign", true, "Trigger assignment for each created request")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), defaultSeedTimeout)
	defer cancel()

	client := &http.Client{Timeout: *timeout}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < *technicians; i++ {
		body := map[string]any{
			"name":        fmt.Sprintf("tech-%02d", i+1),
			"skills":      skillSets[i%len(skillSets)],
			"available":   i%5 != 4, // every fifth technician is off shift
			"rating":      3.0 + rng.Float64()*2.0,
			"hourly_rate": 40.0 + rng.Float64()*40.0,
		}
		if _, err := post(ctx, client, *baseURL+"/technicians", body); err != nil {
			fail("creating technician", err)
		}
	}
	fmt.Printf("created %d technicians\n", *technicians)

	requestIDs := make([]string, 0, *requests)
	for i := 0; i < *requests; i++ {
		body := map[string]any{
			"customer_id":     fmt.Sprintf("cust-%03d", i+1),
			"service_type":    serviceTypes[rng.Intn(len(serviceTypes))],
			"vehicle_plate":   fmt.Sprintf("PS-%04d", rng.Intn(10000)),
			"vehicle_brand":   brands[rng.Intn(len(brands))],
			"vehicle_mileage": float64(rng.Intn(200000)),
		}
		id, err := post(ctx, client, *baseURL+"/requests", body)
		if err != nil {
			fail("creating request", err)
		}
		requestIDs = append(requestIDs, id)
	}
	fmt.Printf("created %d requests\n", len(requestIDs))

	if !*assign {
		return
	}

	assigned := 0
	for _, id := range requestIDs {
		if _, err := post(ctx, client, *baseURL+"/assignments/"+id, nil); err != nil {
			fmt.Printf("assignment skipped for %s: %v\n", id, err)
			continue
		}
		assigned++
	}
	fmt.Printf("assigned %d of %d requests\n", assigned, len(requestIDs))
}

// post sends body as JSON and returns the created resource id when present.
func post(ctx context.Context, client *http.Client, url string, body any) (string, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return "", err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return "", fmt.Errorf("%s: %s %s", resp.Status, e.Code, e.Message)
	}

	var created struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&created)
	return created.ID, nil
}

func fail(what string, err error) {
	os.Stderr.WriteString(what + " failed: " + err.Error() + "\n")
	os.Exit(1)
}
