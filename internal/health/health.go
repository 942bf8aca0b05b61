// Package health exposes liveness and readiness endpoints on a side
// port, separate from the admin API so load balancers can probe the
// service without credentials.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Check probes one dependency. It must respect ctx.
type Check func(ctx context.Context) error

// ComponentStatus is the probe result for one dependency.
type ComponentStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report is the full readiness report.
type Report struct {
	Status     string                     `json:"status"`
	InstanceID string                     `json:"instance_id"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentStatus `json:"components"`
}

// Checker runs registered dependency probes.
type Checker struct {
	mu         sync.Mutex
	checks     map[string]Check
	instanceID string
	timeout    time.Duration
}

// NewChecker builds a checker. Each probe gets at most 5s.
func NewChecker(instanceID string) *Checker {
	return &Checker{
		checks:     make(map[string]Check),
		instanceID: instanceID,
		timeout:    5 * time.Second,
	}
}

// Register adds a named dependency probe.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Report probes every dependency concurrently and aggregates the result.
// Overall status is "ok" only when every component passes.
func (c *Checker) Report(ctx context.Context) Report {
	c.mu.Lock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.Unlock()

	report := Report{
		Status:     "ok",
		InstanceID: c.instanceID,
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]ComponentStatus, len(checks)),
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for name, check := range checks {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			err := check(probeCtx)
			status := ComponentStatus{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				status.Status = "down"
				status.Error = err.Error()
			}

			mu.Lock()
			report.Components[name] = status
			if err != nil {
				report.Status = "degraded"
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return report
}

// Handler serves the health endpoints:
//
//	/health/live  - process is up
//	/health/ready - all dependencies pass
//	/health       - full readiness report
func (c *Checker) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("GET /health/ready", func(w http.ResponseWriter, r *http.Request) {
		report := c.Report(r.Context())
		if report.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintln(w, report.Status)
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		report := c.Report(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})

	return mux
}

// Serve starts the health server on the given port. The returned server
// should be shut down by the caller.
func Serve(port int, checker *Checker) *http.Server {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: checker.Handler(),
	}
	go func() {
		log.Printf("[health] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[health] server error: %v", err)
		}
	}()
	return srv
}
