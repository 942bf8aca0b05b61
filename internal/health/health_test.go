package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReportAllHealthy(t *testing.T) {
	c := NewChecker("test-1")
	c.Register("warehouse", func(context.Context) error { return nil })
	c.Register("cache", func(context.Context) error { return nil })

	report := c.Report(context.Background())
	if report.Status != "ok" {
		t.Errorf("Status = %q, want ok", report.Status)
	}
	if len(report.Components) != 2 {
		t.Errorf("got %d components, want 2", len(report.Components))
	}
	if report.InstanceID != "test-1" {
		t.Errorf("InstanceID = %q", report.InstanceID)
	}
}

func TestReportDegraded(t *testing.T) {
	c := NewChecker("test-1")
	c.Register("warehouse", func(context.Context) error { return nil })
	c.Register("cache", func(context.Context) error { return errors.New("connection refused") })

	report := c.Report(context.Background())
	if report.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", report.Status)
	}
	cache := report.Components["cache"]
	if cache.Status != "down" || cache.Error != "connection refused" {
		t.Errorf("cache component = %+v", cache)
	}
	if report.Components["warehouse"].Status != "ok" {
		t.Errorf("warehouse component = %+v", report.Components["warehouse"])
	}
}

func TestHandlerEndpoints(t *testing.T) {
	c := NewChecker("test-1")
	c.Register("warehouse", func(context.Context) error { return errors.New("pool exhausted") })
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/live")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("live = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready = %d, want 503", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("health = %d, want 503", resp.StatusCode)
	}
	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.Status != "degraded" {
		t.Errorf("report status = %q", report.Status)
	}
}
