// Command server runs the reference data admin service: the admin API,
// the health endpoints and the Prometheus metrics endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"refadmin/internal/api"
	"refadmin/internal/audit"
	"refadmin/internal/cache"
	"refadmin/internal/config"
	"refadmin/internal/health"
	"refadmin/internal/metrics"
	"refadmin/internal/refdata"
	"refadmin/internal/warehouse"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "configs/server.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[server] loading config: %v", err)
	}
	log.Printf("[server] starting instance %s", cfg.Server.InstanceID)

	// Warehouse session pool and query client.
	dialer := warehouse.NewHTTPDialer(
		cfg.Warehouse.Host, cfg.Warehouse.HTTPPath, cfg.Warehouse.Token,
		cfg.Warehouse.ConnectTimeout)
	pool := warehouse.NewPool(dialer, warehouse.PoolConfig{
		MaxSessions:    cfg.Warehouse.MaxSessions,
		AcquireTimeout: cfg.Warehouse.AcquireTimeout,
		PingTimeout:    cfg.Warehouse.PingTimeout,
		MaxIdleTime:    cfg.Warehouse.MaxIdleTime,
	})
	client := warehouse.NewClient(pool)
	defer client.Close()
	metrics.SessionsMax.Set(float64(cfg.Warehouse.MaxSessions))

	// Optional Redis read cache.
	readCache := cache.New(cfg.Redis)
	if readCache.Enabled() {
		defer readCache.Close()
		log.Printf("[server] read cache enabled at %s", cfg.Redis.Addr)
	} else {
		log.Printf("[server] read cache disabled")
	}

	// Local audit trail.
	auditStore, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		log.Fatalf("[server] opening audit trail: %v", err)
	}
	defer auditStore.Close()

	// Domain services over the warehouse table.
	table := cfg.Warehouse.FullTableName()
	store := refdata.NewStore(client, table, readCache)
	analytics := refdata.NewAnalytics(client, table, readCache)
	batch := refdata.NewBatch(store)

	// Health endpoints on the side port.
	checker := health.NewChecker(cfg.Server.InstanceID)
	checker.Register("warehouse", client.TestConnection)
	checker.Register("audit", auditStore.Ping)
	if readCache.Enabled() {
		checker.Register("cache", readCache.Ping)
	}
	healthSrv := health.Serve(cfg.Server.HealthCheckPort, checker)

	// Metrics endpoint.
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		log.Printf("[server] metrics listening on %s", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[server] metrics server error: %v", err)
		}
	}()

	// Admin API.
	apiServer := api.NewServer(cfg, store, analytics, batch, auditStore, client, readCache)
	httpSrv := apiServer.HTTPServer()
	go func() {
		log.Printf("[server] admin API listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[server] api server error: %v", err)
		}
	}()

	// Verify the warehouse is reachable. Startup continues regardless;
	// the pool redials on demand and readiness reports the truth.
	startupCtx, cancel := context.WithTimeout(context.Background(), cfg.Warehouse.ConnectTimeout)
	if err := client.TestConnection(startupCtx); err != nil {
		log.Printf("[server] warehouse not reachable at startup: %v", err)
	} else {
		log.Printf("[server] warehouse connection verified")
	}
	cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[server] received %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] api shutdown: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] metrics shutdown: %v", err)
	}
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] health shutdown: %v", err)
	}

	log.Printf("[server] shutdown complete")
}
