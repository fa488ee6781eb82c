package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

type HealthCheck struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
	Duration    string       `json:"duration"`
}

type HealthResponse struct {
	Status  HealthStatus  `json:"status"`
	Checks  []HealthCheck `json:"checks"`
	Version string        `json:"version"`
	Uptime  string        `json:"uptime"`
}

type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
}

// HealthServer exposes /health, /ready and /metrics for the mesh process.
// Unlike a multi-service deployment there is only ever one of these per
// orchestrator instance, so it is safe to construct once at startup.
type HealthServer struct {
	port        string
	serviceName string
	version     string
	startTime   time.Time
	checkers    map[string]HealthChecker
	server      *http.Server
}

func NewHealthServer(port, serviceName, version string) *HealthServer {
	return &HealthServer{
		port:        port,
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		checkers:    make(map[string]HealthChecker),
	}
}

func (hs *HealthServer) AddChecker(name string, checker HealthChecker) {
	hs.checkers[name] = checker
}

func (hs *HealthServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", promhttp.Handler())

	hs.server = &http.Server{
		Addr:    ":" + hs.port,
		Handler: mux,
	}

	return hs.server.ListenAndServe()
}

func (hs *HealthServer) Shutdown(ctx context.Context) error {
	if hs.server != nil {
		return hs.server.Shutdown(ctx)
	}
	return nil
}

func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := HealthResponse{
		Status:  HealthStatusHealthy,
		Version: hs.version,
		Uptime:  time.Since(hs.startTime).String(),
		Checks:  make([]HealthCheck, 0, len(hs.checkers)),
	}

	for _, checker := range hs.checkers {
		check := checker.Check(ctx)
		response.Checks = append(response.Checks, check)

		if check.Status != HealthStatusHealthy {
			response.Status = HealthStatusUnhealthy
		}
	}

	statusCode := http.StatusOK
	if response.Status != HealthStatusHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	hs.healthHandler(w, r)
}

// BasicHealthChecker wraps an arbitrary probe function, e.g. checking that
// the registry has at least one active agent or that the fallback rule
// store directory is writable.
type BasicHealthChecker struct {
	name    string
	checkFn func(ctx context.Context) error
}

func NewBasicHealthChecker(name string, checkFn func(ctx context.Context) error) *BasicHealthChecker {
	return &BasicHealthChecker{
		name:    name,
		checkFn: checkFn,
	}
}

func (bhc *BasicHealthChecker) Check(ctx context.Context) HealthCheck {
	start := time.Now()

	check := HealthCheck{
		Name:        bhc.name,
		LastChecked: start,
	}

	if err := bhc.checkFn(ctx); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = err.Error()
	} else {
		check.Status = HealthStatusHealthy
	}

	check.Duration = time.Since(start).String()
	return check
}
