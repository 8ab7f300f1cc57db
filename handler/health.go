package handler

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/paybridge/paybridge/infra/config"
	"github.com/paybridge/paybridge/infra/opensearch"
	"github.com/paybridge/paybridge/infra/response"
	"github.com/paybridge/paybridge/provider"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db        *sql.DB
	osClient  *opensearch.Client
	registry  *provider.Registry
	startTime time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                     `json:"status"`
	Version     string                     `json:"version"`
	Timestamp   time.Time                  `json:"timestamp"`
	Uptime      string                     `json:"uptime"`
	Environment string                     `json:"environment"`
	Database    *DatabaseHealth            `json:"database"`
	Providers   map[string]*ProviderHealth `json:"providers"`
	System      *SystemHealth              `json:"system"`
	Services    map[string]*ServiceHealth  `json:"services"`
}

// DatabaseHealth represents state store health status
type DatabaseHealth struct {
	Status       string        `json:"status"`
	Connected    bool          `json:"connected"`
	ResponseTime time.Duration `json:"response_time_ms"`
	OpenConns    int           `json:"open_connections"`
	InUseConns   int           `json:"in_use_connections"`
	Error        string        `json:"error,omitempty"`
}

// ProviderHealth represents payment provider health
type ProviderHealth struct {
	Status       string  `json:"status"`
	Available    bool    `json:"available"`
	ResponseTime string  `json:"response_time"`
	LastCheck    string  `json:"last_check"`
	SuccessRate  float64 `json:"success_rate"`
	ErrorRate    float64 `json:"error_rate,omitempty"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Memory     *MemoryHealth `json:"memory"`
	GoRoutines int           `json:"goroutines"`
}

// MemoryHealth represents memory usage
type MemoryHealth struct {
	Alloc        string  `json:"alloc"`
	TotalAlloc   string  `json:"total_alloc"`
	Sys          string  `json:"sys"`
	GCRuns       uint32  `json:"gc_runs"`
	UsagePercent float64 `json:"usage_percent"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status      string `json:"status"`
	Healthy     bool   `json:"healthy"`
	LastCheck   string `json:"last_check"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *sql.DB, osClient *opensearch.Client, registry *provider.Registry) *HealthHandler {
	return &HealthHandler{
		db:        db,
		osClient:  osClient,
		registry:  registry,
		startTime: time.Now(),
	}
}

// CheckHealth performs comprehensive health checks
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).String(),
		Environment: config.GetAppConfig().Environment,
		Database:    h.checkDatabaseHealth(ctx),
		Providers:   h.checkProvidersHealth(),
		System:      h.checkSystemHealth(),
		Services:    h.checkServicesHealth(),
	}

	health.Status = h.determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	response.WriteJSON(w, statusCode, response.Response{
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

// checkDatabaseHealth pings the SQLite state store
func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) *DatabaseHealth {
	dbHealth := &DatabaseHealth{
		Status:    "unknown",
		Connected: false,
	}

	if h.db == nil {
		dbHealth.Status = "not_configured"
		dbHealth.Error = "State store not configured"
		return dbHealth
	}

	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		dbHealth.Status = "unhealthy"
		dbHealth.Error = err.Error()
		dbHealth.ResponseTime = time.Since(start)
		return dbHealth
	}

	dbHealth.Connected = true
	dbHealth.ResponseTime = time.Since(start)

	stats := h.db.Stats()
	dbHealth.OpenConns = stats.OpenConnections
	dbHealth.InUseConns = stats.InUse

	if dbHealth.ResponseTime > 1*time.Second {
		dbHealth.Status = "degraded"
	} else {
		dbHealth.Status = "healthy"
	}

	return dbHealth
}

// checkProvidersHealth reports the registry's last known health per provider
func (h *HealthHandler) checkProvidersHealth() map[string]*ProviderHealth {
	providers := make(map[string]*ProviderHealth)

	for _, p := range h.registry.GetAll() {
		status, err := h.registry.GetHealth(p.Name())
		if err != nil {
			continue
		}
		providers[p.Name()] = &ProviderHealth{
			Status:       string(status.Status),
			Available:    status.Status != provider.HealthUnhealthy,
			ResponseTime: fmt.Sprintf("%.0fms", float64(status.Latency.Nanoseconds())/1e6),
			LastCheck:    status.LastChecked.UTC().Format(time.RFC3339),
			SuccessRate:  status.SuccessRate,
			ErrorRate:    status.ErrorRate,
		}
	}

	return providers
}

// checkSystemHealth checks system resource health
func (h *HealthHandler) checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Memory: &MemoryHealth{
			Alloc:        formatBytes(memStats.Alloc),
			TotalAlloc:   formatBytes(memStats.TotalAlloc),
			Sys:          formatBytes(memStats.Sys),
			GCRuns:       memStats.NumGC,
			UsagePercent: (float64(memStats.Alloc) / float64(memStats.Sys)) * 100,
		},
		GoRoutines: runtime.NumGoroutine(),
	}
}

// checkServicesHealth checks individual service health
func (h *HealthHandler) checkServicesHealth() map[string]*ServiceHealth {
	services := make(map[string]*ServiceHealth)
	now := time.Now().UTC().Format(time.RFC3339)

	services["opensearch_logger"] = &ServiceHealth{LastCheck: now}
	if h.osClient != nil && h.osClient.IsEnabled() {
		services["opensearch_logger"].Status = "healthy"
		services["opensearch_logger"].Healthy = true
		services["opensearch_logger"].Description = "Transaction logging to OpenSearch"
	} else {
		services["opensearch_logger"].Status = "not_configured"
		services["opensearch_logger"].Description = "OpenSearch logging not configured"
	}

	services["provider_registry"] = &ServiceHealth{LastCheck: now}
	if h.registry != nil && len(h.registry.GetAll()) > 0 {
		services["provider_registry"].Status = "healthy"
		services["provider_registry"].Healthy = true
		services["provider_registry"].Description = fmt.Sprintf("%d providers registered", len(h.registry.GetAll()))
	} else {
		services["provider_registry"].Status = "unhealthy"
		services["provider_registry"].Error = "No payment providers registered"
	}

	return services
}

// determineOverallStatus determines overall system status
func (h *HealthHandler) determineOverallStatus(health *HealthStatus) string {
	if health.Database != nil && health.Database.Status == "unhealthy" {
		return "unhealthy"
	}

	if service, exists := health.Services["provider_registry"]; exists && !service.Healthy {
		return "unhealthy"
	}

	hasHealthyProvider := false
	degradedProviders := 0
	for _, p := range health.Providers {
		switch provider.HealthState(p.Status) {
		case provider.HealthHealthy:
			hasHealthyProvider = true
		case provider.HealthDegraded:
			degradedProviders++
		}
	}

	if !hasHealthyProvider && len(health.Providers) > 0 {
		return "unhealthy"
	}

	if health.System != nil && health.System.Memory.UsagePercent > 90 {
		return "degraded"
	}
	if health.Database != nil && health.Database.Status == "degraded" {
		return "degraded"
	}
	if len(health.Providers) > 0 && float64(degradedProviders)/float64(len(health.Providers)) > 0.5 {
		return "degraded"
	}

	return "healthy"
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
