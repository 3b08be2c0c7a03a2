package handler

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/mstgnz/monopay/infra/config"
	"github.com/mstgnz/monopay/infra/response"
	"github.com/mstgnz/monopay/provider"
)

const (
	statusHealthy       = "healthy"
	statusDegraded      = "degraded"
	statusUnhealthy     = "unhealthy"
	statusNotConfigured = "not_configured"
)

// SearchPinger is the audit cluster as seen by the health check
type SearchPinger interface {
	IsEnabled() bool
	Ping(ctx context.Context) error
}

// ReadinessChecker reports whether the payment service can serve requests
type ReadinessChecker interface {
	Ready() error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db             *sql.DB
	settingsDB     *sql.DB
	search         SearchPinger
	paymentService ReadinessChecker
	startTime      time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Database    *DatabaseHealth           `json:"database"`
	Gateways    []string                  `json:"gateways"`
	System      *SystemHealth             `json:"system"`
	Services    map[string]*ServiceHealth `json:"services"`
}

// DatabaseHealth represents database health status
type DatabaseHealth struct {
	Status       string        `json:"status"`
	Connected    bool          `json:"connected"`
	ResponseTime time.Duration `json:"response_time_ms"`
	OpenConns    int           `json:"open_connections"`
	InUseConns   int           `json:"in_use_connections"`
	IdleConns    int           `json:"idle_connections"`
	WaitCount    int64         `json:"wait_count"`
	Version      string        `json:"version,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Memory     *MemoryHealth `json:"memory"`
	Disk       *DiskHealth   `json:"disk"`
	GoRoutines int           `json:"goroutines"`
}

// MemoryHealth represents memory usage
type MemoryHealth struct {
	Alloc      string `json:"alloc"`
	TotalAlloc string `json:"total_alloc"`
	Sys        string `json:"sys"`
	GCRuns     uint32 `json:"gc_runs"`
}

// DiskHealth represents disk usage
type DiskHealth struct {
	Available    string  `json:"available"`
	Used         string  `json:"used"`
	Total        string  `json:"total"`
	UsagePercent float64 `json:"usage_percent"`
	Status       string  `json:"status"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status      string `json:"status"`
	Healthy     bool   `json:"healthy"`
	LastCheck   string `json:"last_check"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewHealthHandler creates a new health handler. settingsDB and search may be nil.
func NewHealthHandler(db, settingsDB *sql.DB, search SearchPinger, paymentService ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		db:             db,
		settingsDB:     settingsDB,
		search:         search,
		paymentService: paymentService,
		startTime:      time.Now(),
	}
}

// CheckHealth reports the state of the database, the stores and the process
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).String(),
		Environment: config.GetEnv("ENVIRONMENT", "development"),
		Database:    h.checkDatabaseHealth(ctx),
		Gateways:    provider.GetAvailableGateways(),
		System:      checkSystemHealth(),
		Services:    h.checkServicesHealth(ctx),
	}
	health.Status = determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == statusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	_ = response.WriteJSON(w, statusCode, response.Response{
		Success: health.Status != statusUnhealthy,
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

// checkDatabaseHealth checks the payment request database
func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) *DatabaseHealth {
	dbHealth := &DatabaseHealth{Status: "unknown"}

	if h.db == nil {
		dbHealth.Status = statusUnhealthy
		dbHealth.Error = "Database not configured"
		return dbHealth
	}

	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		dbHealth.Status = statusUnhealthy
		dbHealth.Error = err.Error()
		dbHealth.ResponseTime = time.Since(start)
		return dbHealth
	}

	dbHealth.Connected = true
	dbHealth.ResponseTime = time.Since(start)

	stats := h.db.Stats()
	dbHealth.OpenConns = stats.OpenConnections
	dbHealth.InUseConns = stats.InUse
	dbHealth.IdleConns = stats.Idle
	dbHealth.WaitCount = stats.WaitCount

	var version string
	if err := h.db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err == nil {
		if parts := strings.Fields(version); len(parts) > 1 {
			dbHealth.Version = parts[1]
		}
	}

	if dbHealth.ResponseTime > time.Second || dbHealth.WaitCount > 100 {
		dbHealth.Status = statusDegraded
	} else {
		dbHealth.Status = statusHealthy
	}

	return dbHealth
}

func (h *HealthHandler) checkServicesHealth(ctx context.Context) map[string]*ServiceHealth {
	now := time.Now().UTC().Format(time.RFC3339)
	services := make(map[string]*ServiceHealth, 3)

	payment := &ServiceHealth{LastCheck: now, Description: "Invoice issuing and webhook settlement"}
	switch {
	case h.paymentService == nil:
		payment.Status = statusUnhealthy
		payment.Error = "Payment service not initialized"
	default:
		if err := h.paymentService.Ready(); err != nil {
			payment.Status = statusUnhealthy
			payment.Error = err.Error()
		} else {
			payment.Status = statusHealthy
			payment.Healthy = true
		}
	}
	services["payment_service"] = payment

	settings := &ServiceHealth{LastCheck: now, Description: "Settings store"}
	switch {
	case h.settingsDB == nil:
		settings.Status = statusNotConfigured
	case h.settingsDB.PingContext(ctx) != nil:
		settings.Status = statusDegraded
		settings.Error = "Settings store unreachable"
	default:
		settings.Status = statusHealthy
		settings.Healthy = true
	}
	services["settings_store"] = settings

	audit := &ServiceHealth{LastCheck: now, Description: "Payment event audit log"}
	switch {
	case h.search == nil || !h.search.IsEnabled():
		audit.Status = statusNotConfigured
	default:
		if err := h.search.Ping(ctx); err != nil {
			audit.Status = statusDegraded
			audit.Error = err.Error()
		} else {
			audit.Status = statusHealthy
			audit.Healthy = true
		}
	}
	services["opensearch"] = audit

	return services
}

func determineOverallStatus(health *HealthStatus) string {
	if health.Database != nil && health.Database.Status == statusUnhealthy {
		return statusUnhealthy
	}
	if service, ok := health.Services["payment_service"]; ok && !service.Healthy {
		return statusUnhealthy
	}

	for _, service := range health.Services {
		if service.Status == statusDegraded {
			return statusDegraded
		}
	}
	if health.Database != nil && health.Database.Status == statusDegraded {
		return statusDegraded
	}
	if health.System != nil && health.System.Disk != nil && health.System.Disk.UsagePercent > 90 {
		return statusDegraded
	}

	return statusHealthy
}

func checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Memory: &MemoryHealth{
			Alloc:      formatBytes(memStats.Alloc),
			TotalAlloc: formatBytes(memStats.TotalAlloc),
			Sys:        formatBytes(memStats.Sys),
			GCRuns:     memStats.NumGC,
		},
		Disk:       diskUsage("/"),
		GoRoutines: runtime.NumGoroutine(),
	}
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

func diskUsage(path string) *DiskHealth {
	disk := &DiskHealth{Status: "unknown"}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		disk.Status = "error"
		return disk
	}

	available := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	used := total - (stat.Bfree * uint64(stat.Bsize))

	disk.Available = formatBytes(available)
	disk.Total = formatBytes(total)
	disk.Used = formatBytes(used)
	if total > 0 {
		disk.UsagePercent = (float64(used) / float64(total)) * 100
	}

	switch {
	case disk.UsagePercent > 90:
		disk.Status = "critical"
	case disk.UsagePercent > 80:
		disk.Status = "warning"
	default:
		disk.Status = statusHealthy
	}

	return disk
}
