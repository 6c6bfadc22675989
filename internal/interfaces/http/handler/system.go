package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/erp/utility-billing/internal/infrastructure/logger"
	"github.com/erp/utility-billing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping() error
}

// StrategyCatalog lists the registered pricing and distribution strategies
type StrategyCatalog interface {
	Catalog() []strategy.Descriptor
}

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	name       string
	version    string
	db         Pinger
	strategies StrategyCatalog
	startTime  time.Time
}

// NewSystemHandler creates a new SystemHandler. db and strategies may be nil.
func NewSystemHandler(name, version string, db Pinger, strategies StrategyCatalog) *SystemHandler {
	return &SystemHandler{
		name:       name,
		version:    version,
		db:         db,
		strategies: strategies,
		startTime:  time.Now(),
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`

	Strategies []strategy.Descriptor `json:"strategies,omitempty"`
}

// GetSystemInfo returns version, uptime and the available billing strategies
//
//	GET /api/v1/system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.strategies != nil {
		info.Strategies = h.strategies.Catalog()
	}
	h.Success(c, info)
}

// Health reports whether the service and its database are usable
//
//	GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	status := gin.H{
		"status":   "healthy",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"database": "ok",
	}
	if h.db == nil {
		status["database"] = "disabled"
		c.JSON(http.StatusOK, status)
		return
	}
	if err := h.db.Ping(); err != nil {
		logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
		status["status"] = "unhealthy"
		status["database"] = "error"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Ping is a liveness probe
//
//	GET /api/v1/system/ping
func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"message": "pong"}))
}
