package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"menu-analyzer/internal/core/ai/cache"
	"menu-analyzer/internal/core/history"
	"menu-analyzer/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime"`
	Queue     *history.Status        `json:"queue,omitempty"`
	Cache     *cache.Stats           `json:"cache,omitempty"`
	OCR       string                 `json:"ocr"`
	AI        bool                   `json:"ai_enabled"`
}

// Pinger 可檢查連線的依賴
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps 健康檢查需要的依賴，皆可為 nil
type Deps struct {
	Version      string
	Writer       *history.Writer
	CacheStats   func() cache.Stats
	AIEnabled    bool
	OCRProvider  string
	Dependencies map[string]Pinger
}

// Handler 健康檢查處理程序
type Handler struct {
	deps Deps
}

// NewHandler 創建健康檢查處理程序
func NewHandler(deps Deps) *Handler {
	if deps.OCRProvider == "" {
		deps.OCRProvider = "none"
	}
	return &Handler{deps: deps}
}

// HealthCheck 健康檢查處理器
func (h *Handler) HealthCheck(c *gin.Context) {
	// 獲取運行時信息
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.deps.Version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
		OCR: h.deps.OCRProvider,
		AI:  h.deps.AIEnabled,
	}

	if h.deps.Writer != nil {
		status := h.deps.Writer.GetQueueStatus()
		response.Queue = &status
	}
	if h.deps.CacheStats != nil {
		stats := h.deps.CacheStats()
		response.Cache = &stats
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 就緒檢查處理器：逐一檢查儲存依賴
func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.deps.Dependencies))
	ready := true
	for name, dep := range h.deps.Dependencies {
		if dep == nil {
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			common.LogWarn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"checks": checks,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"checks": checks,
	})
}

// LivenessCheck 存活檢查處理器
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
