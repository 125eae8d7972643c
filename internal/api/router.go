package api

import (
	"time"

	"menu-analyzer/internal/api/handlers/analyze"
	"menu-analyzer/internal/api/handlers/health"
	historyHandler "menu-analyzer/internal/api/handlers/history"
	prefsHandler "menu-analyzer/internal/api/handlers/preferences"
	"menu-analyzer/internal/api/middleware"
	"menu-analyzer/internal/core/ai/service"
	"menu-analyzer/internal/core/history"
	"menu-analyzer/internal/core/menu"
	"menu-analyzer/internal/core/preferences"
	"menu-analyzer/internal/infrastructure/config"
	"menu-analyzer/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services 路由需要的服務；History、Writer、Preferences、AI 可為 nil
type Services struct {
	Menu        *menu.Service
	History     history.Store
	Writer      *history.Writer
	Preferences preferences.Store
	AI          *service.Service
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, svc Services) *gin.Engine {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	if svc.Menu == nil {
		svc.Menu = menu.NewService(menu.Options{}, nil, nil, nil, nil, svc.Writer)
	}

	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(requestid.New())
	router.Use(middleware.Logger())

	// CORS 設置
	router.Use(cors.New(corsConfig(cfg.Server.AllowOrigins)))

	router.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	router.NoRoute(func(c *gin.Context) {
		common.WriteError(c, common.ErrNotFound, false)
	})
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		common.WriteError(c, common.ErrMethodNotAllowed, false)
	})

	// 健康檢查路由
	deps := health.Deps{
		Version:      cfg.App.Version,
		Writer:       svc.Writer,
		AIEnabled:    svc.AI.Enabled(),
		OCRProvider:  svc.Menu.OCRName(),
		Dependencies: map[string]health.Pinger{},
	}
	if svc.AI != nil {
		deps.CacheStats = svc.AI.CacheStats
	}
	if svc.History != nil {
		deps.Dependencies["history"] = svc.History
	}
	if svc.Preferences != nil {
		deps.Dependencies["preferences"] = svc.Preferences
	}
	healthHandler := health.NewHandler(deps)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	// 分析路由：額外限流與去重
	analyzeHandler := analyze.NewHandler(svc.Menu, svc.Preferences, cfg.App.Debug)
	analyzeChain := []gin.HandlerFunc{}
	if cfg.RateLimit.Enabled {
		analyzeChain = append(analyzeChain, middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}
	if cfg.DedupWindow > 0 {
		analyzeChain = append(analyzeChain, middleware.Deduplication(cfg.DedupWindow))
	}
	analyzeRoutes := router.Group("", analyzeChain...)
	{
		analyzeRoutes.POST("/analyze", analyzeHandler.HandleAnalyze)
		analyzeRoutes.POST("/analyze-image", analyzeHandler.HandleAnalyzeImage)
		analyzeRoutes.POST("/api/v1/analyze", analyzeHandler.HandleAnalyze)
		analyzeRoutes.POST("/api/v1/analyze-image", analyzeHandler.HandleAnalyzeImage)
	}

	// API 路由組
	api := router.Group("/api/v1")
	{
		if svc.History != nil {
			h := historyHandler.NewHandler(svc.History, cfg.App.Debug)
			historyGroup := api.Group("/history")
			{
				historyGroup.GET("", h.HandleList)
				historyGroup.GET("/:id", h.HandleGet)
				historyGroup.DELETE("/:id", h.HandleDelete)
			}
		}

		if svc.Preferences != nil {
			h := prefsHandler.NewHandler(svc.Preferences, cfg.App.Debug)
			prefsGroup := api.Group("/preferences")
			{
				prefsGroup.GET("/:profile_id", h.HandleGet)
				prefsGroup.PUT("/:profile_id", h.HandlePut)
			}
		}
	}

	common.LogInfo("Router setup completed successfully",
		zap.Bool("history_enabled", svc.History != nil),
		zap.Bool("preferences_enabled", svc.Preferences != nil),
		zap.Bool("ai_enabled", svc.AI.Enabled()),
		zap.String("ocr_provider", svc.Menu.OCRName()),
		zap.Duration("timeout", cfg.Server.RequestTimeout),
		zap.Int64("max_body_size", cfg.Server.MaxBodyBytes),
	)

	return router
}

// corsConfig 未設定來源或含 "*" 時允許所有來源
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", common.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", common.RequestIDHeader, analyze.AnalysisIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}
