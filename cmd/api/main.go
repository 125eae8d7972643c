package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"menu-analyzer/internal/api"
	"menu-analyzer/internal/core/ai/cache"
	"menu-analyzer/internal/core/ai/openrouter"
	"menu-analyzer/internal/core/ai/provider"
	"menu-analyzer/internal/core/ai/service"
	"menu-analyzer/internal/core/analysis"
	"menu-analyzer/internal/core/history"
	"menu-analyzer/internal/core/image"
	"menu-analyzer/internal/core/menu"
	"menu-analyzer/internal/core/preferences"
	"menu-analyzer/internal/infrastructure/config"
	"menu-analyzer/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// 載入設定（含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("openrouter_model", cfg.OpenRouter.Model),
		zap.String("ocr_provider", cfg.OCR.Provider),
		zap.String("history_backend", cfg.History.Backend),
		zap.String("preferences_backend", cfg.Preferences.Backend),
	)

	// 分析策略只在啟動時載入一次
	policy := analysis.DefaultPolicy()
	if cfg.Analysis.PolicyFile != "" {
		policy, err = analysis.LoadPolicy(cfg.Analysis.PolicyFile)
		if err != nil {
			common.LogFatal("Failed to load analysis policy",
				zap.String("path", cfg.Analysis.PolicyFile),
				zap.Error(err),
			)
		}
	}
	engine := analysis.NewEngine(policy)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStart()

	// Redis
	var rdb *redis.Client
	if cfg.UseRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(startCtx).Err(); err != nil {
			common.LogFatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		common.LogInfo("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	// 分析紀錄
	var historyStore history.Store
	var writer *history.Writer
	if cfg.History.Enabled {
		switch cfg.History.Backend {
		case "redis":
			historyStore = history.NewRedisStore(rdb, cfg.Redis.KeyPrefix, cfg.History.MaxRecords)
		case "postgres":
			pool, err := history.ConnectPostgres(startCtx, cfg.History.PostgresDSN)
			if err != nil {
				common.LogFatal("Failed to connect to postgres", zap.Error(err))
			}
			historyStore = history.NewPostgresStore(pool, cfg.History.MaxRecords)
		default:
			historyStore = history.NewMemoryStore(cfg.History.MaxRecords)
		}
		writer = history.NewWriter(historyStore, cfg.History.Workers, cfg.History.QueueSize)
	}

	// 偏好設定
	var prefsStore preferences.Store = preferences.NewMemoryStore()
	if cfg.Preferences.Backend == "redis" {
		prefsStore = preferences.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
	}

	// AI 服務：沒有 API key 時停用
	var aiService *service.Service
	if cfg.OpenRouter.Enabled || cfg.OpenRouter.APIKey != "" {
		client := openrouter.NewClient(provider.Config{
			APIKey:      cfg.OpenRouter.APIKey,
			BaseURL:     cfg.OpenRouter.BaseURL,
			Model:       cfg.OpenRouter.Model,
			MaxTokens:   cfg.OpenRouter.MaxTokens,
			Temperature: cfg.OpenRouter.Temperature,
			Timeout:     cfg.OpenRouter.Timeout,
			MaxRetries:  cfg.OpenRouter.MaxRetries,
		})
		aiService = service.NewService(client, cache.NewManager(cfg.Cache), cfg.OpenRouter.Model, cfg.OpenRouter.VisionModelName())
	} else {
		common.LogWarn("OpenRouter API key not set, LLM extraction and vision OCR disabled")
	}

	// 文字辨識
	var ocr menu.OCRProvider
	switch cfg.OCR.Provider {
	case "vision":
		if aiService.Enabled() {
			ocr = menu.NewVisionOCR(aiService)
		}
	case "tesseract":
		t := menu.NewTesseractOCR(cfg.OCR.TesseractPath, cfg.OCR.Languages, cfg.OCR.Timeout)
		if !t.Available() {
			common.LogWarn("tesseract binary not found, image analysis will fail until it is installed",
				zap.String("path", cfg.OCR.TesseractPath),
			)
		}
		ocr = t
	}

	var extractor *menu.Extractor
	if cfg.Analysis.LLMExtraction && aiService.Enabled() {
		extractor = menu.NewExtractor(aiService)
	}

	menuService := menu.NewService(menu.Options{
		LLMExtraction:   cfg.Analysis.LLMExtraction,
		RejectBlankText: cfg.Analysis.RejectBlankText,
		MaxTextLength:   cfg.Analysis.MaxTextLength,
	}, engine, image.NewService(cfg.Image.MaxSizeBytes), extractor, ocr, writer)

	// 設置路由
	router := api.SetupRouter(cfg, api.Services{
		Menu:        menuService,
		History:     historyStore,
		Writer:      writer,
		Preferences: prefsStore,
		AI:          aiService,
	})

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Bool("debug", cfg.App.Debug),
			zap.Int("port", cfg.Server.Port),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.LogFatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	// 設置關閉超時
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
	}

	// 先寫完隊列中的紀錄再關閉儲存
	if writer != nil {
		if err := writer.Close(ctx); err != nil {
			common.LogWarn("History writer did not drain", zap.Error(err))
		}
	}
	if historyStore != nil {
		if err := historyStore.Close(); err != nil {
			common.LogWarn("Failed to close history store", zap.Error(err))
		}
	}
	if err := aiService.Close(); err != nil {
		common.LogWarn("Failed to close AI service", zap.Error(err))
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			common.LogWarn("Failed to close redis", zap.Error(err))
		}
	}

	common.LogInfo("Server exited")
}
