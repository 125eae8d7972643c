package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	OpenRouter  OpenRouterConfig  `mapstructure:"openrouter"`
	Analysis    AnalysisConfig    `mapstructure:"analysis"`
	OCR         OCRConfig         `mapstructure:"ocr"`
	Cache       CacheConfig       `mapstructure:"cache"`
	History     HistoryConfig     `mapstructure:"history"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Redis       RedisConfig       `mapstructure:"redis"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Image       ImageConfig       `mapstructure:"image"`
	DedupWindow time.Duration     `mapstructure:"dedup_window"`
	LogLevel    string            `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	AllowOrigins   []string      `mapstructure:"allow_origins"`
}

// OpenRouterConfig OpenAI 相容 API 配置（預設為 OpenRouter）
type OpenRouterConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	VisionModel string        `mapstructure:"vision_model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// AnalysisConfig 分析引擎設定
type AnalysisConfig struct {
	PolicyFile      string `mapstructure:"policy_file"`
	LLMExtraction   bool   `mapstructure:"llm_extraction"`
	RejectBlankText bool   `mapstructure:"reject_blank_text"`
	MaxTextLength   int    `mapstructure:"max_text_length"`
}

// OCRConfig 文字辨識設定
type OCRConfig struct {
	Provider      string        `mapstructure:"provider"` // vision | tesseract | none
	TesseractPath string        `mapstructure:"tesseract_path"`
	Languages     string        `mapstructure:"languages"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// CacheConfig 緩存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// HistoryConfig 分析紀錄設定
type HistoryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Backend     string `mapstructure:"backend"` // memory | redis | postgres
	PostgresDSN string `mapstructure:"postgres_dsn"`
	MaxRecords  int    `mapstructure:"max_records"`
	Workers     int    `mapstructure:"workers"`
	QueueSize   int    `mapstructure:"queue_size"`
}

// PreferencesConfig 偏好設定儲存
type PreferencesConfig struct {
	Backend string `mapstructure:"backend"` // memory | redis
}

// RedisConfig Redis 連線
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// ImageConfig 圖片配置
type ImageConfig struct {
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// 加載 .env 文件，不存在時只用環境變數與預設值
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	// 可選的 config.yaml
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// logger 尚未初始化，改用 fmt.Println
	fmt.Println("Loading configuration", "openrouter_api_key:", maskAPIKey(v.GetString("openrouter.api_key")), "openrouter_model:", v.GetString("openrouter.model"))

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Default 只含預設值的設定（測試用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// bindEnv 綁定不帶 APP_ 前綴的常用環境變數
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("openrouter.base_url", "OPENROUTER_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv("openrouter.model", "OPENROUTER_MODEL", "OPENAI_MODEL")
	_ = v.BindEnv("openrouter.vision_model", "OPENROUTER_VISION_MODEL")
	_ = v.BindEnv("openrouter.max_tokens", "MODEL_MAX_TOKENS")
	_ = v.BindEnv("analysis.policy_file", "ANALYSIS_POLICY_FILE")
	_ = v.BindEnv("analysis.llm_extraction", "LLM_EXTRACTION")
	_ = v.BindEnv("ocr.provider", "OCR_PROVIDER")
	_ = v.BindEnv("cache.enabled", "CACHE_ENABLED")
	_ = v.BindEnv("history.backend", "HISTORY_BACKEND")
	_ = v.BindEnv("history.postgres_dsn", "DATABASE_URL")
	_ = v.BindEnv("preferences.backend", "PREFERENCES_BACKEND")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	_ = v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	_ = v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	_ = v.BindEnv("dedup_window", "DEDUP_WINDOW")
	_ = v.BindEnv("log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.port", "PORT")
}

// maskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "menu-analyzer")

	// 伺服器設定
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.max_body_bytes", 12*1024*1024)
	v.SetDefault("server.allow_origins", []string{"*"})

	// OpenRouter 設定
	v.SetDefault("openrouter.enabled", false)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("openrouter.vision_model", "")
	v.SetDefault("openrouter.max_tokens", 1500)
	v.SetDefault("openrouter.temperature", 0.2)
	v.SetDefault("openrouter.timeout", "60s")
	v.SetDefault("openrouter.max_retries", 2)

	// 分析設定
	v.SetDefault("analysis.policy_file", "")
	v.SetDefault("analysis.llm_extraction", false)
	v.SetDefault("analysis.reject_blank_text", false)
	v.SetDefault("analysis.max_text_length", 20000)

	// 文字辨識設定
	v.SetDefault("ocr.provider", "vision")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.languages", "eng+chi_tra")
	v.SetDefault("ocr.timeout", "30s")

	// 快取設定
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_interval", "10m")

	// 分析紀錄設定
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.max_records", 500)
	v.SetDefault("history.workers", 2)
	v.SetDefault("history.queue_size", 100)

	// 偏好設定
	v.SetDefault("preferences.backend", "memory")

	// Redis
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "menu-analyzer:")

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", "1m")

	// 圖片設定
	v.SetDefault("image.max_size_bytes", 10*1024*1024) // 10MB

	v.SetDefault("dedup_window", "1s")
	v.SetDefault("log_level", "info")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	if config.Cache.Enabled {
		if config.Cache.MaxSize <= 0 {
			return fmt.Errorf("invalid cache max size")
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
		if config.Cache.CleanupInterval <= 0 {
			return fmt.Errorf("invalid cache cleanup interval")
		}
	}

	if config.Analysis.MaxTextLength < 0 {
		return fmt.Errorf("invalid analysis max text length")
	}

	switch config.OCR.Provider {
	case "vision", "tesseract", "none", "":
	default:
		return fmt.Errorf("unknown ocr provider %q", config.OCR.Provider)
	}

	if config.History.Enabled {
		switch config.History.Backend {
		case "memory", "redis":
		case "postgres":
			if config.History.PostgresDSN == "" {
				return fmt.Errorf("history postgres backend requires postgres_dsn")
			}
		default:
			return fmt.Errorf("unknown history backend %q", config.History.Backend)
		}
		if config.History.Workers <= 0 {
			return fmt.Errorf("invalid history workers")
		}
		if config.History.QueueSize <= 0 {
			return fmt.Errorf("invalid history queue size")
		}
	}

	switch config.Preferences.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown preferences backend %q", config.Preferences.Backend)
	}

	if config.RateLimit.Enabled && (config.RateLimit.Requests <= 0 || config.RateLimit.Window <= 0) {
		return fmt.Errorf("invalid rate limit")
	}

	return nil
}

// UseRedis 是否有元件需要 Redis
func (c *Config) UseRedis() bool {
	return (c.History.Enabled && c.History.Backend == "redis") || c.Preferences.Backend == "redis"
}

// VisionModelName 視覺模型，未設定時沿用文字模型
func (c *OpenRouterConfig) VisionModelName() string {
	if c.VisionModel != "" {
		return c.VisionModel
	}
	return c.Model
}
