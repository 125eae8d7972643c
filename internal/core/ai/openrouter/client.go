package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"menu-analyzer/internal/core/ai/provider"
	"menu-analyzer/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultBaseURL OpenRouter API
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// ErrEmptyResponse 模型回傳空內容
var ErrEmptyResponse = errors.New("empty content in AI response")

// Client OpenAI 相容的 chat completions 客戶端
type Client struct {
	http   *resty.Client
	config provider.Config
}

var _ provider.Provider = (*Client)(nil)

// chatResponse chat completions 響應
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage provider.Usage `json:"usage"`
}

// apiError API 錯誤響應
type apiError struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

// NewClient 創建新的客戶端
func NewClient(cfg provider.Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("HTTP-Referer", "https://github.com/menu-analyzer").
		SetHeader("X-Title", "Menu Analyzer").
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	return &Client{http: httpClient, config: cfg}
}

// Generate 呼叫 /chat/completions
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("request has no messages")
	}

	body := *req
	if body.Model == "" {
		body.Model = c.config.Model
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = c.config.MaxTokens
	}
	if body.Temperature == 0 {
		body.Temperature = c.config.Temperature
	}

	common.LogDebug("Sending request to AI service",
		zap.String("model", body.Model),
		zap.Int("messages", len(body.Messages)),
		zap.Bool("has_image", body.HasImage()),
	)

	var result chatResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&body).
		SetResult(&result).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = sanitizeResponse(resp.Body())
		}
		common.LogError("AI service returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("model", body.Model),
			zap.String("response", msg),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode(), Message: msg}
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("empty choices in response: %w", ErrEmptyResponse)
	}
	content := strings.TrimSpace(result.Choices[0].Message.Content)
	if content == "" {
		return nil, ErrEmptyResponse
	}

	model := result.Model
	if model == "" {
		model = body.Model
	}
	return &provider.Response{
		Content: content,
		Model:   model,
		Usage:   result.Usage,
	}, nil
}

// GetModel 獲取預設模型名稱
func (c *Client) GetModel() string {
	return c.config.Model
}

// GetTimeout 獲取請求超時時間
func (c *Client) GetTimeout() time.Duration {
	return c.config.Timeout
}

// Close 關閉客戶端
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

// StatusError 上游回傳非 2xx
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("AI service error (status %d): %s", e.StatusCode, e.Message)
}

var dataURLPattern = regexp.MustCompile(`data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]+`)

// sanitizeResponse 清理響應內容，移除圖片數據並截斷
func sanitizeResponse(body []byte) string {
	s := dataURLPattern.ReplaceAllString(string(body), "[IMAGE_DATA_REMOVED]")

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(s), &raw); err == nil {
		if compact, err := json.Marshal(raw); err == nil {
			s = string(compact)
		}
	}

	const maxLen = 500
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
