package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"menu-analyzer/internal/core/ai/cache"
	"menu-analyzer/internal/core/ai/provider"
	"menu-analyzer/internal/pkg/common"
)

// ErrDisabled 沒有設定 AI 提供者
var ErrDisabled = errors.New("ai service is not configured")

// Service AI 服務：快取 + 提供者
type Service struct {
	provider    provider.Provider
	cache       *cache.CacheManager
	textModel   string
	visionModel string
}

// NewService 創建 AI 服務；p 為 nil 時所有呼叫回傳 ErrDisabled
func NewService(p provider.Provider, cacheManager *cache.CacheManager, textModel, visionModel string) *Service {
	if visionModel == "" {
		visionModel = textModel
	}
	return &Service{
		provider:    p,
		cache:       cacheManager,
		textModel:   textModel,
		visionModel: visionModel,
	}
}

// Enabled 是否可呼叫模型
func (s *Service) Enabled() bool {
	return s != nil && s.provider != nil
}

// ProcessRequest 送出單輪對話；imageURL 非空時使用視覺模型
func (s *Service) ProcessRequest(ctx context.Context, prompt, imageURL string) (*provider.Response, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}

	model := s.textModel
	if imageURL != "" {
		model = s.visionModel
	}

	// 統一 prompt 空白，確保快取 key 一致
	key := cache.Key(model, strings.Join(strings.Fields(prompt), " "), imageURL)
	if val, ok := s.cache.Get(key); ok {
		return &provider.Response{Content: val, Model: model, CacheHit: true}, nil
	}

	start := time.Now()
	resp, err := s.provider.Generate(ctx, &provider.Request{
		Model:    model,
		Messages: []common.ChatMessage{common.UserMessage(prompt, imageURL)},
	})
	common.LogAICall(model, time.Since(start), err, common.RequestIDFromContext(ctx))
	if err != nil {
		return nil, err
	}

	_ = s.cache.Set(key, resp.Content)
	return resp, nil
}

// CacheStats 快取統計
func (s *Service) CacheStats() cache.Stats {
	if s == nil {
		return cache.Stats{}
	}
	return s.cache.GetStats()
}

// Close 關閉提供者與快取
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.provider != nil {
		errs = append(errs, s.provider.Close())
	}
	errs = append(errs, s.cache.Close())
	return errors.Join(errs...)
}
