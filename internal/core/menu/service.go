package menu

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"menu-analyzer/internal/core/analysis"
	"menu-analyzer/internal/core/history"
	"menu-analyzer/internal/core/image"
	"menu-analyzer/internal/pkg/common"

	"go.uber.org/zap"
)

// Options 菜單服務設定
type Options struct {
	LLMExtraction   bool
	RejectBlankText bool
	MaxTextLength   int
}

// Result 一次分析的結果與紀錄 ID（未寫入紀錄時為空）
type Result struct {
	Analysis  *analysis.AnalysisResult
	HistoryID string
	Text      string
}

// Service 菜單分析服務：文字或圖片 → 菜單項目 → 風險分析 → 紀錄
type Service struct {
	opts      Options
	engine    *analysis.Engine
	images    *image.Service
	extractor *Extractor
	ocr       OCRProvider
	history   *history.Writer
}

// NewService 創建菜單分析服務；extractor、ocr、writer 皆可為 nil
func NewService(opts Options, engine *analysis.Engine, images *image.Service, extractor *Extractor, ocr OCRProvider, writer *history.Writer) *Service {
	if engine == nil {
		engine = analysis.NewEngine(nil)
	}
	if images == nil {
		images = image.NewService(0)
	}
	return &Service{
		opts:      opts,
		engine:    engine,
		images:    images,
		extractor: extractor,
		ocr:       ocr,
		history:   writer,
	}
}

// OCRName 目前使用的文字辨識提供者，沒有時為 "none"
func (s *Service) OCRName() string {
	if s.ocr == nil {
		return "none"
	}
	return s.ocr.Name()
}

// AnalyzeText 分析菜單文字
func (s *Service) AnalyzeText(ctx context.Context, text string, prefs analysis.UserPreferences) (*Result, error) {
	if strings.TrimSpace(text) == "" && s.opts.RejectBlankText {
		return nil, common.ErrEmptyText
	}
	if s.opts.MaxTextLength > 0 && utf8.RuneCountInString(text) > s.opts.MaxTextLength {
		return nil, common.ErrTextTooLong
	}
	return s.analyze(ctx, history.SourceText, text, "", prefs)
}

// AnalyzeImage 驗證圖片、辨識文字後分析
func (s *Service) AnalyzeImage(ctx context.Context, data []byte, contentType string, prefs analysis.UserPreferences) (*Result, error) {
	img, err := s.images.Validate(data, contentType)
	if err != nil {
		return nil, err
	}
	if s.ocr == nil {
		return nil, common.ErrOCRUnavailable.Wrap(ErrOCRUnavailable)
	}

	start := time.Now()
	text, err := s.ocr.Recognize(ctx, img)
	if err != nil {
		common.LogError("OCR failed",
			zap.String("provider", s.ocr.Name()),
			zap.String("request_id", common.RequestIDFromContext(ctx)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		if errors.Is(err, ErrOCRUnavailable) {
			return nil, common.ErrOCRUnavailable.Wrap(err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, common.ErrGatewayTimeout.Wrap(err)
		}
		return nil, common.ErrTransportFailure.Wrap(err)
	}
	common.LogInfo("OCR finished",
		zap.String("provider", s.ocr.Name()),
		zap.String("format", img.Format),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.Int("text_length", len(text)),
		zap.Duration("duration", time.Since(start)),
	)

	if s.opts.MaxTextLength > 0 && utf8.RuneCountInString(text) > s.opts.MaxTextLength {
		text = truncateRunes(text, s.opts.MaxTextLength)
	}
	return s.analyze(ctx, history.SourceImage, text, imageURI(img), prefs)
}

func (s *Service) analyze(ctx context.Context, source, text, imageURI string, prefs analysis.UserPreferences) (*Result, error) {
	start := time.Now()

	result, err := s.run(ctx, text, prefs)
	if err != nil {
		return nil, err
	}

	out := &Result{Analysis: result, Text: text}
	if s.history != nil {
		rec := history.NewRecord(source, text, imageURI)
		rec.Preferences = prefs
		rec.Result = result
		if err := s.history.Enqueue(rec); err == nil {
			out.HistoryID = rec.ID
		}
	}

	common.LogAnalysis(common.RequestIDFromContext(ctx), source,
		len(result.MenuItems), len(result.Hits), string(result.RiskLevel), time.Since(start))
	return out, nil
}

// run 先嘗試模型抽取，失敗時退回規則切分
func (s *Service) run(ctx context.Context, text string, prefs analysis.UserPreferences) (*analysis.AnalysisResult, error) {
	if s.opts.LLMExtraction && s.extractor.Enabled() && strings.TrimSpace(text) != "" {
		if !utf8.ValidString(text) || strings.ContainsRune(text, 0) {
			return nil, common.ErrInvalidInput.Wrap(analysis.ErrInvalidInput)
		}
		items, err := s.extractor.Extract(ctx, text)
		if err == nil {
			return s.engine.AnalyzeItems(items, prefs), nil
		}
		common.LogWarn("LLM extraction failed, falling back to segmenter",
			zap.String("request_id", common.RequestIDFromContext(ctx)),
			zap.Error(err),
		)
	}

	result, err := s.engine.Analyze(text, prefs)
	if errors.Is(err, analysis.ErrInvalidInput) {
		return nil, common.ErrInvalidInput.Wrap(err)
	}
	return result, err
}

// imageURI 圖片不落地，以內容雜湊標識
func imageURI(img *image.Image) string {
	sum := sha256.Sum256(img.Data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
