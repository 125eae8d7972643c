package menu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	goimage "image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"menu-analyzer/internal/core/analysis"
	"menu-analyzer/internal/core/history"
	"menu-analyzer/internal/core/image"
	"menu-analyzer/internal/pkg/common"
)

type fakeOCR struct {
	text string
	err  error
	got  *image.Image
}

func (f *fakeOCR) Name() string { return "fake" }

func (f *fakeOCR) Recognize(ctx context.Context, img *image.Image) (string, error) {
	f.got = img
	return f.text, f.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := goimage.NewRGBA(goimage.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func peanutPrefs() analysis.UserPreferences {
	return analysis.NewPreferences([]string{"peanut"}, nil, nil)
}

func TestAnalyzeTextSegments(t *testing.T) {
	svc := NewService(Options{}, nil, nil, nil, nil, nil)

	res, err := svc.AnalyzeText(context.Background(), "Pad Thai: rice noodles, peanuts\nGreen Salad: lettuce", peanutPrefs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Analysis.RiskLevel != analysis.RiskHigh {
		t.Fatalf("expected HIGH, got %s", res.Analysis.RiskLevel)
	}
	if len(res.Analysis.MenuItems) != 2 {
		t.Fatalf("expected 2 items, got %+v", res.Analysis.MenuItems)
	}
	if res.HistoryID != "" {
		t.Fatalf("history id should be empty without a writer")
	}
}

func TestAnalyzeTextLimits(t *testing.T) {
	ctx := context.Background()

	strict := NewService(Options{RejectBlankText: true, MaxTextLength: 5}, nil, nil, nil, nil, nil)
	if _, err := strict.AnalyzeText(ctx, "  \n", analysis.UserPreferences{}); !errors.Is(err, common.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if _, err := strict.AnalyzeText(ctx, "abcdef", analysis.UserPreferences{}); !errors.Is(err, common.ErrTextTooLong) {
		t.Fatalf("expected ErrTextTooLong, got %v", err)
	}
	// 以字元計算長度
	if _, err := strict.AnalyzeText(ctx, "宮保雞丁", analysis.UserPreferences{}); err != nil {
		t.Fatalf("four runes should fit, got %v", err)
	}

	lenient := NewService(Options{}, nil, nil, nil, nil, nil)
	res, err := lenient.AnalyzeText(ctx, "   ", analysis.UserPreferences{})
	if err != nil {
		t.Fatalf("blank text should be accepted, got %v", err)
	}
	if res.Analysis.RiskLevel != analysis.RiskLow || len(res.Analysis.MenuItems) != 0 {
		t.Fatalf("expected empty LOW result, got %+v", res.Analysis)
	}

	if _, err := lenient.AnalyzeText(ctx, "bad\x00bytes", analysis.UserPreferences{}); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := lenient.AnalyzeText(ctx, "bad\x00bytes", analysis.UserPreferences{}); !errors.Is(err, analysis.ErrInvalidInput) {
		t.Fatalf("engine sentinel should stay in the chain, got %v", err)
	}
}

func TestAnalyzeTextUsesExtractor(t *testing.T) {
	fc := &fakeCompleter{reply: `{"menu_items":[{"name":"Chef Special","ingredients":["peanut oil"]}]}`}
	svc := NewService(Options{LLMExtraction: true}, nil, nil, NewExtractor(fc), nil, nil)

	res, err := svc.AnalyzeText(context.Background(), "chef special of the day", peanutPrefs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Analysis.MenuItems) != 1 || res.Analysis.MenuItems[0].Name != "Chef Special" {
		t.Fatalf("expected extracted items, got %+v", res.Analysis.MenuItems)
	}
	if res.Analysis.RiskLevel != analysis.RiskHigh {
		t.Fatalf("expected HIGH, got %s", res.Analysis.RiskLevel)
	}
}

func TestAnalyzeTextExtractorFallback(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("upstream down")}
	svc := NewService(Options{LLMExtraction: true}, nil, nil, NewExtractor(fc), nil, nil)

	res, err := svc.AnalyzeText(context.Background(), "Satay: chicken, peanut sauce", peanutPrefs())
	if err != nil {
		t.Fatalf("fallback should not fail, got %v", err)
	}
	if len(res.Analysis.MenuItems) != 1 || res.Analysis.MenuItems[0].Name != "Satay" {
		t.Fatalf("expected segmenter items, got %+v", res.Analysis.MenuItems)
	}
}

func TestAnalyzeTextWritesHistory(t *testing.T) {
	store := history.NewMemoryStore(10)
	writer := history.NewWriter(store, 1, 4)
	svc := NewService(Options{}, nil, nil, nil, nil, writer)

	res, err := svc.AnalyzeText(context.Background(), "Pad Thai: peanuts", peanutPrefs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.HistoryID == "" {
		t.Fatalf("expected a history id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := writer.Close(ctx); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	rec, err := store.Get(context.Background(), res.HistoryID)
	if err != nil {
		t.Fatalf("record not saved: %v", err)
	}
	if rec.Source != history.SourceText || rec.Text != "Pad Thai: peanuts" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Result.RiskLevel != analysis.RiskHigh || len(rec.Preferences.Allergies) != 1 {
		t.Fatalf("record should carry result and preferences, got %+v", rec)
	}
}

func TestAnalyzeImage(t *testing.T) {
	ocr := &fakeOCR{text: "Pad Thai: rice noodles, peanuts"}
	store := history.NewMemoryStore(10)
	writer := history.NewWriter(store, 1, 4)
	svc := NewService(Options{}, nil, image.NewService(1<<20), nil, ocr, writer)

	res, err := svc.AnalyzeImage(context.Background(), pngBytes(t), "image/png", peanutPrefs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ocr.got == nil || ocr.got.Format != "png" {
		t.Fatalf("ocr should receive the validated image")
	}
	if res.Analysis.RiskLevel != analysis.RiskHigh || res.Text != ocr.text {
		t.Fatalf("unexpected result %+v", res)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = writer.Close(ctx)
	rec, err := store.Get(context.Background(), res.HistoryID)
	if err != nil {
		t.Fatalf("record not saved: %v", err)
	}
	if rec.Source != history.SourceImage || !strings.HasPrefix(rec.ImageURI, "sha256:") {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestAnalyzeImageErrors(t *testing.T) {
	ctx := context.Background()
	data := pngBytes(t)

	tests := []struct {
		name string
		ocr  OCRProvider
		data []byte
		mime string
		want *common.CustomError
	}{
		{"no provider", nil, data, "image/png", common.ErrOCRUnavailable},
		{"not an image", &fakeOCR{}, []byte("plain text"), "image/png", common.ErrInvalidImageFormat},
		{"wrong type", &fakeOCR{}, data, "text/plain", common.ErrInvalidImageType},
		{"empty", &fakeOCR{}, nil, "image/png", common.ErrInvalidImageFormat},
		{"ocr failure", &fakeOCR{err: fmt.Errorf("%w: boom", ErrOCRFailed)}, data, "image/png", common.ErrTransportFailure},
		{"ocr missing binary", &fakeOCR{err: fmt.Errorf("%w: not found", ErrOCRUnavailable)}, data, "image/png", common.ErrOCRUnavailable},
		{"ocr timeout", &fakeOCR{err: context.DeadlineExceeded}, data, "image/png", common.ErrGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(Options{}, nil, image.NewService(1<<20), nil, tt.ocr, nil)
			_, err := svc.AnalyzeImage(ctx, tt.data, tt.mime, analysis.UserPreferences{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %s, got %v", tt.want.Code, err)
			}
		})
	}
}

func TestAnalyzeImageTruncatesLongText(t *testing.T) {
	ocr := &fakeOCR{text: strings.Repeat("a", 50)}
	svc := NewService(Options{MaxTextLength: 10}, nil, nil, nil, ocr, nil)

	res, err := svc.AnalyzeImage(context.Background(), pngBytes(t), "image/png", analysis.UserPreferences{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Text) != 10 {
		t.Fatalf("expected text truncated to 10 runes, got %d", len(res.Text))
	}
}

func TestOCRName(t *testing.T) {
	if got := NewService(Options{}, nil, nil, nil, nil, nil).OCRName(); got != "none" {
		t.Fatalf("expected none, got %s", got)
	}
	if got := NewService(Options{}, nil, nil, nil, &fakeOCR{}, nil).OCRName(); got != "fake" {
		t.Fatalf("expected fake, got %s", got)
	}
}
