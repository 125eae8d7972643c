package menu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"menu-analyzer/internal/core/image"
	"menu-analyzer/internal/pkg/common"

	"go.uber.org/zap"
)

var (
	// ErrOCRUnavailable 沒有可用的文字辨識提供者
	ErrOCRUnavailable = errors.New("no ocr provider configured")
	// ErrOCRFailed 文字辨識失敗
	ErrOCRFailed = errors.New("ocr failed")
	// ErrImageNotReceived 視覺模型回覆看不到圖片
	ErrImageNotReceived = errors.New("model did not receive image data, check the vision model")
)

// OCRProvider 從圖片取出菜單文字
type OCRProvider interface {
	Name() string
	Recognize(ctx context.Context, img *image.Image) (string, error)
}

const visionPrompt = `Read the menu or food photo.
List every dish, one per line, in the form "Dish name: ingredient, ingredient".
If the photo shows a printed menu, transcribe the dish names and any listed ingredients as written.
If it shows food, name the dishes and their visible or typical ingredients.
Return plain text only.`

// VisionOCR 使用 OpenAI 相容的視覺模型辨識
type VisionOCR struct {
	ai Completer
}

// NewVisionOCR 創建視覺模型辨識
func NewVisionOCR(ai Completer) *VisionOCR {
	return &VisionOCR{ai: ai}
}

// Name 提供者名稱
func (v *VisionOCR) Name() string { return "vision" }

// Recognize 將圖片送給視覺模型取得菜單文字
func (v *VisionOCR) Recognize(ctx context.Context, img *image.Image) (string, error) {
	if v.ai == nil || !v.ai.Enabled() {
		return "", ErrOCRUnavailable
	}

	resp, err := v.ai.ProcessRequest(ctx, visionPrompt, img.DataURL())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOCRFailed, err)
	}
	if looksLikeMissingImage(resp.Content) {
		common.LogWarn("Vision model replied without seeing the image", zap.String("model", resp.Model))
		return "", fmt.Errorf("%w: %v", ErrOCRFailed, ErrImageNotReceived)
	}
	return strings.TrimSpace(resp.Content), nil
}

var missingImageMarkers = []string{
	"don't see an image",
	"do not see an image",
	"can't see the image",
	"cannot see the image",
	"unable to see the image",
	"please upload the image",
	"no image provided",
	"no image was provided",
}

func looksLikeMissingImage(text string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(text), "’", "'")
	for _, marker := range missingImageMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// TesseractOCR 呼叫本機 tesseract 執行檔
type TesseractOCR struct {
	path      string
	languages string
	timeout   time.Duration
}

// NewTesseractOCR 創建 tesseract 辨識；path 為空時從 PATH 尋找
func NewTesseractOCR(path, languages string, timeout time.Duration) *TesseractOCR {
	if path == "" {
		path = "tesseract"
	}
	if languages == "" {
		languages = "eng"
	}
	return &TesseractOCR{path: path, languages: languages, timeout: timeout}
}

// Name 提供者名稱
func (t *TesseractOCR) Name() string { return "tesseract" }

// Available 檢查執行檔是否存在
func (t *TesseractOCR) Available() bool {
	_, err := exec.LookPath(t.path)
	return err == nil
}

// Recognize 以 stdin 傳入圖片，從 stdout 讀取文字
func (t *TesseractOCR) Recognize(ctx context.Context, img *image.Image) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.path, "stdin", "stdout", "-l", t.languages)
	cmd.Stdin = bytes.NewReader(img.Data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", ErrOCRUnavailable, err)
		}
		return "", fmt.Errorf("%w: tesseract: %v: %s", ErrOCRFailed, err, strings.TrimSpace(stderr.String()))
	}

	common.LogDebug("Tesseract finished",
		zap.String("languages", t.languages),
		zap.Int("bytes", stdout.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return strings.TrimSpace(stdout.String()), nil
}
