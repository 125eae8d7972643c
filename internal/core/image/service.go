package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"net/http"
	"strings"

	_ "image/gif"  // 支援 GIF
	_ "image/jpeg" // 支援 JPEG
	_ "image/png"  // 支援 PNG

	"menu-analyzer/internal/pkg/common"

	_ "golang.org/x/image/webp" // 支援 WebP
)

// Image 驗證過的上傳圖片
type Image struct {
	Data     []byte
	MimeType string
	Format   string
	Width    int
	Height   int
}

// DataURL 轉為 data URL 供視覺模型使用
func (img *Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data))
}

// Service 圖片處理服務
type Service struct {
	maxSizeBytes int64
}

// NewService 創建新的圖片處理服務
func NewService(maxSizeBytes int64) *Service {
	return &Service{maxSizeBytes: maxSizeBytes}
}

// Validate 驗證上傳的圖片：非空、大小、宣告的類型、實際可解碼的格式
func (s *Service) Validate(data []byte, contentType string) (*Image, error) {
	if len(data) == 0 {
		return nil, common.ErrInvalidImageFormat.WithMessage("圖片內容為空")
	}
	if s.maxSizeBytes > 0 && int64(len(data)) > s.maxSizeBytes {
		return nil, common.ErrInvalidImageSize
	}

	declared := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if declared != "" && declared != "application/octet-stream" && !strings.HasPrefix(declared, "image/") {
		return nil, common.ErrInvalidImageType
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, common.ErrInvalidImageFormat.Wrap(err)
	}
	if !isSupportedFormat(format) {
		return nil, common.ErrInvalidImageType.Wrap(fmt.Errorf("unsupported image format: %s", format))
	}

	mimeType := "image/" + format
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		mimeType = sniffed
	}

	return &Image{
		Data:     data,
		MimeType: mimeType,
		Format:   format,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// isSupportedFormat 檢查圖片格式是否支援
func isSupportedFormat(format string) bool {
	supportedFormats := map[string]bool{
		"jpeg": true,
		"png":  true,
		"gif":  true,
		"webp": true,
	}
	return supportedFormats[format]
}
