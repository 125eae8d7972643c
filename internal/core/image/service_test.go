package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"menu-analyzer/internal/pkg/common"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestValidate(t *testing.T) {
	svc := NewService(1 << 20)
	img, err := svc.Validate(pngBytes(t), "image/png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Format != "png" || img.Width != 4 || img.Height != 3 {
		t.Fatalf("unexpected image: %+v", img)
	}
	if !strings.HasPrefix(img.DataURL(), "data:image/png;base64,") {
		t.Fatalf("unexpected data url prefix")
	}
}

func TestValidateErrors(t *testing.T) {
	svc := NewService(64)
	tests := []struct {
		name        string
		data        []byte
		contentType string
		want        *common.CustomError
	}{
		{"empty", nil, "image/png", common.ErrInvalidImageFormat},
		{"too large", bytes.Repeat([]byte{1}, 65), "image/png", common.ErrInvalidImageSize},
		{"not an image type", []byte("hello"), "text/plain", common.ErrInvalidImageType},
		{"undecodable", []byte("definitely not a png"), "image/png", common.ErrInvalidImageFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.data, tt.contentType)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %s, got %v", tt.want.Code, err)
			}
		})
	}
}
