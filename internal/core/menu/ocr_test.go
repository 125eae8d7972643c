package menu

import (
	"context"
	"errors"
	"testing"
	"time"

	"menu-analyzer/internal/core/image"
)

func TestLooksLikeMissingImage(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"I don’t see an image attached.", true},
		{"Sorry, I CANNOT SEE THE IMAGE", true},
		{"No image was provided in your message.", true},
		{"Pad Thai: rice noodles, peanuts", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikeMissingImage(tt.text); got != tt.want {
			t.Fatalf("looksLikeMissingImage(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestVisionOCR(t *testing.T) {
	img := &image.Image{Data: []byte{1, 2, 3}, MimeType: "image/png", Format: "png"}

	fc := &fakeCompleter{reply: "  Pho: beef, rice noodles\n"}
	text, err := NewVisionOCR(fc).Recognize(context.Background(), img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Pho: beef, rice noodles" {
		t.Fatalf("unexpected text %q", text)
	}
	if fc.imageURL != "data:image/png;base64,AQID" {
		t.Fatalf("unexpected image url %q", fc.imageURL)
	}

	missing := &fakeCompleter{reply: "I don't see an image in your message."}
	_, err = NewVisionOCR(missing).Recognize(context.Background(), img)
	if !errors.Is(err, ErrOCRFailed) || !errors.Is(err, ErrImageNotReceived) {
		t.Fatalf("expected image-not-received failure, got %v", err)
	}

	failing := &fakeCompleter{err: errors.New("status 500")}
	if _, err := NewVisionOCR(failing).Recognize(context.Background(), img); !errors.Is(err, ErrOCRFailed) {
		t.Fatalf("expected ErrOCRFailed, got %v", err)
	}

	if _, err := NewVisionOCR(nil).Recognize(context.Background(), img); !errors.Is(err, ErrOCRUnavailable) {
		t.Fatalf("expected ErrOCRUnavailable, got %v", err)
	}
}

func TestTesseractMissingBinary(t *testing.T) {
	ocr := NewTesseractOCR("tesseract-binary-that-does-not-exist", "", time.Second)
	if ocr.Available() {
		t.Fatalf("binary should not be available")
	}
	_, err := ocr.Recognize(context.Background(), &image.Image{Data: []byte{0}})
	if !errors.Is(err, ErrOCRUnavailable) {
		t.Fatalf("expected ErrOCRUnavailable, got %v", err)
	}
}
