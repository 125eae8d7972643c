package history

import (
	"context"
	"errors"
	"time"

	"menu-analyzer/internal/core/analysis"
)

// ErrNotFound 紀錄不存在
var ErrNotFound = errors.New("history record not found")

// Source 分析來源
const (
	SourceText  = "text"
	SourceImage = "image"
)

// Record 一次分析的紀錄
type Record struct {
	ID          string                   `json:"id"`
	ImageURI    string                   `json:"image_uri,omitempty"`
	Text        string                   `json:"ocr_text"`
	Source      string                   `json:"source"`
	Preferences analysis.UserPreferences `json:"preferences"`
	Result      *analysis.AnalysisResult `json:"analysis"`
	CreatedAt   time.Time                `json:"created_at"`
}

// Store 分析紀錄儲存；List 一律由新到舊
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit, offset int) ([]*Record, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// newer 排序用：時間較新者在前，同時間依 ID
func newer(a, b *Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
