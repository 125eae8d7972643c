package history

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"menu-analyzer/internal/pkg/common"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQueueFull 寫入隊列已滿
var ErrQueueFull = errors.New("history queue is full")

// ErrWriterClosed 寫入器已關閉
var ErrWriterClosed = errors.New("history writer is closed")

// Status 隊列狀態
type Status struct {
	QueueLength    int   `json:"queue_length"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
	ProcessedCount int64 `json:"processed_count"`
	FailedCount    int64 `json:"failed_count"`
	DroppedCount   int64 `json:"dropped_count"`
}

// Writer 在分析完成後以背景 worker 寫入紀錄，不阻塞請求
type Writer struct {
	store     Store
	queue     chan *Record
	workers   int
	timeout   time.Duration
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	processed int64
	failed    int64
	dropped   int64
}

// NewWriter 創建寫入器並啟動 worker
func NewWriter(store Store, workers, queueSize int) *Writer {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	w := &Writer{
		store:   store,
		queue:   make(chan *Record, queueSize),
		workers: workers,
		timeout: 5 * time.Second,
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.run(i)
	}

	common.LogInfo("History writer started",
		zap.Int("workers", workers),
		zap.Int("max_queue_size", queueSize),
	)
	return w
}

// NewRecord 建立一筆新紀錄並指派 ID 與時間
func NewRecord(source, text, imageURI string) *Record {
	return &Record{
		ID:        uuid.New().String(),
		ImageURI:  imageURI,
		Text:      text,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// Enqueue 將紀錄加入隊列；隊列滿時立即回傳 ErrQueueFull
func (w *Writer) Enqueue(rec *Record) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrWriterClosed
	}

	select {
	case w.queue <- rec:
		return nil
	default:
		atomic.AddInt64(&w.dropped, 1)
		common.LogWarn("History queue full, dropping record",
			zap.String("id", rec.ID),
			zap.Int("max_queue_size", cap(w.queue)),
		)
		return ErrQueueFull
	}
}

func (w *Writer) run(worker int) {
	defer w.wg.Done()
	for rec := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := w.store.Save(ctx, rec)
		cancel()

		if err != nil {
			atomic.AddInt64(&w.failed, 1)
			common.LogError("Failed to save history record",
				zap.Int("worker", worker),
				zap.String("id", rec.ID),
				zap.Error(err),
			)
			continue
		}
		atomic.AddInt64(&w.processed, 1)
		common.LogDebug("History record saved",
			zap.Int("worker", worker),
			zap.String("id", rec.ID),
		)
	}
}

// GetQueueStatus 獲取隊列狀態
func (w *Writer) GetQueueStatus() Status {
	return Status{
		QueueLength:    len(w.queue),
		MaxQueueSize:   cap(w.queue),
		Workers:        w.workers,
		ProcessedCount: atomic.LoadInt64(&w.processed),
		FailedCount:    atomic.LoadInt64(&w.failed),
		DroppedCount:   atomic.LoadInt64(&w.dropped),
	}
}

// Close 停止接收新紀錄，等待隊列中的紀錄寫完或 ctx 結束
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
