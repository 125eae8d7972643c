package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"menu-analyzer/internal/core/analysis"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaSQL = []string{`
	CREATE TABLE IF NOT EXISTS analysis_history (
		id UUID PRIMARY KEY,
		image_uri TEXT NOT NULL DEFAULT '',
		ocr_text TEXT NOT NULL,
		source VARCHAR(16) NOT NULL,
		preferences JSONB NOT NULL,
		analysis JSONB NOT NULL,
		risk_level VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, `
	CREATE INDEX IF NOT EXISTS analysis_history_created_at_idx
		ON analysis_history (created_at DESC, id DESC)`,
}

// PostgresStore 以 PostgreSQL 儲存紀錄
type PostgresStore struct {
	db         *pgxpool.Pool
	maxRecords int
}

// ConnectPostgres 建立連線池並初始化資料表
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	for _, stmt := range schemaSQL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return pool, nil
}

// NewPostgresStore 創建 PostgreSQL 儲存；Close 會關閉連線池
func NewPostgresStore(db *pgxpool.Pool, maxRecords int) *PostgresStore {
	return &PostgresStore{db: db, maxRecords: maxRecords}
}

// Save 儲存紀錄；相同 ID 會覆寫
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	prefs, err := json.Marshal(rec.Preferences)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	riskLevel := string(analysis.RiskLow)
	if rec.Result != nil {
		riskLevel = string(rec.Result.RiskLevel)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO analysis_history (id, image_uri, ocr_text, source, preferences, analysis, risk_level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			image_uri = EXCLUDED.image_uri,
			ocr_text = EXCLUDED.ocr_text,
			source = EXCLUDED.source,
			preferences = EXCLUDED.preferences,
			analysis = EXCLUDED.analysis,
			risk_level = EXCLUDED.risk_level
	`, rec.ID, rec.ImageURI, rec.Text, rec.Source, prefs, result, riskLevel, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	if s.maxRecords > 0 {
		_, err = s.db.Exec(ctx, `
			DELETE FROM analysis_history
			WHERE id IN (
				SELECT id FROM analysis_history
				ORDER BY created_at DESC, id DESC
				OFFSET $1
			)
		`, s.maxRecords)
		if err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}
	return nil
}

const selectColumns = `SELECT id::text, image_uri, ocr_text, source, preferences, analysis, created_at FROM analysis_history`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var prefs, result []byte
	if err := row.Scan(&rec.ID, &rec.ImageURI, &rec.Text, &rec.Source, &prefs, &result, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(prefs, &rec.Preferences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
	}
	if err := json.Unmarshal(result, &rec.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	return &rec, nil
}

// Get 取得紀錄
func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx, selectColumns+` WHERE id::text = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// List 由新到舊列出紀錄
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	if offset < 0 {
		offset = 0
	}
	query := selectColumns + ` ORDER BY created_at DESC, id DESC OFFSET $1`
	args := []interface{}{offset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	out := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete 刪除紀錄
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM analysis_history WHERE id::text = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping 檢查資料庫連線
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close 關閉連線池
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
