package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
	_ "github.com/lib/pq"
)

const batchSchemaSQL = `
CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	source_type TEXT NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	output_dir TEXT NOT NULL DEFAULT '',
	sources JSONB NOT NULL,
	pipeline JSONB NOT NULL,
	report JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_logs (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	batch_id TEXT NOT NULL,
	photos_processed BIGINT NOT NULL,
	pixels_processed BIGINT NOT NULL,
	bytes_saved BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresBatchStore struct {
	db *sql.DB
}

func NewPostgresBatchStore(ctx context.Context, dsn string) (*PostgresBatchStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresBatchStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresBatchStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, batchSchemaSQL); err != nil {
		return fmt.Errorf("ensure batches schema: %w", err)
	}
	return nil
}

func (s *PostgresBatchStore) Close() error {
	return s.db.Close()
}

func (s *PostgresBatchStore) Create(ctx context.Context, batch domain.Batch) error {
	sourcesJSON, err := json.Marshal(batch.Sources)
	if err != nil {
		return fmt.Errorf("marshal batch sources: %w", err)
	}
	pipelineJSON, err := json.Marshal(batch.Pipeline)
	if err != nil {
		return fmt.Errorf("marshal batch pipeline: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO batches (id, user_id, status, source_type, webhook_url, output_dir, sources, pipeline, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		batch.ID,
		batch.UserID,
		batch.Status,
		batch.SourceType,
		batch.WebhookURL,
		batch.OutputDir,
		sourcesJSON,
		pipelineJSON,
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	return nil
}

func (s *PostgresBatchStore) Get(ctx context.Context, id string) (domain.Batch, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, status, source_type, webhook_url, output_dir, sources, pipeline, created_at, updated_at
		 FROM batches
		 WHERE id = $1`,
		id,
	)

	var (
		batch        domain.Batch
		sourcesJSON  []byte
		pipelineJSON []byte
	)
	if err := row.Scan(
		&batch.ID,
		&batch.UserID,
		&batch.Status,
		&batch.SourceType,
		&batch.WebhookURL,
		&batch.OutputDir,
		&sourcesJSON,
		&pipelineJSON,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Batch{}, false, nil
		}
		return domain.Batch{}, false, fmt.Errorf("query batch: %w", err)
	}

	if err := json.Unmarshal(sourcesJSON, &batch.Sources); err != nil {
		return domain.Batch{}, false, fmt.Errorf("unmarshal batch sources: %w", err)
	}
	if err := json.Unmarshal(pipelineJSON, &batch.Pipeline); err != nil {
		return domain.Batch{}, false, fmt.Errorf("unmarshal batch pipeline: %w", err)
	}

	return batch, true, nil
}

func (s *PostgresBatchStore) UpdateStatus(ctx context.Context, id, status string) (domain.Batch, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE batches
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		now,
		id,
	)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("update batch status: %w", err)
	}

	batch, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Batch{}, err
	}
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}

	return batch, nil
}

func (s *PostgresBatchStore) SaveReport(ctx context.Context, id string, report domain.BatchReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal batch report: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE batches
		 SET report = $1, updated_at = $2
		 WHERE id = $3`,
		reportJSON,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("save batch report: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (s *PostgresBatchStore) RecordUsage(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (user_id, batch_id, photos_processed, pixels_processed, bytes_saved, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		usage.UserID,
		usage.BatchID,
		usage.PhotosProcessed,
		usage.PixelsProcessed,
		usage.BytesSaved,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}
