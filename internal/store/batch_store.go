package store

import (
	"context"

	"github.com/dunamismax/photoflow/internal/domain"
)

type BatchStore interface {
	Create(ctx context.Context, batch domain.Batch) error
	Get(ctx context.Context, id string) (domain.Batch, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Batch, error)
	SaveReport(ctx context.Context, id string, report domain.BatchReport) error
	RecordUsage(ctx context.Context, usage domain.UsageLog) error
}
