package cache

import (
	"context"
	"time"

	"billstock/backend/internal/domain"
)

// ReportCache holds rendered period reports so repeated dashboard polls do
// not re-aggregate the sales and purchases tables.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.PeriodReport, bool, error)
	Set(ctx context.Context, key string, value *domain.PeriodReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.PeriodReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.PeriodReport, _ time.Duration) error {
	return nil
}
