package repository

import (
	"context"

	"comove/internal/domain/models"
)

// ReportCache stores completed reports by parameter key and by run id.
type ReportCache interface {
	Get(ctx context.Context, key string) (*models.AnalysisReport, error)
	Set(ctx context.Context, key string, r *models.AnalysisReport) error
}

// ReportPurger is implemented by caches that can drop every stored report.
type ReportPurger interface {
	Purge(ctx context.Context) error
}

type ReportPublisher interface {
	PublishReport(ctx context.Context, r *models.AnalysisReport) error
	Close() error
}

type ReportNotifier interface {
	NotifyReport(s models.ReportSummary)
}

type Metrics interface {
	RecordRun(primary, status string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordMissingWindows(primary, label string, n int)
	RecordEntropy(primary string, h float64)
}
