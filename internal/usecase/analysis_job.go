package usecase

import (
	"context"
	"time"

	domrepo "comove/internal/domain/repository"
	"comove/internal/services/smoothing"
	"comove/pkg/logger"
	"comove/pkg/queue"
)

// AnalysisJobType routes queued analysis requests.
const AnalysisJobType = "analysis.request"

// AnalysisJob runs analysis requests taken off the Redis queue. Reports
// reach clients through the use case's cache, publisher and notifier.
type AnalysisJob struct {
	uc        *AnalysisUseCase
	smoothing smoothing.Params
	metrics   domrepo.Metrics
	log       *logger.Logger
}

func NewAnalysisJob(uc *AnalysisUseCase, base smoothing.Params, metrics domrepo.Metrics, log *logger.Logger) *AnalysisJob {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AnalysisJob{uc: uc, smoothing: base, metrics: metrics, log: log}
}

func (j *AnalysisJob) Name() string { return "analysis" }
func (j *AnalysisJob) Type() string { return AnalysisJobType }

func (j *AnalysisJob) Handle(ctx context.Context, payload []byte) error {
	start := time.Now()
	p, err := decodeRequest(ctx, payload, j.smoothing, j.metrics, "queue")
	if err != nil {
		return queue.Permanent(err)
	}
	r, err := j.uc.Run(ctx, p)
	j.metrics.RecordLatency("queue_analysis_seconds", time.Since(start).Seconds())
	if err != nil {
		if !retryable(err) {
			return queue.Permanent(err)
		}
		return err
	}
	j.log.Info("queued analysis handled",
		logger.String("id", r.ID),
		logger.String("primary", r.Primary),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

var _ queue.Job = (*AnalysisJob)(nil)
