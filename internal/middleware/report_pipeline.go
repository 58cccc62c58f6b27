package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
	"comove/internal/service/ratelimit"
)

// ReportPipeline sits between the analysis use case and the report
// publisher. It validates and throttles reports, and buffers them while the
// downstream publisher is unavailable.
type ReportPipeline struct {
	next    domrepo.ReportPublisher
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan *models.AnalysisReport
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
	limits  *ratelimit.Limiter // token bucket per primary, nil when unthrottled

	transform func(*models.AnalysisReport) *models.AnalysisReport
}

type PipelineOption func(*ReportPipeline)

// WithMaxRPS caps the reports per second forwarded for one primary. A
// burst of n reports is accepted at once. Zero disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *ReportPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many reports are held while downstream fails.
func WithBufferSize(n int) PipelineOption {
	return func(p *ReportPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform rewrites reports before they are forwarded.
func WithTransform(fn func(*models.AnalysisReport) *models.AnalysisReport) PipelineOption {
	return func(p *ReportPipeline) { p.transform = fn }
}

// WithoutDistances drops the windowed DTW traces, which dominate the
// encoded size of a report.
func WithoutDistances() PipelineOption {
	return WithTransform(func(r *models.AnalysisReport) *models.AnalysisReport {
		if len(r.Distances) == 0 {
			return r
		}
		out := *r
		out.Distances = nil
		return &out
	})
}

func NewReportPipeline(next domrepo.ReportPublisher, metrics domrepo.Metrics, opts ...PipelineOption) *ReportPipeline {
	p := &ReportPipeline{
		next:    next,
		metrics: metrics,
		maxRPS:  10,
		bufSize: 256,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.AnalysisReport, p.bufSize)
	if p.maxRPS > 0 {
		p.limits = ratelimit.New(float64(p.maxRPS), p.maxRPS, 10*time.Minute)
	}
	return p
}

// Start launches background flushing of buffered reports.
func (p *ReportPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		sweep := time.NewTicker(time.Minute)
		defer sweep.Stop()
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case <-sweep.C:
				if p.limits != nil {
					p.limits.Sweep()
				}
			case r := <-p.bufCh:
				if err := p.next.PublishReport(ctx, r); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					select {
					case <-p.stopCh:
						return
					case <-time.After(backoff):
					}
					select {
					case p.bufCh <- r:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
					continue
				}
				backoff = 50 * time.Millisecond
			}
		}
	}()
}

// Stop halts flushing; reports still buffered are dropped.
func (p *ReportPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// PublishReport validates, throttles and forwards r, buffering it when
// downstream fails.
func (p *ReportPipeline) PublishReport(ctx context.Context, r *models.AnalysisReport) error {
	start := time.Now()
	if err := validateReport(r); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		r = p.transform(r)
		if err := validateReport(r); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if p.limits != nil && !p.limits.Allow(r.Primary) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.next.PublishReport(ctx, r); err != nil {
		p.metrics.RecordError("pipeline_publish")
		select {
		case p.bufCh <- r:
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_publish", time.Since(start).Seconds())
	return nil
}

// Buffered returns the number of reports waiting for a retry.
func (p *ReportPipeline) Buffered() int { return len(p.bufCh) }

// Close stops the pipeline and closes the downstream publisher.
func (p *ReportPipeline) Close() error {
	p.Stop()
	return p.next.Close()
}

func validateReport(r *models.AnalysisReport) error {
	if r == nil {
		return errors.New("report nil")
	}
	if r.ID == "" {
		return errors.New("report id empty")
	}
	if r.Primary == "" {
		return errors.New("report primary empty")
	}
	return nil
}

var _ domrepo.ReportPublisher = (*ReportPipeline)(nil)
