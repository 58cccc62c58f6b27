package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"comove/internal/domain/errs"
	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
	"comove/internal/services/smoothing"
	pkghttp "comove/pkg/http"
	pkgkafka "comove/pkg/kafka"
	"comove/pkg/logger"
)

// KafkaAnalysisHandler runs analysis requests arriving on the request topic.
// The use case publishes the resulting report itself.
type KafkaAnalysisHandler struct {
	topic     string
	uc        *AnalysisUseCase
	smoothing smoothing.Params
	metrics   domrepo.Metrics
	log       *logger.Logger
}

func NewKafkaAnalysisHandler(topic string, uc *AnalysisUseCase, base smoothing.Params, metrics domrepo.Metrics, log *logger.Logger) *KafkaAnalysisHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaAnalysisHandler{topic: topic, uc: uc, smoothing: base, metrics: metrics, log: log}
}

func (h *KafkaAnalysisHandler) Topic() string { return h.topic }

// Handle decodes and validates one request. Malformed or invalid requests
// are permanent failures; data and timeout errors may be retried.
func (h *KafkaAnalysisHandler) Handle(ctx context.Context, b []byte) error {
	start := time.Now()
	p, err := decodeRequest(ctx, b, h.smoothing, h.metrics, "consumer")
	if err != nil {
		return pkgkafka.Permanent(err)
	}

	r, err := h.uc.Run(ctx, p)
	h.metrics.RecordLatency("consumer_analysis_seconds", time.Since(start).Seconds())
	if err != nil {
		if !retryable(err) {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	h.log.Info("analysis request handled",
		logger.String("trace_id", pkgkafka.TraceIDFrom(ctx)),
		logger.String("id", r.ID),
		logger.String("primary", r.Primary),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// decodeRequest turns a JSON analysis request into run parameters. Every
// error it returns is a rejection of the request itself.
func decodeRequest(ctx context.Context, b []byte, base smoothing.Params, metrics domrepo.Metrics, stage string) (AnalysisParams, error) {
	var req models.AnalysisRequest
	if err := json.Unmarshal(b, &req); err != nil {
		metrics.RecordError(stage + "_unmarshal")
		return AnalysisParams{}, fmt.Errorf("decode analysis request: %w", err)
	}
	if verrs := pkghttp.ValidateRequest(ctx, &req); len(verrs) > 0 {
		metrics.RecordError(stage + "_validate")
		msgs := make([]string, 0, len(verrs))
		for _, v := range verrs {
			msgs = append(msgs, v.Message)
		}
		return AnalysisParams{}, fmt.Errorf("invalid analysis request: %s", strings.Join(msgs, "; "))
	}
	return RequestParams(&req, base)
}

// retryable reports whether a failed run may succeed on another attempt.
func retryable(err error) bool {
	return !errors.Is(err, errs.ErrInvalidParameter) && !errors.Is(err, errs.ErrInsufficientData)
}

var _ pkgkafka.MessageHandler = (*KafkaAnalysisHandler)(nil)
