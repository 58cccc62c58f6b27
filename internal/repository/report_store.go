package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
	pkgcache "comove/pkg/cache"
)

type messagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaReportPublisher publishes completed reports keyed by primary label.
type KafkaReportPublisher struct {
	producer messagePublisher
	topic    string
}

// NewKafkaReportPublisher takes a *kafka.Producer or any publisher with the same shape.
func NewKafkaReportPublisher(producer messagePublisher, topic string) domrepo.ReportPublisher {
	return &KafkaReportPublisher{producer: producer, topic: topic}
}

func (p *KafkaReportPublisher) PublishReport(ctx context.Context, r *models.AnalysisReport) error {
	if r == nil {
		return errors.New("nil report")
	}
	if err := p.producer.Publish(ctx, p.topic, []byte(r.Primary), r); err != nil {
		return fmt.Errorf("publish report %s: %w", r.ID, err)
	}
	return nil
}

func (p *KafkaReportPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopReportPublisher drops reports; used when Kafka is disabled.
type NopReportPublisher struct{}

func (NopReportPublisher) PublishReport(context.Context, *models.AnalysisReport) error { return nil }
func (NopReportPublisher) Close() error                                                { return nil }

const reportKeyPrefix = "report"

// CachedReportStore keeps reports in a pkg/cache service under report:<key>.
type CachedReportStore struct {
	svc pkgcache.Service
	ttl time.Duration
}

func NewCachedReportStore(svc pkgcache.Service, ttl time.Duration) domrepo.ReportCache {
	return &CachedReportStore{svc: svc, ttl: ttl}
}

// Get returns models.ErrReportNotFound on a miss.
func (s *CachedReportStore) Get(ctx context.Context, key string) (*models.AnalysisReport, error) {
	var r models.AnalysisReport
	if err := s.svc.Get(ctx, pkgcache.GenerateKey(reportKeyPrefix, key), &r); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, models.ErrReportNotFound
		}
		return nil, fmt.Errorf("get report %s: %w", key, err)
	}
	return &r, nil
}

// Purge drops every cached report.
func (s *CachedReportStore) Purge(ctx context.Context) error {
	if err := s.svc.DeleteByPattern(ctx, pkgcache.BuildPattern(reportKeyPrefix+":")); err != nil {
		return fmt.Errorf("purge reports: %w", err)
	}
	return nil
}

func (s *CachedReportStore) Set(ctx context.Context, key string, r *models.AnalysisReport) error {
	if err := s.svc.Set(ctx, pkgcache.GenerateKey(reportKeyPrefix, key), r, s.ttl); err != nil {
		return fmt.Errorf("set report %s: %w", key, err)
	}
	return nil
}
