package usecase

import (
	"context"
	"time"

	"comove/pkg/logger"
)

// ScheduledAnalysis reruns one fixed analysis on an interval so watchers of
// the report feed see fresh windows as new bars arrive.
type ScheduledAnalysis struct {
	uc       *AnalysisUseCase
	params   AnalysisParams
	interval time.Duration
	log      *logger.Logger
}

func NewScheduledAnalysis(uc *AnalysisUseCase, p AnalysisParams, interval time.Duration, log *logger.Logger) *ScheduledAnalysis {
	if log == nil {
		log = logger.Nop()
	}
	p.Refresh = true
	return &ScheduledAnalysis{uc: uc, params: p, interval: interval, log: log}
}

// Start runs immediately and then on every tick until ctx ends.
func (s *ScheduledAnalysis) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			s.runOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

func (s *ScheduledAnalysis) runOnce(ctx context.Context) {
	r, err := s.uc.Run(ctx, s.params)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("scheduled analysis failed", logger.String("primary", s.params.Primary), logger.Error(err))
		}
		return
	}
	s.log.Debug("scheduled analysis done", logger.String("id", r.ID), logger.String("primary", r.Primary))
}
