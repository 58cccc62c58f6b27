package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"comove/internal/domain/models"
)

func TestScheduledAnalysisRunsRepeatedly(t *testing.T) {
	uc, pub, not := newTestUseCase(t, testSource(t))
	pub.On("PublishReport", mock.Anything, mock.Anything).Return(nil)
	runs := make(chan models.ReportSummary, 8)
	not.On("NotifyReport", mock.Anything).Run(func(args mock.Arguments) {
		runs <- args.Get(0).(models.ReportSummary)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	NewScheduledAnalysis(uc, baseParams(), 20*time.Millisecond, nil).Start(ctx)

	var ids []string
	for len(ids) < 2 {
		select {
		case s := <-runs:
			assert.Equal(t, "GME", s.Primary)
			ids = append(ids, s.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("scheduled analysis did not run twice")
		}
	}
	assert.NotEqual(t, ids[0], ids[1])
}
