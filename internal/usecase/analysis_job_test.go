package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"comove/internal/services/smoothing"
	"comove/pkg/queue"
)

func TestAnalysisJobRunsQueuedRequest(t *testing.T) {
	uc, pub, not := newTestUseCase(t, testSource(t))
	not.On("NotifyReport", mock.Anything).Once()
	pub.On("PublishReport", mock.Anything, mock.Anything).Return(nil).Once()

	job := NewAnalysisJob(uc, smoothing.DefaultParams(), nil, nil)
	assert.Equal(t, AnalysisJobType, job.Type())

	err := job.Handle(context.Background(), []byte(`{"primary":"GME","comparisons":["SPY"],"max_warp":1,"freq_band":[0.02,0.5]}`))
	require.NoError(t, err)
	pub.AssertExpectations(t)
	not.AssertExpectations(t)
}

func TestAnalysisJobRejectsInvalidRequest(t *testing.T) {
	uc, _, _ := newTestUseCase(t, testSource(t))
	job := NewAnalysisJob(uc, smoothing.DefaultParams(), nil, nil)

	err := job.Handle(context.Background(), []byte(`{"primary":"GME","comparisons":["SPY"]}`))
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}
