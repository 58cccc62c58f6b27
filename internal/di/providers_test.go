package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalrepo "comove/internal/repository"
	"comove/internal/services/smoothing"
	pkgcache "comove/pkg/cache"
	"comove/pkg/config"
)

func TestProvideSmoothing(t *testing.T) {
	cfg := &config.Config{}
	assert.Equal(t, smoothing.DefaultParams(), ProvideSmoothing(cfg))

	cfg.Analysis.Smoothing = config.SmoothingConfig{Method: "savgol", SavGolWindow: 9, Span: 3}
	p := ProvideSmoothing(cfg)
	assert.Equal(t, smoothing.MethodSavGol, p.Method)
	assert.Equal(t, 9, p.SavGolWindow)
	assert.Equal(t, 3.0, p.Span)
	assert.Equal(t, smoothing.DefaultWindow, p.Window)
	assert.Equal(t, smoothing.DefaultSavGolOrder, p.SavGolOrder)

	order := 0
	cfg.Analysis.Smoothing.SavGolOrder = &order
	p = ProvideSmoothing(cfg)
	assert.Equal(t, 0, p.SavGolOrder)
	_, err := smoothing.Values([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, p)
	assert.NoError(t, err)
}

func TestOptionalInfrastructureIsSkipped(t *testing.T) {
	cfg := &config.Config{}
	cfg.Source.Type = "csv"
	cfg.Source.CSVDir = t.TempDir()

	ch, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)

	rc, err := ProvideRedisCache(cfg)
	require.NoError(t, err)
	assert.Nil(t, rc)

	producer, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, producer)

	consumer, err := ProvideKafkaConsumer(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, consumer)

	assert.Nil(t, ProvideQueue(cfg, nil, nil))
	assert.Nil(t, ProvideRateLimiter(cfg))
	assert.Empty(t, readinessChecks(ch, rc))

	_, ok := ProvideSeriesSource(cfg, nil, nil).(*internalrepo.CSVStore)
	assert.True(t, ok)

	svc := ProvideCache(cfg, nil)
	defer svc.Close()
	_, ok = svc.(*pkgcache.MemoryCache)
	assert.True(t, ok)
}

func TestScheduledParams(t *testing.T) {
	cfg := &config.Config{}
	warp := 4
	cfg.Analysis.MaxWarp = &warp
	cfg.Analysis.Window = 8
	cfg.Analysis.FreqBand = []float64{0.1, 0.4}
	cfg.Analysis.Tickers.Primary = "GME"
	cfg.Analysis.Tickers.Comparisons = []string{"SPY", "XRT"}

	p := scheduledParams(cfg, smoothing.DefaultParams())
	require.NoError(t, p.Validate())
	assert.Equal(t, 4, p.MaxWarp)
	assert.Equal(t, "1wk", string(p.Timeframe))
	assert.Equal(t, "return", string(p.Field))
}
