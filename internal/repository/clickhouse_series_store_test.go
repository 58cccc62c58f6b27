package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "comove/internal/domain/repository"
)

func TestCandlesQuery(t *testing.T) {
	from := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

	q, args := candlesQuery("comove.bars_1wk", "GME", from, to)
	assert.Equal(t, "SELECT bucket, symbol, open, high, low, close, volume FROM comove.bars_1wk WHERE symbol = ? AND bucket >= ? AND bucket <= ? ORDER BY bucket ASC", q)
	assert.Equal(t, []any{"GME", from, to}, args)

	q, args = candlesQuery("comove.bars_1d", "SPY", time.Time{}, time.Time{})
	assert.NotContains(t, q, "bucket >=")
	assert.Equal(t, []any{"SPY"}, args)
}

func TestTableForTF(t *testing.T) {
	table, err := tableForTF("comove", domrepo.TF1d)
	require.NoError(t, err)
	assert.Equal(t, "comove.bars_1d", table)

	table, err = tableForTF("comove", domrepo.TF1wk)
	require.NoError(t, err)
	assert.Equal(t, "comove.bars_1wk", table)

	_, err = tableForTF("comove", "1m")
	assert.Error(t, err)
}
