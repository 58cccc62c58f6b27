package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comove/pkg/logger"
)

const combined = `date,GME_close,SPY_close,XRT_close
2021-01-01,10,100,50
2021-01-08,12,101,49
2021-01-15,11,103,50
2021-01-22,15,102,47
2021-01-29,14,104,48
2021-02-05,18,105,45
2021-02-12,17,104,46
2021-02-19,21,106,43
2021-02-26,20,107,44
2021-03-05,24,106,41
2021-03-12,23,108,42
2021-03-19,27,109,39
`

func TestAnalyzeWritesTables(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "combined_1wk.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(combined), 0o600))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"analyze",
		"--csv", csvPath,
		"--primary", "GME",
		"--compare", "SPY,XRT",
		"--window", "4",
		"--max-warp", "1",
		"--band", "0.02,0.5",
		"--out", filepath.Join(dir, "out"),
	})
	cmd.SetOut(&strings.Builder{})
	require.NoError(t, cmd.Execute())

	for _, name := range []string{"correlations.csv", "influence.csv", "entropy.csv", "report.xlsx"} {
		assert.FileExists(t, filepath.Join(dir, "out", name))
	}
}

func TestAnalyzeRequiresWarpAndBand(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"analyze", "--csv", "x.csv", "--primary", "GME", "--compare", "SPY"})
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max-warp")
	assert.Contains(t, err.Error(), "band")
}

func TestAnalyzeRejectsInvalidFlags(t *testing.T) {
	o := &analyzeOptions{
		primary: "GME", compare: []string{"SPY"}, timeframe: "1mo", field: "return",
		window: 6, band: []float64{0.02, 0.5}, smoothing: "llt",
	}
	err := runAnalyze(context.Background(), o, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid flags")
}
