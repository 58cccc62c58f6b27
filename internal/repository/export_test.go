package repository

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"comove/internal/domain/models"
)

func sampleReport() *models.AnalysisReport {
	t1 := time.Date(2021, 1, 8, 0, 0, 0, 0, time.UTC)
	t2 := t1.AddDate(0, 0, 7)
	return &models.AnalysisReport{
		Primary:     "GME",
		Comparisons: []string{"SPY", "XRT"},
		Alignments:  []models.AlignmentResult{{Label: "SPY", AlignmentCost: 1.5, PeakCorrelation: 0.25, Points: 10, Score: 0.4, RelativeScore: 1}},
		Correlations: models.WindowedCorrelationTable{
			Window: 3,
			Labels: []string{"SPY", "XRT"},
			Rows: []models.CorrelationRow{
				{Time: t1, Values: map[string]null.Float{"SPY": null.FloatFrom(0.5), "XRT": {}}},
				{Time: t2, Values: map[string]null.Float{"SPY": null.FloatFrom(-0.25), "XRT": null.FloatFrom(0.75)}},
			},
		},
		Influence: []models.InfluenceRecord{
			{Time: t1, TopLabel: "SPY", Correlation: null.FloatFrom(0.5)},
			{Time: t2, TopLabel: "XRT", Correlation: null.FloatFrom(0.75)},
		},
		Transitions: []models.Transition{{Time: t2, From: "SPY", To: "XRT", Correlation: null.FloatFrom(0.75)}},
		Entropy:     []models.EntropyRecord{{Time: t1, Entropy: 0}, {Time: t2, Entropy: 0.9183}},
	}
}

func TestWriteCSVCorrelations(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, CorrelationTable("correlations", sampleReport().Correlations)))
	assert.Equal(t, "date,SPY,XRT\n2021-01-08,0.5,\n2021-01-15,-0.25,0.75\n", buf.String())
}

func TestWriteCSVInfluenceAndEntropy(t *testing.T) {
	r := sampleReport()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, InfluenceTable("influence", r.Influence)))
	assert.Equal(t, "date,top_label,correlation\n2021-01-08,SPY,0.5\n2021-01-15,XRT,0.75\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, EntropyTable(r.Entropy)))
	assert.Equal(t, "date,entropy\n2021-01-08,0\n2021-01-15,0.9183\n", buf.String())
}

func TestReportTablesOptionalSections(t *testing.T) {
	r := sampleReport()
	names := func(ts []Table) []string {
		var out []string
		for _, t := range ts {
			out = append(out, t.Name)
		}
		return out
	}
	assert.Equal(t, []string{"alignment", "correlations", "influence", "transitions", "entropy"}, names(ReportTables(r)))

	r.WeightedInfluence = r.Influence
	r.Distances = map[string][]models.DistancePoint{"SPY": {{Time: r.Influence[0].Time, Cost: 2}}}
	assert.Equal(t, []string{"alignment", "correlations", "influence", "transitions", "entropy",
		"weighted_influence", "weighted_transitions", "distances"}, names(ReportTables(r)))
}

func TestWriteCSVDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteCSVDir(dir, ReportTables(sampleReport()))
	require.NoError(t, err)
	require.Len(t, paths, 5)

	b, err := os.ReadFile(filepath.Join(dir, "transitions.csv"))
	require.NoError(t, err)
	assert.Equal(t, "date,from,to,correlation\n2021-01-15,SPY,XRT,0.75\n", string(b))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, ReportTables(sampleReport())))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"alignment", "correlations", "influence", "transitions", "entropy"}, f.GetSheetList())
	rows, err := f.GetRows("correlations")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"date", "SPY", "XRT"}, rows[0])
	require.GreaterOrEqual(t, len(rows[1]), 2)
	assert.Equal(t, []string{"2021-01-08", "0.5"}, rows[1][:2])
	assert.Equal(t, []string{"2021-01-15", "-0.25", "0.75"}, rows[2])
}
