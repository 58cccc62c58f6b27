package repository

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/guregu/null/v6"
	"github.com/xuri/excelize/v2"

	"comove/internal/domain/models"
)

// Table is a rectangular export of one part of a report. Nil cells are
// missing values.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

func nullCell(f null.Float) any {
	if !f.Valid {
		return nil
	}
	return f.Float64
}

func dateCell(t time.Time) string { return t.UTC().Format(time.DateOnly) }

// CorrelationTable has a date column and one column per label.
func CorrelationTable(name string, t models.WindowedCorrelationTable) Table {
	out := Table{Name: name, Header: append([]string{"date"}, t.Labels...)}
	for _, row := range t.Rows {
		cells := make([]any, 0, len(t.Labels)+1)
		cells = append(cells, dateCell(row.Time))
		for _, l := range t.Labels {
			cells = append(cells, nullCell(row.Values[l]))
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}

func InfluenceTable(name string, recs []models.InfluenceRecord) Table {
	out := Table{Name: name, Header: []string{"date", "top_label", "correlation"}}
	for _, r := range recs {
		out.Rows = append(out.Rows, []any{dateCell(r.Time), r.TopLabel, nullCell(r.Correlation)})
	}
	return out
}

func TransitionTable(name string, ts []models.Transition) Table {
	out := Table{Name: name, Header: []string{"date", "from", "to", "correlation"}}
	for _, tr := range ts {
		out.Rows = append(out.Rows, []any{dateCell(tr.Time), tr.From, tr.To, nullCell(tr.Correlation)})
	}
	return out
}

func EntropyTable(recs []models.EntropyRecord) Table {
	out := Table{Name: "entropy", Header: []string{"date", "entropy"}}
	for _, r := range recs {
		out.Rows = append(out.Rows, []any{dateCell(r.Time), r.Entropy})
	}
	return out
}

func AlignmentTable(rs []models.AlignmentResult) Table {
	out := Table{Name: "alignment", Header: []string{"label", "alignment_cost", "peak_correlation", "points", "score", "relative_score"}}
	for _, r := range rs {
		out.Rows = append(out.Rows, []any{r.Label, r.AlignmentCost, r.PeakCorrelation, r.Points, r.Score, r.RelativeScore})
	}
	return out
}

// DistanceTable is in long form: one row per label and window.
func DistanceTable(d map[string][]models.DistancePoint) Table {
	out := Table{Name: "distances", Header: []string{"date", "label", "cost"}}
	labels := make([]string, 0, len(d))
	for l := range d {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		for _, p := range d[l] {
			out.Rows = append(out.Rows, []any{dateCell(p.Time), l, p.Cost})
		}
	}
	return out
}

// ReportTables lists the exportable tables of r. Weighted and distance
// tables appear only when the report has them.
func ReportTables(r *models.AnalysisReport) []Table {
	tables := []Table{
		AlignmentTable(r.Alignments),
		CorrelationTable("correlations", r.Correlations),
		InfluenceTable("influence", r.Influence),
		TransitionTable("transitions", r.Transitions),
		EntropyTable(r.Entropy),
	}
	if len(r.WeightedInfluence) > 0 {
		tables = append(tables,
			InfluenceTable("weighted_influence", r.WeightedInfluence),
			TransitionTable("weighted_transitions", r.WeightedTransitions),
		)
	}
	if len(r.Distances) > 0 {
		tables = append(tables, DistanceTable(r.Distances))
	}
	return tables
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}

// WriteCSV writes t with a header row. Missing cells are blank.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i := range rec {
			rec[i] = ""
			if i < len(row) {
				rec[i] = formatCell(row[i])
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVDir writes each table to <dir>/<name>.csv and returns the paths.
func WriteCSVDir(dir string, tables []Table) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		p := filepath.Join(dir, t.Name+".csv")
		f, err := os.Create(p)
		if err != nil {
			return paths, fmt.Errorf("create %s: %w", p, err)
		}
		err = WriteCSV(f, t)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return paths, fmt.Errorf("%s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// WriteXLSX writes one sheet per table.
func WriteXLSX(w io.Writer, tables []Table) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), t.Name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return fmt.Errorf("new sheet %s: %w", t.Name, err)
		}
		header := make([]any, len(t.Header))
		for j, h := range t.Header {
			header[j] = h
		}
		if err := f.SetSheetRow(t.Name, "A1", &header); err != nil {
			return fmt.Errorf("%s header: %w", t.Name, err)
		}
		for r, row := range t.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			row := row
			if err := f.SetSheetRow(t.Name, cell, &row); err != nil {
				return fmt.Errorf("%s row %d: %w", t.Name, r+1, err)
			}
		}
	}
	return f.Write(w)
}

// WriteXLSXFile writes the workbook to path.
func WriteXLSXFile(path string, tables []Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	if err := WriteXLSX(f, tables); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
