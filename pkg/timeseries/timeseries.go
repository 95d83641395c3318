package timeseries

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingColumn  = errors.New("missing column")
	ErrLengthMismatch = errors.New("series length mismatch")
	ErrEmptyCell      = errors.New("empty cell")
)

// TimestampColumn is the optional column holding the time index of a merged table.
const TimestampColumn = "timestamp"

var timestampLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04"}

// Table is a set of equally long series aligned by timestep.
type Table struct {
	Index   []time.Time
	columns map[string][]float64
	order   []string
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{columns: make(map[string][]float64)}
}

// Len returns the number of timesteps in the table.
func (t *Table) Len() int {
	for _, name := range t.order {
		return len(t.columns[name])
	}
	return len(t.Index)
}

// Names returns the column names in insertion order.
func (t *Table) Names() []string {
	return append([]string(nil), t.order...)
}

// Set adds or replaces a column. All columns must have the same length.
func (t *Table) Set(name string, values []float64) error {
	if n := len(t.order); n > 0 && len(values) != t.Len() {
		// replacing the only column may change the length
		if _, replacing := t.columns[name]; !replacing || n > 1 {
			return fmt.Errorf("%w: column %q has %d rows, table has %d", ErrLengthMismatch, name, len(values), t.Len())
		}
	}
	if _, exists := t.columns[name]; !exists {
		t.order = append(t.order, name)
	}
	t.columns[name] = values
	return nil
}

// Column returns the named series.
func (t *Table) Column(name string) ([]float64, error) {
	v, ok := t.columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
	}
	return v, nil
}

// Head returns a copy of the table truncated to the first n timesteps.
func (t *Table) Head(n int) *Table {
	if n < 0 || n > t.Len() {
		n = t.Len()
	}
	h := NewTable()
	for _, name := range t.order {
		h.order = append(h.order, name)
		h.columns[name] = append([]float64(nil), t.columns[name][:n]...)
	}
	if len(t.Index) >= n {
		h.Index = append([]time.Time(nil), t.Index[:n]...)
	}
	return h
}

// HourlyIndex returns n hourly timestamps starting at 1 January of year (UTC).
func HourlyIndex(year, n int) []time.Time {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	idx := make([]time.Time, n)
	for i := range idx {
		idx[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return idx
}

// ReadCSV parses a merged table with a header row and one numeric column per
// series. A column named "timestamp" is parsed into the table index.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv has no header row")
	}
	header := records[0]
	rows := records[1:]

	t := NewTable()
	for c, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			// unnamed index column written by dataframe exports
			continue
		}
		if name == TimestampColumn {
			idx := make([]time.Time, len(rows))
			for i, row := range rows {
				ts, err := parseTimestamp(row[c])
				if err != nil {
					return nil, fmt.Errorf("row %d: %w", i+2, err)
				}
				idx[i] = ts
			}
			t.Index = idx
			continue
		}
		values := make([]float64, len(rows))
		for i, row := range rows {
			cell := strings.TrimSpace(row[c])
			if cell == "" {
				return nil, fmt.Errorf("row %d column %q: %w", i+2, name, ErrEmptyCell)
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i+2, name, err)
			}
			values[i] = v
		}
		if err := t.Set(name, values); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ReadFile is ReadCSV on a file path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return t, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// WriteCSV writes the table with a header row and no index column. The
// timestamp column is only written when the table has an index.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := t.Names()
	withIndex := len(t.Index) == t.Len() && len(t.Index) > 0
	if withIndex {
		header = append([]string{TimestampColumn}, header...)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i := 0; i < t.Len(); i++ {
		c := 0
		if withIndex {
			row[0] = t.Index[i].Format(time.RFC3339)
			c = 1
		}
		for _, name := range t.order {
			row[c] = strconv.FormatFloat(t.columns[name][i], 'g', -1, 64)
			c++
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ProfileSpec selects one column from a single-technology profile file.
type ProfileSpec struct {
	File   string
	Column string
	// As is the name of the column in the merged table. Defaults to Column.
	As string
}

func (p ProfileSpec) name() string {
	if p.As != "" {
		return p.As
	}
	return p.Column
}

// DefaultUgandaProfiles lists the per-technology files merged into
// uganda_sequences.csv.
func DefaultUgandaProfiles() []ProfileSpec {
	return []ProfileSpec{
		{File: "solar-pv_profile.csv", Column: "pv"},
		{File: "wind-onshore_profile.csv", Column: "wind"},
		{File: "hydro-ror_profile.csv", Column: "hydro"},
		{File: "electricity-demand_profile.csv", Column: "demand_el"},
		{File: "heat-demand_profile.csv", Column: "demand_heat"},
		// the cooking file reuses the heat column name
		{File: "cooking-demand_profile.csv", Column: "demand_heat", As: "demand_cooking"},
		{File: "biomass-production_profile.csv", Column: "biomass_production", As: "biomass_usage"},
		{File: "fuel-oil-production_profile.csv", Column: "fuel_oil_production", As: "fuel_oil_usage"},
	}
}

// Merge reads every profile below dir and combines the selected columns into
// one table aligned by row position.
func Merge(dir string, specs []ProfileSpec) (*Table, error) {
	merged := NewTable()
	for _, spec := range specs {
		src, err := ReadFile(filepath.Join(dir, spec.File))
		if err != nil {
			return nil, err
		}
		col, err := src.Column(spec.Column)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.File, err)
		}
		if err := merged.Set(spec.name(), col); err != nil {
			return nil, fmt.Errorf("%s: %w", spec.File, err)
		}
	}
	return merged, nil
}
