// Package report writes scenario results as scalar and sequence csv files.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/ugandapathways/pathways/pkg/indicators"
	"github.com/ugandapathways/pathways/pkg/results"
)

// Column returns the csv name of the named value of key.
func Column(key results.FlowKey, name string) string {
	return fmt.Sprintf("((%s, %s), %s)", key.From, key.To, name)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// BusScalars returns the scalars of every flow touching buses followed by
// ind.
func BusScalars(res *results.Results, buses []string, ind indicators.Scalars) indicators.Scalars {
	var s indicators.Scalars
	for _, bus := range buses {
		view := res.Node(bus)
		keys := make([]results.FlowKey, 0, len(view.Scalars))
		for k := range view.Scalars {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			names := make([]string, 0, len(view.Scalars[k]))
			for name := range view.Scalars[k] {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				s.Add(Column(k, name), view.Scalars[k][name])
			}
		}
	}
	for _, v := range ind {
		s.Add(v.Name, v.Value)
	}
	return s
}

// WriteScalars writes s as a name,value csv.
func WriteScalars(w io.Writer, s indicators.Scalars) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "value"}); err != nil {
		return err
	}
	for _, v := range s {
		if err := cw.Write([]string{v.Name, formatFloat(v.Value)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSequences writes one row per timestep with a column per
// flow touching buses. Flows are grouped by bus in the given order.
func WriteSequences(w io.Writer, res *results.Results, buses []string) error {
	var (
		header = []string{"timestamp"}
		series [][]float64
		seen   = make(map[string]bool)
	)
	for _, bus := range buses {
		view := res.Node(bus)
		for _, k := range view.Keys() {
			seq, ok := view.Sequences[k][results.FlowSeq]
			if !ok {
				continue
			}
			name := Column(k, results.FlowSeq)
			if seen[name] {
				continue
			}
			seen[name] = true
			if len(seq) != len(res.Timeindex) {
				return fmt.Errorf("%s has %d values, time index %d", k, len(seq), len(res.Timeindex))
			}
			header = append(header, name)
			series = append(series, seq)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for t, ts := range res.Timeindex {
		row[0] = ts.Format(time.RFC3339)
		for i, seq := range series {
			row[i+1] = formatFloat(seq[t])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Files are the paths written by WriteRun.
type Files struct {
	Scalars   string `json:"scalars"`
	Sequences string `json:"sequences"`
}

// WriteRun writes <prefix>_scalars.csv and <prefix>_sequences.csv into dir,
// creating dir if needed.
func WriteRun(dir, prefix string, res *results.Results, buses []string, ind indicators.Scalars) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	files := Files{
		Scalars:   filepath.Join(dir, prefix+"_scalars.csv"),
		Sequences: filepath.Join(dir, prefix+"_sequences.csv"),
	}
	if err := writeFile(files.Scalars, func(w io.Writer) error {
		return WriteScalars(w, BusScalars(res, buses, ind))
	}); err != nil {
		return Files{}, err
	}
	if err := writeFile(files.Sequences, func(w io.Writer) error {
		return WriteSequences(w, res, buses)
	}); err != nil {
		return Files{}, err
	}
	return files, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
