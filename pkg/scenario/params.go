package scenario

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadParameters parses a two column csv of parameter names and values with
// a "parameter,value" header.
func ReadParameters(r io.Reader) (map[string]float64, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = 2
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parameter csv has no header row")
	} else if err != nil {
		return nil, fmt.Errorf("failed to read parameter csv: %w", err)
	}
	if strings.TrimSpace(header[0]) != "parameter" || strings.TrimSpace(header[1]) != "value" {
		return nil, fmt.Errorf("unexpected parameter csv header %v", header)
	}

	params := make(map[string]float64)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to read parameter csv: %w", err)
		}
		name := strings.TrimSpace(rec[0])
		if name == "" {
			return nil, fmt.Errorf("line %d: empty parameter name", line)
		}
		if _, ok := params[name]; ok {
			return nil, fmt.Errorf("line %d: duplicate parameter %q", line, name)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d parameter %q: %w", line, name, err)
		}
		params[name] = v
	}
	return params, nil
}

// ReadParametersYAML parses a flat YAML mapping of parameter names to values.
func ReadParametersYAML(r io.Reader) (map[string]float64, error) {
	var params map[string]float64
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&params); errors.Is(err, io.EOF) {
		return map[string]float64{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read parameter yaml: %w", err)
	}
	if params == nil {
		params = map[string]float64{}
	}
	return params, nil
}

// ReadParameterFiles reads and merges parameter files, later files
// overriding earlier ones. Files ending in .yaml or .yml are read as YAML,
// everything else as csv.
func ReadParameterFiles(paths ...string) (map[string]float64, error) {
	params := make(map[string]float64)
	for _, path := range paths {
		read := ReadParameters
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			read = ReadParametersYAML
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		p, err := read(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		for k, v := range p {
			params[k] = v
		}
	}
	return params, nil
}
