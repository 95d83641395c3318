// Package scenario declares the Uganda energy system scenarios and the
// indicators derived from their results.
package scenario

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ugandapathways/pathways/pkg/energysystem"
	"github.com/ugandapathways/pathways/pkg/indicators"
	"github.com/ugandapathways/pathways/pkg/results"
	"github.com/ugandapathways/pathways/pkg/timeseries"
)

var (
	ErrUnknownScenario  = errors.New("unknown scenario")
	ErrUnknownParameter = errors.New("unknown parameter")
)

// Scenario declares an energy system over a data table.
type Scenario interface {
	Name() string
	Description() string
	// Year of the first timestep of the hourly time index.
	Year() int
	// Timesteps returns how many rows of data the scenario optimizes.
	Timesteps(data *timeseries.Table) int
	// Defaults returns a copy of the default parameters.
	Defaults() Parameters
	// Build adds the scenario's buses and components to es. data has
	// exactly es.Timesteps() rows.
	Build(es *energysystem.EnergySystem, data *timeseries.Table, p Parameters) error
	// Indicators derives the scalar indicators from solved results.
	Indicators(res *results.Results, p Parameters) (indicators.Scalars, error)
	// Buses are reported in the scalar and sequence outputs.
	Buses() []string
}

// Parameters are the named prices, costs, limits and sizes of a scenario.
type Parameters map[string]float64

// Clone returns a copy of p.
func (p Parameters) Clone() Parameters {
	c := make(Parameters, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// With returns a copy of p with overrides applied. Overriding a parameter
// that p does not define is an error.
func (p Parameters) With(overrides map[string]float64) (Parameters, error) {
	c := p.Clone()
	for k, v := range overrides {
		if _, ok := c[k]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParameter, k)
		}
		c[k] = v
	}
	return c, nil
}

// Names returns the parameter names, sorted.
func (p Parameters) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Map holds scenarios by name.
type Map map[string]Scenario

// All returns every known scenario.
func All() Map {
	m := make(Map)
	for _, s := range []Scenario{
		Simple(),
		InvestOptimize(),
		SustainableBiomass2040(),
		SustainableBiomass2040Electric(),
		Baseline2019(),
		Baseline2019Pathway(),
	} {
		m[s.Name()] = s
	}
	return m
}

// Scenario returns the named scenario.
func (m Map) Scenario(name string) (Scenario, error) {
	s, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownScenario, name, m.Names())
	}
	return s, nil
}

// Names returns the scenario names, sorted.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
