package scenario

import (
	"fmt"

	es "github.com/ugandapathways/pathways/pkg/energysystem"
	"github.com/ugandapathways/pathways/pkg/indicators"
	"github.com/ugandapathways/pathways/pkg/results"
	"github.com/ugandapathways/pathways/pkg/timeseries"
)

// definition implements Scenario for the scenarios declared in this package.
type definition struct {
	name        string
	description string
	year        int
	// timesteps is the number of data rows used, all rows when 0.
	timesteps  int
	defaults   Parameters
	buses      []string
	build      func(b *builder)
	indicators func(r *indicators.Reader, p Parameters, s *indicators.Scalars) error
}

func (d *definition) Name() string        { return d.name }
func (d *definition) Description() string { return d.description }
func (d *definition) Year() int           { return d.year }
func (d *definition) Defaults() Parameters {
	return d.defaults.Clone()
}

func (d *definition) Buses() []string {
	return append([]string(nil), d.buses...)
}

func (d *definition) Timesteps(data *timeseries.Table) int {
	if d.timesteps > 0 && d.timesteps < data.Len() {
		return d.timesteps
	}
	return data.Len()
}

func (d *definition) Build(sys *es.EnergySystem, data *timeseries.Table, p Parameters) error {
	if data.Len() != sys.Timesteps() {
		return fmt.Errorf("%w: data has %d rows, energy system %d timesteps", es.ErrProfileLength, data.Len(), sys.Timesteps())
	}
	b := &builder{sys: sys, data: data, p: p}
	d.build(b)
	if b.err != nil {
		return fmt.Errorf("failed to build %s: %w", d.name, b.err)
	}
	return nil
}

func (d *definition) Indicators(res *results.Results, p Parameters) (indicators.Scalars, error) {
	var s indicators.Scalars
	if d.indicators == nil {
		return s, nil
	}
	r := indicators.NewReader(res)
	if err := d.indicators(r, p, &s); err != nil {
		return nil, err
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to compute %s indicators: %w", d.name, err)
	}
	return s, nil
}

// builder declares components and remembers the first missing data column,
// missing parameter or duplicate label.
type builder struct {
	sys  *es.EnergySystem
	data *timeseries.Table
	p    Parameters
	err  error
}

// col returns the named data column.
func (b *builder) col(name string) []float64 {
	v, err := b.data.Column(name)
	if err != nil && b.err == nil {
		b.err = err
	}
	return v
}

// param returns the named parameter.
func (b *builder) param(name string) float64 {
	v, ok := b.p[name]
	if !ok && b.err == nil {
		b.err = fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return v
}

func (b *builder) bus(label string) *es.Bus {
	bus := es.NewBus(label)
	b.add(bus)
	return bus
}

func (b *builder) add(nodes ...es.Node) {
	if err := b.sys.Add(nodes...); err != nil && b.err == nil {
		b.err = err
	}
}

// source adds a source with the given flow.
func (b *builder) source(label string, bus *es.Bus, opts ...es.FlowOption) {
	b.add(es.NewSource(label, bus, es.NewFlow(opts...)))
}

// demand adds a sink fixed to nominal times the named data column.
func (b *builder) demand(label string, bus *es.Bus, column string, nominal float64) {
	b.add(es.NewSink(label, bus, es.NewFlow(es.WithFix(b.col(column)), es.WithNominalValue(nominal))))
}

// excess adds an unbounded sink.
func (b *builder) excess(label string, bus *es.Bus) {
	b.add(es.NewSink(label, bus, es.NewFlow()))
}

// converter adds a single input, single output converter with efficiency
// eta on the output.
func (b *builder) converter(label string, in, out *es.Bus, eta float64, outOpts ...es.FlowOption) {
	b.add(es.NewConverter(label).Input(in, es.NewFlow()).Output(out, es.NewFlow(outOpts...), eta))
}

// investment returns an investment flow option with the named ep costs.
func (b *builder) investment(epc string, existing float64) es.FlowOption {
	return es.WithInvestment(es.Investment{EPCosts: b.param(epc), Existing: existing})
}

// storage adds a storage investable at the named ep costs with capacity
// relations of ratio for input and output.
func (b *builder) storage(label string, bus *es.Bus, epc string, in *es.Flow, outflow, ratio float64) {
	b.add(es.NewStorage(label, bus, in, es.NewFlow(),
		es.WithInitialStorageLevel(0),
		es.WithInvestRelations(ratio, ratio),
		es.WithConversionFactors(1, outflow),
		es.WithStorageInvestment(es.Investment{EPCosts: b.param(epc)}),
	))
}
