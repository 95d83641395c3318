package energysystem

import "fmt"

// Node is an element of the energy system graph.
type Node interface {
	Label() string
	// Inputs are the flows from a bus into the node.
	Inputs() []Port
	// Outputs are the flows from the node into a bus.
	Outputs() []Port
}

// Port connects a component to a bus through a flow. Factor is the
// conversion factor of converters and is ignored elsewhere.
type Port struct {
	Bus    *Bus
	Flow   *Flow
	Factor float64
}

// Bus is a commodity pool balancing all connected flows at every timestep.
type Bus struct {
	label string
}

func NewBus(label string) *Bus {
	return &Bus{label: label}
}

func (b *Bus) Label() string   { return b.label }
func (b *Bus) Inputs() []Port  { return nil }
func (b *Bus) Outputs() []Port { return nil }

// Source injects a commodity into a bus.
type Source struct {
	label  string
	output Port
}

// NewSource creates a source feeding bus through f.
func NewSource(label string, bus *Bus, f *Flow) *Source {
	return &Source{label: label, output: Port{Bus: bus, Flow: f, Factor: 1}}
}

func (s *Source) Label() string   { return s.label }
func (s *Source) Inputs() []Port  { return nil }
func (s *Source) Outputs() []Port { return []Port{s.output} }

// Sink removes a commodity from a bus.
type Sink struct {
	label string
	input Port
}

// NewSink creates a sink drawing from bus through f.
func NewSink(label string, bus *Bus, f *Flow) *Sink {
	return &Sink{label: label, input: Port{Bus: bus, Flow: f, Factor: 1}}
}

func (s *Sink) Label() string   { return s.label }
func (s *Sink) Inputs() []Port  { return []Port{s.input} }
func (s *Sink) Outputs() []Port { return nil }

// Converter turns its inputs into its outputs at fixed ratios. For every
// input i and output o: flow_i * factor_o == flow_o * factor_i.
type Converter struct {
	label   string
	inputs  []Port
	outputs []Port
}

// NewConverter creates a converter without ports; use Input and Output to
// connect it.
func NewConverter(label string) *Converter {
	return &Converter{label: label}
}

// Input adds an input with conversion factor 1.
func (c *Converter) Input(bus *Bus, f *Flow) *Converter {
	return c.InputFactor(bus, f, 1)
}

// InputFactor adds an input with the given conversion factor.
func (c *Converter) InputFactor(bus *Bus, f *Flow, factor float64) *Converter {
	c.inputs = append(c.inputs, Port{Bus: bus, Flow: f, Factor: factor})
	return c
}

// Output adds an output with the given conversion factor.
func (c *Converter) Output(bus *Bus, f *Flow, factor float64) *Converter {
	c.outputs = append(c.outputs, Port{Bus: bus, Flow: f, Factor: factor})
	return c
}

func (c *Converter) Label() string   { return c.label }
func (c *Converter) Inputs() []Port  { return c.inputs }
func (c *Converter) Outputs() []Port { return c.outputs }

func (c *Converter) validate() error {
	if len(c.inputs) == 0 || len(c.outputs) == 0 {
		return fmt.Errorf("converter needs at least one input and one output")
	}
	for _, ports := range [][]Port{c.inputs, c.outputs} {
		for _, p := range ports {
			if p.Factor <= 0 {
				return fmt.Errorf("conversion factor for %s must be positive, got %g", p.Bus.Label(), p.Factor)
			}
		}
	}
	return nil
}

// Storage holds a commodity across timesteps.
type Storage struct {
	label  string
	input  Port
	output Port

	// NominalStorageCapacity is the fixed capacity when Investment is nil.
	NominalStorageCapacity *float64
	// LossRate is the relative loss of content per timestep.
	LossRate float64
	// InitialStorageLevel relative to capacity; free when nil.
	InitialStorageLevel *float64
	MinStorageLevel     float64
	MaxStorageLevel     float64
	// InflowConversionFactor scales charged energy into content.
	InflowConversionFactor float64
	// OutflowConversionFactor scales content into discharged energy.
	OutflowConversionFactor float64
	// InvestRelationInputCapacity ties the input capacity to the storage capacity.
	InvestRelationInputCapacity *float64
	// InvestRelationOutputCapacity ties the output capacity to the storage capacity.
	InvestRelationOutputCapacity *float64
	Investment                   *Investment
	// Balanced requires the last content to equal the initial content.
	Balanced bool
}

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// NewStorage creates a storage charged from and discharged into bus.
func NewStorage(label string, bus *Bus, in, out *Flow, opts ...StorageOption) *Storage {
	s := &Storage{
		label:                   label,
		input:                   Port{Bus: bus, Flow: in, Factor: 1},
		output:                  Port{Bus: bus, Flow: out, Factor: 1},
		MaxStorageLevel:         1,
		InflowConversionFactor:  1,
		OutflowConversionFactor: 1,
		Balanced:                true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Storage) Label() string   { return s.label }
func (s *Storage) Inputs() []Port  { return []Port{s.input} }
func (s *Storage) Outputs() []Port { return []Port{s.output} }

func WithLossRate(v float64) StorageOption {
	return func(s *Storage) { s.LossRate = v }
}

func WithInitialStorageLevel(v float64) StorageOption {
	return func(s *Storage) { s.InitialStorageLevel = Float(v) }
}

func WithStorageLevels(lo, hi float64) StorageOption {
	return func(s *Storage) {
		s.MinStorageLevel = lo
		s.MaxStorageLevel = hi
	}
}

func WithConversionFactors(inflow, outflow float64) StorageOption {
	return func(s *Storage) {
		s.InflowConversionFactor = inflow
		s.OutflowConversionFactor = outflow
	}
}

func WithNominalStorageCapacity(v float64) StorageOption {
	return func(s *Storage) { s.NominalStorageCapacity = Float(v) }
}

func WithInvestRelations(input, output float64) StorageOption {
	return func(s *Storage) {
		s.InvestRelationInputCapacity = Float(input)
		s.InvestRelationOutputCapacity = Float(output)
	}
}

func WithStorageInvestment(inv Investment) StorageOption {
	return func(s *Storage) { s.Investment = &inv }
}

// Unbalanced lets the last content differ from the initial content.
func Unbalanced() StorageOption {
	return func(s *Storage) { s.Balanced = false }
}

// HasCapacity reports whether the storage content is bounded.
func (s *Storage) HasCapacity() bool {
	return s.NominalStorageCapacity != nil || s.Investment != nil
}

func (s *Storage) validate() error {
	if s.LossRate < 0 || s.LossRate > 1 {
		return fmt.Errorf("loss rate must be in [0, 1], got %g", s.LossRate)
	}
	if s.MinStorageLevel < 0 || s.MaxStorageLevel > 1 || s.MinStorageLevel > s.MaxStorageLevel {
		return fmt.Errorf("invalid storage levels [%g, %g]", s.MinStorageLevel, s.MaxStorageLevel)
	}
	if s.InitialStorageLevel != nil {
		l := *s.InitialStorageLevel
		if l < s.MinStorageLevel || l > s.MaxStorageLevel {
			return fmt.Errorf("initial storage level %g outside [%g, %g]", l, s.MinStorageLevel, s.MaxStorageLevel)
		}
	}
	if s.InflowConversionFactor <= 0 || s.OutflowConversionFactor <= 0 {
		return fmt.Errorf("storage conversion factors must be positive")
	}
	if s.NominalStorageCapacity != nil && s.Investment != nil {
		return fmt.Errorf("storage has both a nominal capacity and an investment")
	}
	if s.NominalStorageCapacity != nil && *s.NominalStorageCapacity < 0 {
		return fmt.Errorf("negative storage capacity %g", *s.NominalStorageCapacity)
	}
	if (s.InvestRelationInputCapacity != nil || s.InvestRelationOutputCapacity != nil) && s.Investment == nil {
		return fmt.Errorf("invest relations require a storage investment")
	}
	if s.Investment != nil {
		if err := s.Investment.validate(); err != nil {
			return fmt.Errorf("investment: %w", err)
		}
	}
	return nil
}
