package energysystem

import "fmt"

// Sequence is a per-timestep parameter that is either a constant or a series.
type Sequence struct {
	set    bool
	scalar float64
	series []float64
}

// Scalar returns a sequence holding v at every timestep.
func Scalar(v float64) Sequence {
	return Sequence{set: true, scalar: v}
}

// Series returns a sequence backed by v.
func Series(v []float64) Sequence {
	return Sequence{set: true, series: v}
}

// IsSet reports whether the sequence was given a value.
func (s Sequence) IsSet() bool { return s.set }

// IsSeries reports whether the sequence varies per timestep.
func (s Sequence) IsSeries() bool { return s.series != nil }

// Len returns the length of the backing series or 0 for scalars.
func (s Sequence) Len() int { return len(s.series) }

// At returns the value at timestep t.
func (s Sequence) At(t int) float64 {
	if s.series != nil {
		return s.series[t]
	}
	return s.scalar
}

// Or returns s if it is set, otherwise def.
func (s Sequence) Or(def float64) Sequence {
	if s.set {
		return s
	}
	return Scalar(def)
}

// Float returns a pointer to v for optional parameters.
func Float(v float64) *float64 {
	return &v
}

// Investment makes the capacity of a flow or storage a decision variable.
type Investment struct {
	// EPCosts are the equivalent periodical costs per unit of capacity.
	EPCosts float64
	// Existing capacity that is available without investment.
	Existing float64
	// Maximum additional capacity, unlimited when nil.
	Maximum *float64
	// Minimum additional capacity.
	Minimum float64
}

func (i *Investment) validate() error {
	if i.EPCosts < 0 {
		return fmt.Errorf("negative ep_costs %g", i.EPCosts)
	}
	if i.Existing < 0 {
		return fmt.Errorf("negative existing capacity %g", i.Existing)
	}
	if i.Minimum < 0 {
		return fmt.Errorf("negative minimum %g", i.Minimum)
	}
	if i.Maximum != nil && *i.Maximum < i.Minimum {
		return fmt.Errorf("maximum %g below minimum %g", *i.Maximum, i.Minimum)
	}
	return nil
}

// Flow holds the attributes of an edge between a component and a bus.
//
// Fix, Min and Max are relative to the capacity of the flow, which is either
// NominalValue or the invested capacity plus Investment.Existing. Flows with
// neither are unbounded and ignore Fix, Min and Max.
type Flow struct {
	NominalValue    *float64
	VariableCosts   Sequence
	Fix             Sequence
	Min             Sequence
	Max             Sequence
	FullLoadTimeMin *float64
	FullLoadTimeMax *float64
	Investment      *Investment
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// NewFlow returns a flow configured by opts.
func NewFlow(opts ...FlowOption) *Flow {
	f := &Flow{}
	for _, o := range opts {
		o(f)
	}
	return f
}

func WithNominalValue(v float64) FlowOption {
	return func(f *Flow) { f.NominalValue = Float(v) }
}

func WithVariableCosts(v float64) FlowOption {
	return func(f *Flow) { f.VariableCosts = Scalar(v) }
}

func WithVariableCostSeries(v []float64) FlowOption {
	return func(f *Flow) { f.VariableCosts = Series(v) }
}

// WithFix fixes the flow to profile times its capacity.
func WithFix(profile []float64) FlowOption {
	return func(f *Flow) { f.Fix = Series(profile) }
}

// WithFixValue fixes the flow to v times its capacity at every timestep.
func WithFixValue(v float64) FlowOption {
	return func(f *Flow) { f.Fix = Scalar(v) }
}

func WithMin(v float64) FlowOption {
	return func(f *Flow) { f.Min = Scalar(v) }
}

func WithMax(v float64) FlowOption {
	return func(f *Flow) { f.Max = Scalar(v) }
}

func WithMaxSeries(v []float64) FlowOption {
	return func(f *Flow) { f.Max = Series(v) }
}

// WithFullLoadTimeMin bounds the summed flow from below by hours times capacity.
func WithFullLoadTimeMin(hours float64) FlowOption {
	return func(f *Flow) { f.FullLoadTimeMin = Float(hours) }
}

// WithFullLoadTimeMax bounds the summed flow from above by hours times capacity.
func WithFullLoadTimeMax(hours float64) FlowOption {
	return func(f *Flow) { f.FullLoadTimeMax = Float(hours) }
}

func WithInvestment(inv Investment) FlowOption {
	return func(f *Flow) { f.Investment = &inv }
}

// HasCapacity reports whether the flow is bounded by a nominal value or an
// investment.
func (f *Flow) HasCapacity() bool {
	return f.NominalValue != nil || f.Investment != nil
}

func (f *Flow) sequences() map[string]Sequence {
	return map[string]Sequence{
		"variable_costs": f.VariableCosts,
		"fix":            f.Fix,
		"min":            f.Min,
		"max":            f.Max,
	}
}

func (f *Flow) validate(timesteps int) error {
	if f.NominalValue != nil && *f.NominalValue < 0 {
		return fmt.Errorf("negative nominal value %g", *f.NominalValue)
	}
	for name, s := range f.sequences() {
		if s.IsSeries() && s.Len() != timesteps {
			return fmt.Errorf("%w: %s has %d values, expected %d", ErrProfileLength, name, s.Len(), timesteps)
		}
	}
	if f.Fix.IsSet() && !f.HasCapacity() {
		return ErrFixWithoutCapacity
	}
	if (f.FullLoadTimeMin != nil || f.FullLoadTimeMax != nil) && !f.HasCapacity() {
		return fmt.Errorf("full load time requires a nominal value or investment")
	}
	if f.FullLoadTimeMin != nil && f.FullLoadTimeMax != nil && *f.FullLoadTimeMin > *f.FullLoadTimeMax {
		return fmt.Errorf("full load time min %g above max %g", *f.FullLoadTimeMin, *f.FullLoadTimeMax)
	}
	if f.Investment != nil {
		if err := f.Investment.validate(); err != nil {
			return fmt.Errorf("investment: %w", err)
		}
	}
	return nil
}
