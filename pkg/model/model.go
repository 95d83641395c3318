// Package model translates an energy system into a linear program and maps
// solutions back onto its flows and storages.
//
// Variables are one flow per edge and timestep, one investment per investable
// flow or storage and one content per storage and timestep plus the initial
// content. Rows balance every bus at every timestep, bound flows and contents
// by their capacity, tie converter outputs to their inputs and carry storage
// contents across timesteps.
package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ugandapathways/pathways/pkg/energysystem"
	"github.com/ugandapathways/pathways/pkg/log"
	"github.com/ugandapathways/pathways/pkg/results"
	"github.com/ugandapathways/pathways/pkg/solver"
)

// values closer to zero than this are reported as zero
const cleanTolerance = 1e-9

type edgeVars struct {
	edge   energysystem.Edge
	key    results.FlowKey
	flow   []int
	invest int
}

type storageVars struct {
	storage *energysystem.Storage
	in, out int
	initial int
	content []int
	invest  int
}

type ports struct {
	inputs, outputs []int
}

// Model is the linear program of an energy system.
type Model struct {
	es        *energysystem.EnergySystem
	problem   *solver.Problem
	edges     []edgeVars
	ports     map[string]*ports
	storages  []storageVars
	buildTime time.Duration
}

// Build validates es and creates its linear program.
func Build(ctx context.Context, es *energysystem.EnergySystem) (*Model, error) {
	if err := es.Validate(); err != nil {
		return nil, fmt.Errorf("invalid energy system: %w", err)
	}
	start := time.Now()
	m := &Model{
		es:      es,
		problem: &solver.Problem{},
		ports:   make(map[string]*ports),
	}
	if err := m.addFlows(); err != nil {
		return nil, err
	}
	m.addBusBalances()
	m.addConverters()
	m.addStorages()
	m.buildTime = time.Since(start)

	log.Ctx(ctx).DebugContext(ctx, "built model",
		slog.Int("columns", len(m.problem.Columns)),
		slog.Int("rows", len(m.problem.Rows)),
		slog.Int("nonZeros", m.problem.NonZeros()),
		slog.Duration("elapsed", m.buildTime),
	)
	return m, nil
}

// Problem returns the linear program. It must not be modified.
func (m *Model) Problem() *solver.Problem {
	return m.problem
}

func maxOrInf(v *float64) float64 {
	if v == nil {
		return math.Inf(1)
	}
	return *v
}

func (m *Model) addFlows() error {
	p := m.problem
	timesteps := m.es.Timesteps()
	seen := make(map[results.FlowKey]bool)
	for _, e := range m.es.Edges() {
		key := results.FlowKey{From: e.From, To: e.To}
		if seen[key] {
			return fmt.Errorf("%s is connected more than once", key)
		}
		seen[key] = true

		f := e.Flow
		ev := edgeVars{edge: e, key: key, flow: make([]int, timesteps), invest: -1}
		if inv := f.Investment; inv != nil {
			ev.invest = p.AddColumn("invest "+key.String(), inv.Minimum, maxOrInf(inv.Maximum), inv.EPCosts)
		}
		costs := f.VariableCosts.Or(0)
		for t := range timesteps {
			lo, hi := 0.0, math.Inf(1)
			if f.Investment == nil && f.NominalValue != nil {
				n := *f.NominalValue
				if f.Fix.IsSet() {
					lo, hi = f.Fix.At(t)*n, f.Fix.At(t)*n
				} else {
					lo, hi = f.Min.Or(0).At(t)*n, f.Max.Or(1).At(t)*n
				}
			}
			ev.flow[t] = p.AddColumn(fmt.Sprintf("flow %s %d", key, t), lo, hi, costs.At(t))
		}
		if f.Investment != nil {
			m.addInvestmentBounds(ev)
		}
		m.addFullLoadTime(ev)

		pt := m.ports[e.Component.Label()]
		if pt == nil {
			pt = &ports{}
			m.ports[e.Component.Label()] = pt
		}
		if e.Outgoing {
			pt.outputs = append(pt.outputs, len(m.edges))
		} else {
			pt.inputs = append(pt.inputs, len(m.edges))
		}
		m.edges = append(m.edges, ev)
	}
	return nil
}

// addInvestmentBounds ties the flow of an investment flow to its capacity
// existing + invest.
func (m *Model) addInvestmentBounds(ev edgeVars) {
	f := ev.edge.Flow
	existing := f.Investment.Existing
	for t, col := range ev.flow {
		if f.Fix.IsSet() {
			fix := f.Fix.At(t)
			m.problem.AddRow(fmt.Sprintf("fix %s %d", ev.key, t), solver.Equal, fix*existing,
				solver.Term{Col: col, Coef: 1}, solver.Term{Col: ev.invest, Coef: -fix})
			continue
		}
		hi := f.Max.Or(1).At(t)
		m.problem.AddRow(fmt.Sprintf("max %s %d", ev.key, t), solver.LessEqual, hi*existing,
			solver.Term{Col: col, Coef: 1}, solver.Term{Col: ev.invest, Coef: -hi})
		if lo := f.Min.Or(0).At(t); lo > 0 {
			m.problem.AddRow(fmt.Sprintf("min %s %d", ev.key, t), solver.GreaterEqual, lo*existing,
				solver.Term{Col: col, Coef: 1}, solver.Term{Col: ev.invest, Coef: -lo})
		}
	}
}

func (m *Model) addFullLoadTime(ev edgeVars) {
	f := ev.edge.Flow
	add := func(name string, sense solver.Sense, hours *float64) {
		if hours == nil {
			return
		}
		terms := make([]solver.Term, 0, len(ev.flow)+1)
		for _, col := range ev.flow {
			terms = append(terms, solver.Term{Col: col, Coef: 1})
		}
		var rhs float64
		if ev.invest >= 0 {
			terms = append(terms, solver.Term{Col: ev.invest, Coef: -*hours})
			rhs = *hours * f.Investment.Existing
		} else {
			rhs = *hours * *f.NominalValue
		}
		m.problem.AddRow(fmt.Sprintf("%s %s", name, ev.key), sense, rhs, terms...)
	}
	add("full_load_time_min", solver.GreaterEqual, f.FullLoadTimeMin)
	add("full_load_time_max", solver.LessEqual, f.FullLoadTimeMax)
}

func (m *Model) addBusBalances() {
	byBus := make(map[*energysystem.Bus][]int)
	for i, ev := range m.edges {
		byBus[ev.edge.Bus] = append(byBus[ev.edge.Bus], i)
	}
	for _, b := range m.es.Buses() {
		for t := range m.es.Timesteps() {
			terms := make([]solver.Term, 0, len(byBus[b]))
			for _, i := range byBus[b] {
				ev := m.edges[i]
				coef := -1.0
				if ev.edge.Outgoing {
					coef = 1
				}
				terms = append(terms, solver.Term{Col: ev.flow[t], Coef: coef})
			}
			m.problem.AddRow(fmt.Sprintf("balance %s %d", b.Label(), t), solver.Equal, 0, terms...)
		}
	}
}

// addConverters relates every port to the first input, which keeps the rows
// linearly independent for converters with several inputs and outputs.
func (m *Model) addConverters() {
	for _, n := range m.es.Components() {
		c, ok := n.(*energysystem.Converter)
		if !ok {
			continue
		}
		pt := m.ports[c.Label()]
		ref := m.edges[pt.inputs[0]]
		refFactor := c.Inputs()[0].Factor
		related := make([]int, 0, len(pt.inputs)+len(pt.outputs)-1)
		factors := make([]float64, 0, cap(related))
		for k, i := range pt.inputs[1:] {
			related = append(related, i)
			factors = append(factors, c.Inputs()[k+1].Factor)
		}
		for k, i := range pt.outputs {
			related = append(related, i)
			factors = append(factors, c.Outputs()[k].Factor)
		}
		for k, i := range related {
			ev := m.edges[i]
			for t := range m.es.Timesteps() {
				m.problem.AddRow(fmt.Sprintf("conversion %s %s %d", c.Label(), ev.key, t), solver.Equal, 0,
					solver.Term{Col: ref.flow[t], Coef: factors[k]},
					solver.Term{Col: ev.flow[t], Coef: -refFactor})
			}
		}
	}
}

func (m *Model) addStorages() {
	p := m.problem
	timesteps := m.es.Timesteps()
	for _, s := range m.es.Storages() {
		pt := m.ports[s.Label()]
		sv := storageVars{
			storage: s,
			in:      pt.inputs[0],
			out:     pt.outputs[0],
			content: make([]int, timesteps),
			invest:  -1,
		}

		lo, hi := 0.0, math.Inf(1)
		if s.NominalStorageCapacity != nil {
			n := *s.NominalStorageCapacity
			lo, hi = s.MinStorageLevel*n, s.MaxStorageLevel*n
		}
		if inv := s.Investment; inv != nil {
			sv.invest = p.AddColumn("invest "+s.Label(), inv.Minimum, maxOrInf(inv.Maximum), inv.EPCosts)
		}

		initLo, initHi := lo, hi
		if s.InitialStorageLevel != nil && s.NominalStorageCapacity != nil {
			initLo = *s.InitialStorageLevel * *s.NominalStorageCapacity
			initHi = initLo
		}
		sv.initial = p.AddColumn(fmt.Sprintf("content %s init", s.Label()), initLo, initHi, 0)
		switch {
		case s.Investment != nil && s.InitialStorageLevel != nil:
			l := *s.InitialStorageLevel
			p.AddRow(fmt.Sprintf("initial %s", s.Label()), solver.Equal, l*s.Investment.Existing,
				solver.Term{Col: sv.initial, Coef: 1}, solver.Term{Col: sv.invest, Coef: -l})
		case s.Investment != nil:
			m.addContentBounds(sv, sv.initial, "init")
		}

		for t := range timesteps {
			sv.content[t] = p.AddColumn(fmt.Sprintf("content %s %d", s.Label(), t), lo, hi, 0)
			if s.Investment != nil {
				m.addContentBounds(sv, sv.content[t], fmt.Sprint(t))
			}
		}

		in, out := m.edges[sv.in], m.edges[sv.out]
		for t := range timesteps {
			prev := sv.initial
			if t > 0 {
				prev = sv.content[t-1]
			}
			p.AddRow(fmt.Sprintf("storage %s %d", s.Label(), t), solver.Equal, 0,
				solver.Term{Col: sv.content[t], Coef: 1},
				solver.Term{Col: prev, Coef: -(1 - s.LossRate)},
				solver.Term{Col: in.flow[t], Coef: -s.InflowConversionFactor},
				solver.Term{Col: out.flow[t], Coef: 1 / s.OutflowConversionFactor},
			)
		}
		if s.Balanced {
			p.AddRow(fmt.Sprintf("balanced %s", s.Label()), solver.Equal, 0,
				solver.Term{Col: sv.content[timesteps-1], Coef: 1},
				solver.Term{Col: sv.initial, Coef: -1})
		}

		m.addInvestRelation(sv, in, s.InvestRelationInputCapacity)
		m.addInvestRelation(sv, out, s.InvestRelationOutputCapacity)
		m.storages = append(m.storages, sv)
	}
}

// addContentBounds bounds col by the levels of the invested storage capacity.
func (m *Model) addContentBounds(sv storageVars, col int, suffix string) {
	s := sv.storage
	existing := s.Investment.Existing
	m.problem.AddRow(fmt.Sprintf("max_content %s %s", s.Label(), suffix), solver.LessEqual, s.MaxStorageLevel*existing,
		solver.Term{Col: col, Coef: 1}, solver.Term{Col: sv.invest, Coef: -s.MaxStorageLevel})
	if s.MinStorageLevel > 0 {
		m.problem.AddRow(fmt.Sprintf("min_content %s %s", s.Label(), suffix), solver.GreaterEqual, s.MinStorageLevel*existing,
			solver.Term{Col: col, Coef: 1}, solver.Term{Col: sv.invest, Coef: -s.MinStorageLevel})
	}
}

// addInvestRelation ties the capacity of a storage flow to the storage
// capacity. Investment flows get an equal capacity relation, flows without any
// capacity are bounded by the relation at every timestep and flows with a
// nominal value keep it.
func (m *Model) addInvestRelation(sv storageVars, ev edgeVars, ratio *float64) {
	if ratio == nil {
		return
	}
	r := *ratio
	s := sv.storage
	f := ev.edge.Flow
	switch {
	case f.Investment != nil:
		m.problem.AddRow(fmt.Sprintf("invest_relation %s %s", s.Label(), ev.key), solver.Equal,
			r*s.Investment.Existing-f.Investment.Existing,
			solver.Term{Col: ev.invest, Coef: 1}, solver.Term{Col: sv.invest, Coef: -r})
	case f.NominalValue == nil:
		for t, col := range ev.flow {
			m.problem.AddRow(fmt.Sprintf("invest_relation %s %s %d", s.Label(), ev.key, t), solver.LessEqual,
				r*s.Investment.Existing,
				solver.Term{Col: col, Coef: 1}, solver.Term{Col: sv.invest, Coef: -r})
		}
	}
}

func clean(v float64) float64 {
	if math.Abs(v) < cleanTolerance {
		return 0
	}
	return v
}

// Results maps sol onto the flows and storages of the energy system.
func (m *Model) Results(sol solver.Solution) (*results.Results, error) {
	if len(sol.Values) != len(m.problem.Columns) {
		return nil, fmt.Errorf("solution has %d values, model has %d columns", len(sol.Values), len(m.problem.Columns))
	}
	r := results.New(m.es.Timeindex)
	sequence := func(cols []int) []float64 {
		out := make([]float64, len(cols))
		for t, col := range cols {
			out[t] = clean(sol.Values[col])
		}
		return out
	}

	for _, ev := range m.edges {
		r.SetSequence(ev.key, results.FlowSeq, sequence(ev.flow))
		f := ev.edge.Flow
		switch {
		case ev.invest >= 0:
			invest := clean(sol.Values[ev.invest])
			r.SetScalar(ev.key, results.InvestScalar, invest)
			r.SetScalar(ev.key, results.TotalScalar, invest+f.Investment.Existing)
		case f.NominalValue != nil:
			r.SetScalar(ev.key, results.TotalScalar, *f.NominalValue)
		}
	}
	for _, sv := range m.storages {
		key := results.FlowKey{From: sv.storage.Label()}
		r.SetSequence(key, results.StorageContent, sequence(sv.content))
		switch {
		case sv.invest >= 0:
			invest := clean(sol.Values[sv.invest])
			r.SetScalar(key, results.InvestScalar, invest)
			r.SetScalar(key, results.TotalScalar, invest+sv.storage.Investment.Existing)
		case sv.storage.NominalStorageCapacity != nil:
			r.SetScalar(key, results.TotalScalar, *sv.storage.NominalStorageCapacity)
		}
	}

	r.Meta = results.Meta{
		Objective: sol.Objective,
		Status:    string(sol.Status),
		Rows:      len(m.problem.Rows),
		Columns:   len(m.problem.Columns),
		NonZeros:  m.problem.NonZeros(),
		BuildTime: m.buildTime,
	}
	return r, nil
}

// Solve optimizes the model with s and returns its results.
func (m *Model) Solve(ctx context.Context, s solver.Solver) (*results.Results, error) {
	start := time.Now()
	sol, err := s.Solve(ctx, m.problem)
	if err != nil {
		return nil, fmt.Errorf("failed to solve with %s: %w", s.Name(), err)
	}
	elapsed := time.Since(start)
	log.Ctx(ctx).InfoContext(ctx, "solved model",
		slog.String("solver", s.Name()),
		slog.Float64("objective", sol.Objective),
		slog.Duration("elapsed", elapsed),
	)

	r, err := m.Results(sol)
	if err != nil {
		return nil, err
	}
	r.Meta.Solver = s.Name()
	r.Meta.SolveTime = elapsed
	return r, nil
}
