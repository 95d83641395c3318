package model

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/ugandapathways/pathways/pkg/energysystem"
	"github.com/ugandapathways/pathways/pkg/results"
	"github.com/ugandapathways/pathways/pkg/solver"
	"github.com/ugandapathways/pathways/pkg/timeseries"
)

func solve(t *testing.T, sys *es.EnergySystem) *results.Results {
	t.Helper()
	ctx := context.Background()
	m, err := Build(ctx, sys)
	require.NoError(t, err)
	res, err := m.Solve(ctx, solver.NewSimplex())
	require.NoError(t, err)
	require.NoError(t, results.CheckBalance(sys, res, 1e-6))
	return res
}

func sum(t *testing.T, res *results.Results, from, to string) float64 {
	t.Helper()
	v, err := res.Sum(from, to)
	require.NoError(t, err)
	return v
}

func newSystem(n int) *es.EnergySystem {
	return es.New(timeseries.HourlyIndex(2019, n))
}

func TestSourceToDemand(t *testing.T) {
	sys := newSystem(2)
	el := es.NewBus("electricity")
	sys.MustAdd(el,
		es.NewSource("grid", el, es.NewFlow(es.WithVariableCosts(2))),
		es.NewSink("demand", el, es.NewFlow(es.WithNominalValue(10), es.WithFix([]float64{0.5, 1}))),
	)

	res := solve(t, sys)
	flow, err := res.Flow("grid", "electricity")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{5, 10}, flow, 1e-9)
	assert.InDelta(t, 30, res.Meta.Objective, 1e-9)
	assert.Equal(t, "simplex", res.Meta.Solver)
	assert.Equal(t, "optimal", res.Meta.Status)

	total, ok := res.Scalars[results.FlowKey{From: "electricity", To: "demand"}][results.TotalScalar]
	require.True(t, ok)
	assert.Equal(t, 10.0, total)
}

func TestMeritOrder(t *testing.T) {
	sys := newSystem(2)
	el := es.NewBus("electricity")
	sys.MustAdd(el,
		es.NewSource("cheap", el, es.NewFlow(es.WithNominalValue(4), es.WithVariableCosts(1))),
		es.NewSource("expensive", el, es.NewFlow(es.WithVariableCosts(5))),
		es.NewSink("demand", el, es.NewFlow(es.WithNominalValue(6), es.WithFixValue(1))),
	)

	res := solve(t, sys)
	assert.InDelta(t, 8, sum(t, res, "cheap", "electricity"), 1e-9)
	assert.InDelta(t, 4, sum(t, res, "expensive", "electricity"), 1e-9)
	assert.InDelta(t, 28, res.Meta.Objective, 1e-9)
}

func TestConverter(t *testing.T) {
	t.Run("Single Output", func(t *testing.T) {
		sys := newSystem(1)
		fuel := es.NewBus("fuel")
		el := es.NewBus("electricity")
		sys.MustAdd(fuel, el,
			es.NewSource("fuel oil", fuel, es.NewFlow(es.WithVariableCosts(1))),
			es.NewConverter("plant").
				Input(fuel, es.NewFlow()).
				Output(el, es.NewFlow(), 0.5),
			es.NewSink("demand", el, es.NewFlow(es.WithNominalValue(10), es.WithFixValue(1))),
		)

		res := solve(t, sys)
		assert.InDelta(t, 20, sum(t, res, "fuel", "plant"), 1e-9)
		assert.InDelta(t, 20, res.Meta.Objective, 1e-9)
	})

	t.Run("Combined Heat And Power", func(t *testing.T) {
		sys := newSystem(2)
		gas := es.NewBus("gas")
		el := es.NewBus("electricity")
		heat := es.NewBus("heat")
		sys.MustAdd(gas, el, heat,
			es.NewSource("biogas", gas, es.NewFlow(es.WithVariableCosts(1))),
			es.NewConverter("chp").
				Input(gas, es.NewFlow()).
				Output(el, es.NewFlow(), 0.4).
				Output(heat, es.NewFlow(), 0.5),
			es.NewSink("demand_el", el, es.NewFlow(es.WithNominalValue(4), es.WithFixValue(1))),
			es.NewSink("excess_heat", heat, es.NewFlow()),
		)

		res := solve(t, sys)
		assert.InDelta(t, 20, sum(t, res, "gas", "chp"), 1e-9)
		assert.InDelta(t, 10, sum(t, res, "chp", "heat"), 1e-9)
		assert.InDelta(t, 10, sum(t, res, "heat", "excess_heat"), 1e-9)
	})

	t.Run("Two Inputs", func(t *testing.T) {
		sys := newSystem(1)
		fuel := es.NewBus("fuel")
		bio := es.NewBus("biofuel")
		tr := es.NewBus("transport")
		sys.MustAdd(fuel, bio, tr,
			es.NewSource("fuel oil", fuel, es.NewFlow(es.WithVariableCosts(1))),
			es.NewSource("ethanol", bio, es.NewFlow(es.WithVariableCosts(2))),
			es.NewConverter("blender").
				Input(fuel, es.NewFlow()).
				InputFactor(bio, es.NewFlow(), 0.25).
				Output(tr, es.NewFlow(), 1),
			es.NewSink("demand", tr, es.NewFlow(es.WithNominalValue(8), es.WithFixValue(1))),
		)

		res := solve(t, sys)
		assert.InDelta(t, 8, sum(t, res, "fuel", "blender"), 1e-9)
		assert.InDelta(t, 2, sum(t, res, "biofuel", "blender"), 1e-9)
	})
}

func TestInvestment(t *testing.T) {
	sys := newSystem(2)
	el := es.NewBus("electricity")
	sys.MustAdd(el,
		es.NewSource("wind", el, es.NewFlow(
			es.WithFix([]float64{0.5, 1}),
			es.WithInvestment(es.Investment{EPCosts: 10}),
		)),
		es.NewSource("backup", el, es.NewFlow(es.WithVariableCosts(100))),
		es.NewSink("demand", el, es.NewFlow(es.WithNominalValue(5), es.WithFixValue(1))),
	)

	res := solve(t, sys)
	invest, err := res.Invest("wind", "electricity")
	require.NoError(t, err)
	assert.InDelta(t, 5, invest, 1e-9)
	assert.InDelta(t, 300, res.Meta.Objective, 1e-9)

	t.Run("Maximum", func(t *testing.T) {
		sys := newSystem(2)
		el := es.NewBus("electricity")
		sys.MustAdd(el,
			es.NewSource("wind", el, es.NewFlow(
				es.WithFix([]float64{0.5, 1}),
				es.WithInvestment(es.Investment{EPCosts: 10, Existing: 1, Maximum: es.Float(2)}),
			)),
			es.NewSource("backup", el, es.NewFlow(es.WithVariableCosts(100))),
			es.NewSink("demand", el, es.NewFlow(es.WithNominalValue(5), es.WithFixValue(1))),
		)

		res := solve(t, sys)
		invest, err := res.Invest("wind", "electricity")
		require.NoError(t, err)
		assert.InDelta(t, 2, invest, 1e-9)
		assert.InDelta(t, 3, res.Scalars[results.FlowKey{From: "wind", To: "electricity"}][results.TotalScalar], 1e-9)
		flow, err := res.Flow("wind", "electricity")
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{1.5, 3}, flow, 1e-9)
	})
}

func TestFullLoadTime(t *testing.T) {
	sys := newSystem(2)
	el := es.NewBus("electricity")
	sys.MustAdd(el,
		es.NewSource("a", el, es.NewFlow(es.WithNominalValue(10), es.WithVariableCosts(1))),
		es.NewSource("b", el, es.NewFlow(es.WithNominalValue(10), es.WithVariableCosts(2), es.WithFullLoadTimeMin(1.5))),
		es.NewSink("demand", el, es.NewFlow(es.WithNominalValue(10), es.WithFixValue(1))),
	)

	res := solve(t, sys)
	assert.InDelta(t, 15, sum(t, res, "b", "electricity"), 1e-9)
	assert.InDelta(t, 5, sum(t, res, "a", "electricity"), 1e-9)
	assert.InDelta(t, 35, res.Meta.Objective, 1e-9)
}

func TestStorage(t *testing.T) {
	t.Run("Shifts Cheap Energy", func(t *testing.T) {
		sys := newSystem(2)
		el := es.NewBus("electricity")
		sys.MustAdd(el,
			es.NewSource("grid", el, es.NewFlow(es.WithVariableCostSeries([]float64{1, 10}))),
			es.NewSink("demand", el, es.NewFlow(es.WithNominalValue(10), es.WithFix([]float64{0, 1}))),
			es.NewStorage("battery", el, es.NewFlow(), es.NewFlow(),
				es.WithNominalStorageCapacity(20),
				es.WithInitialStorageLevel(0),
			),
		)

		res := solve(t, sys)
		content, ok := res.Sequence(results.FlowKey{From: "battery"}, results.StorageContent)
		require.True(t, ok)
		assert.InDeltaSlice(t, []float64{10, 0}, content, 1e-9)
		assert.InDelta(t, 10, res.Meta.Objective, 1e-9)
	})

	t.Run("Invest Relations", func(t *testing.T) {
		sys := newSystem(2)
		el := es.NewBus("electricity")
		sys.MustAdd(el,
			es.NewSource("grid", el, es.NewFlow(es.WithVariableCostSeries([]float64{1, 10}))),
			es.NewSink("demand", el, es.NewFlow(es.WithNominalValue(6), es.WithFix([]float64{0, 1}))),
			es.NewStorage("battery", el, es.NewFlow(), es.NewFlow(),
				es.WithInvestRelations(1, 1.0/6),
				es.WithStorageInvestment(es.Investment{EPCosts: 1}),
			),
		)

		res := solve(t, sys)
		invest, err := res.Invest("battery", "")
		require.NoError(t, err)
		assert.InDelta(t, 36, invest, 1e-6)
		assert.InDelta(t, 42, res.Meta.Objective, 1e-6)
	})

	t.Run("Losses And Efficiency", func(t *testing.T) {
		sys := newSystem(2)
		el := es.NewBus("electricity")
		sys.MustAdd(el,
			es.NewSource("grid", el, es.NewFlow(es.WithVariableCostSeries([]float64{1, 100}))),
			es.NewSink("demand", el, es.NewFlow(es.WithNominalValue(9), es.WithFix([]float64{0, 1}))),
			es.NewStorage("battery", el, es.NewFlow(), es.NewFlow(),
				es.WithNominalStorageCapacity(100),
				es.WithInitialStorageLevel(0),
				es.WithLossRate(0.1),
				es.WithConversionFactors(1, 0.9),
				es.Unbalanced(),
			),
		)

		res := solve(t, sys)
		// 9 discharged needs 10 content after one step of 10% loss, 11.11 charged
		assert.InDelta(t, 100.0/9, sum(t, res, "electricity", "battery"), 1e-6)
	})
}

func TestInfeasible(t *testing.T) {
	sys := newSystem(1)
	el := es.NewBus("electricity")
	sys.MustAdd(el,
		es.NewSource("small", el, es.NewFlow(es.WithNominalValue(5))),
		es.NewSink("demand", el, es.NewFlow(es.WithNominalValue(10), es.WithFixValue(1))),
	)
	ctx := context.Background()
	m, err := Build(ctx, sys)
	require.NoError(t, err)
	_, err = m.Solve(ctx, solver.NewSimplex())
	assert.ErrorIs(t, err, solver.ErrInfeasible)
}

func TestBuild(t *testing.T) {
	t.Run("Invalid System", func(t *testing.T) {
		sys := newSystem(2)
		el := es.NewBus("electricity")
		sys.MustAdd(el, es.NewSink("demand", el, es.NewFlow(es.WithNominalValue(1), es.WithFix([]float64{1}))))
		_, err := Build(context.Background(), sys)
		assert.ErrorIs(t, err, es.ErrProfileLength)
	})

	t.Run("Row Names", func(t *testing.T) {
		sys := newSystem(1)
		el := es.NewBus("electricity")
		sys.MustAdd(el,
			es.NewSource("pv", el, es.NewFlow(es.WithInvestment(es.Investment{EPCosts: 1}))),
			es.NewSink("demand", el, es.NewFlow(es.WithNominalValue(1), es.WithFixValue(1))),
		)
		m, err := Build(context.Background(), sys)
		require.NoError(t, err)

		var names []string
		for _, r := range m.Problem().Rows {
			names = append(names, r.Name)
		}
		assert.Contains(t, names, "balance electricity 0")
		assert.Contains(t, names, "max pv->electricity 0")
		var cols []string
		for _, c := range m.Problem().Columns {
			cols = append(cols, c.Name)
		}
		assert.True(t, strings.HasPrefix(cols[0], "invest pv"))
	})

	t.Run("Results Length Mismatch", func(t *testing.T) {
		sys := newSystem(1)
		el := es.NewBus("electricity")
		sys.MustAdd(el, es.NewSink("excess", el, es.NewFlow()))
		m, err := Build(context.Background(), sys)
		require.NoError(t, err)
		_, err = m.Results(solver.Solution{})
		assert.Error(t, err)
	})
}
