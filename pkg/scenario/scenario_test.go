package scenario

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	es "github.com/ugandapathways/pathways/pkg/energysystem"
	"github.com/ugandapathways/pathways/pkg/model"
	"github.com/ugandapathways/pathways/pkg/results"
	"github.com/ugandapathways/pathways/pkg/solver"
	"github.com/ugandapathways/pathways/pkg/solver/solvermock"
	"github.com/ugandapathways/pathways/pkg/timeseries"
)

const dataFile = "../../data/uganda_sequences.csv"

func loadData(t *testing.T) *timeseries.Table {
	t.Helper()
	data, err := timeseries.ReadFile(dataFile)
	require.NoError(t, err)
	return data
}

// run builds s on data and solves it with every column at zero.
func run(t *testing.T, s Scenario, data *timeseries.Table, p Parameters) (*es.EnergySystem, *results.Results) {
	t.Helper()
	ctx := context.Background()
	n := s.Timesteps(data)
	sys := es.New(timeseries.HourlyIndex(s.Year(), n))
	require.NoError(t, s.Build(sys, data.Head(n), p))
	m, err := model.Build(ctx, sys)
	require.NoError(t, err)

	sol := &solvermock.MockSolver{}
	sol.On("Solve", mock.Anything, m.Problem()).Return(solvermock.Zero(m.Problem()), nil)
	res, err := m.Solve(ctx, sol)
	require.NoError(t, err)
	sol.AssertExpectations(t)
	return sys, res
}

// spike returns n timesteps holding total in the first one.
func spike(n int, total float64) []float64 {
	v := make([]float64, n)
	v[0] = total
	return v
}

func TestAll(t *testing.T) {
	m := All()
	assert.Equal(t, []string{
		"baseline_2019",
		"baseline_2019_pathway",
		"invest_optimize",
		"simple",
		"sustainable_biomass_2040",
		"sustainable_biomass_2040_electric",
	}, m.Names())

	s, err := m.Scenario("invest_optimize")
	require.NoError(t, err)
	assert.Equal(t, 2012, s.Year())

	_, err = m.Scenario("baseline_2050")
	assert.ErrorIs(t, err, ErrUnknownScenario)
}

func TestParameters(t *testing.T) {
	p := Parameters{"price_lpg": 25.46, "epc_pv": 90345}

	t.Run("Override", func(t *testing.T) {
		o, err := p.With(map[string]float64{"price_lpg": 30})
		require.NoError(t, err)
		assert.Equal(t, 30.0, o["price_lpg"])
		assert.Equal(t, 25.46, p["price_lpg"])
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := p.With(map[string]float64{"price_lgp": 30})
		assert.ErrorIs(t, err, ErrUnknownParameter)
	})

	t.Run("Defaults Are Copies", func(t *testing.T) {
		s := InvestOptimize()
		d := s.Defaults()
		d["epc_pv"] = 0
		assert.Equal(t, 90345.0, s.Defaults()["epc_pv"])
	})

	assert.Equal(t, []string{"epc_pv", "price_lpg"}, p.Names())
}

func TestReadParameters(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		want    map[string]float64
		wantErr string
	}{
		{"Valid", "parameter,value\nepc_pv,90345\nprice_lpg, 25.46\n", map[string]float64{"epc_pv": 90345, "price_lpg": 25.46}, ""},
		{"Header Only", "parameter,value\n", map[string]float64{}, ""},
		{"Empty", "", nil, "no header"},
		{"Wrong Header", "name,value\nepc_pv,1\n", nil, "unexpected parameter csv header"},
		{"Duplicate", "parameter,value\nepc_pv,1\nepc_pv,2\n", nil, "duplicate parameter"},
		{"Not A Number", "parameter,value\nepc_pv,a lot\n", nil, "epc_pv"},
		{"Extra Field", "parameter,value\nepc_pv,1,2\n", nil, "failed to read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadParameters(strings.NewReader(tt.csv))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadParametersYAML(t *testing.T) {
	got, err := ReadParametersYAML(strings.NewReader("epc_pv: 90345\nprice_lpg: 25.46\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"epc_pv": 90345, "price_lpg": 25.46}, got)

	got, err = ReadParametersYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ReadParametersYAML(strings.NewReader("epc_pv: a lot\n"))
	assert.Error(t, err)

	_, err = ReadParametersYAML(strings.NewReader("- epc_pv\n"))
	assert.Error(t, err)
}

func TestReadParameterFiles(t *testing.T) {
	p, err := ReadParameterFiles(
		"../../data/params/epc_costs.csv",
		"../../data/params/energy_prices_uganda_2023.csv",
		"../../data/params/sustainable_biomass_limits.csv",
	)
	require.NoError(t, err)
	assert.Equal(t, 88.9, p["price_fuel_oil"])
	assert.Equal(t, 506192.5, p["epc_nuclear"])
	assert.Equal(t, 4837500.0, p["papyrus_biomass_limit"])

	// the files hold exactly the baseline prices, costs and limits
	d := Baseline2019().Defaults()
	merged, err := d.With(p)
	require.NoError(t, err)
	assert.Equal(t, d, merged)

	t.Run("YAML Overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "overrides.yaml")
		require.NoError(t, os.WriteFile(path, []byte("price_fuel_oil: 95\n"), 0o600))
		p, err := ReadParameterFiles("../../data/params/energy_prices_uganda_2023.csv", path)
		require.NoError(t, err)
		assert.Equal(t, 95.0, p["price_fuel_oil"])
		assert.Equal(t, 25.46, p["price_lpg"])
	})

	_, err = ReadParameterFiles("../../data/params/missing.csv")
	assert.Error(t, err)
}

func TestScenarios(t *testing.T) {
	data := loadData(t)
	indicatorNames := map[string][]string{
		"simple":                            {"h2_produced_MWh", "electricity_from_h2_MWh", "biogas_electricity_MWh", "excess_electricity_MWh"},
		"invest_optimize":                   {"storage_invest_GWh", "wind_invest_MW", "res_share"},
		"sustainable_biomass_2040":          {"storage_invest_GWh", "wind_invest_MW", "res_share"},
		"sustainable_biomass_2040_electric": {"storage_invest_GWh", "wind_invest_MW", "res_share"},
		"baseline_2019": {
			"storage_invest_GWh",
			"wind_invest_MW",
			"unsustainable_biomass_MWh",
			"total_woody_biomass_MWh",
			"effective_end_use_stove_improved",
			"effective_end_use_stove_unimproved",
			"non_renewable_biomass_cooking",
			"biofuel_share",
			"RE_share_electricity_production",
			"RE_share_effective_end_use_energy",
		},
	}
	indicatorNames["baseline_2019_pathway"] = indicatorNames["baseline_2019"]

	for _, name := range All().Names() {
		t.Run(name, func(t *testing.T) {
			s, err := All().Scenario(name)
			require.NoError(t, err)
			sys, res := run(t, s, data, s.Defaults())

			for _, bus := range s.Buses() {
				_, ok := sys.Node(bus)
				assert.True(t, ok, bus)
			}

			ind, err := s.Indicators(res, s.Defaults())
			require.NoError(t, err)
			var names []string
			for _, v := range ind {
				names = append(names, v.Name)
				assert.Zero(t, v.Value, v.Name)
			}
			assert.Equal(t, indicatorNames[name], names)
		})
	}
}

func TestScenariosOptimize(t *testing.T) {
	data := loadData(t)
	ctx := context.Background()

	for _, name := range All().Names() {
		for _, n := range []int{1, 3} {
			t.Run(fmt.Sprintf("%s/%d", name, n), func(t *testing.T) {
				s, err := All().Scenario(name)
				require.NoError(t, err)
				sel := &Selection{Scenario: s, MaxTimesteps: n}
				require.Equal(t, n, sel.Timesteps(data))

				sys := es.New(timeseries.HourlyIndex(s.Year(), n))
				require.NoError(t, s.Build(sys, data.Head(n), s.Defaults()))
				m, err := model.Build(ctx, sys)
				require.NoError(t, err)
				res, err := m.Solve(ctx, solver.NewSimplex())
				require.NoError(t, err)
				assert.Equal(t, string(solver.StatusOptimal), res.Meta.Status)
				assert.False(t, math.IsNaN(res.Meta.Objective))

				var scale float64
				for _, e := range sys.Edges() {
					flow, err := res.Flow(e.From, e.To)
					require.NoError(t, err)
					for _, v := range flow {
						scale = math.Max(scale, math.Abs(v))
					}
				}
				assert.NoError(t, results.CheckBalance(sys, res, 1e-6*(1+scale)))

				ind, err := s.Indicators(res, s.Defaults())
				require.NoError(t, err)
				for _, v := range ind {
					assert.False(t, math.IsNaN(v.Value) || math.IsInf(v.Value, 0), v.Name)
					if strings.Contains(strings.ToLower(v.Name), "share") {
						assert.GreaterOrEqual(t, v.Value, 0.0, v.Name)
						assert.LessOrEqual(t, v.Value, 1.0, v.Name)
					}
				}
			})
		}
	}
}

func TestTimesteps(t *testing.T) {
	data := loadData(t)
	require.Equal(t, 24, data.Len())
	assert.Equal(t, 24, InvestOptimize().Timesteps(data))
	assert.Equal(t, 24, Baseline2019().Timesteps(data))
	assert.Equal(t, 3, Baseline2019().Timesteps(data.Head(3)))

	sel := &Selection{Scenario: Baseline2019(), MaxTimesteps: 4}
	assert.Equal(t, 4, sel.Timesteps(data))
	sel.MaxTimesteps = 100
	assert.Equal(t, 24, sel.Timesteps(data))
}

func TestBuildErrors(t *testing.T) {
	data := loadData(t)

	t.Run("Missing Column", func(t *testing.T) {
		d := data.Head(2)
		partial := timeseries.NewTable()
		for _, name := range d.Names() {
			if name == "wind" {
				continue
			}
			col, err := d.Column(name)
			require.NoError(t, err)
			require.NoError(t, partial.Set(name, col))
		}
		s := InvestOptimize()
		err := s.Build(es.New(timeseries.HourlyIndex(s.Year(), 2)), partial, s.Defaults())
		assert.ErrorIs(t, err, timeseries.ErrMissingColumn)
	})

	t.Run("Missing Parameter", func(t *testing.T) {
		s := InvestOptimize()
		p := s.Defaults()
		delete(p, "epc_wind")
		err := s.Build(es.New(timeseries.HourlyIndex(s.Year(), 2)), data.Head(2), p)
		assert.ErrorIs(t, err, ErrUnknownParameter)
	})

	t.Run("Length Mismatch", func(t *testing.T) {
		s := Simple()
		err := s.Build(es.New(timeseries.HourlyIndex(s.Year(), 3)), data.Head(2), s.Defaults())
		assert.ErrorIs(t, err, es.ErrProfileLength)
	})
}

func TestInvestOptimizeIndicators(t *testing.T) {
	data := loadData(t).Head(4)
	s := InvestOptimize()
	_, res := run(t, s, data, s.Defaults())

	res.SetSequence(results.FlowKey{From: "pp_fuel_oil", To: "electricity"}, results.FlowSeq, spike(4, 10))
	res.SetSequence(results.FlowKey{From: "electricity", To: "electricity demand"}, results.FlowSeq, spike(4, 40))
	res.SetScalar(results.FlowKey{From: "wind", To: "electricity"}, results.InvestScalar, 2500)
	res.SetScalar(results.FlowKey{From: "storage"}, results.InvestScalar, 3e6)

	ind, err := s.Indicators(res, s.Defaults())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		"storage_invest_GWh": 3,
		"wind_invest_MW":     2.5,
		"res_share":          0.75,
	}, ind.Map())
}

func TestBaselineIndicators(t *testing.T) {
	data := loadData(t).Head(2)
	s := Baseline2019()
	p, err := s.Defaults().With(map[string]float64{
		"tree_biomass_limit":    10,
		"bush_biomass_limit":    10,
		"papyrus_biomass_limit": 10,
	})
	require.NoError(t, err)
	_, res := run(t, s, data, p)

	set := func(from, to string, total float64) {
		res.SetSequence(results.FlowKey{From: from, To: to}, results.FlowSeq, spike(2, total))
	}
	set("tree biomass", "woody_biomass_bus", 30)
	set("bush biomass", "woody_biomass_bus", 5)
	set("improved stoves", "cooking_bus", 7)
	set("unimproved stoves", "cooking_bus", 7)
	set("blender_biofuel", "fuel_bus", 1)
	set("fuel_oil", "fuel_bus", 3)
	set("pp_fuel_oil", "electricity", 10)
	set("electricity", "electricity demand", 50)
	set("electricity", "electrolyzer", 10)
	set("fuel_cell", "electricity", 20)
	set("LPG stoves", "cooking_bus", 2)
	set("cooking_bus", "cooking demand", 36)

	ind, err := s.Indicators(res, p)
	require.NoError(t, err)
	got := ind.Map()
	assert.Equal(t, 20.0, got["unsustainable_biomass_MWh"])
	assert.Equal(t, 35.0, got["total_woody_biomass_MWh"])
	assert.InDelta(t, 8, got["non_renewable_biomass_cooking"], 1e-9)
	assert.InDelta(t, 0.25, got["biofuel_share"], 1e-12)
	// 1 - 10 / (50 + 10 - 20)
	assert.InDelta(t, 0.75, got["RE_share_electricity_production"], 1e-12)
	// 1 - (10 + 2 + 8) / (50 + 10 - 20 + 36)
	assert.InDelta(t, 1-20.0/76, got["RE_share_effective_end_use_energy"], 1e-12)
}
