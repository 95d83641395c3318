package scenario

import (
	es "github.com/ugandapathways/pathways/pkg/energysystem"
	"github.com/ugandapathways/pathways/pkg/indicators"
)

// Simple is a small wind, pv, hydrogen and biogas system for trying out
// solvers.
func Simple() Scenario {
	return &definition{
		name:        "simple",
		description: "wind and pv with hydrogen storage and a biogas CHP",
		year:        2020,
		defaults: Parameters{
			"wind_nominal":        100,
			"pv_nominal":          50,
			"demand_el_nominal":   120,
			"h2_storage_capacity": 1000,
			"price_biogas":        10,
		},
		buses: []string{"electricity", "hydrogen", "heat"},
		build: func(b *builder) {
			el := b.bus("electricity")
			h2 := b.bus("hydrogen")
			heat := b.bus("heat")
			biogas := b.bus("biogas")

			b.source("wind", el, es.WithNominalValue(b.param("wind_nominal")), es.WithFix(b.col("wind")))
			b.source("pv", el, es.WithNominalValue(b.param("pv_nominal")), es.WithFix(b.col("pv")))
			b.source("biogas_resource", biogas, es.WithVariableCosts(b.param("price_biogas")))
			b.converter("h2_production", el, h2, 0.7)
			b.add(es.NewStorage("h2_storage", h2, es.NewFlow(), es.NewFlow(),
				es.WithNominalStorageCapacity(b.param("h2_storage_capacity")),
				es.WithLossRate(0.01),
				es.WithInitialStorageLevel(0.5),
			))
			b.converter("h2_to_elec", h2, el, 0.6)
			b.add(es.NewConverter("biogas_chp").
				Input(biogas, es.NewFlow()).
				Output(heat, es.NewFlow(), 0.5).
				Output(el, es.NewFlow(), 0.4))
			b.demand("electricity demand", el, "demand_el", b.param("demand_el_nominal"))
			b.excess("excess_electricity", el)
			b.excess("excess_heat", heat)
		},
		indicators: func(r *indicators.Reader, p Parameters, s *indicators.Scalars) error {
			s.Add("h2_produced_MWh", r.Sum("h2_production", "hydrogen"))
			s.Add("electricity_from_h2_MWh", r.Sum("h2_to_elec", "electricity"))
			s.Add("biogas_electricity_MWh", r.Sum("biogas_chp", "electricity"))
			s.Add("excess_electricity_MWh", r.Sum("electricity", "excess_electricity"))
			return nil
		},
	}
}

// storageAndWind adds the investment indicators every investment scenario
// reports.
func storageAndWind(r *indicators.Reader, s *indicators.Scalars, storage string) {
	s.Add("storage_invest_GWh", r.Invest(storage, "")/1e6)
	s.Add("wind_invest_MW", r.Invest("wind", "electricity")/1e3)
}

// resShare is 1 - fuel oil generation / electricity demand.
func resShare(r *indicators.Reader, s *indicators.Scalars, demand string) {
	fossil := r.Sum("pp_fuel_oil", "electricity")
	consumed := r.Sum("electricity", demand)
	s.Add("res_share", indicators.Share(consumed-fossil, consumed))
}

// InvestOptimize optimizes wind, pv, hydro, fuel oil and storage capacity
// against an electricity demand.
func InvestOptimize() Scenario {
	return &definition{
		name:        "invest_optimize",
		description: "capacity optimization of wind, pv, hydro, fuel oil and storage",
		year:        2012,
		defaults: Parameters{
			"price_fuel_oil":    37.9,
			"epc_wind":          138172.5,
			"epc_pv":            90345,
			"epc_hydro":         247500,
			"epc_storage":       21812.5,
			"epc_fuel_oil":      98000,
			"demand_el_nominal": 1,
		},
		buses: []string{"electricity"},
		build: func(b *builder) {
			fuel := b.bus("fuel_oil")
			el := b.bus("electricity")

			b.excess("excess_bel", el)
			b.source("fuel_oil_resource", fuel, es.WithVariableCosts(b.param("price_fuel_oil")))
			b.source("wind", el, es.WithFix(b.col("wind")), b.investment("epc_wind", 0))
			b.source("pv", el, es.WithFix(b.col("pv")), b.investment("epc_pv", 60))
			b.source("hydro", el,
				es.WithFix(b.col("hydro")),
				es.WithVariableCosts(3),
				es.WithInvestment(es.Investment{EPCosts: b.param("epc_hydro"), Existing: 1070, Maximum: es.Float(860)}),
			)
			b.demand("electricity demand", el, "demand_el", b.param("demand_el_nominal"))
			b.converter("pp_fuel_oil", fuel, el, 0.58, es.WithVariableCosts(3.4), b.investment("epc_fuel_oil", 92))
			b.add(es.NewStorage("storage", el, es.NewFlow(es.WithVariableCosts(0.0001)), es.NewFlow(),
				es.WithInitialStorageLevel(0),
				es.WithInvestRelations(1.0/6, 1.0/6),
				es.WithConversionFactors(1, 0.9),
				es.WithStorageInvestment(es.Investment{EPCosts: b.param("epc_storage")}),
			))
		},
		indicators: func(r *indicators.Reader, p Parameters, s *indicators.Scalars) error {
			storageAndWind(r, s, "storage")
			resShare(r, s, "electricity demand")
			return nil
		},
	}
}

func sustainableBiomassDefaults() Parameters {
	return Parameters{
		"price_fuel_oil":       37.9,
		"price_biomass":        1.042,
		"epc_wind":             138172.5,
		"epc_pv":               90345,
		"epc_hydro":            247500,
		"epc_battery":          21812.5,
		"epc_hydrogen_storage": 3937.5,
		"epc_electrolyzer":     50625,
		"epc_fuel_cell":        71750,
		"demand_el_nominal":    40500000,
	}
}

// renewables2040 adds wind, pv and hydro with the 2040 expansion limits.
func renewables2040(b *builder, el *es.Bus) {
	b.source("wind", el, es.WithFix(b.col("wind")), b.investment("epc_wind", 0))
	b.source("pv", el, es.WithFix(b.col("pv")), b.investment("epc_pv", 60))
	b.source("hydro", el,
		es.WithFix(b.col("hydro")),
		es.WithVariableCosts(3),
		es.WithInvestment(es.Investment{EPCosts: b.param("epc_hydro"), Existing: 1070, Maximum: es.Float(1930)}),
	)
}

// hydrogen2040 adds the electrolyzer, fuel cell and both storages.
func hydrogen2040(b *builder, el, h2 *es.Bus) {
	b.converter("electrolyzer", el, h2, 0.665, b.investment("epc_electrolyzer", 0))
	b.converter("fuel_cell", h2, el, 0.6, b.investment("epc_fuel_cell", 0))
	b.storage("battery", el, "epc_battery", es.NewFlow(), 0.9, 1)
	b.storage("hydrogen_storage", h2, "epc_hydrogen_storage", es.NewFlow(), 0.88, 1)
}

func biomass2040Indicators(r *indicators.Reader, p Parameters, s *indicators.Scalars) error {
	storageAndWind(r, s, "battery")
	resShare(r, s, "electricity demand")
	return nil
}

// SustainableBiomass2040 covers electricity, heat, cooking and transport in
// 2040 with a limited fuel oil supply.
func SustainableBiomass2040() Scenario {
	defaults := sustainableBiomassDefaults()
	for k, v := range map[string]float64{
		"price_lpg":                       50,
		"epc_fuel_oil":                    98000,
		"epc_biomass":                     206250,
		"epc_cooker_el":                   10000,
		"epc_stove_unimproved":            1000,
		"epc_stove_improved":              4000,
		"epc_lpg_stove":                   1000,
		"epc_combustion_engine_transport": 200000,
		"epc_electric_transport":          250000,
		"demand_heat_nominal":             40500000,
		"demand_cooking_nominal":          40500000,
		"demand_transport_nominal":        40500000,
	} {
		defaults[k] = v
	}

	return &definition{
		name:        "sustainable_biomass_2040",
		description: "2040 pathway with sustainable biomass across electricity, heat, cooking and transport",
		year:        2021,
		timesteps:   24,
		defaults:    defaults,
		buses:       []string{"electricity", "heat_bus", "cooking_bus", "transport_bus"},
		build: func(b *builder) {
			fuel := b.bus("fuel_oil_bus")
			el := b.bus("electricity")
			h2 := b.bus("hydrogen_bus")
			heat := b.bus("heat_bus")
			trans := b.bus("transport_bus")
			cook := b.bus("cooking_bus")
			bm := b.bus("biomass_bus")
			bagasse := b.bus("bagasse_bus")
			lpg := b.bus("lpg_bus")

			b.excess("excess_bel", el)
			b.excess("excess_heat", heat)
			// nominal value of 1 models continuous operation of the fuel oil plant
			b.source("fuel_oil", fuel, es.WithNominalValue(1), es.WithVariableCosts(b.param("price_fuel_oil")))
			b.source("biomass", bm, es.WithVariableCosts(b.param("price_biomass")))
			b.source("bagasse", bagasse, es.WithVariableCosts(b.param("price_biomass")))
			b.source("lpg", lpg, es.WithVariableCosts(b.param("price_lpg")))
			renewables2040(b, el)

			b.converter("pp_fuel_oil", fuel, el, 0.58,
				es.WithVariableCosts(3.4),
				es.WithInvestment(es.Investment{EPCosts: b.param("epc_fuel_oil"), Existing: 92, Maximum: es.Float(0)}),
			)
			chp := func() *es.Flow {
				return es.NewFlow(
					es.WithVariableCosts(5),
					es.WithInvestment(es.Investment{EPCosts: b.param("epc_biomass") / 2, Existing: 112, Maximum: es.Float(1700)}),
				)
			}
			b.add(es.NewConverter("pp_bagasse").
				Input(bagasse, es.NewFlow()).
				Output(el, chp(), 0.35).
				Output(heat, chp(), 0.35))
			hydrogen2040(b, el, h2)

			b.converter("electric transport vehicles", el, trans, 0.7, b.investment("epc_electric_transport", 0))
			b.converter("combustion engine transport vehicles", fuel, trans, 0.3, b.investment("epc_combustion_engine_transport", 0))
			b.converter("electric cookers", el, cook, 0.665, b.investment("epc_cooker_el", 0))
			b.converter("unimproved stoves", bm, cook, 0.2, b.investment("epc_stove_unimproved", 0))
			b.converter("improved stoves", bm, cook, 0.5, b.investment("epc_stove_improved", 0))
			b.converter("LPG stoves", lpg, cook, 0.5, b.investment("epc_lpg_stove", 0))

			b.demand("electricity demand", el, "demand_el", b.param("demand_el_nominal"))
			// heat demand is met electrically
			b.demand("heat demand", el, "demand_heat", b.param("demand_heat_nominal"))
			b.demand("cooking demand", cook, "demand_cooking", b.param("demand_cooking_nominal"))
			b.demand("transport demand", trans, "demand_transport", b.param("demand_transport_nominal"))
		},
		indicators: biomass2040Indicators,
	}
}

// SustainableBiomass2040Electric is the electricity-only 2040 pathway with
// fixed fuel oil and biomass supply profiles.
func SustainableBiomass2040Electric() Scenario {
	return &definition{
		name:        "sustainable_biomass_2040_electric",
		description: "electricity-only 2040 pathway with fixed fuel oil and biomass usage",
		year:        2021,
		timesteps:   24,
		defaults:    sustainableBiomassDefaults(),
		buses:       []string{"electricity"},
		build: func(b *builder) {
			fuel := b.bus("fuel_oil_bus")
			el := b.bus("electricity")
			bm := b.bus("biomass_bus")
			h2 := b.bus("hydrogen_bus")

			b.excess("excess_bel", el)
			b.source("fuel_oil", fuel,
				es.WithFix(b.col("fuel_oil_usage")),
				es.WithNominalValue(92),
				es.WithVariableCosts(b.param("price_fuel_oil")),
			)
			b.source("biomass", bm,
				es.WithFix(b.col("biomass_usage")),
				es.WithNominalValue(112),
				es.WithVariableCosts(b.param("price_biomass")),
			)
			renewables2040(b, el)
			b.demand("electricity demand", el, "demand_el", b.param("demand_el_nominal"))
			b.converter("pp_fuel_oil", fuel, el, 0.58, es.WithVariableCosts(3.4))
			b.converter("pp_biomass", bm, el, 0.35, es.WithVariableCosts(5))
			hydrogen2040(b, el, h2)
		},
		indicators: biomass2040Indicators,
	}
}
