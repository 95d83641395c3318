package scenario

import (
	es "github.com/ugandapathways/pathways/pkg/energysystem"
	"github.com/ugandapathways/pathways/pkg/indicators"
	"github.com/ugandapathways/pathways/pkg/results"
)

// Energy prices for Uganda in 2023 in $/MWh of lower heating value.
func energyPrices2023() Parameters {
	return Parameters{
		"price_fuel_oil":      88.9,
		"price_biofuel":       64.1,
		"price_kerosene":      99.8,
		"price_lpg":           25.46,
		"price_woody_biomass": 7.2,
		"price_bagasse":       6.53,
		"price_uranium":       3.4,
		"price_peat":          2.78,
		"price_waste_biomass": 1,
	}
}

// Sustainable yearly harvest of woody biomass in MWh.
func biomassLimits() Parameters {
	return Parameters{
		"tree_biomass_limit":    282272500,
		"bush_biomass_limit":    11287500,
		"papyrus_biomass_limit": 4837500,
	}
}

// Equivalent periodical costs in $ per MW and year.
func epcCosts() Parameters {
	return Parameters{
		"epc_wind":                        138172.5,
		"epc_pv":                          90345,
		"epc_hydro":                       247500,
		"epc_battery":                     21812.5,
		"epc_hydrogen_storage":            3937.5,
		"epc_fuel_oil":                    98000,
		"epc_peat":                        187182.5,
		"epc_biomass":                     206250,
		"epc_electrolyzer":                50625,
		"epc_nuclear":                     506192.5,
		"epc_geothermal":                  330000,
		"epc_fuel_cell":                   71750,
		"epc_cooker_el":                   830,
		"epc_biogas_heating":              3209,
		"epc_industrial_boiler":           11000,
		"epc_wood_boiler":                 4000,
		"epc_anaerobic_digester":          4437.5,
		"epc_stove_unimproved":            52.5,
		"epc_stove_improved":              262.5,
		"epc_lpg_stove":                   1300,
		"epc_ethanol_stove":               1000,
		"epc_combustion_engine_transport": 13937.5,
		"epc_electric_transport":          20500,
		"epc_hydrogen_transport":          17875,
		"epc_kerosene_aviation":           650687.5,
		"epc_hydrogen_aviation":           1000000,
	}
}

func merge(ps ...Parameters) Parameters {
	m := make(Parameters)
	for _, p := range ps {
		for k, v := range p {
			m[k] = v
		}
	}
	return m
}

// Baseline2019 is the superstructure of every resource, plant, vehicle and
// cooking device at the 2019 demand level.
func Baseline2019() Scenario {
	return baseline("baseline_2019", "superstructure at the 2019 demand level", Parameters{
		"biofuel_max":              1007,
		"demand_el_nominal":        4168,
		"demand_heat_nominal":      2908,
		"demand_cooking_nominal":   38387,
		"demand_transport_nominal": 3990,
		"demand_aviation_nominal":  154,
	})
}

// Baseline2019Pathway is the superstructure with the pathway demand levels
// and no biofuel supply.
func Baseline2019Pathway() Scenario {
	return baseline("baseline_2019_pathway", "superstructure at the pathway demand level without biofuel", Parameters{
		"biofuel_max":              0,
		"demand_el_nominal":        740.6,
		"demand_heat_nominal":      1217,
		"demand_cooking_nominal":   20943,
		"demand_transport_nominal": 1187,
		"demand_aviation_nominal":  45.81,
	})
}

var woodyBiomass = []struct {
	name, source, limit string
}{
	{"tree", "tree biomass", "tree_biomass_limit"},
	{"bush", "bush biomass", "bush_biomass_limit"},
	{"papyrus", "papyrus biomass", "papyrus_biomass_limit"},
}

func baseline(name, description string, demands Parameters) Scenario {
	return &definition{
		name:        name,
		description: description,
		year:        2021,
		timesteps:   24,
		defaults:    merge(energyPrices2023(), biomassLimits(), epcCosts(), demands),
		buses:       []string{"electricity", "heat_bus", "cooking_bus", "transport_bus", "aviation_bus"},
		build:       buildBaseline,
		indicators:  baselineIndicators,
	}
}

func buildBaseline(b *builder) {
	fuel := b.bus("fuel_bus")
	biofuel := b.bus("biofuel_bus")
	uranium := b.bus("uranium_bus")
	el := b.bus("electricity")
	peat := b.bus("peat_bus")
	organic := b.bus("organic_waste_bus")
	kerosene := b.bus("kerosene_bus")
	bagasse := b.bus("bagasse_bus")
	biogas := b.bus("biogas_bus")
	heat := b.bus("heat_bus")
	trans := b.bus("transport_bus")
	avia := b.bus("aviation_bus")
	cook := b.bus("cooking_bus")
	h2 := b.bus("hydrogen_bus")
	lpg := b.bus("lpg_bus")
	wood := b.bus("woody_biomass_bus")

	// resources
	b.source("fuel_oil", fuel, es.WithVariableCosts(b.param("price_fuel_oil")))
	b.source("biofuel", biofuel,
		es.WithVariableCosts(b.param("price_biofuel")),
		es.WithNominalValue(1),
		es.WithMax(b.param("biofuel_max")),
	)
	b.source("peat", peat, es.WithVariableCosts(b.param("price_peat")))
	b.source("uranium", uranium, es.WithVariableCosts(b.param("price_uranium")))
	for _, w := range woodyBiomass {
		b.source(w.source, wood, es.WithVariableCosts(b.param("price_woody_biomass")))
	}
	b.source("bagasse", bagasse,
		es.WithVariableCosts(b.param("price_bagasse")),
		es.WithNominalValue(1),
		es.WithMax(726.4),
	)
	for _, w := range []string{"vegetal waste", "animal waste", "human waste"} {
		b.source(w, organic, es.WithVariableCosts(b.param("price_waste_biomass")))
	}
	b.source("lpg", lpg, es.WithVariableCosts(b.param("price_lpg")))
	b.source("kerosene", kerosene, es.WithVariableCosts(b.param("price_kerosene")))

	// electricity
	n := float64(b.sys.Timesteps())
	b.source("wind", el, es.WithFix(b.col("wind")), b.investment("epc_wind", 0))
	b.source("pv", el, es.WithFix(b.col("pv")), b.investment("epc_pv", 60))
	b.source("hydro", el, es.WithFix(b.col("hydro")), es.WithVariableCosts(3), es.WithNominalValue(1070))
	b.source("geothermal", el, es.WithVariableCosts(30), es.WithNominalValue(0))
	// full load time of every timestep keeps the thermal plants at rated power
	b.converter("pp_nuclear", uranium, el, 0.33,
		es.WithFullLoadTimeMin(n), es.WithVariableCosts(13), b.investment("epc_nuclear", 0))
	b.converter("blender_biofuel", biofuel, fuel, 1,
		es.WithVariableCosts(0.1), es.WithInvestment(es.Investment{}))
	b.converter("pp_fuel_oil", fuel, el, 0.375,
		es.WithFullLoadTimeMin(n), es.WithVariableCosts(3.4), b.investment("epc_fuel_oil", 92))
	b.converter("pp_peat", peat, el, 0.4,
		es.WithFullLoadTimeMin(n), es.WithVariableCosts(6.8), b.investment("epc_peat", 0))

	// heat and biogas
	b.converter("digester", organic, biogas, 0.55, b.investment("epc_anaerobic_digester", 0))
	b.converter("biogas heating", biogas, heat, 0.6, b.investment("epc_biogas_heating", 0))
	b.converter("industrial boiler", fuel, heat, 0.6, b.investment("epc_industrial_boiler", 0))
	b.converter("wood boiler", wood, heat, 0.5, b.investment("epc_wood_boiler", 0))
	b.add(es.NewConverter("pp_bagasse").
		Input(bagasse, es.NewFlow(es.WithVariableCosts(5), es.WithFullLoadTimeMin(n), es.WithNominalValue(112))).
		Output(el, es.NewFlow(), 0.35).
		Output(heat, es.NewFlow(), 0.35))

	// hydrogen and storage
	b.converter("electrolyzer", el, h2, 0.665, es.WithNominalValue(0))
	b.converter("fuel_cell", h2, el, 0.6, es.WithNominalValue(0))
	b.storage("battery", el, "epc_battery", es.NewFlow(es.WithNominalValue(0)), 0.86, 1)
	b.storage("hydrogen_storage", h2, "epc_hydrogen_storage", es.NewFlow(es.WithNominalValue(0)), 0.88, 1)
	for _, s := range []struct {
		label string
		bus   *es.Bus
	}{
		{"infinite biomass storage", wood},
		{"infinite kerosene storage", kerosene},
		{"infinite fuel oil storage", fuel},
		{"infinite lpg storage", lpg},
		{"infinite biogas storage", biogas},
	} {
		b.add(es.NewStorage(s.label, s.bus, es.NewFlow(), es.NewFlow(),
			es.WithInitialStorageLevel(0),
			es.WithInvestRelations(1, 1),
			es.WithStorageInvestment(es.Investment{}),
		))
	}

	// transport and aviation
	b.converter("electric transport vehicles", el, trans, 0.7, es.WithVariableCosts(150), es.WithNominalValue(0))
	b.converter("combustion engine transport vehicles", fuel, trans, 0.3,
		es.WithVariableCosts(90), b.investment("epc_combustion_engine_transport", 0))
	b.converter("hydrogen vehicles", h2, trans, 0.3, es.WithVariableCosts(240), es.WithNominalValue(0))
	b.converter("hydrogen aviation", h2, avia, 0.3, es.WithVariableCosts(180), es.WithNominalValue(0))
	b.converter("kerosene aviation", kerosene, avia, 0.3,
		es.WithVariableCosts(120), b.investment("epc_kerosene_aviation", 0))

	// cooking
	b.converter("electric cookers", el, cook, 0.8, es.WithNominalValue(250.16))
	b.converter("unimproved stoves", wood, cook, 0.135, es.WithNominalValue(31784))
	b.converter("improved stoves", wood, cook, 0.325, es.WithNominalValue(5374))
	b.converter("LPG stoves", lpg, cook, 0.5, es.WithNominalValue(499))
	b.converter("biogas stoves", biogas, cook, 0.5, es.WithNominalValue(211.13))
	b.converter("ethanol stoves", biofuel, cook, 0.45, es.WithNominalValue(268.71))

	// demands
	b.demand("electricity demand", el, "demand_el", b.param("demand_el_nominal"))
	b.demand("heat demand", heat, "demand_heat", b.param("demand_heat_nominal"))
	b.demand("cooking demand", cook, "demand_cooking", b.param("demand_cooking_nominal"))
	b.demand("transport demand", trans, "demand_transport", b.param("demand_transport_nominal"))
	b.demand("aviation demand", avia, "demand_aviation", b.param("demand_aviation_nominal"))
	b.excess("excess_electricity", el)
	// bagasse CHP heat beyond the heat demand
	b.excess("excess_heat", heat)
}

func k(from, to string) results.FlowKey {
	return results.FlowKey{From: from, To: to}
}

var (
	fossilElectricity = []results.FlowKey{
		k("pp_fuel_oil", "electricity"),
		k("pp_nuclear", "electricity"),
		k("pp_peat", "electricity"),
	}
	fuelCellCredit = []results.FlowKey{k("fuel_cell", "electricity")}
)

func baselineIndicators(r *indicators.Reader, p Parameters, s *indicators.Scalars) error {
	storageAndWind(r, s, "battery")

	limits := make(indicators.BiomassLimits, 0, len(woodyBiomass))
	for _, w := range woodyBiomass {
		limits = append(limits, indicators.BiomassResource{
			Name:  w.name,
			Flow:  k(w.source, "woody_biomass_bus"),
			Limit: p[w.limit],
		})
	}
	usage, err := limits.Evaluate(r.Results())
	if err != nil {
		return err
	}
	s.Add("unsustainable_biomass_MWh", usage.Unsustainable)
	s.Add("total_woody_biomass_MWh", usage.Total)

	improved := r.Sum("improved stoves", "cooking_bus")
	unimproved := r.Sum("unimproved stoves", "cooking_bus")
	s.Add("effective_end_use_stove_improved", improved)
	s.Add("effective_end_use_stove_unimproved", unimproved)
	nonRenewable := indicators.NonRenewableCooking(usage.Unsustainable, usage.Total, improved+unimproved)
	s.Add("non_renewable_biomass_cooking", nonRenewable)

	s.Add("biofuel_share", indicators.BiofuelShare(
		r.Sum("blender_biofuel", "fuel_bus"),
		r.Sum("fuel_oil", "fuel_bus"),
	))

	electricity, err := indicators.RenewableShare{
		Fossil: fossilElectricity,
		Consumption: []results.FlowKey{
			k("electricity", "electricity demand"),
			k("electricity", "excess_electricity"),
			k("electricity", "electric cookers"),
			k("electricity", "electric transport vehicles"),
			k("electricity", "electrolyzer"),
		},
		Credit: fuelCellCredit,
	}.Compute(r.Results())
	if err != nil {
		return err
	}
	s.Add("RE_share_electricity_production", electricity)

	endUse, err := indicators.RenewableShare{
		Fossil: append(append([]results.FlowKey(nil), fossilElectricity...),
			k("LPG stoves", "cooking_bus"),
			k("combustion engine transport vehicles", "transport_bus"),
			k("kerosene aviation", "aviation_bus"),
		),
		Consumption: []results.FlowKey{
			k("electricity", "electricity demand"),
			k("electricity", "excess_electricity"),
			k("electricity", "electric transport vehicles"),
			k("electricity", "electrolyzer"),
			k("cooking_bus", "cooking demand"),
			k("transport_bus", "transport demand"),
			k("heat_bus", "heat demand"),
			k("aviation_bus", "aviation demand"),
		},
		Credit:      fuelCellCredit,
		ExtraFossil: nonRenewable,
	}.Compute(r.Results())
	if err != nil {
		return err
	}
	s.Add("RE_share_effective_end_use_energy", endUse)
	return nil
}
