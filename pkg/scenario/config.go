package scenario

import (
	"fmt"
	"strings"

	"github.com/levenlabs/go-lflag"

	"github.com/ugandapathways/pathways/pkg/timeseries"
)

// Selection is the scenario chosen on the command line with its resolved
// parameters.
type Selection struct {
	Scenario
	Params Parameters
	// MaxTimesteps limits the optimized rows of data when positive.
	MaxTimesteps int
}

// Timesteps returns the rows of data the scenario optimizes, limited by
// MaxTimesteps.
func (s *Selection) Timesteps(data *timeseries.Table) int {
	n := s.Scenario.Timesteps(data)
	if s.MaxTimesteps > 0 && s.MaxTimesteps < n {
		return s.MaxTimesteps
	}
	return n
}

// Configured sets up the scenario selection based on flags. Parameter files
// are applied before the -params overrides.
func Configured() *Selection {
	name := lflag.String("scenario", "baseline_2019", fmt.Sprintf("Scenario to run (available: %s)", strings.Join(All().Names(), ", ")))
	files := lflag.String("params-file", "", "Comma separated parameter csv files (parameter,value)")
	var overrides map[string]float64
	lflag.JSON(&overrides, "params", map[string]float64{}, "JSON object of parameter overrides")
	var timesteps int
	lflag.JSON(&timesteps, "timesteps", 0, "Maximum number of timesteps to optimize (0 uses the scenario default)")

	var s Selection

	lflag.Do(func() {
		sc, err := All().Scenario(*name)
		if err != nil {
			panic(err.Error())
		}
		p := sc.Defaults()
		if *files != "" {
			fromFiles, err := ReadParameterFiles(strings.Split(*files, ",")...)
			if err != nil {
				panic(err.Error())
			}
			if p, err = p.With(fromFiles); err != nil {
				panic(err.Error())
			}
		}
		if p, err = p.With(overrides); err != nil {
			panic(err.Error())
		}
		s.Scenario = sc
		s.Params = p
		s.MaxTimesteps = timesteps
	})

	return &s
}
