package types

import (
	"time"

	"github.com/ugandapathways/pathways/pkg/results"
)

// CurrentRunVersion is the current version of the run struct.
// Increment this value when changing fields in a way old runs can't be read.
const CurrentRunVersion = 1

// Scalar is a named value reported by a run.
type Scalar struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Run represents a single optimized scenario.
type Run struct {
	ID       string `json:"id"`
	Version  int    `json:"version"`
	Scenario string `json:"scenario"`
	// Timestamp is when the run started; runs of a scenario are keyed by it.
	Timestamp time.Time          `json:"timestamp"`
	Year      int                `json:"year"`
	Timesteps int                `json:"timesteps"`
	Params    map[string]float64 `json:"params"`

	// Indicators are the scenario's derived values in report order.
	Indicators []Scalar `json:"indicators"`
	// Scalars are the bus scalars followed by the indicators, as written to
	// the scalar csv.
	Scalars []Scalar     `json:"scalars"`
	Meta    results.Meta `json:"meta"`

	ScalarsFile   string        `json:"scalarsFile,omitempty"`
	SequencesFile string        `json:"sequencesFile,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Indicator returns the named indicator.
func (r Run) Indicator(name string) (float64, bool) {
	for _, s := range r.Indicators {
		if s.Name == name {
			return s.Value, true
		}
	}
	return 0, false
}
