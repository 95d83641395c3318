// Package indicators derives scalar indicators such as renewable shares and
// biomass sustainability from optimization results.
package indicators

import (
	"math"

	"github.com/ugandapathways/pathways/pkg/results"
)

// Scalar is a named indicator value.
type Scalar struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Scalars keeps indicators in the order they were added.
type Scalars []Scalar

// Add appends or replaces the named value.
func (s *Scalars) Add(name string, v float64) {
	for i := range *s {
		if (*s)[i].Name == name {
			(*s)[i].Value = v
			return
		}
	}
	*s = append(*s, Scalar{Name: name, Value: v})
}

// Get returns the named value.
func (s Scalars) Get(name string) (float64, bool) {
	for _, v := range s {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// Map returns the scalars keyed by name.
func (s Scalars) Map() map[string]float64 {
	m := make(map[string]float64, len(s))
	for _, v := range s {
		m[v.Name] = v.Value
	}
	return m
}

// Share returns numerator/denominator clamped to [0, 1], or 0 when the
// denominator is not positive.
func Share(numerator, denominator float64) float64 {
	if denominator <= 0 || math.IsNaN(numerator) {
		return 0
	}
	return clamp(numerator / denominator)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Reader sums flows of results and remembers the first missing flow so
// indicator formulas can be written without checking every lookup.
type Reader struct {
	res *results.Results
	err error
}

func NewReader(res *results.Results) *Reader {
	return &Reader{res: res}
}

// Sum returns the summed flow from -> to, or 0 after an error.
func (r *Reader) Sum(from, to string) float64 {
	if r.err != nil {
		return 0
	}
	v, err := r.res.Sum(from, to)
	if err != nil {
		r.err = err
		return 0
	}
	return v
}

// SumKeys returns the summed flows of keys.
func (r *Reader) SumKeys(keys []results.FlowKey) float64 {
	var total float64
	for _, k := range keys {
		total += r.Sum(k.From, k.To)
	}
	return total
}

// Invest returns the invested capacity of from -> to, or of storage from
// when to is empty.
func (r *Reader) Invest(from, to string) float64 {
	if r.err != nil {
		return 0
	}
	v, err := r.res.Invest(from, to)
	if err != nil {
		r.err = err
		return 0
	}
	return v
}

// Results returns the results read by r.
func (r *Reader) Results() *results.Results {
	return r.res
}

// Err returns the first lookup error.
func (r *Reader) Err() error {
	return r.err
}

// RenewableShare is 1 - fossil/(consumption - credit) over summed flows.
type RenewableShare struct {
	// Fossil flows are the non renewable supply.
	Fossil []results.FlowKey
	// Consumption flows are the energy used.
	Consumption []results.FlowKey
	// Credit flows are subtracted from the consumption, like fuel cell
	// output that was counted as electrolyzer input.
	Credit []results.FlowKey
	// ExtraFossil is non renewable supply that is not a single flow.
	ExtraFossil float64
}

// Compute evaluates the share on res.
func (rs RenewableShare) Compute(res *results.Results) (float64, error) {
	r := NewReader(res)
	fossil := r.SumKeys(rs.Fossil) + rs.ExtraFossil
	consumption := r.SumKeys(rs.Consumption) - r.SumKeys(rs.Credit)
	if err := r.Err(); err != nil {
		return 0, err
	}
	if consumption <= 0 {
		return 0, nil
	}
	return clamp(1 - fossil/consumption), nil
}

// BiomassResource is a biomass supply flow with a sustainable yearly limit.
type BiomassResource struct {
	Name  string
	Flow  results.FlowKey
	Limit float64
}

// BiomassUsage is the evaluated use of biomass resources.
type BiomassUsage struct {
	Total         float64
	Unsustainable float64
	// ByResource holds the usage of each resource.
	ByResource map[string]float64
}

// BiomassLimits are the resources whose usage beyond their limit counts as
// unsustainable.
type BiomassLimits []BiomassResource

// Evaluate sums the usage of every resource.
func (b BiomassLimits) Evaluate(res *results.Results) (BiomassUsage, error) {
	r := NewReader(res)
	u := BiomassUsage{ByResource: make(map[string]float64, len(b))}
	for _, br := range b {
		used := r.Sum(br.Flow.From, br.Flow.To)
		u.ByResource[br.Name] = used
		u.Total += used
		u.Unsustainable += math.Max(0, used-br.Limit)
	}
	if err := r.Err(); err != nil {
		return BiomassUsage{}, err
	}
	return u, nil
}

// NonRenewableCooking is the part of the stove end use energy that comes
// from unsustainable biomass.
func NonRenewableCooking(unsustainable, totalWoody, stoveEndUse float64) float64 {
	if totalWoody <= 0 {
		return 0
	}
	return unsustainable / totalWoody * stoveEndUse
}

// BiofuelShare is the share of blended biofuel in the fuel supply.
func BiofuelShare(blender, fossil float64) float64 {
	return Share(blender, blender+fossil)
}
