// Package results holds the optimized flows, storage contents and investments
// of a solved energy system.
package results

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/ugandapathways/pathways/pkg/energysystem"
)

var (
	ErrUnknownFlow = errors.New("flow not part of the results")
	ErrImbalance   = errors.New("bus is not balanced")
)

// Sequence and scalar names.
const (
	FlowSeq        = "flow"
	StorageContent = "storage_content"
	InvestScalar   = "invest"
	TotalScalar    = "total"
)

// FlowKey identifies a flow From -> To. Storage contents and storage
// investments are stored under the storage label with an empty To.
type FlowKey struct {
	From string `json:"from"`
	To   string `json:"to,omitempty"`
}

func (k FlowKey) String() string {
	if k.To == "" {
		return k.From
	}
	return k.From + "->" + k.To
}

// Meta describes the optimization that produced the results.
type Meta struct {
	Objective float64       `json:"objective"`
	Solver    string        `json:"solver"`
	Status    string        `json:"status"`
	Rows      int           `json:"rows"`
	Columns   int           `json:"columns"`
	NonZeros  int           `json:"nonZeros"`
	BuildTime time.Duration `json:"buildTime"`
	SolveTime time.Duration `json:"solveTime"`
}

// Results are the per-timestep sequences and scalar values of a solved
// energy system.
type Results struct {
	Timeindex []time.Time
	Sequences map[FlowKey]map[string][]float64
	Scalars   map[FlowKey]map[string]float64
	Meta      Meta
}

// New returns empty results over timeindex.
func New(timeindex []time.Time) *Results {
	return &Results{
		Timeindex: timeindex,
		Sequences: make(map[FlowKey]map[string][]float64),
		Scalars:   make(map[FlowKey]map[string]float64),
	}
}

func (r *Results) SetSequence(key FlowKey, name string, values []float64) {
	if r.Sequences[key] == nil {
		r.Sequences[key] = make(map[string][]float64)
	}
	r.Sequences[key][name] = values
}

func (r *Results) SetScalar(key FlowKey, name string, v float64) {
	if r.Scalars[key] == nil {
		r.Scalars[key] = make(map[string]float64)
	}
	r.Scalars[key][name] = v
}

// Sequence returns the named sequence of key.
func (r *Results) Sequence(key FlowKey, name string) ([]float64, bool) {
	v, ok := r.Sequences[key][name]
	return v, ok
}

// Flow returns the flow sequence from -> to.
func (r *Results) Flow(from, to string) ([]float64, error) {
	v, ok := r.Sequence(FlowKey{From: from, To: to}, FlowSeq)
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownFlow, from, to)
	}
	return v, nil
}

// Sum returns the flow from -> to summed over all timesteps.
func (r *Results) Sum(from, to string) (float64, error) {
	v, err := r.Flow(from, to)
	if err != nil {
		return 0, err
	}
	return floats.Sum(v), nil
}

// Invest returns the invested capacity of the flow from -> to, or of the
// storage from when to is empty. Flows without investment have none.
func (r *Results) Invest(from, to string) (float64, error) {
	key := FlowKey{From: from, To: to}
	if v, ok := r.Scalars[key][InvestScalar]; ok {
		return v, nil
	}
	if _, ok := r.Sequences[key]; ok {
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownFlow, key)
}

// Keys returns every key with sequences or scalars, sorted.
func (r *Results) Keys() []FlowKey {
	seen := make(map[FlowKey]bool)
	for k := range r.Sequences {
		seen[k] = true
	}
	for k := range r.Scalars {
		seen[k] = true
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[FlowKey]bool) []FlowKey {
	keys := make([]FlowKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].From != keys[j].From {
			return keys[i].From < keys[j].From
		}
		return keys[i].To < keys[j].To
	})
	return keys
}

// NodeView holds every sequence and scalar touching a node.
type NodeView struct {
	Label     string
	Sequences map[FlowKey]map[string][]float64
	Scalars   map[FlowKey]map[string]float64
}

// Node returns the view of the node with label.
func (r *Results) Node(label string) NodeView {
	v := NodeView{
		Label:     label,
		Sequences: make(map[FlowKey]map[string][]float64),
		Scalars:   make(map[FlowKey]map[string]float64),
	}
	for k, s := range r.Sequences {
		if k.From == label || k.To == label {
			v.Sequences[k] = s
		}
	}
	for k, s := range r.Scalars {
		if k.From == label || k.To == label {
			v.Scalars[k] = s
		}
	}
	return v
}

// Keys returns the keys of the view's sequences, sorted.
func (v NodeView) Keys() []FlowKey {
	seen := make(map[FlowKey]bool, len(v.Sequences))
	for k := range v.Sequences {
		seen[k] = true
	}
	return sortedKeys(seen)
}

// CheckBalance verifies that inflow equals outflow at every bus and
// timestep within tol.
func CheckBalance(es *energysystem.EnergySystem, r *Results, tol float64) error {
	var errs []error
	for _, b := range es.Buses() {
		balance := make([]float64, es.Timesteps())
		for _, e := range es.Edges() {
			if e.Bus != b {
				continue
			}
			flow, err := r.Flow(e.From, e.To)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if len(flow) != len(balance) {
				errs = append(errs, fmt.Errorf("%s -> %s has %d values, expected %d", e.From, e.To, len(flow), len(balance)))
				continue
			}
			if e.Outgoing {
				floats.Add(balance, flow)
			} else {
				floats.Sub(balance, flow)
			}
		}
		for t, v := range balance {
			if math.Abs(v) > tol {
				errs = append(errs, fmt.Errorf("%w: %s at timestep %d off by %g", ErrImbalance, b.Label(), t, v))
				break
			}
		}
	}
	return errors.Join(errs...)
}
