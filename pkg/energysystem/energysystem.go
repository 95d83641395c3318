// Package energysystem describes an energy system as a graph of buses and
// components connected by flows.
package energysystem

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateLabel     = errors.New("duplicate label")
	ErrUnknownBus         = errors.New("bus not part of the energy system")
	ErrProfileLength      = errors.New("profile length does not match the time index")
	ErrFixWithoutCapacity = errors.New("fix requires a nominal value or investment")
)

// Edge is a flow between a component and a bus, directed From -> To.
type Edge struct {
	From      string
	To        string
	Flow      *Flow
	Component Node
	Bus       *Bus
	// Outgoing is true when the flow leaves the component into the bus.
	Outgoing bool
}

// EnergySystem is the container that scenarios populate and the model
// translates into an optimization problem.
type EnergySystem struct {
	Timeindex []time.Time

	nodes   []Node
	byLabel map[string]Node
}

// New creates an empty energy system over the given time index.
func New(timeindex []time.Time) *EnergySystem {
	return &EnergySystem{
		Timeindex: timeindex,
		byLabel:   make(map[string]Node),
	}
}

// Timesteps returns the number of timesteps of the time index.
func (es *EnergySystem) Timesteps() int {
	return len(es.Timeindex)
}

// Add registers nodes. Labels must be unique across the system.
func (es *EnergySystem) Add(nodes ...Node) error {
	for _, n := range nodes {
		if _, exists := es.byLabel[n.Label()]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateLabel, n.Label())
		}
		es.byLabel[n.Label()] = n
		es.nodes = append(es.nodes, n)
	}
	return nil
}

// MustAdd is Add for scenario declarations and panics on duplicate labels.
func (es *EnergySystem) MustAdd(nodes ...Node) {
	if err := es.Add(nodes...); err != nil {
		panic(err)
	}
}

// Node returns the node with the given label.
func (es *EnergySystem) Node(label string) (Node, bool) {
	n, ok := es.byLabel[label]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (es *EnergySystem) Nodes() []Node {
	return append([]Node(nil), es.nodes...)
}

// Buses returns the buses in insertion order.
func (es *EnergySystem) Buses() []*Bus {
	var buses []*Bus
	for _, n := range es.nodes {
		if b, ok := n.(*Bus); ok {
			buses = append(buses, b)
		}
	}
	return buses
}

// Components returns every non-bus node in insertion order.
func (es *EnergySystem) Components() []Node {
	var comps []Node
	for _, n := range es.nodes {
		if _, ok := n.(*Bus); !ok {
			comps = append(comps, n)
		}
	}
	return comps
}

// Storages returns the storages in insertion order.
func (es *EnergySystem) Storages() []*Storage {
	var out []*Storage
	for _, n := range es.nodes {
		if s, ok := n.(*Storage); ok {
			out = append(out, s)
		}
	}
	return out
}

// Edges returns every flow of the system. The order is deterministic:
// components in insertion order, inputs before outputs.
func (es *EnergySystem) Edges() []Edge {
	var edges []Edge
	for _, c := range es.Components() {
		for _, p := range c.Inputs() {
			edges = append(edges, Edge{From: p.Bus.Label(), To: c.Label(), Flow: p.Flow, Component: c, Bus: p.Bus})
		}
		for _, p := range c.Outputs() {
			edges = append(edges, Edge{From: c.Label(), To: p.Bus.Label(), Flow: p.Flow, Component: c, Bus: p.Bus, Outgoing: true})
		}
	}
	return edges
}

// Validate checks the system for structural and parameter errors. All
// problems found are joined into the returned error.
func (es *EnergySystem) Validate() error {
	var errs []error
	if es.Timesteps() == 0 {
		errs = append(errs, errors.New("empty time index"))
	}
	for _, c := range es.Components() {
		ports := append(append([]Port(nil), c.Inputs()...), c.Outputs()...)
		for _, p := range ports {
			if p.Bus == nil {
				errs = append(errs, fmt.Errorf("%s: nil bus", c.Label()))
				continue
			}
			if n, ok := es.byLabel[p.Bus.Label()]; !ok || n != Node(p.Bus) {
				errs = append(errs, fmt.Errorf("%s: %w: %q", c.Label(), ErrUnknownBus, p.Bus.Label()))
			}
			if p.Flow == nil {
				errs = append(errs, fmt.Errorf("%s -> %s: nil flow", c.Label(), p.Bus.Label()))
				continue
			}
			if err := p.Flow.validate(es.Timesteps()); err != nil {
				errs = append(errs, fmt.Errorf("%s / %s: %w", c.Label(), p.Bus.Label(), err))
			}
		}
		switch v := c.(type) {
		case *Converter:
			if err := v.validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", c.Label(), err))
			}
		case *Storage:
			if err := v.validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", c.Label(), err))
			}
		}
	}
	return errors.Join(errs...)
}
