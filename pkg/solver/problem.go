// Package solver defines a solver-agnostic linear program and the solvers
// that can optimize it.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrInfeasible     = errors.New("problem is infeasible")
	ErrUnbounded      = errors.New("problem is unbounded")
	ErrSolverNotFound = errors.New("solver executable not found")
)

// Sense is the relation of a row to its right-hand side.
type Sense int

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	default:
		return "="
	}
}

// Column is a variable of the problem.
type Column struct {
	Name  string
	Lower float64
	// Upper may be math.Inf(1).
	Upper float64
	Cost  float64
}

// Term is a coefficient of a column in a row.
type Term struct {
	Col  int
	Coef float64
}

// Row is a linear constraint.
type Row struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Problem is a minimization linear program.
type Problem struct {
	Columns []Column
	Rows    []Row
	// ObjectiveOffset is added to the objective of every solution.
	ObjectiveOffset float64
}

// AddColumn appends a variable and returns its index.
func (p *Problem) AddColumn(name string, lower, upper, cost float64) int {
	p.Columns = append(p.Columns, Column{Name: name, Lower: lower, Upper: upper, Cost: cost})
	return len(p.Columns) - 1
}

// AddRow appends a constraint. Terms with a zero coefficient are dropped.
func (p *Problem) AddRow(name string, sense Sense, rhs float64, terms ...Term) int {
	kept := make([]Term, 0, len(terms))
	for _, t := range terms {
		if t.Coef != 0 {
			kept = append(kept, t)
		}
	}
	p.Rows = append(p.Rows, Row{Name: name, Terms: kept, Sense: sense, RHS: rhs})
	return len(p.Rows) - 1
}

// NonZeros returns the number of constraint coefficients.
func (p *Problem) NonZeros() int {
	var n int
	for _, r := range p.Rows {
		n += len(r.Terms)
	}
	return n
}

// Validate checks indices and bounds.
func (p *Problem) Validate() error {
	for j, c := range p.Columns {
		if math.IsNaN(c.Lower) || math.IsNaN(c.Upper) || math.IsNaN(c.Cost) {
			return fmt.Errorf("column %s (%d) has NaN attributes", c.Name, j)
		}
		if math.IsInf(c.Lower, 0) {
			return fmt.Errorf("column %s (%d) needs a finite lower bound", c.Name, j)
		}
		if c.Upper < c.Lower {
			return fmt.Errorf("%w: column %s has upper bound %g below lower bound %g", ErrInfeasible, c.Name, c.Upper, c.Lower)
		}
	}
	for i, r := range p.Rows {
		if math.IsNaN(r.RHS) || math.IsInf(r.RHS, 0) {
			return fmt.Errorf("row %s (%d) has invalid rhs %g", r.Name, i, r.RHS)
		}
		for _, t := range r.Terms {
			if t.Col < 0 || t.Col >= len(p.Columns) {
				return fmt.Errorf("row %s (%d) references unknown column %d", r.Name, i, t.Col)
			}
		}
	}
	return nil
}

// emptyRowFeasible reports whether a row without terms holds for its rhs.
func emptyRowFeasible(r Row, tol float64) bool {
	switch r.Sense {
	case LessEqual:
		return r.RHS >= -tol
	case GreaterEqual:
		return r.RHS <= tol
	default:
		return math.Abs(r.RHS) <= tol
	}
}

// Objective evaluates the objective function for values.
func (p *Problem) Objective(values []float64) float64 {
	obj := p.ObjectiveOffset
	for j, c := range p.Columns {
		obj += c.Cost * values[j]
	}
	return obj
}

// Status is the outcome of a solve.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusError      Status = "error"
)

// Solution is the result of an optimal solve.
type Solution struct {
	Status    Status
	Objective float64
	// Values holds one value per problem column.
	Values []float64
}

// Solver optimizes a Problem. Solve returns ErrInfeasible or ErrUnbounded
// (possibly wrapped) when no optimum exists.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p *Problem) (Solution, error)
}
