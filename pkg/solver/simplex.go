package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ugandapathways/pathways/pkg/log"
)

// Simplex solves problems in-process with a dense two-phase tableau simplex
// built on gonum matrices. Linearly dependent rows, which the storage and bus
// balances of a closed system produce, are dropped during phase one. It is
// meant for small models; large scenarios should use an external solver.
type Simplex struct {
	// Tolerance used for feasibility checks and by the simplex itself.
	Tolerance float64
	// MaxCells caps the number of cells of the dense tableau.
	MaxCells int
}

// NewSimplex returns a Simplex with default tolerances.
func NewSimplex() *Simplex {
	return &Simplex{Tolerance: 1e-9, MaxCells: 50_000_000}
}

func (s *Simplex) Name() string { return "simplex" }

// standardForm is min c'y s.t. Ay = b, y >= 0 where y is the shifted,
// slack-extended version of the original columns.
type standardForm struct {
	c []float64
	a *mat.Dense
	b []float64

	// column j of the problem maps to y[colIndex[j]] + shift[j], or to the
	// constant shift[j] when colIndex[j] < 0.
	colIndex []int
	shift    []float64
}

func (s *Simplex) toStandardForm(p *Problem) (*standardForm, error) {
	tol := s.Tolerance
	nCols := len(p.Columns)
	sf := &standardForm{
		colIndex: make([]int, nCols),
		shift:    make([]float64, nCols),
	}

	// fixed columns become constants, others are shifted by their lower bound
	var n int
	used := make([]bool, nCols)
	for _, r := range p.Rows {
		for _, t := range r.Terms {
			used[t.Col] = true
		}
	}
	for j, c := range p.Columns {
		sf.shift[j] = c.Lower
		switch {
		case c.Upper-c.Lower <= tol:
			sf.colIndex[j] = -1
		case !used[j]:
			// appears in no row: sits at whichever bound minimizes its cost
			if c.Cost < 0 {
				if math.IsInf(c.Upper, 1) {
					return nil, fmt.Errorf("%w: column %s has negative cost and no upper bound", ErrUnbounded, c.Name)
				}
				sf.shift[j] = c.Upper
			}
			sf.colIndex[j] = -1
		default:
			sf.colIndex[j] = n
			n++
		}
	}

	type sparseRow struct {
		terms []Term
		rhs   float64
	}
	var rows []sparseRow
	var slacks int
	for _, r := range p.Rows {
		rhs := r.RHS
		terms := make([]Term, 0, len(r.Terms))
		for _, t := range r.Terms {
			rhs -= t.Coef * sf.shift[t.Col]
			if k := sf.colIndex[t.Col]; k >= 0 {
				terms = append(terms, Term{Col: k, Coef: t.Coef})
			}
		}
		if len(terms) == 0 {
			if !emptyRowFeasible(Row{Sense: r.Sense, RHS: rhs}, tol) {
				return nil, fmt.Errorf("%w: row %s cannot hold", ErrInfeasible, r.Name)
			}
			continue
		}
		switch r.Sense {
		case LessEqual:
			terms = append(terms, Term{Col: n + slacks, Coef: 1})
			slacks++
		case GreaterEqual:
			terms = append(terms, Term{Col: n + slacks, Coef: -1})
			slacks++
		}
		rows = append(rows, sparseRow{terms: terms, rhs: rhs})
	}
	// finite upper bounds become y + s = upper - lower
	for j, c := range p.Columns {
		k := sf.colIndex[j]
		if k < 0 || math.IsInf(c.Upper, 1) {
			continue
		}
		rows = append(rows, sparseRow{
			terms: []Term{{Col: k, Coef: 1}, {Col: n + slacks, Coef: 1}},
			rhs:   c.Upper - c.Lower,
		})
		slacks++
	}

	total := n + slacks
	m := len(rows)
	if m == 0 {
		return sf, nil
	}
	if s.MaxCells > 0 && (m+1)*(total+m+1) > s.MaxCells {
		return nil, fmt.Errorf("problem too large for the dense simplex (%d x %d), use an external solver", m, total)
	}

	sf.c = make([]float64, total)
	for j, c := range p.Columns {
		if k := sf.colIndex[j]; k >= 0 {
			sf.c[k] = c.Cost
		}
	}
	sf.a = mat.NewDense(m, total, nil)
	sf.b = make([]float64, m)
	for i, r := range rows {
		sign := 1.0
		if r.rhs < 0 {
			sign = -1
		}
		for _, t := range r.terms {
			sf.a.Set(i, t.Col, sf.a.At(i, t.Col)+sign*t.Coef)
		}
		sf.b[i] = sign * r.rhs
	}
	return sf, nil
}

// Solve implements Solver.
func (s *Simplex) Solve(ctx context.Context, p *Problem) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{Status: StatusError}, err
	}
	if err := ctx.Err(); err != nil {
		return Solution{Status: StatusError}, err
	}

	start := time.Now()
	sf, err := s.toStandardForm(p)
	if err != nil {
		return solutionForError(err), err
	}

	var y []float64
	if sf.a != nil {
		y, err = s.solveStandardForm(ctx, sf)
		if err != nil {
			if !errors.Is(err, ErrInfeasible) && !errors.Is(err, ErrUnbounded) && ctx.Err() == nil {
				err = fmt.Errorf("simplex failed: %w", err)
			}
			return solutionForError(err), err
		}
	}

	values := make([]float64, len(p.Columns))
	for j := range p.Columns {
		values[j] = sf.shift[j]
		if k := sf.colIndex[j]; k >= 0 {
			values[j] += y[k]
		}
	}
	log.Ctx(ctx).DebugContext(ctx, "simplex finished", slog.Duration("elapsed", time.Since(start)))
	return Solution{
		Status:    StatusOptimal,
		Objective: p.Objective(values),
		Values:    values,
	}, nil
}

func (s *Simplex) solveStandardForm(ctx context.Context, sf *standardForm) ([]float64, error) {
	m, n := sf.a.Dims()
	log.Ctx(ctx).DebugContext(ctx, "running dense simplex", slog.Int("rows", m), slog.Int("cols", n))

	tb := newTableau(sf.a, sf.b, s.Tolerance)
	maxPivots := 100*(m+n) + 1000
	feasTol := 100 * s.Tolerance * (1 + tb.maxRHS())
	dropped, err := tb.phaseOne(ctx, maxPivots, feasTol)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.Ctx(ctx).DebugContext(ctx, "dropped dependent rows", slog.Int("rows", dropped))
	}

	c := make([]float64, n)
	copy(c, sf.c)
	if scale := floats.Norm(c, math.Inf(1)); scale > 0 {
		floats.Scale(1/scale, c)
	}
	if err := tb.phaseTwo(ctx, c, maxPivots); err != nil {
		return nil, err
	}
	y := tb.values()
	tb.refine(sf.a, sf.b, y)
	return y, nil
}

func solutionForError(err error) Solution {
	switch {
	case errors.Is(err, ErrInfeasible):
		return Solution{Status: StatusInfeasible}
	case errors.Is(err, ErrUnbounded):
		return Solution{Status: StatusUnbounded}
	default:
		return Solution{Status: StatusError}
	}
}
