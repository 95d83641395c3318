package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var errPivotLimit = errors.New("simplex pivot limit reached")

// stallPivots is the number of pivots without progress after which Bland's
// rule replaces the most negative reduced cost rule until the objective
// moves again.
const stallPivots = 50

// maxRefineRows caps the size of the basis that refine factorizes.
const maxRefineRows = 2000

// tableau is a dense simplex tableau for min c'y s.t. Ay = b, y >= 0 with
// b >= 0. Columns [0,n) hold A, columns [n,n+m) one artificial column per
// row and the last column the right-hand side. Row m holds the reduced
// costs and, in its last entry, the negated objective.
type tableau struct {
	t     *mat.Dense
	m, n  int
	rhs   int
	basis []int
	// dropped rows are linear combinations of the other rows
	dropped []bool
	tol     float64
}

func newTableau(a *mat.Dense, b []float64, tol float64) *tableau {
	m, n := a.Dims()
	tb := &tableau{
		t:       mat.NewDense(m+1, n+m+1, nil),
		m:       m,
		n:       n,
		rhs:     n + m,
		basis:   make([]int, m),
		dropped: make([]bool, m),
		tol:     tol,
	}
	obj := tb.t.RawRowView(m)
	for i := 0; i < m; i++ {
		row := tb.t.RawRowView(i)
		copy(row[:n], a.RawRowView(i))
		row[tb.rhs] = b[i]
		// equilibrate so the largest coefficient of each row is one
		if scale := floats.Norm(row[:n], math.Inf(1)); scale > 0 {
			floats.Scale(1/scale, row[:n])
			row[tb.rhs] /= scale
		}
		row[n+i] = 1
		tb.basis[i] = n + i

		// phase one minimizes the sum of the artificial columns
		floats.Sub(obj[:n], row[:n])
		obj[tb.rhs] -= row[tb.rhs]
	}
	return tb
}

// maxRHS returns the largest right-hand side of the constraint rows.
func (tb *tableau) maxRHS() float64 {
	var v float64
	for i := 0; i < tb.m; i++ {
		v = math.Max(v, tb.t.At(i, tb.rhs))
	}
	return v
}

// entering returns the structural column to bring into the basis, or -1
// when no reduced cost is negative.
func (tb *tableau) entering(bland bool) int {
	obj := tb.t.RawRowView(tb.m)
	best, enter := -tb.tol, -1
	for j := 0; j < tb.n; j++ {
		if obj[j] >= best {
			continue
		}
		if bland {
			return j
		}
		best, enter = obj[j], j
	}
	return enter
}

// leaving runs the ratio test for column enter and returns the pivot row, or
// -1 when the column is unbounded.
func (tb *tableau) leaving(enter int, bland bool) int {
	leave := -1
	var bestRatio, bestPivot float64
	for i := 0; i < tb.m; i++ {
		if tb.dropped[i] {
			continue
		}
		row := tb.t.RawRowView(i)
		p := row[enter]
		if p <= tb.tol {
			continue
		}
		ratio := math.Max(row[tb.rhs], 0) / p
		switch {
		case leave < 0, ratio < bestRatio-tb.tol:
		case ratio <= bestRatio+tb.tol && (bland && tb.basis[i] < tb.basis[leave] || !bland && p > bestPivot):
		default:
			continue
		}
		leave, bestRatio, bestPivot = i, ratio, p
	}
	return leave
}

func (tb *tableau) pivot(r, e int) {
	pr := tb.t.RawRowView(r)
	floats.Scale(1/pr[e], pr)
	pr[e] = 1
	for i := 0; i <= tb.m; i++ {
		if i == r || (i < tb.m && tb.dropped[i]) {
			continue
		}
		row := tb.t.RawRowView(i)
		if f := row[e]; f != 0 {
			floats.AddScaled(row, -f, pr)
			row[e] = 0
		}
	}
	tb.basis[r] = e
}

func (tb *tableau) optimize(ctx context.Context, maxPivots int) error {
	obj := tb.t.RawRowView(tb.m)
	var stalled int
	for pivots := 0; ; pivots++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		bland := stalled >= stallPivots
		enter := tb.entering(bland)
		if enter < 0 {
			return nil
		}
		if pivots >= maxPivots {
			return fmt.Errorf("%w after %d pivots", errPivotLimit, pivots)
		}
		leave := tb.leaving(enter, bland)
		if leave < 0 {
			return ErrUnbounded
		}
		before := obj[tb.rhs]
		tb.pivot(leave, enter)
		if obj[tb.rhs] > before+tb.tol {
			stalled = 0
		} else {
			stalled++
		}
	}
}

// phaseOne finds a feasible basis without artificial columns. A row whose
// artificial column cannot be pivoted out is a combination of the other rows
// and is dropped; the zero phase one objective shows its rhs is consistent.
// It returns the number of dropped rows.
func (tb *tableau) phaseOne(ctx context.Context, maxPivots int, feasTol float64) (int, error) {
	if err := tb.optimize(ctx, maxPivots); err != nil {
		if errors.Is(err, ErrUnbounded) {
			return 0, fmt.Errorf("phase one failed: %v", err)
		}
		return 0, err
	}
	if residual := -tb.t.At(tb.m, tb.rhs); residual > feasTol {
		return 0, fmt.Errorf("%w: constraint residual %g", ErrInfeasible, residual)
	}

	basic := make([]bool, tb.n)
	for _, k := range tb.basis {
		if k >= 0 && k < tb.n {
			basic[k] = true
		}
	}
	var dropped int
	for i := 0; i < tb.m; i++ {
		if tb.basis[i] < tb.n {
			continue
		}
		row := tb.t.RawRowView(i)
		enter, best := -1, tb.tol
		for j := 0; j < tb.n; j++ {
			if v := math.Abs(row[j]); v > best && !basic[j] {
				enter, best = j, v
			}
		}
		if enter < 0 {
			tb.dropped[i] = true
			tb.basis[i] = -1
			dropped++
			continue
		}
		// the artificial column is at zero, so the pivot keeps feasibility
		row[tb.rhs] = 0
		tb.pivot(i, enter)
		basic[enter] = true
	}
	return dropped, nil
}

// phaseTwo minimizes c from the feasible basis left by phaseOne.
func (tb *tableau) phaseTwo(ctx context.Context, c []float64, maxPivots int) error {
	obj := tb.t.RawRowView(tb.m)
	for j := range obj {
		obj[j] = 0
	}
	copy(obj, c)
	for i, k := range tb.basis {
		if k < 0 || k >= tb.n || c[k] == 0 {
			continue
		}
		floats.AddScaled(obj, -c[k], tb.t.RawRowView(i))
	}
	return tb.optimize(ctx, maxPivots)
}

// values returns the basic solution of the tableau.
func (tb *tableau) values() []float64 {
	y := make([]float64, tb.n)
	for i, k := range tb.basis {
		if k >= 0 && k < tb.n {
			y[k] = math.Max(tb.t.At(i, tb.rhs), 0)
		}
	}
	return y
}

// refine recomputes the basic values in y by factorizing the final basis of
// the unscaled rows a and b, removing the error accumulated by the pivots.
// y is left unchanged when the basis is too large or ill-conditioned.
func (tb *tableau) refine(a *mat.Dense, b, y []float64) {
	var rows, cols []int
	for i, k := range tb.basis {
		if k >= 0 && k < tb.n {
			rows = append(rows, i)
			cols = append(cols, k)
		}
	}
	if len(rows) == 0 || len(rows) > maxRefineRows {
		return
	}
	basis := mat.NewDense(len(rows), len(rows), nil)
	rhs := mat.NewVecDense(len(rows), nil)
	for r, i := range rows {
		for q, k := range cols {
			basis.Set(r, q, a.At(i, k))
		}
		rhs.SetVec(r, b[i])
	}
	var x mat.VecDense
	if err := x.SolveVec(basis, rhs); err != nil {
		return
	}
	scale := 1 + floats.Max(y)
	for q := range cols {
		if v := x.AtVec(q); math.IsNaN(v) || v < -1e-6*scale {
			return
		}
	}
	for q, k := range cols {
		y[k] = math.Max(x.AtVec(q), 0)
	}
}
