package solver

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var inf = math.Inf(1)

func TestSimplex(t *testing.T) {
	ctx := context.Background()
	s := NewSimplex()

	t.Run("Upper Bound Binds", func(t *testing.T) {
		p := &Problem{}
		x := p.AddColumn("x", 0, 3, 1)
		y := p.AddColumn("y", 0, inf, 2)
		p.AddRow("sum", Equal, 5, Term{x, 1}, Term{y, 1})

		sol, err := s.Solve(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, StatusOptimal, sol.Status)
		assert.InDelta(t, 3, sol.Values[x], 1e-9)
		assert.InDelta(t, 2, sol.Values[y], 1e-9)
		assert.InDelta(t, 7, sol.Objective, 1e-9)
	})

	t.Run("Fixed Column Is Substituted", func(t *testing.T) {
		p := &Problem{}
		x := p.AddColumn("x", 2, 2, 0)
		y := p.AddColumn("y", 0, inf, 1)
		p.AddRow("atleast", GreaterEqual, 5, Term{x, 1}, Term{y, 1})

		sol, err := s.Solve(ctx, p)
		require.NoError(t, err)
		assert.InDelta(t, 2, sol.Values[x], 1e-9)
		assert.InDelta(t, 3, sol.Values[y], 1e-9)
	})

	t.Run("Lower Bound Shift", func(t *testing.T) {
		p := &Problem{}
		x := p.AddColumn("x", 1, 4, 2)
		y := p.AddColumn("y", 0, inf, 1)
		p.AddRow("atleast", GreaterEqual, 2, Term{x, 1}, Term{y, 1})

		sol, err := s.Solve(ctx, p)
		require.NoError(t, err)
		assert.InDelta(t, 1, sol.Values[x], 1e-9)
		assert.InDelta(t, 1, sol.Values[y], 1e-9)
		assert.InDelta(t, 3, sol.Objective, 1e-9)
	})

	t.Run("Objective Offset", func(t *testing.T) {
		p := &Problem{ObjectiveOffset: 10}
		x := p.AddColumn("x", 0, inf, 1)
		p.AddRow("atleast", GreaterEqual, 1, Term{x, 1})

		sol, err := s.Solve(ctx, p)
		require.NoError(t, err)
		assert.InDelta(t, 11, sol.Objective, 1e-9)
	})

	t.Run("Unused Column", func(t *testing.T) {
		p := &Problem{}
		x := p.AddColumn("x", 0, 4, -1)
		y := p.AddColumn("y", 0, inf, 3)
		sol, err := s.Solve(ctx, p)
		require.NoError(t, err)
		assert.InDelta(t, 4, sol.Values[x], 1e-9)
		assert.InDelta(t, 0, sol.Values[y], 1e-9)
	})

	t.Run("Infeasible", func(t *testing.T) {
		p := &Problem{}
		x := p.AddColumn("x", 0, inf, 1)
		y := p.AddColumn("y", 0, inf, 1)
		p.AddRow("negative", LessEqual, -1, Term{x, 1}, Term{y, 1})

		sol, err := s.Solve(ctx, p)
		assert.ErrorIs(t, err, ErrInfeasible)
		assert.Equal(t, StatusInfeasible, sol.Status)
	})

	t.Run("Infeasible Empty Row", func(t *testing.T) {
		p := &Problem{}
		x := p.AddColumn("x", 1, 1, 0)
		p.AddRow("fixed", Equal, 2, Term{x, 1})

		_, err := s.Solve(ctx, p)
		assert.ErrorIs(t, err, ErrInfeasible)
	})

	t.Run("Unbounded", func(t *testing.T) {
		p := &Problem{}
		x := p.AddColumn("x", 0, inf, -1)
		y := p.AddColumn("y", 0, inf, 0)
		p.AddRow("same", Equal, 0, Term{x, 1}, Term{y, -1})

		sol, err := s.Solve(ctx, p)
		assert.ErrorIs(t, err, ErrUnbounded)
		assert.Equal(t, StatusUnbounded, sol.Status)
	})

	t.Run("Unbounded Unused Column", func(t *testing.T) {
		p := &Problem{}
		p.AddColumn("x", 0, inf, -1)
		_, err := s.Solve(ctx, p)
		assert.ErrorIs(t, err, ErrUnbounded)
	})

	t.Run("Deterministic", func(t *testing.T) {
		build := func() *Problem {
			p := &Problem{}
			a := p.AddColumn("a", 0, inf, 1)
			b := p.AddColumn("b", 0, inf, 1)
			c := p.AddColumn("c", 0, 2, 0.5)
			p.AddRow("demand", Equal, 4, Term{a, 1}, Term{b, 1}, Term{c, 1})
			return p
		}
		s1, err := s.Solve(ctx, build())
		require.NoError(t, err)
		s2, err := s.Solve(ctx, build())
		require.NoError(t, err)
		assert.Equal(t, s1.Values, s2.Values)
		assert.InDelta(t, 3, s1.Objective, 1e-9)
	})

	t.Run("Duplicate Rows", func(t *testing.T) {
		p := &Problem{}
		x := p.AddColumn("x", 0, inf, 1)
		y := p.AddColumn("y", 0, inf, 2)
		p.AddRow("sum", Equal, 4, Term{x, 1}, Term{y, 1})
		p.AddRow("sum twice", Equal, 8, Term{x, 2}, Term{y, 2})
		p.AddRow("y", GreaterEqual, 1, Term{y, 1})

		sol, err := s.Solve(ctx, p)
		require.NoError(t, err)
		assert.InDelta(t, 3, sol.Values[x], 1e-9)
		assert.InDelta(t, 1, sol.Values[y], 1e-9)
		assert.InDelta(t, 5, sol.Objective, 1e-9)
	})

	t.Run("Inconsistent Duplicate Rows", func(t *testing.T) {
		p := &Problem{}
		x := p.AddColumn("x", 0, inf, 1)
		y := p.AddColumn("y", 0, inf, 1)
		p.AddRow("sum", Equal, 4, Term{x, 1}, Term{y, 1})
		p.AddRow("sum twice", Equal, 9, Term{x, 2}, Term{y, 2})

		sol, err := s.Solve(ctx, p)
		assert.ErrorIs(t, err, ErrInfeasible)
		assert.Equal(t, StatusInfeasible, sol.Status)
	})

	t.Run("Closed Storage Cycle", func(t *testing.T) {
		// the level after the last timestep feeds the first one
		const n = 3
		demand := []float64{2, 5, 1}
		p := &Problem{}
		var gen, charge, discharge, level [n]int
		for i := 0; i < n; i++ {
			gen[i] = p.AddColumn("gen", 0, 3, 1)
			charge[i] = p.AddColumn("charge", 0, inf, 0)
			discharge[i] = p.AddColumn("discharge", 0, inf, 0)
			level[i] = p.AddColumn("level", 0, 10, 0)
		}
		for i := 0; i < n; i++ {
			p.AddRow("bus", Equal, demand[i], Term{gen[i], 1}, Term{discharge[i], 1}, Term{charge[i], -1})
			prev := level[(i+n-1)%n]
			p.AddRow("storage", Equal, 0, Term{level[i], 1}, Term{prev, -1}, Term{charge[i], -1}, Term{discharge[i], 1})
		}

		sol, err := s.Solve(ctx, p)
		require.NoError(t, err)
		assert.InDelta(t, 8, sol.Objective, 1e-9)
		var charged, discharged float64
		for i := 0; i < n; i++ {
			assert.InDelta(t, demand[i], sol.Values[gen[i]]+sol.Values[discharge[i]]-sol.Values[charge[i]], 1e-9)
			charged += sol.Values[charge[i]]
			discharged += sol.Values[discharge[i]]
		}
		assert.InDelta(t, charged, discharged, 1e-9)
		assert.GreaterOrEqual(t, discharged, 2-1e-9)
	})

	t.Run("Canceled Context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Solve(cctx, &Problem{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestProblemValidate(t *testing.T) {
	t.Run("Unknown Column", func(t *testing.T) {
		p := &Problem{}
		p.AddRow("r", Equal, 0, Term{3, 1})
		assert.ErrorContains(t, p.Validate(), "unknown column")
	})

	t.Run("Crossed Bounds", func(t *testing.T) {
		p := &Problem{}
		p.AddColumn("x", 2, 1, 0)
		assert.ErrorIs(t, p.Validate(), ErrInfeasible)
	})

	t.Run("Infinite Lower", func(t *testing.T) {
		p := &Problem{}
		p.AddColumn("x", math.Inf(-1), 1, 0)
		assert.ErrorContains(t, p.Validate(), "finite lower bound")
	})

	t.Run("Drops Zero Terms", func(t *testing.T) {
		p := &Problem{}
		x := p.AddColumn("x", 0, inf, 0)
		p.AddRow("r", Equal, 0, Term{x, 0})
		assert.Empty(t, p.Rows[0].Terms)
		assert.Equal(t, 0, p.NonZeros())
	})
}

func sampleProblem() *Problem {
	p := &Problem{}
	x := p.AddColumn("flow pv->electricity", 0, 5, 0)
	y := p.AddColumn("flow fuel", 1, inf, 3.4)
	z := p.AddColumn("fixed", 2, 2, 0)
	p.AddRow("balance electricity 0", Equal, 4, Term{x, 1}, Term{y, 1}, Term{z, -0.5})
	p.AddRow("cap", LessEqual, 10, Term{y, 2})
	return p
}

func TestWriteLP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLP(&buf, sampleProblem()))
	out := buf.String()

	assert.Contains(t, out, "Minimize\n obj: + 3.4 x1_flow_fuel\n")
	assert.Contains(t, out, " c0_balance_electricity_0: + 1 x0_flow_pv__electricity + 1 x1_flow_fuel - 0.5 x2_fixed = 4\n")
	assert.Contains(t, out, " c1_cap: + 2 x1_flow_fuel <= 10\n")
	assert.Contains(t, out, " 0 <= x0_flow_pv__electricity <= 5\n")
	assert.Contains(t, out, " x1_flow_fuel >= 1\n")
	assert.Contains(t, out, " x2_fixed = 2\n")
	assert.True(t, strings.HasSuffix(out, "End\n"))
}

func TestWriteMPS(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMPS(&buf, sampleProblem()))
	out := buf.String()

	assert.Contains(t, out, " E c0_balance_electricity_0\n")
	assert.Contains(t, out, " L c1_cap\n")
	assert.Contains(t, out, " x0_flow_pv__electricity obj 0\n")
	assert.Contains(t, out, " x1_flow_fuel c1_cap 2\n")
	assert.Contains(t, out, " rhs c0_balance_electricity_0 4\n")
	assert.Contains(t, out, " UP bnd x0_flow_pv__electricity 5\n")
	assert.Contains(t, out, " LO bnd x1_flow_fuel 1\n")
	assert.Contains(t, out, " FX bnd x2_fixed 2\n")
	assert.True(t, strings.HasSuffix(out, "ENDATA\n"))
}

func TestColumnNames(t *testing.T) {
	name := columnName(12, "flow tree biomass->woody_biomass_bus")
	assert.Equal(t, "x12_flow_tree_biomass__woody_biomass_bus", name)
	j, ok := columnIndex(name)
	require.True(t, ok)
	assert.Equal(t, 12, j)

	_, ok = columnIndex("c1_row")
	assert.False(t, ok)

	long := sanitize(strings.Repeat("a", 200))
	assert.Len(t, long, maxNameLen)
}

func TestParseCBCSolution(t *testing.T) {
	t.Run("Optimal", func(t *testing.T) {
		in := "Optimal - objective value 7.00000000\n" +
			"      0 x0_a                      3                       0\n" +
			"      1 x1_b                      2                       0\n"
		status, values, err := ParseCBCSolution(strings.NewReader(in), 3)
		require.NoError(t, err)
		assert.Equal(t, StatusOptimal, status)
		assert.Equal(t, []float64{3, 2, 0}, values)
	})

	t.Run("Infeasible With Markers", func(t *testing.T) {
		in := "Infeasible - objective value 0.00000000\n" +
			"**    0 x0_a                      3                       0\n"
		status, values, err := ParseCBCSolution(strings.NewReader(in), 1)
		require.NoError(t, err)
		assert.Equal(t, StatusInfeasible, status)
		assert.Equal(t, []float64{3}, values)
	})

	t.Run("Unknown Column", func(t *testing.T) {
		in := "Optimal - objective value 1\n 0 x9_a 1 0\n"
		_, _, err := ParseCBCSolution(strings.NewReader(in), 1)
		assert.Error(t, err)
	})

	t.Run("Empty", func(t *testing.T) {
		_, _, err := ParseCBCSolution(strings.NewReader(""), 1)
		assert.Error(t, err)
	})
}

func TestParseGLPKSolution(t *testing.T) {
	t.Run("Optimal", func(t *testing.T) {
		in := "c Problem:\nc Rows: 1\ns bas 1 2 f f 7\ni 1 s 5 1\nj 1 b 3 0\nj 2 b 2 0\ne o f\n"
		status, values, err := ParseGLPKSolution(strings.NewReader(in), 2)
		require.NoError(t, err)
		assert.Equal(t, StatusOptimal, status)
		assert.Equal(t, []float64{3, 2}, values)
	})

	t.Run("Infeasible", func(t *testing.T) {
		in := "s bas 1 1 n f 0\nj 1 b 0 0\n"
		status, _, err := ParseGLPKSolution(strings.NewReader(in), 1)
		require.NoError(t, err)
		assert.Equal(t, StatusInfeasible, status)
	})

	t.Run("Unbounded", func(t *testing.T) {
		in := "s bas 1 1 f n 0\n"
		status, _, err := ParseGLPKSolution(strings.NewReader(in), 1)
		require.NoError(t, err)
		assert.Equal(t, StatusUnbounded, status)
	})

	t.Run("No Header", func(t *testing.T) {
		_, _, err := ParseGLPKSolution(strings.NewReader("j 1 b 0 0\n"), 1)
		assert.Error(t, err)
	})
}

// fakeSolver writes a shell script that ignores the model and writes
// solution to the path given at argument position solArg.
func fakeSolver(t *testing.T, solArg int, solution string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-solver")
	body := "#!/bin/sh\necho solving\ncat > \"$" + string(rune('0'+solArg)) + "\" <<'EOF'\n" + solution + "EOF\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script
}

func TestExternal(t *testing.T) {
	ctx := context.Background()

	t.Run("CBC", func(t *testing.T) {
		p := &Problem{}
		x := p.AddColumn("x", 0, 3, 1)
		y := p.AddColumn("y", 0, inf, 2)
		p.AddRow("sum", Equal, 5, Term{x, 1}, Term{y, 1})

		e := &External{Kind: KindCBC, Path: fakeSolver(t, 4, "Optimal - objective value 7\n 0 x0_x 3 0\n 1 x1_y 2 0\n")}
		sol, err := e.Solve(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, StatusOptimal, sol.Status)
		assert.Equal(t, []float64{3, 2}, sol.Values)
		assert.InDelta(t, 7, sol.Objective, 1e-9)
	})

	t.Run("GLPK Keeps Files", func(t *testing.T) {
		p := &Problem{}
		x := p.AddColumn("x", 0, inf, 1)
		p.AddRow("min", GreaterEqual, 1, Term{x, 1})

		dir := t.TempDir()
		e := &External{Kind: KindGLPK, Path: fakeSolver(t, 4, "s bas 1 1 f f 1\nj 1 b 1 0\n"), WorkDir: dir, KeepFiles: true}
		sol, err := e.Solve(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []float64{1}, sol.Values)
		assert.FileExists(t, filepath.Join(dir, "model.mps"))
	})

	t.Run("Infeasible Status", func(t *testing.T) {
		p := &Problem{}
		p.AddColumn("x", 0, inf, 1)
		e := &External{Kind: KindCBC, Path: fakeSolver(t, 4, "Infeasible - objective value 0\n")}
		sol, err := e.Solve(ctx, p)
		assert.ErrorIs(t, err, ErrInfeasible)
		assert.Equal(t, StatusInfeasible, sol.Status)
	})

	t.Run("Empty Row Infeasible", func(t *testing.T) {
		p := &Problem{}
		p.AddRow("impossible", Equal, 1)
		e := &External{Kind: KindCBC, Path: "/nonexistent/cbc"}
		_, err := e.Solve(ctx, p)
		assert.ErrorIs(t, err, ErrInfeasible)
	})

	t.Run("Not Found", func(t *testing.T) {
		p := &Problem{}
		p.AddColumn("x", 0, inf, 1)
		e := &External{Kind: KindCBC, Path: "pathways-no-such-solver"}
		_, err := e.Solve(ctx, p)
		assert.ErrorIs(t, err, ErrSolverNotFound)
	})

	t.Run("Unknown Kind", func(t *testing.T) {
		e := &External{Kind: "cplex"}
		_, err := e.Solve(ctx, &Problem{})
		assert.ErrorContains(t, err, "unknown external solver kind")
	})
}
