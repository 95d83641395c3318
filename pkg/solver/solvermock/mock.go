package solvermock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ugandapathways/pathways/pkg/solver"
)

type MockSolver struct {
	mock.Mock
}

var _ solver.Solver = (*MockSolver)(nil)

func (m *MockSolver) Name() string {
	return "mock"
}

func (m *MockSolver) Solve(ctx context.Context, p *solver.Problem) (solver.Solution, error) {
	args := m.Called(ctx, p)
	if fn, ok := args.Get(0).(func(context.Context, *solver.Problem) solver.Solution); ok {
		return fn(ctx, p), args.Error(1)
	}
	return args.Get(0).(solver.Solution), args.Error(1)
}

// Zero returns an optimal solution with every column of p at zero.
func Zero(p *solver.Problem) solver.Solution {
	return solver.Solution{
		Status: solver.StatusOptimal,
		Values: make([]float64, len(p.Columns)),
	}
}
