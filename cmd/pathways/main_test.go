package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ugandapathways/pathways/pkg/scenario"
	"github.com/ugandapathways/pathways/pkg/solver"
	"github.com/ugandapathways/pathways/pkg/solver/solvermock"
	"github.com/ugandapathways/pathways/pkg/storage/storagemock"
)

func TestRunClosesStorage(t *testing.T) {
	sc, err := scenario.All().Scenario("simple")
	require.NoError(t, err)
	sel := &scenario.Selection{Scenario: sc, Params: sc.Defaults(), MaxTimesteps: 2}

	t.Run("Missing Data", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("Close").Return(nil)
		err := run(sel, solver.NewSimplex(), db, filepath.Join(t.TempDir(), "missing.csv"), t.TempDir())
		assert.ErrorContains(t, err, "failed to read time series")
		db.AssertExpectations(t)
	})

	t.Run("Solver Error", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("Close").Return(nil)
		sol := &solvermock.MockSolver{}
		sol.On("Solve", mock.Anything, mock.Anything).Return(solver.Solution{}, solver.ErrInfeasible)
		err := run(sel, sol, db, "../../data/uganda_sequences.csv", t.TempDir())
		assert.ErrorIs(t, err, solver.ErrInfeasible)
		db.AssertExpectations(t)
	})
}
