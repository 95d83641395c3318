// Package controller runs scenarios end to end: it builds the energy system,
// optimizes it, derives the indicators, writes the reports and stores the
// run.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ugandapathways/pathways/pkg/energysystem"
	"github.com/ugandapathways/pathways/pkg/indicators"
	"github.com/ugandapathways/pathways/pkg/log"
	"github.com/ugandapathways/pathways/pkg/model"
	"github.com/ugandapathways/pathways/pkg/report"
	"github.com/ugandapathways/pathways/pkg/results"
	"github.com/ugandapathways/pathways/pkg/scenario"
	"github.com/ugandapathways/pathways/pkg/solver"
	"github.com/ugandapathways/pathways/pkg/storage"
	"github.com/ugandapathways/pathways/pkg/timeseries"
	"github.com/ugandapathways/pathways/pkg/types"
)

// balanceTolerance is the largest bus imbalance accepted without a warning.
const balanceTolerance = 1e-6

// RunRequest describes a single scenario run.
type RunRequest struct {
	Scenario scenario.Scenario
	Data     *timeseries.Table
	// Params default to the scenario's defaults when nil.
	Params scenario.Parameters
	// OutDir receives <scenario>_scalars.csv and <scenario>_sequences.csv.
	// Nothing is written when empty.
	OutDir string
}

// Controller handles running scenarios.
type Controller struct {
	solver  solver.Solver
	storage storage.Database
	now     func() time.Time
	newID   func() string
}

// NewController creates a new Controller. Runs are saved to db when it is
// not nil.
func NewController(s solver.Solver, db storage.Database) *Controller {
	return &Controller{
		solver:  s,
		storage: db,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Run optimizes the scenario of req and returns the run record.
func (c *Controller) Run(ctx context.Context, req RunRequest) (types.Run, error) {
	if req.Scenario == nil {
		return types.Run{}, errors.New("no scenario given")
	}
	if req.Data == nil {
		return types.Run{}, errors.New("no data given")
	}
	name := req.Scenario.Name()
	id := c.newID()
	ctx = log.WithScenario(ctx, name)
	ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("runID", id)))
	start := c.now()

	status := "failed"
	defer func() {
		runsTotal.WithLabelValues(name, status).Inc()
	}()

	params := req.Params
	if params == nil {
		params = req.Scenario.Defaults()
	}
	n := req.Scenario.Timesteps(req.Data)
	if n == 0 {
		return types.Run{}, fmt.Errorf("scenario %s has no timesteps", name)
	}
	data := req.Data.Head(n)

	es := energysystem.New(timeseries.HourlyIndex(req.Scenario.Year(), n))
	if err := req.Scenario.Build(es, data, params); err != nil {
		return types.Run{}, err
	}
	log.Ctx(ctx).InfoContext(ctx, "built energy system",
		slog.Int("timesteps", n),
		slog.Int("nodes", len(es.Nodes())),
	)

	solveStart := c.now()
	m, err := model.Build(ctx, es)
	if err != nil {
		return types.Run{}, fmt.Errorf("failed to build model for %s: %w", name, err)
	}
	res, err := m.Solve(ctx, c.solver)
	if err != nil {
		return types.Run{}, fmt.Errorf("failed to optimize %s: %w", name, err)
	}
	solveSeconds.WithLabelValues(name, c.solver.Name()).Observe(c.now().Sub(solveStart).Seconds())
	if err := results.CheckBalance(es, res, balanceTolerance); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "solution does not balance every bus", slog.Any("err", err))
	}

	ind, err := req.Scenario.Indicators(res, params)
	if err != nil {
		return types.Run{}, err
	}
	for _, v := range ind {
		log.Ctx(ctx).InfoContext(ctx, "indicator", slog.String("name", v.Name), slog.Float64("value", v.Value))
	}

	run := types.Run{
		ID:         id,
		Version:    types.CurrentRunVersion,
		Scenario:   name,
		Timestamp:  start.UTC(),
		Year:       req.Scenario.Year(),
		Timesteps:  n,
		Params:     params,
		Indicators: toScalars(ind),
		Scalars:    toScalars(report.BusScalars(res, req.Scenario.Buses(), ind)),
		Meta:       res.Meta,
	}

	if req.OutDir != "" {
		files, err := report.WriteRun(req.OutDir, name, res, req.Scenario.Buses(), ind)
		if err != nil {
			return types.Run{}, fmt.Errorf("failed to write results of %s: %w", name, err)
		}
		run.ScalarsFile = files.Scalars
		run.SequencesFile = files.Sequences
		log.Ctx(ctx).InfoContext(ctx, "wrote results",
			slog.String("scalars", files.Scalars),
			slog.String("sequences", files.Sequences),
		)
	}

	run.Duration = c.now().Sub(start)
	if c.storage != nil {
		if err := c.storage.SaveRun(ctx, run); err != nil {
			status = "unsaved"
			return types.Run{}, fmt.Errorf("failed to save run of %s: %w", name, err)
		}
	}
	status = "ok"
	for _, v := range ind {
		indicatorValue.WithLabelValues(name, v.Name).Set(v.Value)
	}
	log.Ctx(ctx).InfoContext(ctx, "finished run",
		slog.Float64("objective", res.Meta.Objective),
		slog.Duration("elapsed", run.Duration),
	)
	return run, nil
}

func toScalars(s indicators.Scalars) []types.Scalar {
	out := make([]types.Scalar, len(s))
	for i, v := range s {
		out[i] = types.Scalar{Name: v.Name, Value: v.Value}
	}
	return out
}
