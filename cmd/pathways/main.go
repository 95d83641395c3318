package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/levenlabs/go-lflag"

	"github.com/ugandapathways/pathways/pkg/controller"
	"github.com/ugandapathways/pathways/pkg/log"
	"github.com/ugandapathways/pathways/pkg/scenario"
	"github.com/ugandapathways/pathways/pkg/solver"
	"github.com/ugandapathways/pathways/pkg/storage"
	"github.com/ugandapathways/pathways/pkg/timeseries"
)

func main() {
	// init packages
	sel := scenario.Configured()
	sol := solver.Configured()
	s := storage.Configured()

	dataPath := lflag.String("data", "data/uganda_sequences.csv", "Merged time series csv")
	outDir := lflag.String("out-dir", "results", "Directory receiving the scalar and sequence csv files")

	// parse flags
	lflag.Configure()
	if err := log.ConfigureFromLLog(); err != nil {
		panic(err)
	}

	if err := run(sel, sol, s, *dataPath, *outDir); err != nil {
		log.Ctx(context.Background()).Error("run failed", slog.String("scenario", sel.Name()), slog.Any("error", err))
		os.Exit(1)
	}
}

// run executes the selected scenario and prints its indicators. s is closed
// before run returns.
func run(sel *scenario.Selection, sol solver.Solver, s storage.Database, dataPath, outDir string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	data, err := timeseries.ReadFile(dataPath)
	if err != nil {
		return fmt.Errorf("failed to read time series: %w", err)
	}

	c := controller.NewController(sol, s)
	r, err := c.Run(ctx, controller.RunRequest{
		Scenario: sel,
		Data:     data,
		Params:   sel.Params,
		OutDir:   outDir,
	})
	if err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "run complete",
		slog.String("scenario", r.Scenario),
		slog.String("scalars", r.ScalarsFile),
		slog.String("sequences", r.SequencesFile),
	)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "indicator\tvalue\t\n")
	for _, v := range r.Indicators {
		fmt.Fprintf(w, "%s\t%s\t\n", v.Name, humanize.FormatFloat("#,###.####", v.Value))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to print indicators: %w", err)
	}
	return nil
}
