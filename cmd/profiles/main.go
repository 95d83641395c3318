package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/levenlabs/go-lflag"

	"github.com/ugandapathways/pathways/pkg/log"
	"github.com/ugandapathways/pathways/pkg/timeseries"
)

func main() {
	dir := lflag.String("profile-dir", "data/profiles", "Directory holding the per-technology profile csv files")
	out := lflag.String("out", "data/uganda_sequences.csv", "Merged time series csv to write")
	var year int
	lflag.JSON(&year, "year", 0, "Year of the hourly timestamp column (0 writes no timestamps)")

	lflag.Configure()
	if err := log.ConfigureFromLLog(); err != nil {
		panic(err)
	}
	ctx := context.Background()

	merged, err := timeseries.Merge(*dir, timeseries.DefaultUgandaProfiles())
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to merge profiles", slog.String("dir", *dir), slog.Any("error", err))
		os.Exit(1)
	}
	if year > 0 {
		merged.Index = timeseries.HourlyIndex(year, merged.Len())
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create output", slog.String("path", *out), slog.Any("error", err))
		os.Exit(1)
	}
	if err := timeseries.WriteCSV(f, merged); err != nil {
		f.Close()
		log.Ctx(ctx).ErrorContext(ctx, "failed to write merged profiles", slog.Any("error", err))
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close output", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "merged profiles",
		slog.String("out", *out),
		slog.Int("columns", len(merged.Names())),
		slog.Int("timesteps", merged.Len()),
	)
}
