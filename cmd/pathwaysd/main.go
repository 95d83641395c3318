package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"

	"github.com/ugandapathways/pathways/pkg/controller"
	"github.com/ugandapathways/pathways/pkg/log"
	"github.com/ugandapathways/pathways/pkg/scenario"
	"github.com/ugandapathways/pathways/pkg/server"
	"github.com/ugandapathways/pathways/pkg/solver"
	"github.com/ugandapathways/pathways/pkg/storage"
)

func main() {
	// init packages
	sol := solver.Configured()
	s := storage.Configured()

	// init server
	srv := server.Configured(scenario.All(), s, controller.NewController(sol, s))

	// parse flags
	lflag.Configure()
	if err := log.ConfigureFromLLog(); err != nil {
		panic(err)
	}

	if err := run(srv, s); err != nil {
		log.Ctx(context.Background()).Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// run serves until a signal arrives or the server fails. s is closed before
// run returns.
func run(srv *server.Server, s storage.Database) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
	return nil
}
