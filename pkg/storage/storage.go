package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/ugandapathways/pathways/pkg/types"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunExists   = errors.New("run already exists")
)

// Database defines the interface for persisting scenario runs.
type Database interface {
	// SaveRun stores run under its scenario and timestamp, replacing an
	// existing run with the same key.
	SaveRun(ctx context.Context, run types.Run) error
	// GetRun returns the run of scenario started at ts.
	GetRun(ctx context.Context, scenario string, ts time.Time) (types.Run, error)
	// ListRuns returns the runs of scenario started in [start, end), oldest
	// first.
	ListRuns(ctx context.Context, scenario string, start, end time.Time) ([]types.Run, error)
	// GetLatestRun returns the most recent run of scenario.
	GetLatestRun(ctx context.Context, scenario string) (types.Run, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "none", "Storage provider to use (available: firestore, none)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "none":
			p.Database = None{}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

// None discards runs. It is used when runs only need to be written to csv.
type None struct{}

var _ Database = None{}

func (None) SaveRun(ctx context.Context, run types.Run) error { return nil }

func (None) GetRun(ctx context.Context, scenario string, ts time.Time) (types.Run, error) {
	return types.Run{}, fmt.Errorf("%w: %s at %s", ErrRunNotFound, scenario, ts.UTC().Format(time.RFC3339))
}

func (None) ListRuns(ctx context.Context, scenario string, start, end time.Time) ([]types.Run, error) {
	return nil, nil
}

func (None) GetLatestRun(ctx context.Context, scenario string) (types.Run, error) {
	return types.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, scenario)
}

func (None) Close() error { return nil }
