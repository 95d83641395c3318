package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ugandapathways/pathways/pkg/log"
	"github.com/ugandapathways/pathways/pkg/types"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Runs are stored in "scenarios/{scenario}/runs/{timestamp}_{id}"
// where timestamp is fixed-width UTC with nanoseconds.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// the project ID may be empty and detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) runs(scenario string) (*firestore.CollectionRef, error) {
	if scenario == "" {
		return nil, fmt.Errorf("scenario cannot be empty")
	}
	return f.client.Collection("scenarios").Doc(scenario).Collection("runs"), nil
}

// runDocLayout has a fixed width so document IDs sort by time.
const runDocLayout = "2006-01-02T15:04:05.000000000Z"

// runDocPrefix is the part of the document ID derived from the start time.
// Every run started at ts has an ID in [runDocPrefix(ts), runDocPrefix(ts+1ns)).
func runDocPrefix(ts time.Time) string {
	return ts.UTC().Format(runDocLayout)
}

func runDocID(run types.Run) string {
	if run.ID == "" {
		return runDocPrefix(run.Timestamp)
	}
	return runDocPrefix(run.Timestamp) + "_" + run.ID
}

// SaveRun stores the run as a JSON blob. The document ID starts with the
// timestamp for lexicographic ordering and efficient range queries, and
// ends with the run ID so runs started at the same time do not collide.
// Saving a run whose document exists returns ErrRunExists.
func (f *FirestoreProvider) SaveRun(ctx context.Context, run types.Run) error {
	coll, err := f.runs(run.Scenario)
	if err != nil {
		return err
	}
	if run.Version == 0 {
		run.Version = types.CurrentRunVersion
	}
	jsonBytes, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	docID := runDocID(run)
	_, err = coll.Doc(docID).Create(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": run.Timestamp,
		"version":   run.Version,
	})
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: %s/%s", ErrRunExists, run.Scenario, docID)
	}
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func decodeRun(ctx context.Context, doc *firestore.DocumentSnapshot) (types.Run, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		return types.Run{}, fmt.Errorf("run document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return types.Run{}, fmt.Errorf("run document %s 'json' field is not a string", doc.Ref.ID)
	}
	var run types.Run
	if err := json.Unmarshal([]byte(jsonStr), &run); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal run json", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return types.Run{}, fmt.Errorf("failed to unmarshal run json: %w", err)
	}
	return run, nil
}

// GetRun retrieves the run of scenario started at ts. When several runs
// started at the same instant the one with the smallest ID is returned.
func (f *FirestoreProvider) GetRun(ctx context.Context, scenario string, ts time.Time) (types.Run, error) {
	coll, err := f.runs(scenario)
	if err != nil {
		return types.Run{}, err
	}
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(runDocPrefix(ts))).
		Where(firestore.DocumentID, "<", coll.Doc(runDocPrefix(ts.Add(time.Nanosecond)))).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return types.Run{}, fmt.Errorf("%w: %s at %s", ErrRunNotFound, scenario, runDocPrefix(ts))
	}
	if err != nil {
		return types.Run{}, fmt.Errorf("failed to fetch run doc: %w", err)
	}
	return decodeRun(ctx, doc)
}

// ListRuns retrieves the runs of scenario within the specified time range.
// Uses document ID range queries for efficient filtering without reading all
// documents.
func (f *FirestoreProvider) ListRuns(ctx context.Context, scenario string, start, end time.Time) ([]types.Run, error) {
	coll, err := f.runs(scenario)
	if err != nil {
		return nil, err
	}
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(runDocPrefix(start))).
		Where(firestore.DocumentID, "<", coll.Doc(runDocPrefix(end))).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var runs []types.Run
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate runs: %w", err)
		}
		run, err := decodeRun(ctx, doc)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// GetLatestRun retrieves the most recent run of scenario.
func (f *FirestoreProvider) GetLatestRun(ctx context.Context, scenario string) (types.Run, error) {
	coll, err := f.runs(scenario)
	if err != nil {
		return types.Run{}, err
	}
	iter := coll.
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return types.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, scenario)
	}
	if err != nil {
		return types.Run{}, fmt.Errorf("failed to get latest run doc: %w", err)
	}
	return decodeRun(ctx, doc)
}
