package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/homedash/homedash/pkg/log"
	"github.com/homedash/homedash/pkg/types"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fixed width so document ids sort the same way as the timestamps
const actionDocIDLayout = "2006-01-02T15:04:05.000000000Z"

// FirestoreProvider implements Database using Google Cloud Firestore.
// Actions are stored as JSON blobs in the "action_history" collection.
type FirestoreProvider struct {
	client     *firestore.Client
	projectID  string
	database   string
	collection string
}

var _ Database = (*FirestoreProvider)(nil)

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	collection := lflag.String("firestore-collection", "action_history", "Firestore collection that holds the action log")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.collection = *collection

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// an empty project id is detected from the environment
	if f.collection == "" {
		return fmt.Errorf("firestore-collection cannot be empty")
	}
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

func (f *FirestoreProvider) getCollection() (*firestore.CollectionRef, error) {
	if f.client == nil {
		return nil, fmt.Errorf("firestore client is not initialized")
	}
	if f.collection == "" {
		return nil, fmt.Errorf("collection cannot be empty")
	}
	return f.client.Collection(f.collection), nil
}

func actionDocID(a types.Action) string {
	id := a.Timestamp.UTC().Format(actionDocIDLayout)
	if a.ID != "" {
		id += "_" + a.ID
	}
	return id
}

// InsertAction adds a new action record as a JSON blob. The document id starts
// with the timestamp for lexicographic ordering and efficient range queries.
func (f *FirestoreProvider) InsertAction(ctx context.Context, action types.Action) error {
	jsonBytes, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}

	coll, err := f.getCollection()
	if err != nil {
		return err
	}
	_, err = coll.Doc(actionDocID(action)).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": action.Timestamp,
		"kind":      string(action.Kind),
		"targetID":  string(action.TargetID),
	})
	if err != nil {
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

func decodeActionDoc(ctx context.Context, doc *firestore.DocumentSnapshot) (types.Action, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "action doc missing json", slog.String("actionID", doc.Ref.ID), slog.Any("err", err))
		return types.Action{}, fmt.Errorf("action document %s missing 'json' field: %w", doc.Ref.ID, err)
	}

	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "action doc json not string", slog.String("actionID", doc.Ref.ID))
		return types.Action{}, fmt.Errorf("action document %s 'json' field is not string", doc.Ref.ID)
	}

	var a types.Action
	if err := json.Unmarshal([]byte(jsonStr), &a); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal action", slog.String("actionID", doc.Ref.ID), slog.Any("err", err))
		return types.Action{}, fmt.Errorf("failed to unmarshal action (id=%s): %w", doc.Ref.ID, err)
	}
	return a, nil
}

// GetActionHistory retrieves action records within the specified time range.
func (f *FirestoreProvider) GetActionHistory(ctx context.Context, start, end time.Time) ([]types.Action, error) {
	startDocID := start.UTC().Format(actionDocIDLayout)
	endDocID := end.UTC().Format(actionDocIDLayout)

	coll, err := f.getCollection()
	if err != nil {
		return nil, err
	}
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var actions []types.Action
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating actions: %w", err)
		}
		a, err := decodeActionDoc(ctx, doc)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// GetLatestAction returns the most recent action.
func (f *FirestoreProvider) GetLatestAction(ctx context.Context) (types.Action, error) {
	coll, err := f.getCollection()
	if err != nil {
		return types.Action{}, err
	}
	iter := coll.
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return types.Action{}, ErrNoActions
	}
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Action{}, ErrNoActions
		}
		return types.Action{}, fmt.Errorf("failed to get latest action: %w", err)
	}
	return decodeActionDoc(ctx, doc)
}
