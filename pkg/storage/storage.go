package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homedash/homedash/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// ErrNoActions is returned by GetLatestAction when nothing was recorded yet.
var ErrNoActions = errors.New("no actions recorded")

// Database persists the log of commands the dashboard sent to the backend.
type Database interface {
	InsertAction(ctx context.Context, action types.Action) error

	// GetActionHistory returns the actions in [start, end) ordered by time.
	GetActionHistory(ctx context.Context, start, end time.Time) ([]types.Action, error)
	GetLatestAction(ctx context.Context) (types.Action, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "memory", "Storage provider to use (available: memory, firestore)")

	var p struct{ Database }

	mem := NewMemory(0)
	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "memory":
			p.Database = mem
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
