// ABOUTME: Backend selection for the document store
// ABOUTME: Maps a driver name and its connection settings onto a concrete Store

package docstore

import (
	"context"
	"errors"
	"fmt"
)

// Supported drivers.
const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverMongo     = "mongo"
	DriverFirestore = "firestore"
)

// ErrUnknownDriver is returned by Open for an unrecognised driver name.
var ErrUnknownDriver = errors.New("unknown document store driver")

// Options selects and configures a backend.
type Options struct {
	Driver    string
	Path      string // sqlite
	URI       string // mongo
	Database  string // mongo
	ProjectID string // firestore
}

// Open creates the Store described by opts. An empty driver means sqlite.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "":
		return NewSQLiteStore(opts.Path)
	case DriverMongo:
		return NewMongoStore(ctx, opts.URI, opts.Database)
	case DriverFirestore:
		return NewFirestoreStore(ctx, opts.ProjectID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}
