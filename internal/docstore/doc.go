// Package docstore is a small collection-oriented document database abstraction.
//
// A Store hands out Collections addressed by name. Each Collection supports
// Get, Query (equality and inequality filters with an optional field projection),
// Insert with store-assigned ids, partial Update and Delete. Reads of absent
// documents return a nil *Snapshot rather than an error; Update of an absent
// document returns ErrNotFound.
//
// # Backends
//
//   - MemoryStore: process-local maps, used by tests and demos
//   - SQLiteStore: one table of JSON documents via modernc.org/sqlite
//   - MongoStore: MongoDB via go.mongodb.org/mongo-driver
//   - FirestoreStore: Cloud Firestore via cloud.google.com/go/firestore
//
// Open selects a backend from Options.Driver.
//
// # Values
//
// Document values are normalised so every backend returns the same Go types:
// string, bool, int64, float64, time.Time (UTC), []any and map[string]any.
// Operations are atomic per document only.
package docstore
