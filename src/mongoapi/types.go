package mongoapi

import (
	"context"
	"net/url"
)

// CollectionStats holds the collStats figures shown when picking a
// collection.
type CollectionStats struct {
	Documents int64
	SizeBytes int64
}

// Cursor iterates over the documents of a Find in natural order.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(v any) error
	Err() error
	Close(ctx context.Context) error
}

// Client is a narrow interface over the MongoDB driver used by our app.
// Keep it small and focused on what we actually need so it stays mockable.
type Client interface {
	// Server
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	// Enumeration
	ListDatabases(ctx context.Context) ([]string, error)
	ListCollections(ctx context.Context, db string) ([]string, error)
	CollectionStats(ctx context.Context, db, coll string) (CollectionStats, error)

	// Documents
	CountDocuments(ctx context.Context, db, coll string) (int64, error)
	Find(ctx context.Context, db, coll string) (Cursor, error)
	// InsertMany inserts docs in order and stops at the first failure.
	// It returns how many documents were inserted before that failure.
	InsertMany(ctx context.Context, db, coll string, docs []any) (int, error)
}

// Redact hides the password of a connection string so it can be logged or
// stored in a manifest.
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<unparseable uri>"
	}
	return u.Redacted()
}
