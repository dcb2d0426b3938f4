package mongoapi

import (
	"context"
	"strings"
	"time"

	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"mongowiz/src/apperr"
	"mongowiz/src/version"
)

// RealClient wraps the official MongoDB Go driver.
type RealClient struct {
	c *mongo.Client
}

// Connect dials uri and pings the primary. Any failure is a connection error.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*RealClient, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, apperr.Connection(errors.New("no connection string"), "connect")
	}
	opts := options.Client().
		ApplyURI(uri).
		SetAppName("mongowiz/" + version.Version).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	c, err := mongo.Connect(opts)
	if err != nil {
		return nil, apperr.Connection(err, "connect to %s", Redact(uri))
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, apperr.Connection(err, "ping %s", Redact(uri))
	}
	return &RealClient{c: c}, nil
}

func (r *RealClient) Ping(ctx context.Context) error {
	if err := r.c.Ping(ctx, readpref.Primary()); err != nil {
		return apperr.Connection(err, "ping")
	}
	return nil
}

func (r *RealClient) Close(ctx context.Context) error {
	return r.c.Disconnect(ctx)
}

func (r *RealClient) ListDatabases(ctx context.Context) ([]string, error) {
	names, err := r.c.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, wrap(err, "list databases")
	}
	return names, nil
}

func (r *RealClient) ListCollections(ctx context.Context, db string) ([]string, error) {
	names, err := r.c.Database(db).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, wrap(err, "list collections of %s", db)
	}
	return names, nil
}

func (r *RealClient) CollectionStats(ctx context.Context, db, coll string) (CollectionStats, error) {
	res := r.c.Database(db).RunCommand(ctx, bson.D{{Key: "collStats", Value: coll}})
	var doc bson.M
	if err := res.Decode(&doc); err != nil {
		return CollectionStats{}, wrap(err, "collStats %s.%s", db, coll)
	}
	return CollectionStats{Documents: number(doc["count"]), SizeBytes: number(doc["size"])}, nil
}

func (r *RealClient) CountDocuments(ctx context.Context, db, coll string) (int64, error) {
	n, err := r.c.Database(db).Collection(coll).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, wrap(err, "count %s.%s", db, coll)
	}
	return n, nil
}

func (r *RealClient) Find(ctx context.Context, db, coll string) (Cursor, error) {
	cur, err := r.c.Database(db).Collection(coll).Find(ctx, bson.D{})
	if err != nil {
		return nil, wrap(err, "find in %s.%s", db, coll)
	}
	return cur, nil
}

func (r *RealClient) InsertMany(ctx context.Context, db, coll string, docs []any) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	res, err := r.c.Database(db).Collection(coll).InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return len(res.InsertedIDs), nil
	}
	return insertedBefore(err, len(docs)), wrap(err, "insert into %s.%s", db, coll)
}

// insertedBefore reports how many of n documents an ordered insert wrote
// before failing with err. Ordered inserts stop at the first write error; a
// write concern error alone means every document was written.
func insertedBefore(err error, n int) int {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return 0
	}
	if len(bwe.WriteErrors) > 0 {
		return bwe.WriteErrors[0].Index
	}
	if bwe.WriteConcernError != nil {
		return n
	}
	return 0
}

// wrap marks network and timeout failures as connection errors and annotates
// everything else.
func wrap(err error, format string, args ...any) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return apperr.Connection(err, format, args...)
	}
	return errors.Annotatef(err, format, args...)
}

// number reads a collStats figure, which the server reports as int32, int64
// or double depending on magnitude.
func number(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
