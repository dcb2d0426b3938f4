package mongoapi

import (
	"context"
	"sort"

	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// FakeClient is an in-memory implementation for unit tests. Documents are
// stored marshalled, so reads see the driver's own type mapping.
type FakeClient struct {
	DBs map[string]map[string]*FakeCollection

	// Failure injection.
	ListErr    error
	StatsErr   map[string]error // keyed by "db.coll"
	FindErr    map[string]error
	InsertErr  map[string]error
	InsertCall int
}

// FakeCollection holds raw documents in insertion order.
type FakeCollection struct {
	Docs []bson.Raw
	ids  map[string]bool
}

func NewFake() *FakeClient {
	return &FakeClient{
		DBs:       map[string]map[string]*FakeCollection{},
		StatsErr:  map[string]error{},
		FindErr:   map[string]error{},
		InsertErr: map[string]error{},
	}
}

// Seed inserts docs into db.coll, creating it if needed. It panics on
// failure since it is only used to set up tests.
func (f *FakeClient) Seed(db, coll string, docs ...any) *FakeClient {
	if _, err := f.InsertMany(context.Background(), db, coll, docs); err != nil {
		panic(err)
	}
	return f
}

// CreateCollection creates an empty collection.
func (f *FakeClient) CreateCollection(db, coll string) {
	f.collection(db, coll)
}

// Documents returns the stored documents of db.coll decoded as bson.D.
func (f *FakeClient) Documents(db, coll string) []bson.D {
	c := f.lookup(db, coll)
	if c == nil {
		return nil
	}
	out := make([]bson.D, 0, len(c.Docs))
	for _, raw := range c.Docs {
		var d bson.D
		if err := bson.Unmarshal(raw, &d); err != nil {
			panic(err)
		}
		out = append(out, d)
	}
	return out
}

func (f *FakeClient) Ping(ctx context.Context) error  { return f.ListErr }
func (f *FakeClient) Close(ctx context.Context) error { return nil }

func (f *FakeClient) ListDatabases(ctx context.Context) ([]string, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]string, 0, len(f.DBs))
	for name := range f.DBs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (f *FakeClient) ListCollections(ctx context.Context, db string) ([]string, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]string, 0, len(f.DBs[db]))
	for name := range f.DBs[db] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (f *FakeClient) CollectionStats(ctx context.Context, db, coll string) (CollectionStats, error) {
	if err := f.StatsErr[db+"."+coll]; err != nil {
		return CollectionStats{}, err
	}
	c := f.lookup(db, coll)
	if c == nil {
		return CollectionStats{}, errors.NotFoundf("collection %s.%s", db, coll)
	}
	var size int64
	for _, raw := range c.Docs {
		size += int64(len(raw))
	}
	return CollectionStats{Documents: int64(len(c.Docs)), SizeBytes: size}, nil
}

func (f *FakeClient) CountDocuments(ctx context.Context, db, coll string) (int64, error) {
	c := f.lookup(db, coll)
	if c == nil {
		return 0, nil
	}
	return int64(len(c.Docs)), nil
}

func (f *FakeClient) Find(ctx context.Context, db, coll string) (Cursor, error) {
	if err := f.FindErr[db+"."+coll]; err != nil {
		return nil, err
	}
	c := f.lookup(db, coll)
	var docs []bson.Raw
	if c != nil {
		docs = append(docs, c.Docs...)
	}
	return &fakeCursor{docs: docs, pos: -1}, nil
}

func (f *FakeClient) InsertMany(ctx context.Context, db, coll string, docs []any) (int, error) {
	f.InsertCall++
	if err := f.InsertErr[db+"."+coll]; err != nil {
		return 0, err
	}
	c := f.collection(db, coll)
	for i, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return i, errors.Annotatef(err, "marshal document %d", i)
		}
		v, err := bson.Raw(raw).LookupErr("_id")
		if err != nil {
			// like the driver, assign an ObjectID to documents without one
			id := bson.NewObjectID()
			if raw, err = withID(raw, id); err != nil {
				return i, errors.Annotatef(err, "assign _id to document %d", i)
			}
			v = bson.RawValue{Type: bson.TypeObjectID, Value: id[:]}
		}
		key := v.Type.String() + ":" + string(v.Value)
		if c.ids[key] {
			return i, &DuplicateKeyError{Namespace: db + "." + coll, Index: i}
		}
		c.ids[key] = true
		c.Docs = append(c.Docs, raw)
	}
	return len(docs), nil
}

func withID(raw []byte, id bson.ObjectID) ([]byte, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return bson.Marshal(append(bson.D{{Key: "_id", Value: id}}, d...))
}

func (f *FakeClient) lookup(db, coll string) *FakeCollection {
	return f.DBs[db][coll]
}

func (f *FakeClient) collection(db, coll string) *FakeCollection {
	if f.DBs[db] == nil {
		f.DBs[db] = map[string]*FakeCollection{}
	}
	c := f.DBs[db][coll]
	if c == nil {
		c = &FakeCollection{ids: map[string]bool{}}
		f.DBs[db][coll] = c
	}
	return c
}

// DuplicateKeyError mimics the server rejecting a second document with the
// same _id.
type DuplicateKeyError struct {
	Namespace string
	Index     int
}

func (e *DuplicateKeyError) Error() string {
	return "E11000 duplicate key error collection: " + e.Namespace + " index: _id_"
}

type fakeCursor struct {
	docs []bson.Raw
	pos  int
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil || c.pos+1 >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Decode(v any) error {
	return bson.Unmarshal(c.docs[c.pos], v)
}

func (c *fakeCursor) Err() error                      { return nil }
func (c *fakeCursor) Close(ctx context.Context) error { return nil }
