// Package restore loads a backup file and inserts its documents into a
// target collection.
package restore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"mongowiz/src/apperr"
	dir "mongowiz/src/backend/directory"
	"mongowiz/src/codec"
	"mongowiz/src/logging"
	"mongowiz/src/mongoapi"
	"mongowiz/src/util/progress"
)

// DefaultBatchSize is the number of documents per InsertMany.
const DefaultBatchSize = 1000

// Policy decides what happens when the target already holds documents.
type Policy int

const (
	// Reject aborts before writing anything.
	Reject Policy = iota
	// Allow inserts alongside the existing documents.
	Allow
)

func (p Policy) String() string {
	if p == Allow {
		return "allow"
	}
	return "reject"
}

// Request names the backup file and where its documents go.
type Request struct {
	File       string
	Database   string
	Collection string
	Policy     Policy
}

// Namespace returns the target "db.coll".
func (r Request) Namespace() string { return r.Database + "." + r.Collection }

// Options tunes a restore. The zero value is usable.
type Options struct {
	BatchSize int
	Progress  progress.Func
	Log       logrus.FieldLogger
}

func (o Options) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return DefaultBatchSize
}

func (o Options) log() logrus.FieldLogger {
	if o.Log != nil {
		return o.Log
	}
	return logging.Discard()
}

// Result reports how far a restore got. Inserted documents are never rolled
// back, so a failed restore may leave the target partially populated.
type Result struct {
	Database    string `json:"database"`
	Collection  string `json:"collection"`
	File        string `json:"file"`
	Total       int64  `json:"total"`
	Inserted    int64  `json:"inserted"`
	FailedIndex int64  `json:"failedIndex"` // zero-based position of the failing document, -1 if none
	Existing    int64  `json:"existing"`
	Conflict    bool   `json:"conflict"`
	Err         error  `json:"-"`
	Error       string `json:"error,omitempty"`
}

// Partial reports whether some but not all documents were inserted.
func (r *Result) Partial() bool {
	return r.Err != nil && r.Inserted > 0
}

func (r *Result) fail(err error) (*Result, error) {
	r.Err = err
	r.Error = err.Error()
	return r, err
}

// Preview is what a restore would do, without doing it.
type Preview struct {
	Request
	Documents int64 // in the backup file, -1 when it cannot be read
	Existing  int64 // already in the target
}

// Conflict reports whether the restore would be rejected.
func (p Preview) Conflict() bool {
	return p.Existing > 0 && p.Policy == Reject
}

// Load reads and parses a backup file without reconstructing types. The
// result is the list of top-level objects in file order.
func Load(path string, fn progress.Func) ([]codec.Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.IO(err, "open %s", path)
	}
	defer f.Close()
	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	node, err := codec.ParseReader(progress.NewReader(f, size, filepath.Base(path), fn))
	if err != nil {
		return nil, errors.Annotatef(err, "%s", path)
	}
	arr, ok := node.([]any)
	if !ok {
		return nil, apperr.Formatf("%s: top-level value is not an array", path)
	}
	out := make([]codec.Object, len(arr))
	for i, el := range arr {
		obj, ok := el.(codec.Object)
		if !ok {
			return nil, apperr.Formatf("%s: element %d is not an object", path, i)
		}
		out[i] = obj
	}
	return out, nil
}

// Restore inserts the documents of req.File into the target collection in
// ordered batches. The returned error is also recorded in the result.
//
// A malformed file writes nothing. A non-empty target under Reject writes
// nothing and sets Conflict. A document that fails to decode at position N
// stops the restore after the documents before it were inserted, so
// Inserted == N and FailedIndex == N; an insert failure is reported the same
// way.
func Restore(ctx context.Context, client mongoapi.Client, req Request, opts Options) (*Result, error) {
	res := &Result{Database: req.Database, Collection: req.Collection, File: req.File, FailedIndex: -1}
	if req.Database == "" || req.Collection == "" {
		return res.fail(errors.NotValidf("empty target namespace"))
	}
	log := opts.log().WithFields(logrus.Fields{"database": req.Database, "collection": req.Collection, "file": req.File})

	nodes, err := Load(req.File, opts.Progress)
	if err != nil {
		return res.fail(err)
	}
	res.Total = int64(len(nodes))

	existing, err := client.CountDocuments(ctx, req.Database, req.Collection)
	if err != nil {
		return res.fail(errors.Annotatef(err, "check %s", req.Namespace()))
	}
	res.Existing = existing
	if existing > 0 {
		if req.Policy == Reject {
			res.Conflict = true
			return res.fail(apperr.Conflictf("%s already contains %d documents", req.Namespace(), existing))
		}
		log.WithField("existing", existing).Warn("restoring into a non-empty collection")
	}

	tr := progress.NewTracker(req.Namespace(), progress.UnitDocuments, res.Total, opts.Progress)
	size := opts.batchSize()
	batch := make([]any, 0, size)
	batchStart := int64(0)

	flush := func(ctx context.Context) error {
		if len(batch) == 0 {
			return nil
		}
		n, err := client.InsertMany(ctx, req.Database, req.Collection, batch)
		res.Inserted += int64(n)
		tr.Add(int64(n))
		if err != nil {
			res.FailedIndex = batchStart + int64(n)
			return errors.Annotatef(err, "insert document %d into %s", res.FailedIndex, req.Namespace())
		}
		batchStart += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for i, node := range nodes {
		if err := ctx.Err(); err != nil {
			// Documents already decoded still go in.
			if ferr := flush(context.WithoutCancel(ctx)); ferr != nil {
				return res.fail(ferr)
			}
			return res.fail(errors.Annotatef(err, "restore %s interrupted", req.Namespace()))
		}
		doc, err := codec.DocumentFromNode(node)
		if err != nil {
			if ferr := flush(ctx); ferr != nil {
				return res.fail(ferr)
			}
			res.FailedIndex = int64(i)
			return res.fail(errors.Annotatef(err, "%s: document %d", req.File, i))
		}
		batch = append(batch, doc)
		if len(batch) == size {
			if err := flush(ctx); err != nil {
				return res.fail(err)
			}
		}
	}
	if err := flush(ctx); err != nil {
		return res.fail(err)
	}
	tr.Finish()
	log.WithField("documents", res.Inserted).Info("restore completed")
	return res, nil
}

// Plan reports the document counts a restore of req would see. It writes
// nothing and is used for dry runs and confirmation prompts.
func Plan(ctx context.Context, client mongoapi.Client, req Request) (Preview, error) {
	p := Preview{Request: req, Documents: -1}
	if n, err := dir.CountDocuments(req.File); err == nil {
		p.Documents = n
	}
	existing, err := client.CountDocuments(ctx, req.Database, req.Collection)
	if err != nil {
		return p, errors.Annotatef(err, "check %s", req.Namespace())
	}
	p.Existing = existing
	return p, nil
}

// All restores each request in turn. A format error only fails its own
// file; any other error stops the remaining requests.
func All(ctx context.Context, client mongoapi.Client, reqs []Request, opts Options) ([]*Result, error) {
	var (
		out   []*Result
		first error
	)
	for _, req := range reqs {
		res, err := Restore(ctx, client, req, opts)
		out = append(out, res)
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		if !errors.Is(err, apperr.ErrFormat) && !errors.Is(err, apperr.ErrConflict) {
			return out, first
		}
	}
	return out, first
}
