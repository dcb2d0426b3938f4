// Package backup writes collections to a timestamped run directory as JSON
// arrays of encoded documents, with a manifest and checksums.
package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"

	"mongowiz/src/apperr"
	"mongowiz/src/backend"
	dir "mongowiz/src/backend/directory"
	"mongowiz/src/codec"
	"mongowiz/src/logging"
	"mongowiz/src/mongoapi"
	"mongowiz/src/util/progress"
	"mongowiz/src/version"
)

// Target names one collection to back up.
type Target struct {
	Database   string
	Collection string
}

func (t Target) String() string { return t.Database + "." + t.Collection }

// Options tunes a backup run. The zero value is usable.
type Options struct {
	Now      func() time.Time
	Progress progress.Func
	Log      logrus.FieldLogger
	Source   string // redacted connection string recorded in the manifest
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) log() logrus.FieldLogger {
	if o.Log != nil {
		return o.Log
	}
	return logging.Discard()
}

// Result is a completed run.
type Result struct {
	Dir      string
	Manifest backend.Manifest
}

// Documents is the total across all collections.
func (r Result) Documents() int64 {
	var n int64
	for _, c := range r.Manifest.Collections {
		n += c.Documents
	}
	return n
}

// SizeBytes is the total on-disk size of the collection files.
func (r Result) SizeBytes() int64 {
	var n int64
	for _, c := range r.Manifest.Collections {
		n += c.SizeBytes
	}
	return n
}

// Run creates <root>/mongodb_backup_<ts> and writes every target into it.
// The first failing collection aborts the run and removes the run directory;
// the manifest is only written when every collection succeeded.
func Run(ctx context.Context, client mongoapi.Client, root string, targets []Target, opts Options) (res *Result, err error) {
	if len(targets) == 0 {
		return nil, errors.NotValidf("empty target list")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperr.IO(err, "create backup root %s", root)
	}
	runDir, started, err := createRunDir(ctx, root, opts.now().UTC(), opts.Now == nil)
	if err != nil {
		return nil, err
	}
	log := opts.log().WithField("dir", runDir)
	log.WithField("collections", len(targets)).Info("backup started")
	defer func() {
		if err == nil {
			return
		}
		if rerr := os.RemoveAll(runDir); rerr != nil {
			log.WithError(rerr).Warn("could not remove failed run directory")
			return
		}
		log.WithError(err).Info("failed run directory removed")
	}()

	mf := backend.Manifest{
		RunID:     uuid.NewString(),
		Timestamp: started.Format(dir.TimestampLayout),
		CreatedAt: started,
		Source:    opts.Source,
		Tool:      "mongowiz",
		Version:   version.Version,
	}
	files := make([]string, 0, len(targets)+1)
	for _, t := range targets {
		entry, err := BackupCollection(ctx, client, runDir, t, opts)
		if err != nil {
			return nil, err
		}
		mf.Collections = append(mf.Collections, entry)
		files = append(files, entry.File)
	}
	mf.CompletedAt = opts.now().UTC()

	if err := writeJSON(filepath.Join(runDir, backend.ManifestFile), mf); err != nil {
		return nil, apperr.IO(err, "write manifest")
	}
	files = append(files, backend.ManifestFile)
	if err := writeChecksums(runDir, files); err != nil {
		return nil, apperr.IO(err, "write checksums")
	}
	log.Info("backup completed")
	return &Result{Dir: runDir, Manifest: mf}, nil
}

// maxRunDirAttempts bounds how many consecutive seconds Run tries when run
// directory names are already taken.
const maxRunDirAttempts = 5

// createRunDir makes the run directory for a backup started at started. When
// the name is taken by a run from the same second it moves on to the next
// second, sleeping until then if wait is set.
func createRunDir(ctx context.Context, root string, started time.Time, wait bool) (string, time.Time, error) {
	for attempt := 1; ; attempt++ {
		runDir := filepath.Join(root, dir.DirName(started))
		err := os.Mkdir(runDir, 0o755)
		if err == nil {
			return runDir, started, nil
		}
		if !os.IsExist(err) || attempt == maxRunDirAttempts {
			return "", started, apperr.IO(err, "create run directory")
		}
		next := started.Truncate(time.Second).Add(time.Second)
		if wait {
			select {
			case <-ctx.Done():
				return "", started, errors.Trace(ctx.Err())
			case <-time.After(time.Until(next)):
			}
		}
		started = next
	}
}

// BackupCollection writes one collection to <runDir>/<db>/<coll>.json.
// Documents are read in natural order. An encode failure removes the file.
func BackupCollection(ctx context.Context, client mongoapi.Client, runDir string, t Target, opts Options) (backend.CollectionEntry, error) {
	log := opts.log().WithFields(logrus.Fields{"database": t.Database, "collection": t.Collection})
	entry := backend.CollectionEntry{Database: t.Database, Collection: t.Collection, File: dir.RelativeFile(t.Database, t.Collection)}

	total, err := client.CountDocuments(ctx, t.Database, t.Collection)
	if err != nil {
		return entry, errors.Annotatef(err, "count %s", t)
	}
	cur, err := client.Find(ctx, t.Database, t.Collection)
	if err != nil {
		return entry, errors.Annotatef(err, "read %s", t)
	}
	defer cur.Close(context.Background())

	path := dir.CollectionFile(runDir, t.Database, t.Collection)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return entry, apperr.IO(err, "create directory for %s", t)
	}
	f, err := os.Create(path)
	if err != nil {
		return entry, apperr.IO(err, "create %s", path)
	}
	n, err := writeDocuments(ctx, cur, bufio.NewWriter(f), progress.NewTracker(t.String(), progress.UnitDocuments, total, opts.Progress))
	if cerr := f.Close(); err == nil && cerr != nil {
		err = apperr.IO(cerr, "close %s", path)
	}
	if err != nil {
		_ = os.Remove(path)
		return entry, errors.Annotatef(err, "back up %s", t)
	}

	info, err := os.Stat(path)
	if err != nil {
		return entry, apperr.IO(err, "stat %s", path)
	}
	entry.Documents = n
	entry.SizeBytes = info.Size()
	log.WithFields(logrus.Fields{"documents": n, "file": path}).Info("collection written")
	return entry, nil
}

// writeDocuments streams the cursor into w as an indented JSON array.
func writeDocuments(ctx context.Context, cur mongoapi.Cursor, w *bufio.Writer, tr *progress.Tracker) (int64, error) {
	var (
		n   int64
		buf bytes.Buffer
	)
	if _, err := w.WriteString("["); err != nil {
		return 0, apperr.IO(err, "write")
	}
	for cur.Next(ctx) {
		var doc bson.D
		if err := cur.Decode(&doc); err != nil {
			return n, errors.Annotatef(err, "document %d", n)
		}
		data, err := codec.EncodeDocument(doc)
		if err != nil {
			return n, errors.Annotatef(err, "document %d", n)
		}
		buf.Reset()
		if n > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		if err := json.Indent(&buf, data, "  ", "  "); err != nil {
			return n, apperr.Format(err, "document %d", n)
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return n, apperr.IO(err, "write")
		}
		n++
		tr.Add(1)
	}
	if err := cur.Err(); err != nil {
		return n, errors.Trace(err)
	}
	if err := ctx.Err(); err != nil {
		return n, errors.Trace(err)
	}
	if n > 0 {
		_, _ = w.WriteString("\n")
	}
	if _, err := w.WriteString("]\n"); err != nil {
		return n, apperr.IO(err, "write")
	}
	if err := w.Flush(); err != nil {
		return n, apperr.IO(err, "write")
	}
	tr.Finish()
	return n, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
