package directory

import (
	"encoding/json"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"

	"mongowiz/src/apperr"
	"mongowiz/src/backend"
)

// Run directories are named Prefix + UTC timestamp in TimestampLayout, so a
// lexical sort is a chronological one.
const (
	Prefix          = "mongodb_backup_"
	TimestampLayout = "20060102_150405"
)

// DirName returns the run directory name for a backup started at t.
func DirName(t time.Time) string {
	return Prefix + t.UTC().Format(TimestampLayout)
}

// ParseDirName extracts the timestamp from a run directory name.
func ParseDirName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, Prefix) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimPrefix(name, Prefix), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// RelativeFile is the manifest path of a collection file.
func RelativeFile(db, coll string) string {
	return path.Join(db, coll+".json")
}

// CollectionFile returns <runDir>/<db>/<coll>.json.
func CollectionFile(runDir, db, coll string) string {
	return filepath.Join(runDir, db, coll+".json")
}

// Backend implements backend.StorageBackend for the filesystem layout.
type Backend struct {
	Root string // directory holding run directories
}

func New(root string) (*Backend, error) {
	if root == "" {
		return nil, errors.New("backup root must not be empty")
	}
	info, err := os.Stat(root)
	if err == nil && !info.IsDir() {
		return nil, apperr.IO(errors.Errorf("not a directory"), "backup root %s", root)
	}
	return &Backend{Root: root}, nil
}

// List returns the backup runs under Root, newest first. Directories that do
// not follow the naming scheme are ignored and a missing root is empty. A run
// that cannot be read is still listed, with Error set.
func (b *Backend) List() ([]backend.Entry, error) {
	names, err := readDirNames(b.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.IO(err, "list %s", b.Root)
	}
	var entries []backend.Entry
	for _, name := range names {
		ts, ok := ParseDirName(name)
		if !ok {
			continue
		}
		full := filepath.Join(b.Root, name)
		e := backend.Entry{Name: name, Timestamp: ts, Path: full}
		colls, err := b.Collections(full)
		if err != nil {
			e.Error = err.Error()
			entries = append(entries, e)
			continue
		}
		if _, err := os.Stat(filepath.Join(full, backend.ManifestFile)); err == nil {
			e.Complete = true
		}
		e.Collections = len(colls)
		dbs := map[string]bool{}
		for _, c := range colls {
			dbs[c.Database] = true
			e.SizeBytes += c.SizeBytes
		}
		e.Databases = len(dbs)
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name > entries[j].Name })
	return entries, nil
}

// Latest returns the newest complete run. Runs without a manifest are only
// considered when no run has one; unreadable runs never are.
func (b *Backend) Latest() (backend.Entry, error) {
	entries, err := b.List()
	if err != nil {
		return backend.Entry{}, err
	}
	var fallback *backend.Entry
	for i, e := range entries {
		if e.Error != "" {
			continue
		}
		if e.Complete {
			return e, nil
		}
		if fallback == nil {
			fallback = &entries[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return backend.Entry{}, apperr.IO(errors.NotFoundf("backup"), "%s", b.Root)
}

// Collections returns the collections stored in runDir, preferring the
// manifest and falling back to a scan of <db>/*.json for runs without one.
func (b *Backend) Collections(runDir string) ([]backend.CollectionEntry, error) {
	return Collections(runDir)
}

// Collections is Backend.Collections without a backend.
func Collections(runDir string) ([]backend.CollectionEntry, error) {
	m, err := ReadManifest(runDir)
	switch {
	case err == nil:
		out := append([]backend.CollectionEntry(nil), m.Collections...)
		sortCollections(out)
		return out, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	return scanCollections(runDir)
}

// ReadManifest loads manifest.json from runDir.
func ReadManifest(runDir string) (backend.Manifest, error) {
	var m backend.Manifest
	f, err := os.Open(filepath.Join(runDir, backend.ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return m, err
		}
		return m, apperr.IO(err, "open manifest in %s", runDir)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return m, apperr.Format(err, "parse manifest in %s", runDir)
	}
	return m, nil
}

func scanCollections(runDir string) ([]backend.CollectionEntry, error) {
	dbs, err := readDirNames(runDir)
	if err != nil {
		return nil, apperr.IO(err, "scan %s", runDir)
	}
	var out []backend.CollectionEntry
	for _, db := range dbs {
		files, err := os.ReadDir(filepath.Join(runDir, db))
		if err != nil {
			return nil, apperr.IO(err, "scan %s", filepath.Join(runDir, db))
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
				continue
			}
			coll := strings.TrimSuffix(name, ".json")
			full := filepath.Join(runDir, db, name)
			e := backend.CollectionEntry{Database: db, Collection: coll, File: RelativeFile(db, coll), Documents: -1}
			if info, err := f.Info(); err == nil {
				e.SizeBytes = info.Size()
			}
			if n, err := CountDocuments(full); err == nil {
				e.Documents = n
			}
			out = append(out, e)
		}
	}
	sortCollections(out)
	return out, nil
}

// CountDocuments counts the elements of the top-level JSON array in path
// without decoding them.
func CountDocuments(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return 0, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return 0, errors.New("not a JSON array")
	}
	var n int64
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return 0, err
		}
		n++
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return 0, err
	}
	return n, nil
}

// Find returns the entry for db.coll in runDir.
func Find(runDir, db, coll string) (backend.CollectionEntry, error) {
	colls, err := Collections(runDir)
	if err != nil {
		return backend.CollectionEntry{}, err
	}
	for _, c := range colls {
		if c.Database == db && c.Collection == coll {
			return c, nil
		}
	}
	return backend.CollectionEntry{}, apperr.IO(errors.NotFoundf("collection %s.%s", db, coll), "backup %s", runDir)
}

// Resolve turns dir into a run directory. dir may already be one; otherwise
// it is a root and version (a full directory name or a bare timestamp)
// selects the run, defaulting to the newest.
func Resolve(dir, version string) (string, error) {
	if _, ok := ParseDirName(filepath.Base(filepath.Clean(dir))); ok && version == "" {
		if _, err := os.Stat(dir); err != nil {
			return "", apperr.IO(err, "backup %s", dir)
		}
		return dir, nil
	}
	b, err := New(dir)
	if err != nil {
		return "", err
	}
	if version == "" {
		e, err := b.Latest()
		if err != nil {
			return "", err
		}
		return e.Path, nil
	}
	name := version
	if !strings.HasPrefix(name, Prefix) {
		name = Prefix + name
	}
	if _, ok := ParseDirName(name); !ok {
		return "", errors.NotValidf("backup version %q", version)
	}
	full := filepath.Join(dir, name)
	info, err := os.Stat(full)
	if err != nil {
		return "", apperr.IO(err, "backup %s", version)
	}
	if !info.IsDir() {
		return "", apperr.IO(errors.Errorf("not a directory"), "backup %s", full)
	}
	return full, nil
}

func sortCollections(cs []backend.CollectionEntry) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Database != cs[j].Database {
			return cs[i].Database < cs[j].Database
		}
		return cs[i].Collection < cs[j].Collection
	})
}

func readDirNames(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			name := e.Name()
			// skip hidden
			if strings.HasPrefix(name, ".") {
				continue
			}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
