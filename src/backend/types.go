package backend

import "time"

// Entry represents a single backup run discovered in a backend.
// It is intentionally flat so the CLI can render it as a table or JSON.
type Entry struct {
	Name        string    `json:"name"`      // mongodb_backup_<YYYYMMDD_HHMMSS>
	Timestamp   time.Time `json:"timestamp"` // parsed from Name, UTC
	Path        string    `json:"path"`      // absolute filesystem path to the run directory
	Databases   int       `json:"databases"`
	Collections int       `json:"collections"`
	SizeBytes   int64     `json:"sizeBytes"`
	Complete    bool      `json:"complete"`        // manifest.json present and readable
	Error       string    `json:"error,omitempty"` // why the run could not be read
}

// CollectionEntry is one collection file inside a backup run.
type CollectionEntry struct {
	Database   string `json:"database"`
	Collection string `json:"collection"`
	File       string `json:"file"`      // relative to the run directory, slash separated
	Documents  int64  `json:"documents"` // -1 when the file could not be counted
	SizeBytes  int64  `json:"sizeBytes"`
}

// Namespace returns "db.coll".
func (c CollectionEntry) Namespace() string {
	return c.Database + "." + c.Collection
}

// Manifest is written once at the top of every run directory.
type Manifest struct {
	RunID       string            `json:"runId"`
	Timestamp   string            `json:"timestamp"` // same value as the directory suffix
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt time.Time         `json:"completedAt"`
	Source      string            `json:"source"` // connection string with the password redacted
	Tool        string            `json:"tool"`
	Version     string            `json:"version"`
	Collections []CollectionEntry `json:"collections"`
}

// File names at the top of a run directory.
const (
	ManifestFile  = "manifest.json"
	ChecksumsFile = "checksums.txt"
)

// StorageBackend defines read-only listing of backup runs.
type StorageBackend interface {
	List() ([]Entry, error)
	Collections(runDir string) ([]CollectionEntry, error)
}
