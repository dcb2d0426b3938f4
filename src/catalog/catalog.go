// Package catalog enumerates the user databases and collections of a server.
package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"mongowiz/src/mongoapi"
)

// CollectionInfo describes one collection available for backup.
type CollectionInfo struct {
	Database   string
	Collection string
	Documents  int64
	SizeBytes  int64
}

// Namespace returns "db.coll".
func (c CollectionInfo) Namespace() string {
	return c.Database + "." + c.Collection
}

// SystemDatabase reports whether name is one of the server's own databases.
func SystemDatabase(name string) bool {
	switch name {
	case "admin", "local", "config":
		return true
	}
	return false
}

// SystemCollection reports whether name is a server-managed collection.
func SystemCollection(name string) bool {
	return strings.HasPrefix(name, "system.")
}

// Collections lists every user collection, sorted by database then name.
// A collection whose statistics cannot be read is skipped.
func Collections(ctx context.Context, client mongoapi.Client, log logrus.FieldLogger) ([]CollectionInfo, error) {
	dbs, err := client.ListDatabases(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var out []CollectionInfo
	for _, db := range dbs {
		if SystemDatabase(db) {
			continue
		}
		infos, err := DatabaseCollections(ctx, client, db, log)
		if err != nil {
			return nil, err
		}
		out = append(out, infos...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Database != out[j].Database {
			return out[i].Database < out[j].Database
		}
		return out[i].Collection < out[j].Collection
	})
	return out, nil
}

// DatabaseCollections lists the user collections of a single database.
func DatabaseCollections(ctx context.Context, client mongoapi.Client, db string, log logrus.FieldLogger) ([]CollectionInfo, error) {
	names, err := client.ListCollections(ctx, db)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sort.Strings(names)
	out := make([]CollectionInfo, 0, len(names))
	for _, name := range names {
		if SystemCollection(name) {
			continue
		}
		stats, err := client.CollectionStats(ctx, db, name)
		if err != nil {
			log.WithFields(logrus.Fields{"database": db, "collection": name}).WithError(err).Debug("skipping collection without stats")
			continue
		}
		out = append(out, CollectionInfo{Database: db, Collection: name, Documents: stats.Documents, SizeBytes: stats.SizeBytes})
	}
	return out, nil
}
