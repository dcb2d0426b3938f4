// Package wizard implements the interactive backup and restore flows.
package wizard

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"mongowiz/src/backend"
	dir "mongowiz/src/backend/directory"
	"mongowiz/src/backup"
	"mongowiz/src/catalog"
	"mongowiz/src/logging"
	"mongowiz/src/mongoapi"
	"mongowiz/src/restore"
	"mongowiz/src/safety"
	"mongowiz/src/util/progress"
)

// Wizard holds what one interactive session needs. Nothing survives Run.
type Wizard struct {
	Client     mongoapi.Client
	Console    *Console
	BackupRoot string
	BatchSize  int
	Source     string // redacted connection string for the manifest
	Safety     safety.Options
	Log        logrus.FieldLogger
	Now        func() time.Time
}

const (
	menuBackup = iota
	menuRestore
	menuExit
)

// Run shows the main menu and performs one action.
func (w *Wizard) Run(ctx context.Context) error {
	w.Console.Printf("MongoDB backup wizard\n\n")
	choice, err := w.Console.Select("What would you like to do?", []string{
		"Backup a collection",
		"Restore a collection",
		"Exit",
	})
	if err != nil {
		return err
	}
	switch choice {
	case menuBackup:
		return w.Backup(ctx)
	case menuRestore:
		return w.Restore(ctx)
	}
	return nil
}

// Backup picks a collection from the server and writes a backup of it.
func (w *Wizard) Backup(ctx context.Context) error {
	infos, err := catalog.Collections(ctx, w.Client, w.log())
	if err != nil {
		return errors.Annotate(err, "enumerate collections")
	}
	if len(infos) == 0 {
		w.Console.Printf("No collections found.\n")
		return nil
	}
	labels := make([]string, len(infos))
	for i, c := range infos {
		labels[i] = CollectionLabel(c.Namespace(), c.Documents, c.SizeBytes)
	}
	idx, err := w.Console.Select("Select a collection to back up:", labels)
	if err != nil {
		return err
	}
	picked := infos[idx]
	root, err := w.Console.Input("Backup directory", w.BackupRoot)
	if err != nil {
		return err
	}
	if w.Safety.DryRun {
		w.Console.Printf("Dry run: would back up %s (%s documents) to %s\n", picked.Namespace(), humanize.Comma(picked.Documents), root)
		return nil
	}

	r := progress.NewRenderer(w.Console.Out())
	res, err := backup.Run(ctx, w.Client, root, []backup.Target{{Database: picked.Database, Collection: picked.Collection}}, backup.Options{
		Now:      w.Now,
		Progress: r.Func(),
		Log:      w.log(),
		Source:   w.Source,
	})
	r.Flush()
	if err != nil {
		return err
	}
	w.Console.Printf("Backed up %s documents (%s) to %s\n", humanize.Comma(res.Documents()), humanize.Bytes(uint64(res.SizeBytes())), res.Dir)
	return nil
}

// Restore picks a backup run and one of its collections and loads it into
// a target collection, asking before touching a non-empty one.
func (w *Wizard) Restore(ctx context.Context) error {
	root, err := w.Console.Input("Backup directory", w.BackupRoot)
	if err != nil {
		return err
	}
	b, err := dir.New(root)
	if err != nil {
		return err
	}
	entries, err := b.List()
	if err != nil {
		return errors.Annotate(err, "enumerate backups")
	}
	if len(entries) == 0 {
		w.Console.Printf("No backups found in %s\n", root)
		return nil
	}
	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = BackupLabel(e)
	}
	idx, err := w.Console.Select("Select a backup:", labels)
	if err != nil {
		return err
	}
	run := entries[idx]

	colls, err := b.Collections(run.Path)
	if err != nil {
		return errors.Annotate(err, "enumerate backup contents")
	}
	if len(colls) == 0 {
		w.Console.Printf("Backup %s holds no collections.\n", run.Name)
		return nil
	}
	labels = make([]string, len(colls))
	for i, c := range colls {
		labels[i] = CollectionLabel(c.Namespace(), c.Documents, c.SizeBytes)
	}
	idx, err = w.Console.Select("Select a collection to restore:", labels)
	if err != nil {
		return err
	}
	src := colls[idx]

	targetDB, err := w.Console.Input("Target database", src.Database)
	if err != nil {
		return err
	}
	targetColl, err := w.Console.Input("Target collection", src.Collection)
	if err != nil {
		return err
	}
	req := restore.Request{
		File:       dir.CollectionFile(run.Path, src.Database, src.Collection),
		Database:   targetDB,
		Collection: targetColl,
		Policy:     restore.Reject,
	}

	plan, err := restore.Plan(ctx, w.Client, req)
	if err != nil {
		return err
	}
	if plan.Existing > 0 {
		w.Console.Printf("Warning: %s already contains %s documents.\n", req.Namespace(), humanize.Comma(plan.Existing))
	}
	if w.Safety.DryRun {
		w.Console.Printf("Dry run: would restore %s documents from %s into %s\n", count(plan.Documents), src.File, req.Namespace())
		return nil
	}
	if plan.Existing > 0 {
		ok, err := w.confirm(safety.OverwriteQuestion(req.Namespace(), plan.Existing), false)
		if err != nil {
			return err
		}
		if !ok {
			w.Console.Printf("Restore cancelled.\n")
			return nil
		}
		req.Policy = restore.Allow
	}
	ok, err := w.confirm(fmt.Sprintf("Restore %s documents from %s into %s?", count(plan.Documents), run.Name, req.Namespace()), true)
	if err != nil {
		return err
	}
	if !ok {
		w.Console.Printf("Restore cancelled.\n")
		return nil
	}

	r := progress.NewRenderer(w.Console.Out())
	res, err := restore.Restore(ctx, w.Client, req, restore.Options{BatchSize: w.BatchSize, Progress: r.Func(), Log: w.log()})
	r.Flush()
	w.Console.Printf("Inserted %s of %s documents into %s\n", humanize.Comma(res.Inserted), humanize.Comma(res.Total), req.Namespace())
	if err != nil {
		if res.FailedIndex >= 0 {
			w.Console.Printf("Stopped at document %d: %v\n", res.FailedIndex+1, err)
		}
		return err
	}
	return nil
}

func (w *Wizard) confirm(question string, def bool) (bool, error) {
	if w.Safety.Yes {
		return true, nil
	}
	return w.Console.Confirm(question, def)
}

func (w *Wizard) log() logrus.FieldLogger {
	if w.Log != nil {
		return w.Log
	}
	return logging.Discard()
}

// CollectionLabel renders "db.coll (1,234 docs, 12 kB)".
func CollectionLabel(ns string, docs, size int64) string {
	return fmt.Sprintf("%s (%s docs, %s)", ns, count(docs), humanize.Bytes(uint64(size)))
}

// BackupLabel renders "2025-01-02 03:04:05 (2 DBs, 3 collections, 1.2 MB)".
func BackupLabel(e backend.Entry) string {
	if e.Error != "" {
		return e.Timestamp.Format("2006-01-02 15:04:05") + " (unreadable)"
	}
	return fmt.Sprintf("%s (%d DBs, %d collections, %s)",
		e.Timestamp.Format("2006-01-02 15:04:05"), e.Databases, e.Collections, humanize.Bytes(uint64(e.SizeBytes)))
}

func count(n int64) string {
	if n < 0 {
		return "?"
	}
	return humanize.Comma(n)
}
