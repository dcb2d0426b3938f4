package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"mongowiz/src/backend"
	dir "mongowiz/src/backend/directory"
	"mongowiz/src/restore"
	"mongowiz/src/safety"
	"mongowiz/src/util/progress"
)

func newRestoreCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		db, coll         string
		path, version    string
		targetDB, target string
		overwrite        bool
		batchSize        int
	)
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore collections from a backup (interactive without flags)",
		Long: `Restore collections from a backup directory.

--dir may name a run directory (mongodb_backup_<timestamp>) or a backup root;
for a root, --version selects the run and defaults to the newest. Without
--collection every collection of --db is restored, and without --db every
collection in the run. A non-empty target collection is rejected unless
--overwrite is given, in which case documents are inserted alongside the
existing ones.`,
		Example: `  mongowiz restore --db shop --collection orders --dir ./backups
  mongowiz restore --db shop --collection orders --dir ./backups --version 20250102_030405 --target-collection orders_copy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !anyChanged(cmd, "db", "collection", "dir", "version", "target-db", "target-collection", "overwrite", "batch-size") {
				return runWizard(cmd, stdout, stderr, wizardRestore)
			}
			if coll != "" && db == "" {
				return errors.NotValidf("--collection without --db")
			}
			e, err := loadEnv(cmd, stderr)
			if err != nil {
				return err
			}
			if path == "" {
				path = e.cfg.BackupRoot
			}
			if batchSize <= 0 {
				batchSize = e.cfg.BatchSize
			}
			runDir, err := dir.Resolve(path, version)
			if err != nil {
				return err
			}
			entries, err := selectEntries(runDir, db, coll)
			if err != nil {
				return err
			}
			if target != "" && len(entries) != 1 {
				return errors.NotValidf("--target-collection with %d source collections", len(entries))
			}
			policy := restore.Reject
			if overwrite {
				policy = restore.Allow
			}
			reqs := make([]restore.Request, len(entries))
			for i, en := range entries {
				reqs[i] = restore.Request{
					File:       dir.CollectionFile(runDir, en.Database, en.Collection),
					Database:   en.Database,
					Collection: en.Collection,
					Policy:     policy,
				}
				if targetDB != "" {
					reqs[i].Database = targetDB
				}
				if target != "" {
					reqs[i].Collection = target
				}
			}

			ctx := commandContext(cmd)
			client, _, err := e.dial(ctx)
			if err != nil {
				return err
			}
			defer closeClient(client, e.log)

			previews := make([]restore.Preview, len(reqs))
			nonEmpty := 0
			for i, req := range reqs {
				if previews[i], err = restore.Plan(ctx, client, req); err != nil {
					return err
				}
				if previews[i].Existing > 0 {
					nonEmpty++
				}
			}
			fmt.Fprintf(stdout, "Restoring from %s\n", runDir)
			if err := renderRestorePlan(stdout, previews); err != nil {
				return err
			}
			if e.safety.DryRun {
				return nil
			}
			if overwrite && nonEmpty > 0 {
				q := fmt.Sprintf("Insert into %d non-empty collections?", nonEmpty)
				if len(previews) == 1 {
					q = safety.OverwriteQuestion(reqs[0].Namespace(), previews[0].Existing)
				}
				ok, err := safety.Confirm(e.safety, cmd.InOrStdin(), stdout, q)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(stdout, "Restore cancelled.")
					return nil
				}
			}

			r := progress.NewRenderer(stdout)
			results, err := restore.All(ctx, client, reqs, restore.Options{BatchSize: batchSize, Progress: r.Func(), Log: e.log})
			r.Flush()
			if rerr := renderRestoreResults(stdout, results); rerr != nil && err == nil {
				err = rerr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "Source database in the backup (default: all)")
	cmd.Flags().StringVar(&coll, "collection", "", "Source collection in the backup (default: all of --db)")
	cmd.Flags().StringVar(&path, "dir", "", "Backup run directory or backup root (default: backup_root from config)")
	cmd.Flags().StringVar(&version, "version", "", "Backup timestamp when --dir is a root (default: latest)")
	cmd.Flags().StringVar(&targetDB, "target-db", "", "Target database (default: source database)")
	cmd.Flags().StringVar(&target, "target-collection", "", "Target collection (default: source collection)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Insert into non-empty target collections")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Documents per insert batch (default: batch_size from config)")
	return cmd
}

// selectEntries picks the collections to restore from runDir.
func selectEntries(runDir, db, coll string) ([]backend.CollectionEntry, error) {
	if coll != "" {
		en, err := dir.Find(runDir, db, coll)
		if err != nil {
			return nil, err
		}
		return []backend.CollectionEntry{en}, nil
	}
	all, err := dir.Collections(runDir)
	if err != nil {
		return nil, err
	}
	var out []backend.CollectionEntry
	for _, en := range all {
		if db == "" || en.Database == db {
			out = append(out, en)
		}
	}
	if len(out) == 0 {
		if db == "" {
			return nil, errors.NotFoundf("collections in %s", runDir)
		}
		return nil, errors.NotFoundf("database %s in %s", db, runDir)
	}
	return out, nil
}

func planAction(p restore.Preview) string {
	switch {
	case p.Existing == 0:
		return "create"
	case p.Conflict():
		return "conflict"
	default:
		return "append"
	}
}

func renderRestorePlan(w io.Writer, previews []restore.Preview) error {
	t := uitable.New()
	t.AddRow("ACTION", "SOURCE", "TARGET", "DOCUMENTS", "EXISTING")
	for _, p := range previews {
		docs := "?"
		if p.Documents >= 0 {
			docs = humanize.Comma(p.Documents)
		}
		t.AddRow(planAction(p), p.File, p.Namespace(), docs, humanize.Comma(p.Existing))
	}
	_, err := fmt.Fprintln(w, t)
	return err
}

func resultStatus(r *restore.Result) string {
	switch {
	case r.Err == nil:
		return "ok"
	case r.Conflict:
		return "conflict"
	case r.FailedIndex >= 0:
		return fmt.Sprintf("failed at document %d", r.FailedIndex+1)
	default:
		return "failed"
	}
}

func renderRestoreResults(w io.Writer, results []*restore.Result) error {
	t := uitable.New()
	t.AddRow("TARGET", "INSERTED", "TOTAL", "STATUS")
	for _, r := range results {
		t.AddRow(r.Database+"."+r.Collection, humanize.Comma(r.Inserted), humanize.Comma(r.Total), resultStatus(r))
	}
	_, err := fmt.Fprintln(w, t)
	return err
}
