package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	dir "mongowiz/src/backend/directory"
	"mongowiz/src/backup"
	"mongowiz/src/catalog"
	"mongowiz/src/util/progress"
)

func newBackupCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		db          string
		collections []string
		root        string
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up collections to JSON files (interactive without flags)",
		Example: `  mongowiz backup --db shop --collection orders --dir ./backups
  mongowiz backup --db shop`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !anyChanged(cmd, "db", "collection", "dir") {
				return runWizard(cmd, stdout, stderr, wizardBackup)
			}
			if db == "" {
				return errors.NotValidf("--db is required with other backup flags; missing --db")
			}
			e, err := loadEnv(cmd, stderr)
			if err != nil {
				return err
			}
			if root == "" {
				root = e.cfg.BackupRoot
			}
			ctx := commandContext(cmd)
			client, source, err := e.dial(ctx)
			if err != nil {
				return err
			}
			defer closeClient(client, e.log)

			infos, err := catalog.DatabaseCollections(ctx, client, db, e.log)
			if err != nil {
				return errors.Annotatef(err, "enumerate collections of %s", db)
			}
			selected, err := selectCollections(infos, db, collections)
			if err != nil {
				return err
			}

			if e.safety.DryRun {
				fmt.Fprintf(stdout, "Dry run: would write %s\n", filepath.Join(root, dir.DirName(time.Now().UTC())))
				return renderCollectionInfos(stdout, selected)
			}

			targets := make([]backup.Target, len(selected))
			for i, c := range selected {
				targets[i] = backup.Target{Database: c.Database, Collection: c.Collection}
			}
			r := progress.NewRenderer(stdout)
			res, err := backup.Run(ctx, client, root, targets, backup.Options{
				Progress: r.Func(),
				Log:      e.log,
				Source:   source,
			})
			r.Flush()
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Backed up %d collections, %s documents (%s) to %s\n",
				len(res.Manifest.Collections), humanize.Comma(res.Documents()), humanize.Bytes(uint64(res.SizeBytes())), res.Dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "Database to back up")
	cmd.Flags().StringArrayVar(&collections, "collection", nil, "Collection to back up (repeatable; default: every collection of --db)")
	cmd.Flags().StringVar(&root, "dir", "", "Backup root directory (default: backup_root from config)")
	return cmd
}

// selectCollections keeps the requested collections, in request order, or
// all of infos when none were requested.
func selectCollections(infos []catalog.CollectionInfo, db string, requested []string) ([]catalog.CollectionInfo, error) {
	if len(requested) == 0 {
		if len(infos) == 0 {
			return nil, errors.NotFoundf("collections in database %s", db)
		}
		return infos, nil
	}
	byName := make(map[string]catalog.CollectionInfo, len(infos))
	for _, c := range infos {
		byName[c.Collection] = c
	}
	out := make([]catalog.CollectionInfo, 0, len(requested))
	seen := map[string]bool{}
	for _, name := range requested {
		if seen[name] {
			continue
		}
		seen[name] = true
		c, ok := byName[name]
		if !ok {
			return nil, errors.NotFoundf("collection %s.%s", db, name)
		}
		out = append(out, c)
	}
	return out, nil
}

func renderCollectionInfos(w io.Writer, infos []catalog.CollectionInfo) error {
	t := uitable.New()
	t.AddRow("DATABASE", "COLLECTION", "DOCUMENTS", "SIZE", "FILE")
	for _, c := range infos {
		t.AddRow(c.Database, c.Collection, humanize.Comma(c.Documents), humanize.Bytes(uint64(c.SizeBytes)), dir.RelativeFile(c.Database, c.Collection))
	}
	_, err := fmt.Fprintln(w, t)
	return err
}

// anyChanged reports whether any of the named flags was set on the command
// line. Global flags alone do not count.
func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, n := range names {
		if cmd.Flags().Changed(n) {
			return true
		}
	}
	return false
}
