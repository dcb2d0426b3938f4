package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"mongowiz/src/backend"
	dir "mongowiz/src/backend/directory"
)

func newListCmd(stdout, stderr io.Writer) *cobra.Command {
	var output, root string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups under the backup root, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				e, err := loadEnv(cmd, stderr)
				if err != nil {
					return err
				}
				root = e.cfg.BackupRoot
			}
			var be backend.StorageBackend
			b, err := dir.New(root)
			if err != nil {
				return err
			}
			be = b
			entries, err := be.List()
			if err != nil {
				return err
			}
			switch output {
			case "json":
				return writeJSON(stdout, entries)
			case "table", "":
				return renderTable(stdout, entries)
			default:
				return errors.NotValidf("--output %q", output)
			}
		},
	}
	cmd.Flags().StringVar(&root, "dir", "", "Backup root directory (default: backup_root from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

func renderTable(w io.Writer, entries []backend.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No backups found.")
		return err
	}
	t := uitable.New()
	t.AddRow("NAME", "TIMESTAMP", "DBS", "COLLECTIONS", "SIZE", "STATUS")
	for _, e := range entries {
		t.AddRow(e.Name, e.Timestamp.Format("2006-01-02 15:04:05"), e.Databases, e.Collections, humanize.Bytes(uint64(e.SizeBytes)), entryStatus(e))
	}
	_, err := fmt.Fprintln(w, t)
	return err
}

func entryStatus(e backend.Entry) string {
	switch {
	case e.Error != "":
		return "unreadable"
	case !e.Complete:
		return "no manifest"
	default:
		return "ok"
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
