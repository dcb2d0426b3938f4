package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/gosuri/uitable"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	dir "mongowiz/src/backend/directory"
	"mongowiz/src/backup"
)

func newVerifyCmd(stdout, stderr io.Writer) *cobra.Command {
	var output, path string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify checksums of a backup run, or of every run under a root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				e, err := loadEnv(cmd, stderr)
				if err != nil {
					return err
				}
				path = e.cfg.BackupRoot
			}
			runs, err := verifyTargets(path)
			if err != nil {
				return err
			}
			var results []verifyResult
			for _, run := range runs {
				checks, err := backup.Verify(run)
				if err != nil {
					results = append(results, verifyResult{Backup: filepath.Base(run), Status: "error", Path: run, Error: err.Error()})
					continue
				}
				for _, c := range checks {
					results = append(results, verifyResult{Backup: filepath.Base(run), File: c.File, Status: c.Status, Path: run})
				}
			}
			switch output {
			case "json":
				if err := writeJSON(stdout, results); err != nil {
					return err
				}
			case "table", "":
				t := uitable.New()
				t.AddRow("BACKUP", "FILE", "STATUS")
				for _, r := range results {
					status := r.Status
					if r.Error != "" {
						status += ": " + r.Error
					}
					t.AddRow(r.Backup, r.File, status)
				}
				fmt.Fprintln(stdout, t)
			default:
				return errors.NotValidf("--output %q", output)
			}
			bad := 0
			for _, r := range results {
				if r.Status != backup.StatusOK {
					bad++
				}
			}
			if bad > 0 {
				return errors.Errorf("verify: %d of %d checks failed", bad, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "dir", "", "Backup run directory or backup root (default: backup_root from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

type verifyResult struct {
	Backup string `json:"backup"`
	File   string `json:"file,omitempty"`
	Status string `json:"status"`
	Path   string `json:"path"`
	Error  string `json:"error,omitempty"`
}

// verifyTargets returns path itself when it is a run directory and every
// run under it otherwise.
func verifyTargets(path string) ([]string, error) {
	if _, ok := dir.ParseDirName(filepath.Base(filepath.Clean(path))); ok {
		return []string{path}, nil
	}
	b, err := dir.New(path)
	if err != nil {
		return nil, err
	}
	entries, err := b.List()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.NotFoundf("backups in %s", path)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out, nil
}
