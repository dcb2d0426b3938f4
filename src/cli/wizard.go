package cli

import (
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"mongowiz/src/wizard"
)

type wizardFlow int

const (
	wizardMenu wizardFlow = iota
	wizardBackup
	wizardRestore
)

// runWizard connects and hands the terminal to the interactive wizard.
func runWizard(cmd *cobra.Command, stdout, stderr io.Writer, flow wizardFlow) error {
	e, err := loadEnv(cmd, stderr)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	client, source, err := e.dial(ctx)
	if err != nil {
		return err
	}
	defer closeClient(client, e.log)

	console, err := wizard.NewConsole(cmd.InOrStdin(), stdout)
	if err != nil {
		return err
	}
	defer console.Close()

	w := &wizard.Wizard{
		Client:     client,
		Console:    console,
		BackupRoot: e.cfg.BackupRoot,
		BatchSize:  e.cfg.BatchSize,
		Source:     source,
		Safety:     e.safety,
		Log:        e.log,
	}
	switch flow {
	case wizardBackup:
		err = w.Backup(ctx)
	case wizardRestore:
		err = w.Restore(ctx)
	default:
		err = w.Run(ctx)
	}
	if errors.Is(err, wizard.ErrAborted) {
		fmt.Fprintln(stdout, "Aborted.")
		return nil
	}
	return err
}
