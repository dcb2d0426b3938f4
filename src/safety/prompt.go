package safety

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// Options carries the global safety flags.
type Options struct {
	DryRun bool // plan only, write nothing
	Yes    bool // assume yes to prompts
}

// Confirm prompts the user to confirm a potentially destructive action.
// - If opts.Yes is true, it returns true without prompting.
// - If opts.DryRun is true, it returns false but no error (no action should be taken).
// The caller decides what to do with the result.
func Confirm(opts Options, in io.Reader, out io.Writer, question string) (bool, error) {
	if opts.DryRun {
		// No changes in dry-run mode; treat as declined.
		return false, nil
	}
	if opts.Yes {
		return true, nil
	}
	if out != nil {
		fmt.Fprintf(out, "%s [y/N]: ", strings.TrimSpace(question))
	}
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	return IsYes(line), nil
}

// IsYes reports whether an answer means yes.
func IsYes(answer string) bool {
	ans := strings.TrimSpace(strings.ToLower(answer))
	return ans == "y" || ans == "yes"
}

// OverwriteQuestion is the prompt shown before restoring into a collection
// that already holds documents.
func OverwriteQuestion(namespace string, existing int64) string {
	return fmt.Sprintf("%s already contains %s documents. Insert the backup alongside them?", namespace, humanize.Comma(existing))
}
