package backup

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mongowiz/src/apperr"
	"mongowiz/src/backend"
)

// Verification statuses.
const (
	StatusOK       = "ok"
	StatusMismatch = "mismatch"
	StatusMissing  = "missing"
)

// FileCheck is the verification outcome for one file listed in checksums.txt.
type FileCheck struct {
	File     string `json:"file"`
	Status   string `json:"status"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
}

// Verify recomputes the checksums of a run directory.
func Verify(runDir string) ([]FileCheck, error) {
	f, err := os.Open(filepath.Join(runDir, backend.ChecksumsFile))
	if err != nil {
		return nil, apperr.IO(err, "open checksums in %s", runDir)
	}
	defer f.Close()
	var out []FileCheck
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// Expect format: <sha256>  <filename>
		parts := strings.SplitN(line, "  ", 2)
		if len(parts) != 2 {
			return nil, apperr.Formatf("%s: malformed line %q", backend.ChecksumsFile, line)
		}
		c := FileCheck{File: parts[1], Expected: parts[0]}
		sum, err := sha256File(filepath.Join(runDir, filepath.FromSlash(c.File)))
		switch {
		case os.IsNotExist(err):
			c.Status = StatusMissing
		case err != nil:
			return nil, apperr.IO(err, "read %s", c.File)
		case strings.EqualFold(c.Expected, sum):
			c.Status, c.Actual = StatusOK, sum
		default:
			c.Status, c.Actual = StatusMismatch, sum
		}
		out = append(out, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.IO(err, "read checksums in %s", runDir)
	}
	return out, nil
}

// AllOK reports whether every check passed.
func AllOK(checks []FileCheck) bool {
	for _, c := range checks {
		if c.Status != StatusOK {
			return false
		}
	}
	return true
}

func writeChecksums(dir string, files []string) error {
	out, err := os.Create(filepath.Join(dir, backend.ChecksumsFile))
	if err != nil {
		return err
	}
	defer out.Close()
	for _, name := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		sum, err := sha256File(p)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "%s  %s\n", sum, name); err != nil {
			return err
		}
	}
	return out.Close()
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
