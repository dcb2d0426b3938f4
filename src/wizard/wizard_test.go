package wizard

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"mongowiz/src/backend"
	"mongowiz/src/backup"
	"mongowiz/src/mongoapi"
	"mongowiz/src/safety"
)

func newWizard(client mongoapi.Client, root, input string, out *bytes.Buffer) *Wizard {
	return &Wizard{
		Client:     client,
		Console:    NewPlainConsole(strings.NewReader(input), out),
		BackupRoot: root,
		BatchSize:  2,
		Now:        func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

func seeded() *mongoapi.FakeClient {
	return mongoapi.NewFake().Seed("shop", "orders",
		bson.D{{Key: "_id", Value: int32(1)}, {Key: "item", Value: "pen"}},
		bson.D{{Key: "_id", Value: int32(2)}, {Key: "item", Value: "ink"}},
		bson.D{{Key: "_id", Value: int32(3)}, {Key: "item", Value: "pad"}},
	)
}

func TestWizard_BackupFlow(t *testing.T) {
	root := t.TempDir()
	var out bytes.Buffer
	w := newWizard(seeded(), root, "1\n1\n\n", &out)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v\n%s", err, out.String())
	}
	file := filepath.Join(root, "mongodb_backup_20250102_030405", "shop", "orders.json")
	if _, err := os.Stat(file); err != nil {
		t.Fatalf("backup file missing: %v\n%s", err, out.String())
	}
	got := out.String()
	for _, want := range []string{"1) Backup a collection", "shop.orders (3 docs,", "Backed up 3 documents"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestWizard_BackupDryRun(t *testing.T) {
	root := filepath.Join(t.TempDir(), "backups")
	var out bytes.Buffer
	w := newWizard(seeded(), root, "1\n\n", &out)
	w.Safety = safety.Options{DryRun: true}
	if err := w.Backup(context.Background()); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("dry run created %s", root)
	}
	if !strings.Contains(out.String(), "Dry run: would back up shop.orders") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func backupOf(t *testing.T, client mongoapi.Client, root string) string {
	t.Helper()
	res, err := backup.Run(context.Background(), client, root, []backup.Target{{Database: "shop", Collection: "orders"}}, backup.Options{
		Now: func() time.Time { return time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	return res.Dir
}

func TestWizard_RestoreIntoEmptyTarget(t *testing.T) {
	root := t.TempDir()
	backupOf(t, seeded(), root)
	dst := mongoapi.NewFake()
	var out bytes.Buffer
	// menu, root, backup, collection, target db, target collection, confirm
	w := newWizard(dst, root, "2\n\n1\n1\nstaging\n\n\n", &out)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v\n%s", err, out.String())
	}
	if n := len(dst.Documents("staging", "orders")); n != 3 {
		t.Fatalf("restored %d documents, want 3\n%s", n, out.String())
	}
	got := out.String()
	for _, want := range []string{"2024-12-31 23:00:00 (1 DBs, 1 collections,", "Inserted 3 of 3 documents into staging.orders"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestWizard_RestoreNonEmptyTargetNeedsConsent(t *testing.T) {
	root := t.TempDir()
	backupOf(t, seeded(), root)

	dst := mongoapi.NewFake().Seed("shop", "orders", bson.D{{Key: "_id", Value: "other"}})
	var out bytes.Buffer
	w := newWizard(dst, root, "2\n\n1\n1\n\n\nn\n", &out)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(dst.Documents("shop", "orders")); n != 1 {
		t.Fatalf("declined restore wrote documents: %d", n)
	}
	if !strings.Contains(out.String(), "Warning: shop.orders already contains 1 documents.") || !strings.Contains(out.String(), "Restore cancelled.") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	out.Reset()
	w = newWizard(dst, root, "2\n\n1\n1\n\n\ny\ny\n", &out)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v\n%s", err, out.String())
	}
	if n := len(dst.Documents("shop", "orders")); n != 4 {
		t.Fatalf("got %d documents after consented restore, want 4", n)
	}
}

func TestWizard_RestoreDryRunSkipsConsent(t *testing.T) {
	root := t.TempDir()
	backupOf(t, seeded(), root)

	dst := mongoapi.NewFake().Seed("shop", "orders", bson.D{{Key: "_id", Value: "other"}})
	var out bytes.Buffer
	// menu, root, backup, collection, target db, target collection; no consent answer
	w := newWizard(dst, root, "2\n\n1\n1\n\n\n", &out)
	w.Safety = safety.Options{DryRun: true}
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v\n%s", err, out.String())
	}
	got := out.String()
	if strings.Contains(got, "[y/N]") || strings.Contains(got, "[Y/n]") {
		t.Fatalf("dry run asked a question:\n%s", got)
	}
	for _, want := range []string{"Warning: shop.orders already contains 1 documents.", "Dry run: would restore 3 documents"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if n := len(dst.Documents("shop", "orders")); n != 1 || dst.InsertCall != 1 {
		t.Fatalf("dry run wrote documents: %d docs, %d insert calls", n, dst.InsertCall)
	}
}

func TestWizard_RestoreReportsFailurePosition(t *testing.T) {
	root := t.TempDir()
	run := backupOf(t, seeded(), root)
	// Replace the backup with one whose second document is malformed.
	broken := `[{"_id":1},{"_id":{"$kind":"id","$value":"bad"}},{"_id":3}]`
	if err := os.WriteFile(filepath.Join(run, "shop", "orders.json"), []byte(broken), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dst := mongoapi.NewFake()
	var out bytes.Buffer
	w := newWizard(dst, root, "2\n\n1\n1\n\n\n\n", &out)
	err := w.Run(context.Background())
	if err == nil {
		t.Fatalf("expected error\n%s", out.String())
	}
	got := out.String()
	if !strings.Contains(got, "Inserted 1 of 3 documents") || !strings.Contains(got, "Stopped at document 2") {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestWizard_NoBackups(t *testing.T) {
	var out bytes.Buffer
	w := newWizard(mongoapi.NewFake(), t.TempDir(), "2\n\n", &out)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "No backups found") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestWizard_EnumerationErrorAborts(t *testing.T) {
	fc := mongoapi.NewFake()
	fc.ListErr = errors.New("server selection timeout")
	var out bytes.Buffer
	w := newWizard(fc, t.TempDir(), "1\n", &out)
	err := w.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "enumerate collections") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConsole_SelectRetriesAndAborts(t *testing.T) {
	var out bytes.Buffer
	c := NewPlainConsole(strings.NewReader("x\n9\n3\n"), &out)
	idx, err := c.Select("Pick:", []string{"a", "b", "c"})
	if err != nil || idx != 2 {
		t.Fatalf("Select = %d, %v", idx, err)
	}
	if strings.Count(out.String(), "Please enter a number between 1 and 3.") != 2 {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	c = NewPlainConsole(strings.NewReader(""), &out)
	if _, err := c.Select("Pick:", []string{"a"}); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestConsole_InputAndConfirmDefaults(t *testing.T) {
	var out bytes.Buffer
	c := NewPlainConsole(strings.NewReader("\n  custom  \n\nno\nYES"), &out)
	if v, _ := c.Input("Dir", "./backups"); v != "./backups" {
		t.Fatalf("default not used: %q", v)
	}
	if v, _ := c.Input("Dir", "./backups"); v != "custom" {
		t.Fatalf("answer not trimmed: %q", v)
	}
	if ok, _ := c.Confirm("Go?", true); !ok {
		t.Fatalf("empty answer should take default yes")
	}
	if ok, _ := c.Confirm("Go?", true); ok {
		t.Fatalf("no should decline")
	}
	if ok, _ := c.Confirm("Go?", false); !ok {
		t.Fatalf("YES without newline should confirm")
	}
	if !strings.Contains(out.String(), "Dir [./backups]: ") || !strings.Contains(out.String(), "Go? [Y/n]: ") {
		t.Fatalf("unexpected prompts:\n%s", out.String())
	}
}

func TestLabels(t *testing.T) {
	if got := CollectionLabel("shop.orders", 1234, 12000); got != "shop.orders (1,234 docs, 12 kB)" {
		t.Fatalf("CollectionLabel = %q", got)
	}
	if got := CollectionLabel("shop.orders", -1, 0); got != "shop.orders (? docs, 0 B)" {
		t.Fatalf("CollectionLabel unknown = %q", got)
	}
	e := backend.Entry{Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), Databases: 2, Collections: 3, SizeBytes: 1200000}
	if got := BackupLabel(e); got != "2025-01-02 03:04:05 (2 DBs, 3 collections, 1.2 MB)" {
		t.Fatalf("BackupLabel = %q", got)
	}
	e.Error = "parse manifest: unexpected EOF"
	if got := BackupLabel(e); got != "2025-01-02 03:04:05 (unreadable)" {
		t.Fatalf("BackupLabel unreadable = %q", got)
	}
}
