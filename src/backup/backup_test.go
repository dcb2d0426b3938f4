package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"mongowiz/src/apperr"
	"mongowiz/src/backend"
	dir "mongowiz/src/backend/directory"
	"mongowiz/src/codec"
	"mongowiz/src/mongoapi"
	"mongowiz/src/util/progress"
)

func fixedClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[i]
		if i < len(ts)-1 {
			i++
		}
		return t
	}
}

func seededClient(t *testing.T) *mongoapi.FakeClient {
	t.Helper()
	fc := mongoapi.NewFake()
	for i := 0; i < 3; i++ {
		fc.Seed("shop", "orders", bson.D{
			{Key: "_id", Value: bson.NewObjectID()},
			{Key: "n", Value: int32(i)},
			{Key: "when", Value: bson.NewDateTimeFromTime(time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC))},
			{Key: "total", Value: int64(1) << 40},
		})
	}
	fc.Seed("crm", "people", bson.D{{Key: "_id", Value: "alice"}, {Key: "tags", Value: bson.A{"a", "b"}}})
	return fc
}

func readBackupFile(t *testing.T, path string) []bson.D {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	node, err := codec.Parse(data)
	require.NoError(t, err)
	arr, ok := node.([]any)
	require.True(t, ok, "backup file is not an array")
	out := make([]bson.D, 0, len(arr))
	for _, el := range arr {
		doc, err := codec.DocumentFromNode(el)
		require.NoError(t, err)
		out = append(out, doc)
	}
	return out
}

func TestRun_WritesLayoutManifestAndChecksums(t *testing.T) {
	fc := seededClient(t)
	root := t.TempDir()
	start := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	res, err := Run(context.Background(), fc, root, []Target{{"shop", "orders"}, {"crm", "people"}}, Options{
		Now:    fixedClock(start, start.Add(2*time.Second)),
		Source: "mongodb://user:xxxxx@db:27017",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Dir != filepath.Join(root, "mongodb_backup_20250203_040506") {
		t.Fatalf("unexpected run dir %s", res.Dir)
	}
	for _, p := range []string{"shop/orders.json", "crm/people.json", backend.ManifestFile, backend.ChecksumsFile} {
		if _, err := os.Stat(filepath.Join(res.Dir, p)); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}

	var mf backend.Manifest
	data, err := os.ReadFile(filepath.Join(res.Dir, backend.ManifestFile))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if err := json.Unmarshal(data, &mf); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if mf.RunID == "" || mf.Timestamp != "20250203_040506" || mf.Source != "mongodb://user:xxxxx@db:27017" {
		t.Fatalf("unexpected manifest header: %+v", mf)
	}
	if !mf.CompletedAt.Equal(start.Add(2 * time.Second)) {
		t.Fatalf("completedAt = %s", mf.CompletedAt)
	}
	if len(mf.Collections) != 2 || mf.Collections[0].Documents != 3 || mf.Collections[1].Documents != 1 {
		t.Fatalf("unexpected collections: %+v", mf.Collections)
	}
	if res.Documents() != 4 || res.SizeBytes() <= 0 {
		t.Fatalf("unexpected totals: %d docs, %d bytes", res.Documents(), res.SizeBytes())
	}

	checks, err := Verify(res.Dir)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(checks) != 3 || !AllOK(checks) {
		t.Fatalf("unexpected checks: %+v", checks)
	}

	require.Equal(t, fc.Documents("shop", "orders"), readBackupFile(t, filepath.Join(res.Dir, "shop", "orders.json")))
}

func TestRun_FileIsIndentedArray(t *testing.T) {
	fc := mongoapi.NewFake().Seed("db", "c", bson.D{{Key: "_id", Value: int32(1)}, {Key: "sub", Value: bson.D{{Key: "x", Value: true}}}})
	res, err := Run(context.Background(), fc, t.TempDir(), []Target{{"db", "c"}}, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(res.Dir, "db", "c.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "[\n  {\n    \"_id\": 1,\n    \"sub\": {\n      \"x\": true\n    }\n  }\n]\n"
	if string(data) != want {
		t.Fatalf("unexpected file:\n%s", data)
	}
}

func TestRun_EmptyCollection(t *testing.T) {
	fc := mongoapi.NewFake()
	fc.CreateCollection("db", "empty")
	res, err := Run(context.Background(), fc, t.TempDir(), []Target{{"db", "empty"}}, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(res.Dir, "db", "empty.json"))
	if string(data) != "[]\n" {
		t.Fatalf("unexpected file %q", data)
	}
}

func TestRun_Idempotent(t *testing.T) {
	fc := seededClient(t)
	root := t.TempDir()
	start := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	first, err := Run(context.Background(), fc, root, []Target{{"shop", "orders"}}, Options{Now: fixedClock(start)})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Run(context.Background(), fc, root, []Target{{"shop", "orders"}}, Options{Now: fixedClock(start.Add(time.Second))})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.Dir == second.Dir {
		t.Fatalf("runs share a directory")
	}
	a := readBackupFile(t, filepath.Join(first.Dir, "shop", "orders.json"))
	b := readBackupFile(t, filepath.Join(second.Dir, "shop", "orders.json"))
	require.ElementsMatch(t, a, b)
}

func TestRun_SameSecondMovesToNextSecond(t *testing.T) {
	fc := seededClient(t)
	root := t.TempDir()
	start := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	first, err := Run(context.Background(), fc, root, []Target{{"shop", "orders"}}, Options{Now: fixedClock(start)})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Run(context.Background(), fc, root, []Target{{"shop", "orders"}}, Options{Now: fixedClock(start)})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	require.Equal(t, filepath.Join(root, "mongodb_backup_20250203_040506"), first.Dir)
	require.Equal(t, filepath.Join(root, "mongodb_backup_20250203_040507"), second.Dir)
	require.Equal(t, "20250203_040507", second.Manifest.Timestamp)
	require.Len(t, readBackupFile(t, filepath.Join(second.Dir, "shop", "orders.json")), 3)
}

func TestRun_AllCandidateSecondsTaken(t *testing.T) {
	fc := seededClient(t)
	root := t.TempDir()
	start := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	for i := 0; i < maxRunDirAttempts; i++ {
		require.NoError(t, os.Mkdir(filepath.Join(root, dir.DirName(start.Add(time.Duration(i)*time.Second))), 0o755))
	}
	_, err := Run(context.Background(), fc, root, []Target{{"shop", "orders"}}, Options{Now: fixedClock(start)})
	if err == nil || !errors.Is(err, apperr.ErrIO) {
		t.Fatalf("expected i/o error, got %v", err)
	}
}

func TestRun_FailureRemovesRunDirectory(t *testing.T) {
	fc := seededClient(t)
	root := t.TempDir()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	good, err := Run(context.Background(), fc, root, []Target{{"shop", "orders"}}, Options{Now: fixedClock(start)})
	if err != nil {
		t.Fatalf("good run: %v", err)
	}

	fc.FindErr["crm.people"] = errors.New("cursor killed")
	_, err = Run(context.Background(), fc, root, []Target{{"shop", "orders"}, {"crm", "people"}}, Options{Now: fixedClock(start.Add(time.Hour))})
	if err == nil || !strings.Contains(err.Error(), "cursor killed") {
		t.Fatalf("expected find error, got %v", err)
	}
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, filepath.Base(good.Dir), entries[0].Name())
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, writeJSON(path, map[string]int{"a": 1}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\n  \"a\": 1\n}\n", string(data))

	require.Error(t, writeJSON(path, make(chan int)))
	require.Error(t, writeJSON(filepath.Join(path, "nested.json"), 1))
}

func TestRun_UnwritableRoot(t *testing.T) {
	fc := seededClient(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Run(context.Background(), fc, filepath.Join(blocker, "sub"), []Target{{"shop", "orders"}}, Options{})
	if err == nil || apperr.ExitCode(err) != apperr.ExitIO {
		t.Fatalf("expected i/o error, got %v", err)
	}
}

func TestBackupCollection_UnsupportedTypeRemovesFile(t *testing.T) {
	fc := mongoapi.NewFake()
	fc.Seed("db", "code",
		bson.D{{Key: "_id", Value: int32(1)}},
		bson.D{{Key: "_id", Value: int32(2)}, {Key: "fn", Value: bson.JavaScript("function() {}")}},
	)
	runDir := t.TempDir()
	_, err := BackupCollection(context.Background(), fc, runDir, Target{"db", "code"}, Options{})
	if err == nil || !errors.Is(err, apperr.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	for _, want := range []string{"db.code", "document 1", "fn"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
	if _, err := os.Stat(filepath.Join(runDir, "db", "code.json")); !os.IsNotExist(err) {
		t.Fatalf("partial file left behind: %v", err)
	}
}

func TestBackupCollection_Progress(t *testing.T) {
	fc := mongoapi.NewFake()
	docs := make([]any, 250)
	for i := range docs {
		docs[i] = bson.D{{Key: "_id", Value: int32(i)}}
	}
	fc.Seed("db", "big", docs...)
	var events []progress.Event
	_, err := BackupCollection(context.Background(), fc, t.TempDir(), Target{"db", "big"}, Options{
		Progress: func(e progress.Event) { events = append(events, e) },
	})
	if err != nil {
		t.Fatalf("BackupCollection: %v", err)
	}
	// step is 2: first document, then every second one
	if len(events) != 126 {
		t.Fatalf("got %d events, want 126", len(events))
	}
	last := events[len(events)-1]
	if last.Done != 250 || last.Total != 250 || last.Label != "db.big" || !last.Complete() {
		t.Fatalf("unexpected last event %+v", last)
	}
	if !sort.SliceIsSorted(events, func(i, j int) bool { return events[i].Done < events[j].Done }) {
		t.Fatalf("events out of order")
	}
}

func TestVerify_DetectsMismatchAndMissing(t *testing.T) {
	fc := seededClient(t)
	res, err := Run(context.Background(), fc, t.TempDir(), []Target{{"shop", "orders"}, {"crm", "people"}}, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := os.WriteFile(filepath.Join(res.Dir, "shop", "orders.json"), []byte("[]\n"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if err := os.Remove(filepath.Join(res.Dir, "crm", "people.json")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	checks, err := Verify(res.Dir)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	status := map[string]string{}
	for _, c := range checks {
		status[c.File] = c.Status
	}
	want := map[string]string{"shop/orders.json": StatusMismatch, "crm/people.json": StatusMissing, backend.ManifestFile: StatusOK}
	require.Equal(t, want, status)
	if AllOK(checks) {
		t.Fatalf("AllOK should be false")
	}
}

func TestVerify_NoChecksums(t *testing.T) {
	if _, err := Verify(t.TempDir()); err == nil {
		t.Fatalf("expected error")
	}
}
