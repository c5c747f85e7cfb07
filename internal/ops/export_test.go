package ops

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/lineage/internal/errors"
)

func TestExport_AllowedDir(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	t.Setenv("HOME", t.TempDir())
	_, runID := analyzeSample(t, database)

	allowed := t.TempDir()
	cfg := testConfig()
	cfg.AllowedPaths = []string{allowed}

	out, err := Export(ctx, database, cfg, ExportInput{RunID: runID, Dir: allowed})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	wantRows := map[string]int{ScoresFile: 3, RevisionsFile: 4, CommitsFile: 3, TimesFile: 2}
	for name, want := range wantRows {
		if out.Rows[name] != want {
			t.Errorf("Rows[%s] = %d, want %d", name, out.Rows[name], want)
		}
		data, err := os.ReadFile(filepath.Join(allowed, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if got := bytes.Count(data, []byte("\n")); got != want {
			t.Errorf("%s has %d lines, want %d", name, got, want)
		}
	}

	commits, err := os.ReadFile(filepath.Join(allowed, CommitsFile))
	if err != nil {
		t.Fatalf("read commits: %v", err)
	}
	first := strings.Split(strings.SplitN(string(commits), "\n", 2)[0], "\t")
	if len(first) != 9 {
		t.Fatalf("commit row has %d columns, want 9: %q", len(first), first)
	}
	if first[1] != "U1" || first[2] != "U1@example.com" || first[7] != "a.txt" || first[8] != "a.txt" {
		t.Errorf("commit row = %q", first)
	}

	times, err := os.ReadFile(filepath.Join(allowed, TimesFile))
	if err != nil {
		t.Fatalf("read times: %v", err)
	}
	if !strings.HasPrefix(string(times), "a.txt\t2.0\t") {
		t.Errorf("times.tsv = %q, want a.txt with 2.0 average lines first", times)
	}
}

func TestExport_FilePermissions(t *testing.T) {
	database := newTestDB(t)
	t.Setenv("HOME", t.TempDir())
	_, runID := analyzeSample(t, database)

	out, err := Export(context.Background(), database, testConfig(), ExportInput{RunID: runID})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	for _, path := range out.Files {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("%s permissions = %o, want 0600", filepath.Base(path), perm)
		}
	}

	entries, err := os.ReadDir(out.Dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("export dir has %d entries, want 4 (no temp files left)", len(entries))
	}
}

func TestExport_OverwritesPreviousExport(t *testing.T) {
	database := newTestDB(t)
	t.Setenv("HOME", t.TempDir())
	_, runID := analyzeSample(t, database)
	cfg := testConfig()

	out, err := Export(context.Background(), database, cfg, ExportInput{RunID: runID})
	if err != nil {
		t.Fatalf("first Export failed: %v", err)
	}
	scoresPath := filepath.Join(out.Dir, ScoresFile)
	if err := os.WriteFile(scoresPath, []byte("stale\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Export(context.Background(), database, cfg, ExportInput{RunID: runID}); err != nil {
		t.Fatalf("second Export failed: %v", err)
	}
	data, err := os.ReadFile(scoresPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "stale") {
		t.Error("export was not replaced")
	}
}

func TestExport_SymlinkFileRejected(t *testing.T) {
	database := newTestDB(t)
	t.Setenv("HOME", t.TempDir())
	_, runID := analyzeSample(t, database)

	allowed := t.TempDir()
	cfg := testConfig()
	cfg.AllowedPaths = []string{allowed}

	target := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(target, []byte("keep\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(allowed, ScoresFile)); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	_, err := Export(context.Background(), database, cfg, ExportInput{RunID: runID, Dir: allowed})
	if !errors.Is(err, errors.ErrPathNotAllowed) {
		t.Errorf("expected ErrPathNotAllowed, got: %v", err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "keep\n" {
		t.Errorf("symlink target modified: %q", data)
	}
}

func TestExport_DirOutsideAllowed(t *testing.T) {
	database := newTestDB(t)
	t.Setenv("HOME", t.TempDir())
	_, runID := analyzeSample(t, database)

	_, err := Export(context.Background(), database, testConfig(), ExportInput{RunID: runID, Dir: t.TempDir()})
	if !errors.Is(err, errors.ErrPathNotAllowed) {
		t.Errorf("expected ErrPathNotAllowed, got: %v", err)
	}
}

func TestExport_NoRuns(t *testing.T) {
	database := newTestDB(t)
	t.Setenv("HOME", t.TempDir())

	_, err := Export(context.Background(), database, testConfig(), ExportInput{})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestWriteTSV_ReplacesSeparators(t *testing.T) {
	var buf bytes.Buffer
	err := writeTSV(&buf, [][]string{{"a\tb", "c\nd"}, {"e", ""}})
	if err != nil {
		t.Fatalf("writeTSV failed: %v", err)
	}
	if got, want := buf.String(), "a b\tc d\ne\t\n"; got != want {
		t.Errorf("writeTSV = %q, want %q", got, want)
	}
}
