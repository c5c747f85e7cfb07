package ops

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/hpungsan/lineage/internal/config"
	"github.com/hpungsan/lineage/internal/db"
)

// gitRepo builds a repository in a temp dir one commit at a time.
type gitRepo struct {
	t    *testing.T
	dir  string
	wt   *git.Worktree
	when time.Time
}

func newGitRepo(t *testing.T) *gitRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	return &gitRepo{t: t, dir: dir, wt: wt, when: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (r *gitRepo) write(name, content string) {
	r.t.Helper()
	full := filepath.Join(r.dir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		r.t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		r.t.Fatalf("WriteFile: %v", err)
	}
	if _, err := r.wt.Add(name); err != nil {
		r.t.Fatalf("Add(%s): %v", name, err)
	}
}

func (r *gitRepo) remove(name string) {
	r.t.Helper()
	if _, err := r.wt.Remove(name); err != nil {
		r.t.Fatalf("Remove(%s): %v", name, err)
	}
}

func (r *gitRepo) commit(author string) string {
	r.t.Helper()
	r.when = r.when.Add(time.Hour)
	hash, err := r.wt.Commit("edit by "+author, &git.CommitOptions{
		Author: &object.Signature{Name: author, Email: author + "@example.com", When: r.when},
	})
	if err != nil {
		r.t.Fatalf("Commit: %v", err)
	}
	return hash.String()
}

// sampleRepo is the two-file history used across the ops tests:
//
//	a.txt  "ab\ncd\n" by U1, then "ab\nXY\n" by U2
//	c.txt  "hello\n" by U1
//	b.png  excluded by extension
func sampleRepo(t *testing.T) (*gitRepo, []string) {
	t.Helper()
	r := newGitRepo(t)
	r.write("a.txt", "ab\ncd\n")
	r.write("c.txt", "hello\n")
	r.write("b.png", "not an image\n")
	first := r.commit("U1")
	r.write("a.txt", "ab\nXY\n")
	second := r.commit("U2")
	return r, []string{first, second}
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Workers = 2
	cfg.MemoryPollMillis = 10
	return cfg
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// stubMemory replaces the memory probe for the duration of a test.
func stubMemory(t *testing.T, probe func(context.Context) (float64, error)) {
	t.Helper()
	orig := memoryUsedPercent
	memoryUsedPercent = probe
	t.Cleanup(func() { memoryUsedPercent = orig })
}

func lowMemory(context.Context) (float64, error) { return 10, nil }

// analyzeSample runs Analyze over sampleRepo and returns the repo and run ID.
func analyzeSample(t *testing.T, database *sql.DB) (*gitRepo, string) {
	t.Helper()
	stubMemory(t, lowMemory)
	r, _ := sampleRepo(t)
	out, err := Analyze(context.Background(), database, testConfig(), testLogger(), AnalyzeInput{RepoPath: r.dir})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	return r, out.RunID
}
