package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/hpungsan/lineage/internal/config"
	"github.com/hpungsan/lineage/internal/db"
	"github.com/hpungsan/lineage/internal/errors"
)

// Export file names.
const (
	ScoresFile    = "persistence_scores.tsv"
	RevisionsFile = "pa_per_rev.tsv"
	CommitsFile   = "commits.tsv"
	TimesFile     = "times.tsv"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	RunID string // optional, default: latest run
	Dir   string // optional, default: ~/.lineage/exports/<run id>
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	RunID string         `json:"run_id"`
	Dir   string         `json:"dir"`
	Files []string       `json:"files"`
	Rows  map[string]int `json:"rows"`
}

// Export writes the results of a run as headerless tab-separated files:
//
//	persistence_scores.tsv  file, author, chars, score
//	pa_per_rev.tsv          hash, file, author, chars, score
//	commits.tsv             hash, author name, author email, author time,
//	                        committer name, committer email, committer time,
//	                        path, file
//	times.tsv               file, average lines per revision, seconds
//
// Each file is written to a temp file and renamed into place, so an existing
// export is preserved when writing fails.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	run, err := resolveRun(ctx, database, input.RunID)
	if err != nil {
		return nil, err
	}

	dir := input.Dir
	if dir == "" {
		exportsDir, err := DefaultExportsDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(exportsDir, SanitizeForFilename(run.ID))
	}
	if err := ValidateExportDir(dir, cfg); err != nil {
		return nil, err
	}
	dir, err = filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid dir: %v", err))
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}
	if isSymlink(dir) {
		return nil, errors.NewPathNotAllowed(dir, "dir must not be a symlink")
	}

	scores, _, err := db.ListScores(ctx, database, db.ScoreFilter{RunID: run.ID})
	if err != nil {
		return nil, err
	}
	revisions, err := db.ListRevisionScores(ctx, database, run.ID, "")
	if err != nil {
		return nil, err
	}
	commits, err := db.ListCommits(ctx, database, run.ID, "")
	if err != nil {
		return nil, err
	}
	timings, err := db.ListTimings(ctx, database, run.ID)
	if err != nil {
		return nil, err
	}

	tables := []struct {
		name string
		rows [][]string
	}{
		{ScoresFile, scoreRows(scores)},
		{RevisionsFile, revisionRows(revisions)},
		{CommitsFile, commitRows(commits)},
		{TimesFile, timingRows(timings)},
	}

	out := &ExportOutput{RunID: run.ID, Dir: dir, Rows: make(map[string]int, len(tables))}
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, t.name)
		if err := writeFileAtomic(path, func(w io.Writer) error {
			return writeTSV(w, t.rows)
		}); err != nil {
			return nil, err
		}
		out.Files = append(out.Files, path)
		out.Rows[t.name] = len(t.rows)
	}
	return out, nil
}

func scoreRows(scores []db.FileScore) [][]string {
	rows := make([][]string, 0, len(scores))
	for _, s := range scores {
		rows = append(rows, []string{s.FilePath, s.Author, strconv.Itoa(s.Chars), formatFloat(s.Score)})
	}
	return rows
}

func revisionRows(revisions []db.RevisionScore) [][]string {
	rows := make([][]string, 0, len(revisions))
	for _, r := range revisions {
		rows = append(rows, []string{r.CommitHash, r.FilePath, r.Author, strconv.Itoa(r.Chars), formatFloat(r.Score)})
	}
	return rows
}

func commitRows(commits []db.Commit) [][]string {
	rows := make([][]string, 0, len(commits))
	for _, c := range commits {
		rows = append(rows, []string{
			c.Hash,
			c.AuthorName,
			c.AuthorEmail,
			strconv.FormatInt(c.AuthorTime, 10),
			c.CommitterName,
			c.CommitterEmail,
			strconv.FormatInt(c.CommitterTime, 10),
			c.Path,
			c.FilePath,
		})
	}
	return rows
}

func timingRows(timings []db.Timing) [][]string {
	rows := make([][]string, 0, len(timings))
	for _, t := range timings {
		seconds := float64(t.DurationMs) / 1000
		rows = append(rows, []string{t.FilePath, formatFloat(t.AvgLines), formatFloat(seconds)})
	}
	return rows
}

// formatFloat prints the shortest representation, keeping a ".0" on whole
// numbers.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// tsvField replaces separators inside a value; the format has no quoting.
var tsvField = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

func writeTSV(w io.Writer, rows [][]string) error {
	bw := bufio.NewWriter(w)
	for _, row := range rows {
		for i, field := range row {
			if i > 0 {
				if err := bw.WriteByte('\t'); err != nil {
					return err
				}
			}
			if _, err := tsvField.WriteString(bw, field); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// writeFileAtomic writes path through a temp file in the same directory and
// renames it into place.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	// Clean up temp file on failure (original file is preserved)
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if err := write(file); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}

	// Close before rename (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination.
	if isSymlink(path) {
		return errors.NewPathNotAllowed(path, "export file is a symlink")
	}

	// On Windows, os.Rename fails if the destination exists. The existing file is
	// kept rather than replaced non-atomically.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows yet (choose a new dir or delete the existing files)")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}
