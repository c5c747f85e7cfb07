package ops

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/lineage/internal/config"
	"github.com/hpungsan/lineage/internal/db"
	"github.com/hpungsan/lineage/internal/errors"
	"github.com/hpungsan/lineage/internal/history"
	"github.com/hpungsan/lineage/internal/tracker"
)

// AnalyzeInput contains parameters for the Analyze operation.
type AnalyzeInput struct {
	RepoPath string   // required; any directory inside the repository
	Files    []string // optional subset, repository-relative
}

// AnalyzeOutput contains the result of the Analyze operation.
type AnalyzeOutput struct {
	RunID        string `json:"run_id"`
	Head         string `json:"head"`
	FilesTotal   int    `json:"files_total"`
	FilesDone    int    `json:"files_done"`
	FilesSkipped int    `json:"files_skipped"`
	FilesFailed  int    `json:"files_failed"`
	DurationMs   int64  `json:"duration_ms"`
}

// Analyze replays the history of every file tracked at HEAD and stores the
// resulting ownership as a new run. A file that cannot be attributed is
// recorded as a failure without aborting the run; cancellation aborts it.
func Analyze(ctx context.Context, database *sql.DB, cfg *config.Config, logger *zap.SugaredLogger, input AnalyzeInput) (*AnalyzeOutput, error) {
	sw := StartStopwatch()

	repoPath, repo, err := openRepository(input.RepoPath)
	if err != nil {
		return nil, err
	}

	listing, err := repo.Files(ctx, cfg.ExcludeExtensions)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewRepositoryUnavailable(repoPath, err)
	}
	files, skipped, err := selectFiles(listing, input.Files)
	if err != nil {
		return nil, err
	}

	run := &db.Run{
		ID:           ulid.Make().String(),
		RepoPath:     repoPath,
		Head:         repo.Head(),
		LogBase:      cfg.LogBase,
		Threshold:    cfg.SimilarityThreshold,
		StartedAt:    time.Now().Unix(),
		FilesTotal:   len(files) + len(skipped),
		FilesSkipped: len(skipped),
	}
	if err := db.InsertRun(ctx, database, run); err != nil {
		return nil, err
	}
	logger.Infow("analysis started",
		"run_id", run.ID, "repo", repoPath, "head", run.Head,
		"files", len(files), "skipped", len(skipped), "workers", cfg.Workers)

	var mu sync.Mutex
	poll := time.Duration(cfg.MemoryPollMillis) * time.Millisecond

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, file := range files {
		g.Go(func() error {
			if err := waitForMemory(gctx, logger, cfg.MemoryHighWater, poll); err != nil {
				return err
			}

			res, err := analyzeFile(gctx, repoPath, run.Head, file, cfg)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failure := classifyFailure(file, err)
				logger.Warnw("file failed", "run_id", run.ID, "file", file, "code", failure.Code, "error", err)

				mu.Lock()
				defer mu.Unlock()
				run.FilesFailed++
				return db.SaveFailure(gctx, database, run.ID, failure)
			}

			mu.Lock()
			defer mu.Unlock()
			if err := db.SaveFileResult(gctx, database, run.ID, res); err != nil {
				return err
			}
			run.FilesDone++
			logger.Debugw("file analyzed", "run_id", run.ID, "file", file,
				"revisions", res.Timing.Revisions, "duration_ms", res.Timing.DurationMs,
				"run_elapsed_ms", sw.Elapsed().Milliseconds())
			return nil
		})
	}
	runErr := g.Wait()

	// Counters are stored even when the run is aborted; only a completed run
	// gets a finish time.
	if runErr == nil {
		finished := time.Now().Unix()
		run.FinishedAt = &finished
	}
	if err := db.FinishRun(context.WithoutCancel(ctx), database, run); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		logger.Warnw("analysis aborted", "run_id", run.ID, "error", runErr)
		return nil, runErr
	}

	out := &AnalyzeOutput{
		RunID:        run.ID,
		Head:         run.Head,
		FilesTotal:   run.FilesTotal,
		FilesDone:    run.FilesDone,
		FilesSkipped: run.FilesSkipped,
		FilesFailed:  run.FilesFailed,
		DurationMs:   sw.Stop().Milliseconds(),
	}
	logger.Infow("analysis finished",
		"run_id", out.RunID, "done", out.FilesDone, "failed", out.FilesFailed, "duration_ms", out.DurationMs)
	return out, nil
}

// openRepository resolves repoPath and opens the repository containing it.
func openRepository(repoPath string) (string, *history.Repository, error) {
	if strings.TrimSpace(repoPath) == "" {
		return "", nil, errors.NewInvalidRequest("repo_path is required")
	}
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return "", nil, errors.NewInvalidRequest(fmt.Sprintf("invalid repo_path: %v", err))
	}
	repo, err := history.Open(abs)
	if err != nil {
		return "", nil, errors.NewRepositoryUnavailable(abs, err)
	}
	return abs, repo, nil
}

// selectFiles narrows the listing to the requested files. With no request,
// every analyzable file is selected.
func selectFiles(listing *history.Listing, requested []string) (files, skipped []string, err error) {
	if len(requested) == 0 {
		return listing.Files, listing.Skipped, nil
	}

	analyzable := make(map[string]bool, len(listing.Files))
	for _, f := range listing.Files {
		analyzable[f] = true
	}
	excluded := make(map[string]bool, len(listing.Skipped))
	for _, f := range listing.Skipped {
		excluded[f] = true
	}

	seen := make(map[string]bool, len(requested))
	for _, f := range requested {
		name, err := normalizeFile(f)
		if err != nil {
			return nil, nil, err
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		switch {
		case analyzable[name]:
			files = append(files, name)
		case excluded[name]:
			skipped = append(skipped, name)
		default:
			return nil, nil, errors.NewNotFound("file", name)
		}
	}
	return files, skipped, nil
}

// normalizeFile turns a user-supplied path into a repository-relative,
// slash-separated one.
func normalizeFile(file string) (string, error) {
	name := strings.TrimSpace(filepath.ToSlash(file))
	if name == "" {
		return "", errors.NewInvalidRequest("file must not be empty")
	}
	name = path.Clean(strings.TrimPrefix(name, "./"))
	if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
		return "", errors.NewInvalidRequest(fmt.Sprintf("file must be relative to the repository: %s", file))
	}
	return name, nil
}

// analyzeFile replays the history of one file through a fresh tracker.
func analyzeFile(ctx context.Context, repoDir, head, file string, cfg *config.Config) (*db.FileResult, error) {
	sw := StartStopwatch()

	repo, err := history.OpenAt(repoDir, head)
	if err != nil {
		return nil, err
	}
	revs, err := repo.FileHistory(ctx, file)
	if err != nil {
		return nil, err
	}

	res := &db.FileResult{FilePath: file}
	var tr *tracker.Tracker
	lines := 0
	for i, rev := range revs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if tr == nil {
			tr = tracker.New(rev.Text, rev.AuthorName, tracker.WithThreshold(cfg.SimilarityThreshold))
		} else if err := tr.Update(rev.Text, rev.AuthorName); err != nil {
			return nil, fmt.Errorf("%s at %s: %w", file, rev.Hash, err)
		}
		lines += tracker.LineCount(rev.Text)

		res.Commits = append(res.Commits, db.Commit{
			FilePath:       file,
			Seq:            i,
			Hash:           rev.Hash,
			AuthorName:     rev.AuthorName,
			AuthorEmail:    rev.AuthorEmail,
			AuthorTime:     rev.AuthorTime.Unix(),
			CommitterName:  rev.CommitterName,
			CommitterEmail: rev.CommitterEmail,
			CommitterTime:  rev.CommitterTime.Unix(),
			Path:           rev.Path,
		})

		if cfg.SkipRevisionScores && i < len(revs)-1 {
			continue
		}
		own, err := tr.Ownership(cfg.LogBase)
		if err != nil {
			return nil, err
		}
		if !cfg.SkipRevisionScores {
			for _, author := range own.Authors() {
				res.Revisions = append(res.Revisions, db.RevisionScore{
					FilePath:   file,
					Seq:        i,
					CommitHash: rev.Hash,
					Author:     author,
					Chars:      own.Counts[author],
					Score:      own.Scores[author],
				})
			}
		}
		if i == len(revs)-1 {
			for _, author := range own.Authors() {
				res.Scores = append(res.Scores, db.FileScore{
					FilePath: file,
					Author:   author,
					Chars:    own.Counts[author],
					Score:    own.Scores[author],
				})
			}
		}
	}

	res.Timing = db.Timing{
		FilePath:   file,
		Revisions:  len(revs),
		DurationMs: sw.Stop().Milliseconds(),
	}
	if len(revs) > 0 {
		res.Timing.AvgLines = round2(float64(lines) / float64(len(revs)))
	}
	return res, nil
}

// classifyFailure maps a per-file error to a stored failure record.
func classifyFailure(file string, err error) db.Failure {
	var lErr *errors.LineageError
	switch {
	case stderrors.Is(err, history.ErrUnsupportedEncoding):
		lErr = errors.NewUnsupportedEncoding(file)
	case stderrors.Is(err, tracker.ErrInvariant):
		lErr = errors.NewInvariantViolation(file, err)
	default:
		lErr = errors.NewInternal(err)
	}
	return db.Failure{
		FilePath: file,
		Code:     string(lErr.Code),
		Message:  err.Error(),
	}
}
