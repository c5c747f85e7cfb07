package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/lineage/internal/db"
	"github.com/hpungsan/lineage/internal/errors"
)

// ScoresInput contains parameters for the Scores operation.
type ScoresInput struct {
	RunID  string // optional, default: latest run
	File   string // optional exact path
	Author string // optional exact author name
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// ScoresOutput contains the result of the Scores operation.
type ScoresOutput struct {
	RunID      string         `json:"run_id"`
	Items      []db.FileScore `json:"items"`
	Pagination Pagination     `json:"pagination"`
}

// Scores lists final per-file author scores of a run.
func Scores(ctx context.Context, database *sql.DB, input ScoresInput) (*ScoresOutput, error) {
	run, err := resolveRun(ctx, database, input.RunID)
	if err != nil {
		return nil, err
	}
	limit, offset := page(input.Limit, input.Offset)

	filter := db.ScoreFilter{
		RunID:  run.ID,
		Author: input.Author,
		Limit:  limit,
		Offset: offset,
	}
	if strings.TrimSpace(input.File) != "" {
		if filter.File, err = normalizeFile(input.File); err != nil {
			return nil, err
		}
	}

	items, total, err := db.ListScores(ctx, database, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []db.FileScore{}
	}

	return &ScoresOutput{
		RunID:      run.ID,
		Items:      items,
		Pagination: paginate(limit, offset, len(items), total),
	}, nil
}

// SummaryInput contains parameters for the Summary operation.
type SummaryInput struct {
	RunID string // optional, default: latest run
}

// SummaryOutput contains the result of the Summary operation.
type SummaryOutput struct {
	RunID   string             `json:"run_id"`
	Authors []db.AuthorSummary `json:"authors"`
}

// Summary aggregates final scores per author across a run, ordered by
// surviving characters, most first, then by name.
func Summary(ctx context.Context, database *sql.DB, input SummaryInput) (*SummaryOutput, error) {
	run, err := resolveRun(ctx, database, input.RunID)
	if err != nil {
		return nil, err
	}
	authors, err := db.SummarizeAuthors(ctx, database, run.ID)
	if err != nil {
		return nil, err
	}
	if authors == nil {
		authors = []db.AuthorSummary{}
	}
	for i := range authors {
		authors[i].MeanScore = round2(authors[i].MeanScore)
	}
	return &SummaryOutput{RunID: run.ID, Authors: authors}, nil
}

// FileDetailInput contains parameters for the FileDetail operation.
type FileDetailInput struct {
	RunID string // optional, default: latest run
	File  string // required
}

// FileDetailOutput contains everything a run stored for one file.
type FileDetailOutput struct {
	RunID     string             `json:"run_id"`
	File      string             `json:"file"`
	Scores    []db.FileScore     `json:"scores"`
	Revisions []db.RevisionScore `json:"revisions"`
	Commits   []db.Commit        `json:"commits"`
	Failure   *db.Failure        `json:"failure,omitempty"`
}

// FileDetail returns the final scores, per-revision scores and commit log of
// one file in a run.
func FileDetail(ctx context.Context, database *sql.DB, input FileDetailInput) (*FileDetailOutput, error) {
	run, err := resolveRun(ctx, database, input.RunID)
	if err != nil {
		return nil, err
	}
	file, err := normalizeFile(input.File)
	if err != nil {
		return nil, err
	}

	scores, _, err := db.ListScores(ctx, database, db.ScoreFilter{RunID: run.ID, File: file})
	if err != nil {
		return nil, err
	}
	revisions, err := db.ListRevisionScores(ctx, database, run.ID, file)
	if err != nil {
		return nil, err
	}
	commits, err := db.ListCommits(ctx, database, run.ID, file)
	if err != nil {
		return nil, err
	}

	out := &FileDetailOutput{
		RunID:     run.ID,
		File:      file,
		Scores:    scores,
		Revisions: revisions,
		Commits:   commits,
	}

	if len(scores) == 0 && len(commits) == 0 {
		failures, err := db.ListFailures(ctx, database, run.ID)
		if err != nil {
			return nil, err
		}
		for i := range failures {
			if failures[i].FilePath == file {
				out.Failure = &failures[i]
				break
			}
		}
		if out.Failure == nil {
			return nil, errors.NewNotFound("file", file)
		}
	}

	if out.Scores == nil {
		out.Scores = []db.FileScore{}
	}
	if out.Revisions == nil {
		out.Revisions = []db.RevisionScore{}
	}
	if out.Commits == nil {
		out.Commits = []db.Commit{}
	}
	return out, nil
}
