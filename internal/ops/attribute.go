package ops

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/hpungsan/lineage/internal/config"
	"github.com/hpungsan/lineage/internal/errors"
	"github.com/hpungsan/lineage/internal/history"
	"github.com/hpungsan/lineage/internal/tracker"
)

// AttributeInput contains parameters for the Attribute operation.
type AttributeInput struct {
	RepoPath string // required
	File     string // required, repository-relative
	Head     string // optional commit to replay up to, default: HEAD
}

// AttributedRevision identifies the commit behind a revision number.
type AttributedRevision struct {
	Revision   int       `json:"revision"`
	Hash       string    `json:"hash"`
	Author     string    `json:"author"`
	AuthorTime time.Time `json:"author_time"`
	Path       string    `json:"path"`
}

// AttributeOutput is the character-level attribution of one file.
type AttributeOutput struct {
	File      string               `json:"file"`
	Head      string               `json:"head"`
	Revision  int                  `json:"revision"`
	Threshold float64              `json:"threshold"`
	Chars     int                  `json:"chars"`
	Text      string               `json:"text"`
	Spans     []tracker.Span       `json:"spans"`
	Revisions []AttributedRevision `json:"revisions"`
	Authors   []string             `json:"authors"`
	Counts    map[string]int       `json:"counts"`
	Scores    map[string]float64   `json:"scores"`
}

// Attribute replays the history of one file in memory and returns the origin
// of every character of its latest revision. Nothing is stored.
func Attribute(ctx context.Context, cfg *config.Config, input AttributeInput) (*AttributeOutput, error) {
	file, err := normalizeFile(input.File)
	if err != nil {
		return nil, err
	}
	repoPath, repo, err := openRepository(input.RepoPath)
	if err != nil {
		return nil, err
	}
	if head := strings.TrimSpace(input.Head); head != "" {
		if repo, err = history.OpenAt(repoPath, head); err != nil {
			return nil, errors.NewRepositoryUnavailable(repoPath, err)
		}
	}

	revs, err := repo.FileHistory(ctx, file)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case stderrors.Is(err, history.ErrFileNotTracked):
			return nil, errors.NewNotFound("file", file)
		case stderrors.Is(err, history.ErrUnsupportedEncoding):
			return nil, errors.NewUnsupportedEncoding(file)
		}
		return nil, errors.NewRepositoryUnavailable(repoPath, err)
	}
	if len(revs) == 0 {
		return nil, errors.NewNotFound("file", file)
	}

	out := &AttributeOutput{File: file, Head: repo.Head()}
	var tr *tracker.Tracker
	for i, rev := range revs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if tr == nil {
			tr = tracker.New(rev.Text, rev.AuthorName, tracker.WithThreshold(cfg.SimilarityThreshold))
		} else if err := tr.Update(rev.Text, rev.AuthorName); err != nil {
			return nil, errors.NewInvariantViolation(file, err)
		}
		out.Revisions = append(out.Revisions, AttributedRevision{
			Revision:   i + 1,
			Hash:       rev.Hash,
			Author:     rev.AuthorName,
			AuthorTime: rev.AuthorTime,
			Path:       rev.Path,
		})
	}

	own, err := tr.Ownership(cfg.LogBase)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	out.Revision = tr.Revision()
	out.Threshold = tr.Threshold()
	out.Chars = own.Total()
	out.Text = tr.Text()
	out.Spans = tr.Spans()
	if out.Spans == nil {
		out.Spans = []tracker.Span{}
	}
	out.Authors = own.Authors()
	out.Counts = own.Counts
	out.Scores = own.Scores
	return out, nil
}
