package ops

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/lineage/internal/db"
)

// ReportInput contains parameters for the Report operation.
type ReportInput struct {
	RunID string // optional, default: latest run
	Top   int    // files listed, default: 20, max: 500
}

// ReportOutput contains the result of the Report operation.
type ReportOutput struct {
	RunID    string `json:"run_id"`
	Markdown string `json:"markdown"`
}

// Report renders a Markdown summary of a run: run metadata, per-author
// totals, the largest files with their top author, and failures.
func Report(ctx context.Context, database *sql.DB, input ReportInput) (*ReportOutput, error) {
	run, err := resolveRun(ctx, database, input.RunID)
	if err != nil {
		return nil, err
	}
	top := input.Top
	if top <= 0 {
		top = DefaultReportTop
	}
	top = min(top, MaxReportTop)

	authors, err := db.SummarizeAuthors(ctx, database, run.ID)
	if err != nil {
		return nil, err
	}
	files, err := db.SummarizeFiles(ctx, database, run.ID)
	if err != nil {
		return nil, err
	}
	scores, _, err := db.ListScores(ctx, database, db.ScoreFilter{RunID: run.ID})
	if err != nil {
		return nil, err
	}
	failures, err := db.ListFailures(ctx, database, run.ID)
	if err != nil {
		return nil, err
	}

	// Scores are ordered by file, then most characters, so the first row of
	// each file is its top author.
	topAuthor := make(map[string]db.FileScore, len(files))
	for _, s := range scores {
		if _, ok := topAuthor[s.FilePath]; !ok {
			topAuthor[s.FilePath] = s
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Ownership report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", run.ID)
	fmt.Fprintf(&b, "- Repository: `%s`\n", run.RepoPath)
	fmt.Fprintf(&b, "- Head: `%s`\n", run.Head)
	fmt.Fprintf(&b, "- Started: %s\n", formatUnix(run.StartedAt))
	if run.FinishedAt != nil {
		fmt.Fprintf(&b, "- Finished: %s\n", formatUnix(*run.FinishedAt))
	} else {
		fmt.Fprintf(&b, "- Finished: incomplete\n")
	}
	fmt.Fprintf(&b, "- Files: %d analyzed, %d skipped, %d failed, %d total\n",
		run.FilesDone, run.FilesSkipped, run.FilesFailed, run.FilesTotal)
	fmt.Fprintf(&b, "- Log base: %g, similarity threshold: %g\n", run.LogBase, run.Threshold)

	b.WriteString("\n## Authors\n\n")
	if len(authors) == 0 {
		b.WriteString("No attributed characters.\n")
	} else {
		total := 0
		for _, a := range authors {
			total += a.Chars
		}
		b.WriteString("| Author | Chars | Share | Files | Mean score | Max score |\n")
		b.WriteString("|---|---:|---:|---:|---:|---:|\n")
		for _, a := range authors {
			fmt.Fprintf(&b, "| %s | %d | %.1f%% | %d | %.2f | %.2f |\n",
				cell(a.Author), a.Chars, percent(a.Chars, total), a.Files, a.MeanScore, a.MaxScore)
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Chars > files[j].Chars
	})
	if len(files) > 0 {
		fmt.Fprintf(&b, "\n## Largest files\n\n")
		b.WriteString("| File | Chars | Authors | Top author | Share |\n")
		b.WriteString("|---|---:|---:|---|---:|\n")
		for _, f := range files[:min(top, len(files))] {
			t := topAuthor[f.FilePath]
			fmt.Fprintf(&b, "| %s | %d | %d | %s | %.1f%% |\n",
				cell(f.FilePath), f.Chars, f.Authors, cell(t.Author), percent(t.Chars, f.Chars))
		}
		if len(files) > top {
			fmt.Fprintf(&b, "\n%d more files not shown.\n", len(files)-top)
		}
	}

	if len(failures) > 0 {
		b.WriteString("\n## Failures\n\n")
		b.WriteString("| File | Code | Message |\n")
		b.WriteString("|---|---|---|\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(f.FilePath), f.Code, cell(f.Message))
		}
	}

	return &ReportOutput{RunID: run.ID, Markdown: b.String()}, nil
}

// cell escapes a value for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}

func formatUnix(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}
