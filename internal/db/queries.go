package db

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/hpungsan/lineage/internal/errors"
)

// insertBatch bounds the rows per INSERT statement so large files stay under
// SQLite's bound-parameter limit.
const insertBatch = 200

var runColumns = []string{
	"id", "repo_path", "head", "log_base", "threshold", "started_at", "finished_at",
	"files_total", "files_done", "files_skipped", "files_failed",
}

// InsertRun stores a new run.
func InsertRun(ctx context.Context, db *sql.DB, r *Run) error {
	query, args, err := sq.
		Insert("runs").
		Columns(runColumns...).
		Values(r.ID, r.RepoPath, r.Head, r.LogBase, r.Threshold, r.StartedAt, toNullInt64(r.FinishedAt),
			r.FilesTotal, r.FilesDone, r.FilesSkipped, r.FilesFailed).
		ToSql()
	if err != nil {
		return errors.NewInternal(err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// FinishRun records the final counters of a run.
func FinishRun(ctx context.Context, db *sql.DB, r *Run) error {
	query, args, err := sq.
		Update("runs").
		Set("finished_at", toNullInt64(r.FinishedAt)).
		Set("files_total", r.FilesTotal).
		Set("files_done", r.FilesDone).
		Set("files_skipped", r.FilesSkipped).
		Set("files_failed", r.FilesFailed).
		Where(sq.Eq{"id": r.ID}).
		ToSql()
	if err != nil {
		return errors.NewInternal(err)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("run", r.ID)
	}
	return nil
}

// GetRun retrieves a run by its ULID.
func GetRun(ctx context.Context, db *sql.DB, id string) (*Run, error) {
	query, args, err := sq.
		Select(runColumns...).
		From("runs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	r, err := scanRun(db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("run", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// LatestRun retrieves the most recently started run.
func LatestRun(ctx context.Context, db *sql.DB) (*Run, error) {
	query, args, err := sq.
		Select(runColumns...).
		From("runs").
		OrderBy("started_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	r, err := scanRun(db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("run", "latest")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListRuns returns runs newest first, plus the total count.
func ListRuns(ctx context.Context, db *sql.DB, limit, offset int) ([]Run, int, error) {
	total, err := count(ctx, db, sq.Select("COUNT(*)").From("runs"))
	if err != nil {
		return nil, 0, err
	}

	query, args, err := sq.
		Select(runColumns...).
		From("runs").
		OrderBy("started_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return runs, total, nil
}

// DeleteRun removes a run and everything recorded for it.
func DeleteRun(ctx context.Context, db *sql.DB, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	for _, table := range []string{"file_scores", "revision_scores", "commits", "timings", "failures"} {
		query, args, err := sq.Delete(table).Where(sq.Eq{"run_id": id}).ToSql()
		if err != nil {
			return errors.NewInternal(err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return errors.NewInternal(err)
		}
	}

	query, args, err := sq.Delete("runs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.NewInternal(err)
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("run", id)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// SaveFileResult stores the scores, commit log and timing of one file in a
// single transaction.
func SaveFileResult(ctx context.Context, db *sql.DB, runID string, res *FileResult) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	scores := make([][]any, 0, len(res.Scores))
	for _, s := range res.Scores {
		scores = append(scores, []any{runID, res.FilePath, s.Author, s.Chars, s.Score})
	}
	if err := insertRows(ctx, tx, "file_scores",
		[]string{"run_id", "file_path", "author", "chars", "score"}, scores); err != nil {
		return errors.NewInternal(err)
	}

	revisions := make([][]any, 0, len(res.Revisions))
	for _, s := range res.Revisions {
		revisions = append(revisions, []any{runID, res.FilePath, s.Seq, s.CommitHash, s.Author, s.Chars, s.Score})
	}
	if err := insertRows(ctx, tx, "revision_scores",
		[]string{"run_id", "file_path", "seq", "commit_hash", "author", "chars", "score"}, revisions); err != nil {
		return errors.NewInternal(err)
	}

	commits := make([][]any, 0, len(res.Commits))
	for _, c := range res.Commits {
		commits = append(commits, []any{runID, res.FilePath, c.Seq, c.Hash,
			c.AuthorName, c.AuthorEmail, c.AuthorTime,
			c.CommitterName, c.CommitterEmail, c.CommitterTime, c.Path})
	}
	if err := insertRows(ctx, tx, "commits",
		[]string{"run_id", "file_path", "seq", "hash", "author_name", "author_email", "author_time",
			"committer_name", "committer_email", "committer_time", "path"}, commits); err != nil {
		return errors.NewInternal(err)
	}

	t := res.Timing
	if err := insertRows(ctx, tx, "timings",
		[]string{"run_id", "file_path", "revisions", "avg_lines", "duration_ms"},
		[][]any{{runID, res.FilePath, t.Revisions, t.AvgLines, t.DurationMs}}); err != nil {
		return errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// SaveFailure records why a file of a run was not analyzed.
func SaveFailure(ctx context.Context, db *sql.DB, runID string, f Failure) error {
	query, args, err := sq.
		Insert("failures").
		Columns("run_id", "file_path", "code", "message").
		Values(runID, f.FilePath, f.Code, f.Message).
		Suffix("ON CONFLICT(run_id, file_path) DO UPDATE SET code = excluded.code, message = excluded.message").
		ToSql()
	if err != nil {
		return errors.NewInternal(err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListScores returns final file scores ordered by file, then most characters.
func ListScores(ctx context.Context, db *sql.DB, f ScoreFilter) ([]FileScore, int, error) {
	conds := sq.Eq{"run_id": f.RunID}
	if f.File != "" {
		conds["file_path"] = f.File
	}
	if f.Author != "" {
		conds["author"] = f.Author
	}

	total, err := count(ctx, db, sq.Select("COUNT(*)").From("file_scores").Where(conds))
	if err != nil {
		return nil, 0, err
	}

	q := sq.
		Select("file_path", "author", "chars", "score").
		From("file_scores").
		Where(conds).
		OrderBy("file_path ASC", "chars DESC", "author ASC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit)).Offset(uint64(f.Offset))
	}

	rows, err := selectRows(ctx, db, q)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var scores []FileScore
	for rows.Next() {
		var s FileScore
		if err := rows.Scan(&s.FilePath, &s.Author, &s.Chars, &s.Score); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return scores, total, nil
}

// ListRevisionScores returns per-revision scores in commit order.
func ListRevisionScores(ctx context.Context, db *sql.DB, runID, file string) ([]RevisionScore, error) {
	conds := sq.Eq{"run_id": runID}
	if file != "" {
		conds["file_path"] = file
	}
	rows, err := selectRows(ctx, db, sq.
		Select("file_path", "seq", "commit_hash", "author", "chars", "score").
		From("revision_scores").
		Where(conds).
		OrderBy("file_path ASC", "seq ASC", "chars DESC", "author ASC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RevisionScore
	for rows.Next() {
		var s RevisionScore
		if err := rows.Scan(&s.FilePath, &s.Seq, &s.CommitHash, &s.Author, &s.Chars, &s.Score); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// ListCommits returns the commit log of a run's files, oldest first per file.
// An empty file selects every file.
func ListCommits(ctx context.Context, db *sql.DB, runID, file string) ([]Commit, error) {
	conds := sq.Eq{"run_id": runID}
	if file != "" {
		conds["file_path"] = file
	}
	rows, err := selectRows(ctx, db, sq.
		Select("file_path", "seq", "hash", "author_name", "author_email", "author_time",
			"committer_name", "committer_email", "committer_time", "path").
		From("commits").
		Where(conds).
		OrderBy("file_path ASC", "seq ASC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Commit
	for rows.Next() {
		var c Commit
		if err := rows.Scan(&c.FilePath, &c.Seq, &c.Hash, &c.AuthorName, &c.AuthorEmail, &c.AuthorTime,
			&c.CommitterName, &c.CommitterEmail, &c.CommitterTime, &c.Path); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// ListTimings returns per-file timings ordered by file.
func ListTimings(ctx context.Context, db *sql.DB, runID string) ([]Timing, error) {
	rows, err := selectRows(ctx, db, sq.
		Select("file_path", "revisions", "avg_lines", "duration_ms").
		From("timings").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("file_path ASC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Timing
	for rows.Next() {
		var t Timing
		if err := rows.Scan(&t.FilePath, &t.Revisions, &t.AvgLines, &t.DurationMs); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// ListFailures returns the files of a run that could not be analyzed.
func ListFailures(ctx context.Context, db *sql.DB, runID string) ([]Failure, error) {
	rows, err := selectRows(ctx, db, sq.
		Select("file_path", "code", "message").
		From("failures").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("file_path ASC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.FilePath, &f.Code, &f.Message); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// SummarizeAuthors aggregates final scores per author, most characters first.
func SummarizeAuthors(ctx context.Context, db *sql.DB, runID string) ([]AuthorSummary, error) {
	rows, err := selectRows(ctx, db, sq.
		Select("author", "SUM(chars)", "COUNT(DISTINCT file_path)", "AVG(score)", "MAX(score)").
		From("file_scores").
		Where(sq.Eq{"run_id": runID}).
		GroupBy("author").
		OrderBy("SUM(chars) DESC", "author ASC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuthorSummary
	for rows.Next() {
		var a AuthorSummary
		if err := rows.Scan(&a.Author, &a.Chars, &a.Files, &a.MeanScore, &a.MaxScore); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// SummarizeFiles aggregates final scores per file, ordered by path.
func SummarizeFiles(ctx context.Context, db *sql.DB, runID string) ([]FileSummary, error) {
	rows, err := selectRows(ctx, db, sq.
		Select("file_path", "SUM(chars)", "COUNT(*)").
		From("file_scores").
		Where(sq.Eq{"run_id": runID}).
		GroupBy("file_path").
		OrderBy("file_path ASC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileSummary
	for rows.Next() {
		var f FileSummary
		if err := rows.Scan(&f.FilePath, &f.Chars, &f.Authors); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// insertRows writes rows into table in batches.
func insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	for start := 0; start < len(rows); start += insertBatch {
		end := min(start+insertBatch, len(rows))
		q := sq.Insert(table).Columns(columns...)
		for _, row := range rows[start:end] {
			q = q.Values(row...)
		}
		stmt, args, err := q.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
	}
	return nil
}

// selectRows runs a select builder.
func selectRows(ctx context.Context, db *sql.DB, q sq.SelectBuilder) (*sql.Rows, error) {
	stmt, args, err := q.ToSql()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rows, nil
}

// count runs a COUNT(*) builder.
func count(ctx context.Context, db *sql.DB, q sq.SelectBuilder) (int, error) {
	stmt, args, err := q.ToSql()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	var n int
	if err := db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a Run struct.
func scanRun(row rowScanner) (*Run, error) {
	var (
		r          Run
		finishedAt sql.NullInt64
	)
	err := row.Scan(
		&r.ID, &r.RepoPath, &r.Head, &r.LogBase, &r.Threshold, &r.StartedAt, &finishedAt,
		&r.FilesTotal, &r.FilesDone, &r.FilesSkipped, &r.FilesFailed,
	)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Int64
	}
	return &r, nil
}

// toNullInt64 converts a *int64 to sql.NullInt64.
func toNullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
