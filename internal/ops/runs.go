package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/lineage/internal/db"
	"github.com/hpungsan/lineage/internal/errors"
)

// ListRunsInput contains parameters for the ListRuns operation.
type ListRunsInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListRunsOutput contains the result of the ListRuns operation.
type ListRunsOutput struct {
	Items      []db.Run   `json:"items"`
	Pagination Pagination `json:"pagination"`
	Sort       string     `json:"sort"`
}

// ListRuns returns stored runs, newest first.
func ListRuns(ctx context.Context, database *sql.DB, input ListRunsInput) (*ListRunsOutput, error) {
	limit, offset := page(input.Limit, input.Offset)

	runs, total, err := db.ListRuns(ctx, database, limit, offset)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []db.Run{}
	}

	return &ListRunsOutput{
		Items:      runs,
		Pagination: paginate(limit, offset, len(runs), total),
		Sort:       "started_at_desc",
	}, nil
}

// LatestRun returns the most recently started run.
func LatestRun(ctx context.Context, database *sql.DB) (*db.Run, error) {
	return db.LatestRun(ctx, database)
}

// GetRun returns one run by ID, or the latest run when id is blank.
func GetRun(ctx context.Context, database *sql.DB, id string) (*db.Run, error) {
	return resolveRun(ctx, database, id)
}

// DeleteRunInput contains parameters for the DeleteRun operation.
type DeleteRunInput struct {
	RunID string // required
}

// DeleteRunOutput contains the result of the DeleteRun operation.
type DeleteRunOutput struct {
	RunID   string `json:"run_id"`
	Deleted bool   `json:"deleted"`
}

// DeleteRun removes a run and all of its stored results.
func DeleteRun(ctx context.Context, database *sql.DB, input DeleteRunInput) (*DeleteRunOutput, error) {
	id := strings.TrimSpace(input.RunID)
	if id == "" {
		return nil, errors.NewInvalidRequest("run_id is required")
	}
	if err := db.DeleteRun(ctx, database, id); err != nil {
		return nil, err
	}
	return &DeleteRunOutput{RunID: id, Deleted: true}, nil
}
