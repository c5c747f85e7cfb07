package ops

import (
	"context"
	"database/sql"
	"math"
	"strings"

	"github.com/hpungsan/lineage/internal/db"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	DefaultReportTop = 20
	MaxReportTop     = 500
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// page applies limit defaults and bounds and makes offset non-negative.
func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}

func paginate(limit, offset, returned, total int) Pagination {
	return Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+returned < total,
		Total:   total,
	}
}

// resolveRun loads the run with the given ID, or the latest run when id is
// blank.
func resolveRun(ctx context.Context, database *sql.DB, id string) (*db.Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return db.LatestRun(ctx, database)
	}
	return db.GetRun(ctx, database, id)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
