package models

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionKind string

const (
	ExecutionKindManual    ExecutionKind = "manual"
	ExecutionKindScheduled ExecutionKind = "scheduled"
)

// EmbeddingRun is one row of the append-only sync run log. CompletedAt stays
// nil while the run is in flight; a run found with a nil CompletedAt long
// after it started is considered dangling and closed out by the next run.
type EmbeddingRun struct {
	ID               uuid.UUID     `db:"id"`
	ExecutionKind    ExecutionKind `db:"execution_kind"`
	StartedAt        time.Time     `db:"started_at"`
	CompletedAt      *time.Time    `db:"completed_at"`
	TotalCandidates  int           `db:"total_candidates"`
	SuccessCount     int           `db:"success_count"`
	ErrorCount       int           `db:"error_count"`
	FailedArticleIDs []uuid.UUID   `db:"failed_article_ids"`
	ErrorSummary     *string       `db:"error_summary"`
}
