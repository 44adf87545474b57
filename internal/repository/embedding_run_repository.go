package repository

import (
	"context"
	"errors"
	"time"

	"github.com/temasamo/tea-diagnosis/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const runColumns = "id, execution_kind, started_at, completed_at, total_candidates, success_count, error_count, failed_article_ids, error_summary"

type EmbeddingRunRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewEmbeddingRunRepository(db *pgxpool.Pool, logger *zap.Logger) *EmbeddingRunRepository {
	return &EmbeddingRunRepository{
		db:     db,
		logger: logger,
	}
}

// Create opens a new run row with completed_at left NULL.
func (r *EmbeddingRunRepository) Create(ctx context.Context, kind models.ExecutionKind) (*models.EmbeddingRun, error) {
	run := &models.EmbeddingRun{
		ID:            uuid.New(),
		ExecutionKind: kind,
		StartedAt:     time.Now().UTC(),
	}

	query := squirrel.Insert("embedding_generation_logs").
		Columns("id", "execution_kind", "started_at", "total_candidates", "success_count", "error_count", "failed_article_ids").
		Values(run.ID, run.ExecutionKind, run.StartedAt, 0, 0, 0, []uuid.UUID{}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return nil, err
	}

	return run, nil
}

// Complete writes the final counts and stamps completed_at. Only the owning
// run calls this; rows are never deleted.
func (r *EmbeddingRunRepository) Complete(ctx context.Context, run *models.EmbeddingRun) error {
	now := time.Now().UTC()
	run.CompletedAt = &now

	query := squirrel.Update("embedding_generation_logs").
		Set("completed_at", now).
		Set("total_candidates", run.TotalCandidates).
		Set("success_count", run.SuccessCount).
		Set("error_count", run.ErrorCount).
		Set("failed_article_ids", run.FailedArticleIDs).
		Set("error_summary", run.ErrorSummary).
		Where(squirrel.Eq{"id": run.ID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// CloseDangling marks runs that never completed and started before the
// cutoff as failed, so a crashed run does not stay open forever.
func (r *EmbeddingRunRepository) CloseDangling(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	summary := "run did not complete; closed as dangling by a later run"

	query := squirrel.Update("embedding_generation_logs").
		Set("completed_at", time.Now().UTC()).
		Set("error_summary", summary).
		Where("completed_at IS NULL").
		Where(squirrel.Lt{"started_at": cutoff}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}

	closed := int(tag.RowsAffected())
	if closed > 0 {
		r.logger.Warn("Closed dangling embedding runs", zap.Int("count", closed))
	}
	return closed, nil
}

// ListRecent returns the newest runs first for the operator history view.
func (r *EmbeddingRunRepository) ListRecent(ctx context.Context, limit int) ([]*models.EmbeddingRun, error) {
	query := squirrel.Select(runColumns).
		From("embedding_generation_logs").
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.EmbeddingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// LatestCompleted returns the most recent finished run, or ErrNotFound.
func (r *EmbeddingRunRepository) LatestCompleted(ctx context.Context) (*models.EmbeddingRun, error) {
	query := squirrel.Select(runColumns).
		From("embedding_generation_logs").
		Where("completed_at IS NOT NULL").
		OrderBy("completed_at DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	run, err := scanRun(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func scanRun(row pgx.Row) (*models.EmbeddingRun, error) {
	var run models.EmbeddingRun
	if err := row.Scan(
		&run.ID, &run.ExecutionKind, &run.StartedAt, &run.CompletedAt,
		&run.TotalCandidates, &run.SuccessCount, &run.ErrorCount,
		&run.FailedArticleIDs, &run.ErrorSummary,
	); err != nil {
		return nil, err
	}
	return &run, nil
}
