package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/temasamo/tea-diagnosis/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("repository: not found")

// embedding is selected as text because pgx has no codec for the pgvector
// type; parseVector turns it back into []float32.
const articleColumns = "id, source_path, title, content, category, tags, publish_date, source_tag, content_hash, embedding::text, embedding_retries, created_at, updated_at"

type ArticleRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewArticleRepository(db *pgxpool.Pool, logger *zap.Logger) *ArticleRepository {
	return &ArticleRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the article or, when the source_path already exists, updates
// its content and metadata in place. The embedding and content_hash columns
// are left untouched so the sync job can detect content drift by hash. A body
// change also resets the retry counter, readmitting documents that were
// parked at the cap.
func (r *ArticleRepository) Upsert(ctx context.Context, article *models.Article) error {
	if article.ID == uuid.Nil {
		article.ID = uuid.New()
	}

	sql, args, err := upsertArticleQuery(article, time.Now().UTC()).ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func upsertArticleQuery(article *models.Article, now time.Time) squirrel.InsertBuilder {
	return squirrel.Insert("tea_articles").
		Columns("id", "source_path", "title", "content", "category", "tags", "publish_date", "source_tag", "created_at", "updated_at").
		Values(article.ID, article.SourcePath, article.Title, article.Content, article.Category, article.Tags, article.PublishDate, article.SourceTag, now, now).
		Suffix(`ON CONFLICT (source_path) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			publish_date = EXCLUDED.publish_date,
			embedding_retries = CASE
				WHEN tea_articles.content IS DISTINCT FROM EXCLUDED.content THEN 0
				ELSE tea_articles.embedding_retries
			END,
			updated_at = EXCLUDED.updated_at`).
		PlaceholderFormat(squirrel.Dollar)
}

func (r *ArticleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Article, error) {
	query := squirrel.Select(articleColumns).
		From("tea_articles").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRow(ctx, sql, args...)
	article, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return article, err
}

func (r *ArticleRepository) List(ctx context.Context, limit, offset int) ([]*models.Article, error) {
	query := squirrel.Select(articleColumns).
		From("tea_articles").
		OrderBy("updated_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar)

	return r.queryArticles(ctx, query)
}

func (r *ArticleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := squirrel.Delete("tea_articles").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUpdatedWithin returns articles touched inside the freshness window,
// most recently updated first. Articles at the retry cap are excluded; they
// stay excluded until a content change resets the counter in Upsert. The
// hash comparison itself happens in the sync service.
func (r *ArticleRepository) GetUpdatedWithin(ctx context.Context, window time.Duration, maxRetries int) ([]*models.Article, error) {
	cutoff := time.Now().UTC().Add(-window)

	query := squirrel.Select(articleColumns).
		From("tea_articles").
		Where(squirrel.GtOrEq{"updated_at": cutoff}).
		Where(squirrel.Lt{"embedding_retries": maxRetries}).
		OrderBy("updated_at DESC").
		PlaceholderFormat(squirrel.Dollar)

	return r.queryArticles(ctx, query)
}

// SetEmbedding stores the vector, the hash it was computed from, and the
// timestamp in one statement so a reader never sees an embedding paired with
// the wrong hash. The retry counter resets on success.
func (r *ArticleRepository) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32, contentHash string) error {
	query := squirrel.Update("tea_articles").
		Set("embedding", squirrel.Expr("?::vector", vectorLiteral(embedding))).
		Set("content_hash", contentHash).
		Set("embedding_retries", 0).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// IncrementRetry bumps the failed-attempt counter after an embedding failure.
func (r *ArticleRepository) IncrementRetry(ctx context.Context, id uuid.UUID) error {
	query := squirrel.Update("tea_articles").
		Set("embedding_retries", squirrel.Expr("embedding_retries + 1")).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// SearchSimilar ranks embedded articles by cosine similarity to the query
// vector using the pgvector <=> operator, keeping matches strictly above the
// threshold. At corpus sizes of a few thousand rows a sequential scan is
// fine; an ivfflat index can be added without touching this query.
func (r *ArticleRepository) SearchSimilar(ctx context.Context, embedding []float32, threshold float64, topK int) ([]models.ScoredArticle, error) {
	sql := `SELECT ` + articleColumns + `, 1 - (embedding <=> $1::vector) AS similarity
		FROM tea_articles
		WHERE embedding IS NOT NULL
		  AND 1 - (embedding <=> $1::vector) > $2
		ORDER BY similarity DESC
		LIMIT $3`

	rows, err := r.db.Query(ctx, sql, vectorLiteral(embedding), threshold, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.ScoredArticle
	for rows.Next() {
		article, similarity, err := scanScoredArticle(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, models.ScoredArticle{Article: article, Similarity: similarity})
	}

	return results, rows.Err()
}

// Recent returns the n most recently updated articles, used as the unranked
// fallback when vector search itself is failing.
func (r *ArticleRepository) Recent(ctx context.Context, n int) ([]*models.Article, error) {
	query := squirrel.Select(articleColumns).
		From("tea_articles").
		OrderBy("updated_at DESC").
		Limit(uint64(n)).
		PlaceholderFormat(squirrel.Dollar)

	return r.queryArticles(ctx, query)
}

// Stats returns total and embedded article counts for the operator view.
func (r *ArticleRepository) Stats(ctx context.Context) (total int, embedded int, err error) {
	row := r.db.QueryRow(ctx, "SELECT COUNT(*), COUNT(embedding) FROM tea_articles")
	if err := row.Scan(&total, &embedded); err != nil {
		return 0, 0, err
	}
	return total, embedded, nil
}

// CountAtRetryCap reports how many documents sit at or over the retry cap and
// are therefore excluded from candidate collection until their content changes.
func (r *ArticleRepository) CountAtRetryCap(ctx context.Context, maxRetries int) (int, error) {
	row := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM tea_articles WHERE embedding_retries >= $1", maxRetries)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *ArticleRepository) queryArticles(ctx context.Context, query squirrel.SelectBuilder) ([]*models.Article, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}

	return articles, rows.Err()
}

// vectorLiteral renders a float32 slice in pgvector's text format so it can
// be cast with ::vector without registering a custom pgx codec.
func vectorLiteral(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector decodes pgvector's "[0.1,0.2,...]" text representation.
func parseVector(s string) []float32 {
	s = strings.TrimSpace(strings.Trim(s, "[]"))
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil
		}
		vec = append(vec, float32(v))
	}
	return vec
}

func scanArticle(row pgx.Row) (*models.Article, error) {
	var article models.Article
	var embedding *string

	if err := row.Scan(
		&article.ID, &article.SourcePath, &article.Title, &article.Content,
		&article.Category, &article.Tags, &article.PublishDate, &article.SourceTag,
		&article.ContentHash, &embedding, &article.EmbeddingRetries,
		&article.CreatedAt, &article.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if embedding != nil {
		article.Embedding = parseVector(*embedding)
	}
	return &article, nil
}

func scanScoredArticle(row pgx.Row) (*models.Article, float64, error) {
	var article models.Article
	var embedding *string
	var similarity float64

	if err := row.Scan(
		&article.ID, &article.SourcePath, &article.Title, &article.Content,
		&article.Category, &article.Tags, &article.PublishDate, &article.SourceTag,
		&article.ContentHash, &embedding, &article.EmbeddingRetries,
		&article.CreatedAt, &article.UpdatedAt, &similarity,
	); err != nil {
		return nil, 0, err
	}

	if embedding != nil {
		article.Embedding = parseVector(*embedding)
	}
	return &article, similarity, nil
}
