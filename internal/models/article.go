package models

import (
	"time"

	"github.com/google/uuid"
)

// Article is a source document in the knowledge corpus. Content is the unit
// that gets hashed and embedded; Title is only prepended to the embedding
// input for extra context.
type Article struct {
	ID          uuid.UUID `db:"id"`
	SourcePath  string    `db:"source_path"` // natural key for upserts
	Title       string    `db:"title"`
	Content     string    `db:"content"`
	Category    string    `db:"category"`
	Tags        []string  `db:"tags"`
	PublishDate string    `db:"publish_date"`
	SourceTag   string    `db:"source_tag"`
	// ContentHash is the SHA-256 of Content at the last successful embedding.
	// A mismatch with the current content means the embedding is stale.
	ContentHash string    `db:"content_hash"`
	Embedding   []float32 `db:"embedding"` // nil until first embedding
	// EmbeddingRetries counts consecutive failed embedding attempts. Documents
	// at or over the cap are skipped until the content changes again.
	EmbeddingRetries int       `db:"embedding_retries"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// ScoredArticle pairs an article with its cosine similarity to a query vector.
type ScoredArticle struct {
	Article    *Article
	Similarity float64
}
