package dto

type ArticleResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	PublishDate string   `json:"publish_date"`
	SourceTag   string   `json:"source_tag"`
	Embedded    bool     `json:"embedded"`
	UpdatedAt   string   `json:"updated_at"`
}

type ArticleDetailResponse struct {
	ArticleResponse
	Content string `json:"content"`
}

type StatsResponse struct {
	ArticlesCount  int     `json:"articles_count"`
	EmbeddedCount  int     `json:"embedded_count"`
	LastSyncedAt   *string `json:"last_synced_at"`
	LastSyncErrors int     `json:"last_sync_errors"`
}
