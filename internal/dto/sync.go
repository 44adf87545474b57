package dto

type LearnRequest struct {
	ForceUpdate bool `json:"forceUpdate"`
}

type LearnResponse struct {
	Message          string   `json:"message"`
	ProcessedCount   int      `json:"processedCount"`
	SuccessCount     int      `json:"successCount"`
	ErrorCount       int      `json:"errorCount"`
	FailedArticleIDs []string `json:"failedArticleIds,omitempty"`
}

type EmbeddingRunResponse struct {
	ID               string   `json:"id"`
	ExecutionKind    string   `json:"execution_kind"`
	StartedAt        string   `json:"started_at"`
	CompletedAt      *string  `json:"completed_at"`
	TotalCandidates  int      `json:"total_candidates"`
	SuccessCount     int      `json:"success_count"`
	ErrorCount       int      `json:"error_count"`
	FailedArticleIDs []string `json:"failed_article_ids"`
	ErrorSummary     *string  `json:"error_summary"`
}
