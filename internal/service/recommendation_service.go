package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/temasamo/tea-diagnosis/internal/llm"
	"github.com/temasamo/tea-diagnosis/internal/models"
	"github.com/temasamo/tea-diagnosis/pkg/config"

	"go.uber.org/zap"
)

const sommelierSystemPrompt = "あなたは茶ソムリエです。ユーザーの体調や気分に合わせて最適なお茶・甘味料・お茶菓子を提案してください。"

// excerptLength bounds how much of each retrieved article goes into the
// grounding prompt.
const excerptLength = 200

// ChatProvider is the generative side of the provider boundary.
type ChatProvider interface {
	Complete(ctx context.Context, model string, messages []llm.Message, temperature float64) (string, error)
}

// RecommendationStrategy produces a structured suggestion for a condition.
// Implementations are tried in order of capability: the RAG-backed strategy
// first, the rule table when the generative path is unavailable or fails.
type RecommendationStrategy interface {
	Name() string
	Available() bool
	Suggest(ctx context.Context, condition string, docs []models.ScoredArticle, excludeTeas []string) (*models.Suggestion, error)
}

// RecommendationService composes the final recommendation from the condition
// text and whatever retrieval produced.
type RecommendationService struct {
	chat     ChatProvider
	cfg      *config.OpenAIConfig
	rules    *RuleBasedStrategy
	strategy []RecommendationStrategy
	logger   *zap.Logger
}

func NewRecommendationService(chat ChatProvider, cfg *config.OpenAIConfig, logger *zap.Logger) *RecommendationService {
	rules := NewRuleBasedStrategy()
	svc := &RecommendationService{
		chat:   chat,
		cfg:    cfg,
		rules:  rules,
		logger: logger,
	}
	svc.strategy = []RecommendationStrategy{
		&ragStrategy{svc: svc},
		rules,
	}
	return svc
}

// ComposeText builds the unstructured quick-diagnosis answer. When retrieval
// found nothing the prompt says so and the model still answers from general
// knowledge; when even the generative call fails the rule table answers.
func (r *RecommendationService) ComposeText(ctx context.Context, condition string, docs []models.ScoredArticle) string {
	prompt := buildGroundedPrompt(condition, docs)

	text, err := r.chat.Complete(ctx, r.cfg.ComposeModel, []llm.Message{
		{Role: "system", Content: sommelierSystemPrompt},
		{Role: "user", Content: prompt},
	}, 0.7)
	if err != nil {
		r.logger.Warn("Compose call failed, answering from rule table", zap.Error(err))
		return r.rules.RecommendText(condition)
	}

	text = sanitizeUTF8(strings.TrimSpace(text))
	if text == "" {
		return r.rules.RecommendText(condition)
	}
	return text
}

// ComposeSuggestion returns a structured suggestion satisfying the full
// field contract. It never returns a partial record: any failure along the
// strategy chain ends at the rule table, which always completes.
func (r *RecommendationService) ComposeSuggestion(ctx context.Context, condition string, docs []models.ScoredArticle, excludeTeas []string) *models.Suggestion {
	for _, strat := range r.strategy {
		if !strat.Available() {
			continue
		}
		suggestion, err := strat.Suggest(ctx, condition, docs, excludeTeas)
		if err != nil {
			r.logger.Warn("Recommendation strategy failed",
				zap.String("strategy", strat.Name()),
				zap.Error(err),
			)
			continue
		}
		if suggestion.Complete() {
			return suggestion
		}
		r.logger.Warn("Strategy returned incomplete suggestion, trying next",
			zap.String("strategy", strat.Name()),
		)
	}

	// The rule strategy never errors, so this is unreachable in practice;
	// keep a hard default anyway.
	suggestion, _ := r.rules.Suggest(ctx, condition, docs, excludeTeas)
	return suggestion
}

// ragStrategy asks the generative model for a JSON suggestion grounded in
// the retrieved excerpts.
type ragStrategy struct {
	svc *RecommendationService
}

func (s *ragStrategy) Name() string { return "rag" }

func (s *ragStrategy) Available() bool { return s.svc.cfg.APIKey != "" }

func (s *ragStrategy) Suggest(ctx context.Context, condition string, docs []models.ScoredArticle, excludeTeas []string) (*models.Suggestion, error) {
	var prompt strings.Builder
	prompt.WriteString("以下のユーザーの診断文と参考記事を基に、最適なお茶を提案してください。\n\n")
	prompt.WriteString("ユーザーの診断文:\n")
	prompt.WriteString(condition)
	prompt.WriteString("\n\n参考記事:\n")
	prompt.WriteString(formatExcerpts(docs))
	if len(excludeTeas) > 0 {
		fmt.Fprintf(&prompt, "\n\n既に提案済みのお茶（別の種類を選んでください）: %s", strings.Join(excludeTeas, "、"))
	}
	prompt.WriteString(`

次のJSONだけを返してください（他のテキストは不要）:
{"tea": "お茶の種類", "reason": "理由", "sweetener": "甘味料", "snack": "お茶菓子", "timing": "おすすめのタイミング", "brewing": "淹れ方"}`)

	raw, err := s.svc.chat.Complete(ctx, s.svc.cfg.ChatModel, []llm.Message{
		{Role: "system", Content: sommelierSystemPrompt},
		{Role: "user", Content: prompt.String()},
	}, 0.7)
	if err != nil {
		return nil, err
	}

	suggestion, err := parseSuggestion(raw)
	if err != nil {
		// Keep the raw response in the log for diagnosis.
		s.svc.logger.Warn("Malformed structured suggestion",
			zap.Error(err),
			zap.String("raw", truncate(raw, 500)),
		)
		return nil, err
	}

	for _, tea := range excludeTeas {
		if suggestion.Tea == tea {
			return nil, fmt.Errorf("suggestion repeats tea %q", tea)
		}
	}

	return suggestion, nil
}

// parseSuggestion extracts the JSON object from a model response that may
// wrap it in prose or a code fence, then validates the field contract.
func parseSuggestion(raw string) (*models.Suggestion, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON object in response")
	}

	var suggestion models.Suggestion
	if err := json.Unmarshal([]byte(raw[start:end+1]), &suggestion); err != nil {
		return nil, fmt.Errorf("decode suggestion: %w", err)
	}

	suggestion.Tea = sanitizeUTF8(strings.TrimSpace(suggestion.Tea))
	suggestion.Reason = sanitizeUTF8(strings.TrimSpace(suggestion.Reason))
	suggestion.Sweetener = sanitizeUTF8(strings.TrimSpace(suggestion.Sweetener))
	suggestion.Snack = sanitizeUTF8(strings.TrimSpace(suggestion.Snack))
	suggestion.Timing = sanitizeUTF8(strings.TrimSpace(suggestion.Timing))
	suggestion.Brewing = sanitizeUTF8(strings.TrimSpace(suggestion.Brewing))

	if !suggestion.Complete() {
		return nil, errors.New("suggestion is missing required fields")
	}
	return &suggestion, nil
}

func buildGroundedPrompt(condition string, docs []models.ScoredArticle) string {
	var b strings.Builder
	b.WriteString("あなたは茶ソムリエです。以下のユーザーの診断文と参考記事を基に、最適なお茶を自然な文章で提案してください。\n\n")
	b.WriteString("ユーザーの診断文:\n")
	b.WriteString(condition)
	b.WriteString("\n\n参考記事:\n")
	b.WriteString(formatExcerpts(docs))
	b.WriteString(`

以下の点を含めて自然な文章で回答してください：
- おすすめのお茶の種類とブレンド
- 甘味料の提案
- お茶菓子の提案
- なぜこの組み合わせが良いかの理由

回答は日本語で、実用的で具体的な提案を自然な文章形式で行ってください。`)
	return b.String()
}

func formatExcerpts(docs []models.ScoredArticle) string {
	if len(docs) == 0 {
		return "（関連記事が見つかりませんでした）"
	}

	var b strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&b, "- %s: %s\n", doc.Article.Title, Excerpt(doc.Article.Content, excerptLength))
	}
	return b.String()
}

// Excerpt returns the first n runes of text with an ellipsis when trimmed.
func Excerpt(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
