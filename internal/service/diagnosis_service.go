package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/temasamo/tea-diagnosis/internal/dto"
	"github.com/temasamo/tea-diagnosis/internal/llm"
	"github.com/temasamo/tea-diagnosis/internal/models"
	"github.com/temasamo/tea-diagnosis/pkg/config"

	"go.uber.org/zap"
)

// ErrEmptyInput marks a request the handler should reject with 400.
var ErrEmptyInput = errors.New("diagnosis: empty input")

// maxSuggestions is the per-session suggestion cap of the guided flow.
// After the third suggestion the conversation moves to its closing turn.
const maxSuggestions = 3

var endPhrases = []string{
	"もう大丈夫", "大丈夫です", "終わり", "結構です", "ありがとう",
	"十分です", "これでいい", "大丈夫", "ありません", "特にない", "ない",
}

var followupQuestions = []string{
	"普段はカフェインの入ったお茶をよく飲まれますか？",
	"温かいお茶と冷たいお茶、どちらがお好みですか？",
	"香りの強いお茶はお好きですか？",
	"お茶と一緒に甘いものは召し上がりますか？",
	"一日の中でお茶を飲むのはいつが多いですか？",
}

type DiagnosisService struct {
	chat       ChatProvider
	embeddings *EmbeddingService
	search     *SearchService
	composer   *RecommendationService
	cfg        *config.OpenAIConfig
	logger     *zap.Logger
}

func NewDiagnosisService(
	chat ChatProvider,
	embeddings *EmbeddingService,
	search *SearchService,
	composer *RecommendationService,
	cfg *config.OpenAIConfig,
	logger *zap.Logger,
) *DiagnosisService {
	return &DiagnosisService{
		chat:       chat,
		embeddings: embeddings,
		search:     search,
		composer:   composer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Diagnose handles one turn of the guided conversation. The client carries
// the turn state; nothing is persisted between requests.
func (s *DiagnosisService) Diagnose(ctx context.Context, req *dto.DiagnoseRequest) (*dto.DiagnoseResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	state := req.TurnState
	resp := &dto.DiagnoseResponse{TurnState: state}

	if containsEndPhrase(text) {
		if state.SuggestionCount >= maxSuggestions {
			resp.AssistantMessages = []string{"承知いたしました。またのご来店をお待ちしております。お疲れ様でした。"}
			resp.End = true
			return resp, nil
		}
		// Too early to close: the session has not produced a suggestion set.
		resp.AssistantMessages = []string{"もう少し詳しくお聞かせください。最適なお茶をご提案させていただきますので。"}
		return resp, nil
	}

	condition := buildCondition(text, req.History)
	docs := s.retrieve(ctx, condition)

	suggestion := s.composer.ComposeSuggestion(ctx, condition, docs, state.SuggestedTeas)
	state.SuggestionCount++
	state.SuggestedTeas = append(state.SuggestedTeas, suggestion.Tea)

	resp.Suggestion = suggestion
	resp.AssistantMessages = []string{empathyMessage(text)}

	if state.SuggestionCount < maxSuggestions {
		if q := nextFollowup(state.AskedFollowups); q != "" {
			state.AskedFollowups = append(state.AskedFollowups, q)
			resp.FollowupQuestion = &q
		}
	} else {
		closing := "他にも気になることがあればお聞かせください。なければ「大丈夫」とお伝えくださいね。"
		resp.FollowupQuestion = &closing
	}

	resp.TurnState = state
	return resp, nil
}

// QuickDiagnose runs the answer-map flow: synthesize a condition sentence,
// embed it, retrieve, compose. Provider failures degrade step by step and
// never surface to the caller.
func (s *DiagnosisService) QuickDiagnose(ctx context.Context, req *dto.QuickDiagnosisRequest) (*dto.QuickDiagnosisResponse, error) {
	if !hasAnswers(req.Answers) {
		return nil, ErrEmptyInput
	}

	condition := s.synthesizeCondition(ctx, req.Answers)
	docs := s.retrieve(ctx, condition)
	recommendation := s.composer.ComposeText(ctx, condition, docs)

	resp := &dto.QuickDiagnosisResponse{
		Recommendation: recommendation,
		Condition:      condition,
		Matches:        len(docs),
		Articles:       make([]dto.ArticleRef, 0, len(docs)),
	}
	for _, doc := range docs {
		resp.Articles = append(resp.Articles, dto.ArticleRef{
			ID:      doc.Article.ID.String(),
			Title:   doc.Article.Title,
			Excerpt: Excerpt(doc.Article.Content, 100),
		})
	}

	return resp, nil
}

// retrieve embeds the condition and walks the similarity search. Any failure
// just means composing without grounding context.
func (s *DiagnosisService) retrieve(ctx context.Context, condition string) []models.ScoredArticle {
	vector, err := s.embeddings.EmbedText(ctx, condition)
	if err != nil {
		s.logger.Warn("Query embedding failed, composing without retrieval", zap.Error(err))
		return nil
	}

	docs, err := s.search.Search(ctx, vector)
	if err != nil {
		s.logger.Warn("Similarity search failed, composing without retrieval", zap.Error(err))
		return nil
	}
	return docs
}

// synthesizeCondition turns the raw answer map into one natural Japanese
// sentence; the joined answers are the fallback when the call fails.
func (s *DiagnosisService) synthesizeCondition(ctx context.Context, answers map[string]string) string {
	raw := joinAnswers(answers)

	encoded, err := json.MarshalIndent(answers, "", "  ")
	if err != nil {
		return raw
	}

	prompt := fmt.Sprintf(`以下のユーザーの質問と回答から、自然な日本語で診断文を生成してください。

質問と回答:
%s

診断文の例:
- 「あなたは疲労気味で、目の疲れも感じており、リラックスしたい気分です」
- 「疲れている状態で、胃の調子を気にされており、集中力を高めたいと考えています」

診断文は、ユーザーの状態や希望を自然な文章で表現してください。簡潔で具体的な表現にしてください。`, encoded)

	condition, err := s.chat.Complete(ctx, s.cfg.ChatModel, []llm.Message{
		{Role: "system", Content: "あなたは茶ソムリエです。ユーザーの質問と回答から、自然な日本語で診断文を生成してください。"},
		{Role: "user", Content: prompt},
	}, 0.3)
	if err != nil {
		s.logger.Warn("Condition synthesis failed, using raw answers", zap.Error(err))
		return raw
	}

	condition = strings.TrimSpace(condition)
	if condition == "" {
		return raw
	}
	return sanitizeUTF8(condition)
}

// SeasonalGreeting returns the time-and-season aware opener shown when a
// guided session starts.
func SeasonalGreeting(now time.Time) string {
	h := now.Hour()
	var timeOfDay string
	switch {
	case h >= 5 && h < 12:
		timeOfDay = "おはようございます"
	case h >= 12 && h < 17:
		timeOfDay = "こんにちは"
	case h >= 17 && h < 23:
		timeOfDay = "こんばんは"
	default:
		timeOfDay = "遅くまでお疲れさまです"
	}

	m := int(now.Month())
	var hint string
	switch {
	case m >= 3 && m <= 5:
		hint = "春の空気を少し感じますね"
	case m >= 6 && m <= 8:
		hint = "暑さに少し疲れやすい時期ですね"
	case m >= 9 && m <= 11:
		hint = "落ち着いた空気を感じる季節ですね"
	default:
		hint = "体が冷えやすい季節ですね"
	}

	return timeOfDay + "。" + hint
}

func buildCondition(text string, history []dto.ChatMessage) string {
	var parts []string
	// Recent user turns give the composer a little session context.
	start := len(history) - 6
	if start < 0 {
		start = 0
	}
	for _, msg := range history[start:] {
		if msg.Role == "user" && strings.TrimSpace(msg.Text) != "" {
			parts = append(parts, strings.TrimSpace(msg.Text))
		}
	}
	parts = append(parts, text)
	return strings.Join(parts, " ")
}

func empathyMessage(text string) string {
	if isLowEnergy(text) {
		return "お疲れのご様子ですね。まずはやさしい一杯でほっとしましょう。"
	}
	if strings.Contains(text, "眠") || strings.Contains(text, "リラックス") {
		return "ゆったりしたい気分なのですね。"
	}
	return "なるほど、承知いたしました。"
}

func isLowEnergy(text string) bool {
	for _, kw := range []string{"しんど", "つら", "疲れ", "だる", "きつ", "元気ない", "やる気", "無理", "重い"} {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func containsEndPhrase(text string) bool {
	for _, p := range endPhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func nextFollowup(asked []string) string {
	for _, q := range followupQuestions {
		seen := false
		for _, a := range asked {
			if a == q {
				seen = true
				break
			}
		}
		if !seen {
			return q
		}
	}
	return ""
}

func hasAnswers(answers map[string]string) bool {
	for _, v := range answers {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func joinAnswers(answers map[string]string) string {
	values := make([]string, 0, len(answers))
	for _, v := range answers {
		if strings.TrimSpace(v) != "" {
			values = append(values, strings.TrimSpace(v))
		}
	}
	return strings.Join(values, " ")
}
