package service

import (
	"context"
	"errors"
	"testing"

	"github.com/temasamo/tea-diagnosis/internal/llm"
	"github.com/temasamo/tea-diagnosis/internal/models"
	"github.com/temasamo/tea-diagnosis/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubChat scripts chat-completion responses in call order.
type stubChat struct {
	responses []string
	err       error
	calls     int
	prompts   []string
	models    []string
}

func (s *stubChat) Complete(_ context.Context, model string, messages []llm.Message, _ float64) (string, error) {
	s.calls++
	s.models = append(s.models, model)
	if len(messages) > 0 {
		s.prompts = append(s.prompts, messages[len(messages)-1].Content)
	}
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", llm.ErrEmptyResult
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func testOpenAIConfig() *config.OpenAIConfig {
	return &config.OpenAIConfig{
		APIKey:       "test-key",
		ChatModel:    "gpt-4o-mini",
		ComposeModel: "gpt-4",
	}
}

const validSuggestionJSON = `{"tea": "カモミール", "reason": "リラックスに向いています", "sweetener": "はちみつ", "snack": "ようかん", "timing": "就寝前", "brewing": "熱湯で3分"}`

func TestComposeSuggestionUsesModelResponse(t *testing.T) {
	chat := &stubChat{responses: []string{validSuggestionJSON}}
	svc := NewRecommendationService(chat, testOpenAIConfig(), zap.NewNop())

	suggestion := svc.ComposeSuggestion(context.Background(), "眠れない", nil, nil)
	require.NotNil(t, suggestion)
	assert.Equal(t, "カモミール", suggestion.Tea)
	assert.True(t, suggestion.Complete())
}

func TestComposeSuggestionFallsBackOnMalformedJSON(t *testing.T) {
	chat := &stubChat{responses: []string{"すみません、JSONでは答えられません。"}}
	svc := NewRecommendationService(chat, testOpenAIConfig(), zap.NewNop())

	suggestion := svc.ComposeSuggestion(context.Background(), "眠れない夜が続いています", nil, nil)
	require.NotNil(t, suggestion)
	// The fallback record is always complete, never partial.
	assert.True(t, suggestion.Complete())
	assert.Equal(t, "カモミール", suggestion.Tea)
}

func TestComposeSuggestionFallsBackOnProviderError(t *testing.T) {
	chat := &stubChat{err: llm.ErrUnavailable}
	svc := NewRecommendationService(chat, testOpenAIConfig(), zap.NewNop())

	suggestion := svc.ComposeSuggestion(context.Background(), "集中して勉強したい", nil, nil)
	require.NotNil(t, suggestion)
	assert.True(t, suggestion.Complete())
	assert.Equal(t, "煎茶", suggestion.Tea)
}

func TestComposeSuggestionSkipsRAGWithoutAPIKey(t *testing.T) {
	chat := &stubChat{responses: []string{validSuggestionJSON}}
	cfg := testOpenAIConfig()
	cfg.APIKey = ""
	svc := NewRecommendationService(chat, cfg, zap.NewNop())

	suggestion := svc.ComposeSuggestion(context.Background(), "リラックスしたい", nil, nil)
	require.NotNil(t, suggestion)
	assert.True(t, suggestion.Complete())
	assert.Zero(t, chat.calls)
}

func TestComposeSuggestionHonoursExcludedTeas(t *testing.T) {
	// The model insists on a tea that was already suggested; the rule table
	// steps in and picks something else.
	chat := &stubChat{responses: []string{validSuggestionJSON}}
	svc := NewRecommendationService(chat, testOpenAIConfig(), zap.NewNop())

	suggestion := svc.ComposeSuggestion(context.Background(), "眠れない", nil, []string{"カモミール"})
	require.NotNil(t, suggestion)
	assert.True(t, suggestion.Complete())
	assert.NotEqual(t, "カモミール", suggestion.Tea)
}

func TestComposeTextGroundsPromptInExcerpts(t *testing.T) {
	chat := &stubChat{responses: []string{"カモミールティーはいかがでしょうか。"}}
	svc := NewRecommendationService(chat, testOpenAIConfig(), zap.NewNop())

	docs := []models.ScoredArticle{scored("快眠ハーブ特集", 0.8)}
	docs[0].Article.Content = "カモミールは古くから安眠のお茶として親しまれてきました。"

	text := svc.ComposeText(context.Background(), "眠りが浅い", docs)
	assert.Equal(t, "カモミールティーはいかがでしょうか。", text)

	require.Len(t, chat.prompts, 1)
	assert.Contains(t, chat.prompts[0], "快眠ハーブ特集")
	assert.Contains(t, chat.prompts[0], "眠りが浅い")
	assert.Equal(t, []string{"gpt-4"}, chat.models)
}

func TestComposeTextAnswersFromRulesWhenProviderFails(t *testing.T) {
	chat := &stubChat{err: errors.New("timeout")}
	svc := NewRecommendationService(chat, testOpenAIConfig(), zap.NewNop())

	text := svc.ComposeText(context.Background(), "疲れが取れない", nil)
	assert.NotEmpty(t, text)
	assert.Contains(t, text, "黒豆茶")
}

func TestParseSuggestionExtractsJSONFromProse(t *testing.T) {
	raw := "はい、こちらが提案です。\n```json\n" + validSuggestionJSON + "\n```\nいかがでしょうか。"

	suggestion, err := parseSuggestion(raw)
	require.NoError(t, err)
	assert.Equal(t, "カモミール", suggestion.Tea)
	assert.Equal(t, "就寝前", suggestion.Timing)
}

func TestParseSuggestionRejectsIncompleteRecord(t *testing.T) {
	_, err := parseSuggestion(`{"tea": "緑茶", "reason": "さっぱりします"}`)
	require.Error(t, err)
}

func TestParseSuggestionRejectsNonJSON(t *testing.T) {
	_, err := parseSuggestion("緑茶がおすすめです")
	require.Error(t, err)
}

func TestRuleBasedStrategyNeverRepeatsTeas(t *testing.T) {
	rules := NewRuleBasedStrategy()

	var seen []string
	for i := 0; i < 3; i++ {
		suggestion, err := rules.Suggest(context.Background(), "疲れていてリラックスしたい", nil, seen)
		require.NoError(t, err)
		require.True(t, suggestion.Complete())
		assert.NotContains(t, seen, suggestion.Tea)
		seen = append(seen, suggestion.Tea)
	}
}

func TestExcerptCountsRunes(t *testing.T) {
	assert.Equal(t, "短い", Excerpt("短い", 100))
	assert.Equal(t, "あいう...", Excerpt("あいうえお", 3))
}
