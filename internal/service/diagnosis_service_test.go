package service

import (
	"context"
	"testing"
	"time"

	"github.com/temasamo/tea-diagnosis/internal/dto"
	"github.com/temasamo/tea-diagnosis/internal/llm"
	"github.com/temasamo/tea-diagnosis/internal/models"
	"github.com/temasamo/tea-diagnosis/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDiagnosisService(chat ChatProvider, store ArticleSearcher) *DiagnosisService {
	cfg := testOpenAIConfig()
	embeddings := newTestEmbeddingService(&stubEmbedder{})
	search := newTestSearchService(store)
	composer := NewRecommendationService(chat, cfg, zap.NewNop())
	return NewDiagnosisService(chat, embeddings, search, composer, cfg, zap.NewNop())
}

func TestDiagnoseRejectsEmptyInput(t *testing.T) {
	svc := newTestDiagnosisService(&stubChat{}, &stubSearcher{})

	_, err := svc.Diagnose(context.Background(), &dto.DiagnoseRequest{Text: "   "})
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestDiagnoseThreeTurnsYieldDistinctTeas(t *testing.T) {
	// Provider down for the whole session; the rule table has to carry all
	// three turns without repeating itself.
	chat := &stubChat{err: llm.ErrUnavailable}
	svc := newTestDiagnosisService(chat, &stubSearcher{})

	state := dto.TurnState{}
	var teas []string
	for i := 0; i < 3; i++ {
		resp, err := svc.Diagnose(context.Background(), &dto.DiagnoseRequest{
			Text:      "疲れていて眠りも浅いです",
			TurnState: state,
		})
		require.NoError(t, err)
		require.NotNil(t, resp.Suggestion)
		require.True(t, resp.Suggestion.Complete())
		assert.NotContains(t, teas, resp.Suggestion.Tea)

		teas = append(teas, resp.Suggestion.Tea)
		state = resp.TurnState
		assert.False(t, resp.End)
	}

	assert.Equal(t, 3, state.SuggestionCount)
	assert.Equal(t, teas, state.SuggestedTeas)
}

func TestDiagnoseFollowupsDoNotRepeat(t *testing.T) {
	chat := &stubChat{err: llm.ErrUnavailable}
	svc := newTestDiagnosisService(chat, &stubSearcher{})

	state := dto.TurnState{}
	var questions []string
	for i := 0; i < 2; i++ {
		resp, err := svc.Diagnose(context.Background(), &dto.DiagnoseRequest{
			Text:      "集中したいです",
			TurnState: state,
		})
		require.NoError(t, err)
		require.NotNil(t, resp.FollowupQuestion)
		assert.NotContains(t, questions, *resp.FollowupQuestion)

		questions = append(questions, *resp.FollowupQuestion)
		state = resp.TurnState
	}
}

func TestDiagnoseEndPhraseBeforeAnySuggestionKeepsSessionOpen(t *testing.T) {
	svc := newTestDiagnosisService(&stubChat{err: llm.ErrUnavailable}, &stubSearcher{})

	resp, err := svc.Diagnose(context.Background(), &dto.DiagnoseRequest{Text: "もう大丈夫です"})
	require.NoError(t, err)
	assert.False(t, resp.End)
	assert.Nil(t, resp.Suggestion)
	require.Len(t, resp.AssistantMessages, 1)
}

func TestDiagnoseEndPhraseAfterThreeSuggestionsClosesSession(t *testing.T) {
	svc := newTestDiagnosisService(&stubChat{err: llm.ErrUnavailable}, &stubSearcher{})

	resp, err := svc.Diagnose(context.Background(), &dto.DiagnoseRequest{
		Text: "ありがとう、大丈夫です",
		TurnState: dto.TurnState{
			SuggestionCount: 3,
			SuggestedTeas:   []string{"カモミール", "ルイボス", "ほうじ茶"},
		},
	})
	require.NoError(t, err)
	assert.True(t, resp.End)
	assert.Nil(t, resp.Suggestion)
}

func TestQuickDiagnoseRejectsEmptyAnswers(t *testing.T) {
	svc := newTestDiagnosisService(&stubChat{}, &stubSearcher{})

	_, err := svc.QuickDiagnose(context.Background(), &dto.QuickDiagnosisRequest{
		Answers: map[string]string{"mood": "  ", "health": ""},
	})
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestQuickDiagnoseComposesFromRetrievedArticles(t *testing.T) {
	doc := scored("リラックスに効くハーブティー", 0.82)
	doc.Article.Content = "夜のリラックスにはカモミールがおすすめです。"
	store := &stubSearcher{
		results: map[float64][]models.ScoredArticle{0.75: {doc}},
	}
	chat := &stubChat{responses: []string{
		"あなたは疲れていて、夜にリラックスしたい気分です",
		"お疲れのようですので、カモミールティーはいかがでしょうか。",
	}}
	svc := newTestDiagnosisService(chat, store)

	resp, err := svc.QuickDiagnose(context.Background(), &dto.QuickDiagnosisRequest{
		Answers: map[string]string{
			"mood":       "疲れている",
			"health":     "特にない",
			"time":       "夜",
			"preference": "特にこだわりなし",
			"situation":  "一人の時間",
			"goal":       "リラックス",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "あなたは疲れていて、夜にリラックスしたい気分です", resp.Condition)
	assert.NotEmpty(t, resp.Recommendation)
	assert.Equal(t, 1, resp.Matches)
	require.Len(t, resp.Articles, 1)
	assert.Equal(t, "リラックスに効くハーブティー", resp.Articles[0].Title)
	assert.NotEmpty(t, resp.Articles[0].Excerpt)
}

func TestQuickDiagnoseDegradesWhenEverythingFails(t *testing.T) {
	// Embedding, search and composition are all down; the response still
	// carries a usable recommendation from the rule table.
	chat := &stubChat{err: llm.ErrUnavailable}
	store := &stubSearcher{searchErr: llm.ErrUnavailable, recentErr: llm.ErrUnavailable}
	cfg := testOpenAIConfig()
	embeddings := NewEmbeddingService(&stubEmbedder{err: llm.ErrUnavailable}, &config.RAGConfig{
		TopK: 5, MaxInputChars: 8000, Thresholds: []float64{0.75},
	}, zap.NewNop())
	search := newTestSearchService(store)
	composer := NewRecommendationService(chat, cfg, zap.NewNop())
	svc := NewDiagnosisService(chat, embeddings, search, composer, cfg, zap.NewNop())

	resp, err := svc.QuickDiagnose(context.Background(), &dto.QuickDiagnosisRequest{
		Answers: map[string]string{"goal": "リラックスしたい"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Recommendation)
	assert.Zero(t, resp.Matches)
	// The raw answers stand in for the synthesized condition.
	assert.Equal(t, "リラックスしたい", resp.Condition)
}

func TestSeasonalGreeting(t *testing.T) {
	morning := time.Date(2025, time.April, 10, 8, 0, 0, 0, time.UTC)
	assert.Contains(t, SeasonalGreeting(morning), "おはようございます")
	assert.Contains(t, SeasonalGreeting(morning), "春")

	night := time.Date(2025, time.December, 10, 23, 30, 0, 0, time.UTC)
	assert.Contains(t, SeasonalGreeting(night), "お疲れさま")
	assert.Contains(t, SeasonalGreeting(night), "冷え")
}
