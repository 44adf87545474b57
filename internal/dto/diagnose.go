package dto

import "github.com/temasamo/tea-diagnosis/internal/models"

type ChatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// TurnState is carried by the client between guided-diagnosis turns; the
// server itself stays stateless.
type TurnState struct {
	SuggestionCount int      `json:"suggestionCount"`
	SuggestedTeas   []string `json:"suggestedTeas"`
	AskedFollowups  []string `json:"askedFollowups"`
}

type DiagnoseRequest struct {
	Text      string        `json:"text"`
	History   []ChatMessage `json:"history"`
	TurnState TurnState     `json:"turnState"`
}

type DiagnoseResponse struct {
	AssistantMessages []string           `json:"assistantMessages"`
	Suggestion        *models.Suggestion `json:"suggestion"`
	FollowupQuestion  *string            `json:"followupQuestion"`
	TurnState         TurnState          `json:"turnState"`
	End               bool               `json:"end"`
}

type QuickDiagnosisRequest struct {
	Answers map[string]string `json:"answers"`
}

type ArticleRef struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

type QuickDiagnosisResponse struct {
	Recommendation string       `json:"recommendation"`
	Condition      string       `json:"condition"`
	Matches        int          `json:"matches"`
	Articles       []ArticleRef `json:"articles"`
}
