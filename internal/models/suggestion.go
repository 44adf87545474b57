package models

// Suggestion is the structured recommendation returned by the guided
// diagnosis flow. Every field is a non-empty string; a malformed model
// response is replaced with a complete fallback record, never a partial one.
type Suggestion struct {
	Tea       string `json:"tea"`
	Reason    string `json:"reason"`
	Sweetener string `json:"sweetener"`
	Snack     string `json:"snack"`
	Timing    string `json:"timing"`
	Brewing   string `json:"brewing"`
}

// Complete reports whether every required field is present.
func (s *Suggestion) Complete() bool {
	return s.Tea != "" && s.Reason != "" && s.Sweetener != "" &&
		s.Snack != "" && s.Timing != "" && s.Brewing != ""
}
