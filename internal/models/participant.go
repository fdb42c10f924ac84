package models

// Participant is one claimed position in a draw session. Position is chosen
// at join and never changes; Result is set only when the draw starts.
type Participant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Ready    bool   `json:"ready"`
	Result   string `json:"result,omitempty"`
}
