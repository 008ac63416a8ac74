package game

import "time"

// EventType tags entries in a session's event log.
type EventType string

const (
	// EventPageEntered marks the session arriving on a page, including the
	// start page.
	EventPageEntered EventType = "page_entered"
	// EventChoiceResolved marks a successful choice selection.
	EventChoiceResolved EventType = "choice_resolved"
	// EventGameOver marks the terminal transition.
	EventGameOver EventType = "game_over"
)

// Event is one entry in a session's history. Fields beyond Type are filled
// per event kind.
type Event struct {
	Type        EventType `json:"type"`
	Page        string    `json:"page,omitempty"`
	Choice      int       `json:"choice,omitempty"`
	ChoiceText  string    `json:"choice_text,omitempty"`
	Test        string    `json:"test,omitempty"`
	TestPassed  *bool     `json:"test_passed,omitempty"`
	Result      string    `json:"result,omitempty"`
	Destination string    `json:"destination,omitempty"`
	At          time.Time `json:"at"`
}
