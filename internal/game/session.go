package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adventurebook/server/internal/adventure"
	"github.com/adventurebook/server/internal/dice"
	"github.com/adventurebook/server/internal/eval"
)

// ErrNavigation indicates a caller-input problem: selecting a disabled or
// nonexistent choice, or acting on a finished session. It never aborts the
// session and never mutates state.
var ErrNavigation = errors.New("navigation error")

// Session drives one playthrough: the current page, the live store and the
// injected random source. One session per playthrough, never shared.
type Session struct {
	ID          string
	AdventureID string

	adv     *adventure.Adventure
	store   *Store
	roller  dice.Roller
	current string
	over    bool
	events  []Event

	CreatedAt time.Time
	UpdatedAt time.Time

	mu sync.RWMutex
}

// NewSession starts a playthrough on the adventure's start page. The
// adventure must already have passed validation.
func NewSession(id, adventureID string, adv *adventure.Adventure, roller dice.Roller) (*Session, error) {
	start := adventure.NormalizeID(adv.Start)
	if _, ok := adv.Pages[start]; !ok {
		return nil, fmt.Errorf("%w: start page %q", adventure.ErrDanglingReference, adv.Start)
	}

	now := time.Now()
	s := &Session{
		ID:          id,
		AdventureID: adventureID,
		adv:         adv,
		store:       NewStore(adv),
		roller:      roller,
		current:     start,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.events = append(s.events, Event{Type: EventPageEntered, Page: start, At: now})
	return s, nil
}

// ChoiceView is one choice as presented to the caller. Disabled choices
// are listed but cannot be selected.
type ChoiceView struct {
	Index   int    `json:"index"`
	Text    string `json:"text"`
	Enabled bool   `json:"enabled"`
}

// PageView is the current page as presented to the caller, with keyword
// substitution applied to story and choice text.
type PageView struct {
	ID       string       `json:"id"`
	Title    string       `json:"title,omitempty"`
	Story    string       `json:"story,omitempty"`
	Choices  []ChoiceView `json:"choices"`
	GameOver bool         `json:"game_over"`
}

// Outcome reports what a successful Choose did.
type Outcome struct {
	Test        string `json:"test,omitempty"`
	TestPassed  *bool  `json:"test_passed,omitempty"`
	Result      string `json:"result"`
	Destination string `json:"destination"`
	GameOver    bool   `json:"game_over"`
}

// View returns the current page with its choices and their enablement.
// Conditions are re-evaluated against the live store on every call, so a
// condition containing dice may flip between calls.
func (s *Session) View() (PageView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() (PageView, error) {
	if s.over {
		return PageView{GameOver: true}, nil
	}

	page := s.adv.Pages[s.current]
	view := PageView{
		ID:      page.ID,
		Title:   page.Title,
		Story:   s.renderText(page.Story),
		Choices: make([]ChoiceView, 0, len(page.Choices)),
	}
	for i, choice := range page.Choices {
		enabled, err := s.choiceEnabled(page, choice)
		if err != nil {
			return PageView{}, err
		}
		view.Choices = append(view.Choices, ChoiceView{
			Index:   i,
			Text:    s.renderText(choice.Text),
			Enabled: enabled,
		})
	}
	return view, nil
}

// choiceEnabled evaluates the choice's condition, if any, against the
// current store.
func (s *Session) choiceEnabled(page *adventure.Page, choice adventure.Choice) (bool, error) {
	if choice.Condition == "" {
		return true, nil
	}
	cond := page.Conditions[choice.Condition]
	return eval.Compare(cond.Left, cond.Right, cond.Comparison, s.store.Record, s.roller)
}

// Choose selects the indexed choice on the current page. Disabled or
// nonexistent choices are rejected without mutating state; evaluation
// errors likewise leave the store untouched (a result's mutation list
// commits in full or not at all).
func (s *Session) Choose(index int) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.over {
		return nil, fmt.Errorf("%w: session is over, there is no current page", ErrNavigation)
	}
	page := s.adv.Pages[s.current]
	if index < 0 || index >= len(page.Choices) {
		return nil, fmt.Errorf("%w: page %q has no choice %d", ErrNavigation, page.ID, index)
	}
	choice := page.Choices[index]

	enabled, err := s.choiceEnabled(page, choice)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, fmt.Errorf("%w: choice %d on page %q is disabled", ErrNavigation, index, page.ID)
	}

	outcome := &Outcome{}
	resultName := choice.Result
	if choice.Test != "" {
		test := page.Tests[choice.Test]
		passed, err := eval.Compare(test.Left, test.Right, test.Comparison, s.store.Record, s.roller)
		if err != nil {
			return nil, err
		}
		outcome.Test = test.Name
		outcome.TestPassed = &passed
		if passed {
			resultName = test.SuccessResult
		} else {
			resultName = test.FailureResult
		}
	}

	result, ok := page.Results[resultName]
	if !ok {
		return nil, fmt.Errorf("%w: result %q on page %q", adventure.ErrDanglingReference, resultName, page.ID)
	}

	// Mutations apply in declared order and each expression sees the values
	// already changed by prior mutations of the same result. They are staged
	// on a clone so a failing mutation commits nothing.
	staged := s.store.Clone()
	for _, m := range result.Mutations {
		v, err := eval.Evaluate(m.Expression, staged.Record, s.roller)
		if err != nil {
			return nil, err
		}
		if err := staged.ApplyDelta(m.Keyword, v); err != nil {
			return nil, err
		}
	}
	s.store = staged

	now := time.Now()
	s.UpdatedAt = now
	s.events = append(s.events, Event{
		Type:        EventChoiceResolved,
		Page:        page.ID,
		Choice:      index,
		ChoiceText:  choice.Text,
		Test:        outcome.Test,
		TestPassed:  outcome.TestPassed,
		Result:      result.Name,
		Destination: result.Destination,
		At:          now,
	})

	outcome.Result = result.Name
	outcome.Destination = result.Destination
	if result.IsGameOver() {
		s.over = true
		s.current = ""
		outcome.GameOver = true
		s.events = append(s.events, Event{Type: EventGameOver, At: now})
		return outcome, nil
	}

	s.current = adventure.NormalizeID(result.Destination)
	s.events = append(s.events, Event{Type: EventPageEntered, Page: s.current, At: now})
	return outcome, nil
}

// renderText substitutes [keyword] tokens in display text, names first,
// then records. Unknown tokens stay verbatim: display must not abort play.
func (s *Session) renderText(text string) string {
	if !strings.ContainsRune(text, '[') {
		return text
	}
	var b strings.Builder
	rest := text
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			break
		}
		end := strings.IndexByte(rest[open:], ']')
		if end < 0 {
			break
		}
		end += open

		keyword := strings.TrimSpace(rest[open+1 : end])
		b.WriteString(rest[:open])
		if v, err := s.store.Name(keyword); err == nil {
			b.WriteString(v)
		} else if n, err := s.store.Record(keyword); err == nil {
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteString(rest[open : end+1])
		}
		rest = rest[end+1:]
	}
	b.WriteString(rest)
	return b.String()
}

// GameOver reports whether the session reached the terminal state.
func (s *Session) GameOver() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.over
}

// CurrentPageID returns the normalized id of the current page, or "" once
// the session is over.
func (s *Session) CurrentPageID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Records returns the live record values with their display metadata.
func (s *Session) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Records()
}

// Names returns the live name values.
func (s *Session) Names() []Name {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Names()
}

// SetName replaces a name value, e.g. the player naming their character.
func (s *Session) SetName(keyword, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.SetName(keyword, value)
}

// Events returns a copy of the session history.
func (s *Session) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Snapshot captures the persistable session state.
type Snapshot struct {
	CurrentPage string            `json:"current_page"`
	GameOver    bool              `json:"game_over"`
	Records     map[string]int    `json:"records"`
	Names       map[string]string `json:"names"`
}

// Snapshot exports the session state for persistence.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		CurrentPage: s.current,
		GameOver:    s.over,
		Records:     s.store.RecordValues(),
		Names:       s.store.NameValues(),
	}
}

// RestoreSession rebuilds a session from a snapshot against a freshly
// loaded adventure. The persisted event log, if any, is carried over.
func RestoreSession(id, adventureID string, adv *adventure.Adventure, roller dice.Roller, snap Snapshot, events []Event) (*Session, error) {
	if !snap.GameOver {
		if _, ok := adv.Pages[snap.CurrentPage]; !ok {
			return nil, fmt.Errorf("%w: current page %q", adventure.ErrDanglingReference, snap.CurrentPage)
		}
	}

	now := time.Now()
	s := &Session{
		ID:          id,
		AdventureID: adventureID,
		adv:         adv,
		store:       NewStore(adv),
		roller:      roller,
		current:     snap.CurrentPage,
		over:        snap.GameOver,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.store.SetValues(snap.Records, snap.Names)
	s.events = append(s.events, events...)
	return s, nil
}
