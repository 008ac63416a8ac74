// Package adventure holds the story content model and the plain-text
// format parser. Everything here is immutable once parsed; live play state
// lives in the game package.
package adventure

import (
	"strings"

	"github.com/adventurebook/server/internal/eval"
)

// Comparison aliases the evaluator's comparator type so conditions and
// tests carry it parsed once instead of re-dispatching on strings.
type Comparison = eval.Comparison

// GameOverDestination is the reserved result destination that terminates a
// session instead of naming a page.
const GameOverDestination = "game over"

// HiddenCategory is the record category that suppresses display.
const HiddenCategory = "hidden"

// Adventure is a complete story package: metadata plus its pages keyed by
// normalized page id.
type Adventure struct {
	Title       string
	Description string
	Start       string
	Records     []RecordDef
	Names       []NameDef
	Pages       map[string]*Page
}

// RecordDef declares a named mutable number and its initial value.
type RecordDef struct {
	Keyword  string
	Category string
	Value    int
}

// Hidden reports whether the record should be suppressed from display.
// Visibility is metadata only; the engine never renders records itself.
func (r RecordDef) Hidden() bool {
	return strings.EqualFold(r.Category, HiddenCategory)
}

// NameDef declares a named mutable string.
type NameDef struct {
	Keyword string
	Value   string
}

// Page is one screen of story text plus its choices. Conditions, tests and
// results are scoped to the page that declares them.
type Page struct {
	ID         string
	Title      string
	Story      string
	Choices    []Choice
	Conditions map[string]*Condition
	Tests      map[string]*Test
	Results    map[string]*Result
}

// Choice is a selectable player option. Condition is optional; exactly one
// of Test and Result is set (enforced at parse time).
type Choice struct {
	Text      string
	Condition string
	Test      string
	Result    string
}

// Condition is a boolean gate controlling choice availability.
type Condition struct {
	Name       string
	Left       string
	Comparison Comparison
	Right      string
}

// Test is a comparison whose outcome selects one of two named results.
type Test struct {
	Name          string
	Left          string
	Comparison    Comparison
	Right         string
	SuccessResult string
	FailureResult string
}

// Result is a named outcome: a destination page (or the game-over sentinel)
// plus an ordered list of record mutations.
type Result struct {
	Name        string
	Destination string
	Mutations   []Mutation
}

// IsGameOver reports whether the result terminates the session.
func (r *Result) IsGameOver() bool {
	return NormalizeID(r.Destination) == GameOverDestination
}

// Mutation adds the evaluated expression to the named record.
type Mutation struct {
	Keyword    string
	Expression string
}

// NormalizeID canonicalizes a page id for lookup: trimmed, lower-cased and
// with a canonical path separator. Page ids double as filenames, so lookup
// must behave identically on case-insensitive filesystems.
func NormalizeID(id string) string {
	id = strings.TrimSpace(strings.ToLower(id))
	return strings.ReplaceAll(id, "\\", "/")
}

// AddPage registers a parsed page under its normalized id. The page keeps
// its original-case id for display and storage.
func (a *Adventure) AddPage(id string, p *Page) {
	if a.Pages == nil {
		a.Pages = make(map[string]*Page)
	}
	p.ID = id
	a.Pages[NormalizeID(id)] = p
}

// PageByID looks a page up case-insensitively.
func (a *Adventure) PageByID(id string) (*Page, bool) {
	p, ok := a.Pages[NormalizeID(id)]
	return p, ok
}
