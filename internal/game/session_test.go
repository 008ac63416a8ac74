package game

import (
	"errors"
	"testing"
)

// scriptRoller replays a fixed roll sequence, wrapping around at the end.
type scriptRoller struct {
	rolls []int
	next  int
}

func (s *scriptRoller) Roll(sides int) int {
	v := s.rolls[s.next%len(s.rolls)]
	s.next++
	return v
}

func trollAdventure(t *testing.T) *Session {
	t.Helper()

	adv := testAdventure(t, `title: Troll Trouble
description: A bridge, a troll, a bad idea.
start: Troll-Fight
record: Stamina; 5
record: treasure; 0
record: troll; 12
record: Weapon Power; 6
name: hero; Conan`,
		map[string]string{
			"troll-fight": `story: The troll eyes [hero] hungrily.
choice: Attack from cover {test: safe}
choice: Flee the bridge {result: flee}
test: safe; 1d20; >=; 8+[treasure]; safe; unsafe
result: safe; troll-fight-hit; troll; -(1d[Weapon Power]-2)
result: unsafe; troll-fight; Stamina; -1
result: flee; game over`,
			"troll-fight-hit": `story: The blow lands.
choice: Press on {result: again}
result: again; troll-fight`,
		})

	s, err := NewSession("s1", "a1", adv, &scriptRoller{rolls: []int{10, 5}})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

// Scenario: the safe choice runs test "safe" (1d20 >= 8+[treasure]); a
// seeded roll of 10 succeeds, result "safe" subtracts 1d[Weapon Power]-2
// from the troll and moves to the hit page.
func TestChooseWithTest(t *testing.T) {
	s := trollAdventure(t)

	outcome, err := s.Choose(0)
	if err != nil {
		t.Fatalf("Choose failed: %v", err)
	}

	if outcome.Test != "safe" {
		t.Errorf("Test = %q, want safe", outcome.Test)
	}
	if outcome.TestPassed == nil || !*outcome.TestPassed {
		t.Error("test should pass with a roll of 10 against 8")
	}
	if outcome.Result != "safe" {
		t.Errorf("Result = %q, want safe", outcome.Result)
	}
	if s.CurrentPageID() != "troll-fight-hit" {
		t.Errorf("current page = %q, want troll-fight-hit", s.CurrentPageID())
	}

	// Weapon roll of 5: troll takes -(5-2) = -3.
	for _, rec := range s.Records() {
		if rec.Keyword == "troll" && rec.Value != 9 {
			t.Errorf("troll = %d, want 9", rec.Value)
		}
	}
}

func TestChooseTestFailure(t *testing.T) {
	adv := testAdventure(t, `title: T
description: D
start: p
record: Stamina; 5`,
		map[string]string{
			"p": `story: s
choice: Try {test: luck}
test: luck; 1d20; >=; 15; win; lose
result: win; p
result: lose; p; Stamina; -1`,
		})

	s, err := NewSession("s1", "a1", adv, &scriptRoller{rolls: []int{3}})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	outcome, err := s.Choose(0)
	if err != nil {
		t.Fatalf("Choose failed: %v", err)
	}
	if outcome.TestPassed == nil || *outcome.TestPassed {
		t.Error("test should fail with a roll of 3 against 15")
	}
	if outcome.Result != "lose" {
		t.Errorf("Result = %q, want lose", outcome.Result)
	}
	for _, rec := range s.Records() {
		if rec.Keyword == "Stamina" && rec.Value != 4 {
			t.Errorf("Stamina = %d, want 4", rec.Value)
		}
	}
}

// Scenario: a condition [Stamina] > 0 with Stamina = 0 excludes the choice
// from the enabled set; selecting it is a navigation error.
func TestConditionDisablesChoice(t *testing.T) {
	adv := testAdventure(t, `title: T
description: D
start: p
record: Stamina; 0`,
		map[string]string{
			"p": `story: s
choice: Push through {condition: stam}{result: go}
choice: Rest {result: rest}
condition: stam; [Stamina]; >; 0
result: go; p
result: rest; p; Stamina; 1`,
		})

	s, err := NewSession("s1", "a1", adv, &scriptRoller{rolls: []int{1}})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	view, err := s.View()
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if view.Choices[0].Enabled {
		t.Error("choice guarded by stam should be disabled at Stamina 0")
	}
	if !view.Choices[1].Enabled {
		t.Error("unguarded choice should be enabled")
	}

	if _, err := s.Choose(0); !errors.Is(err, ErrNavigation) {
		t.Errorf("Choose(disabled) error = %v, want ErrNavigation", err)
	}

	// Resting raises Stamina; the guarded choice becomes selectable.
	if _, err := s.Choose(1); err != nil {
		t.Fatalf("Choose(rest) failed: %v", err)
	}
	if _, err := s.Choose(0); err != nil {
		t.Fatalf("Choose after regaining Stamina failed: %v", err)
	}
}

func TestChooseOutOfRange(t *testing.T) {
	s := trollAdventure(t)

	if _, err := s.Choose(99); !errors.Is(err, ErrNavigation) {
		t.Errorf("Choose(99) error = %v, want ErrNavigation", err)
	}
	if _, err := s.Choose(-1); !errors.Is(err, ErrNavigation) {
		t.Errorf("Choose(-1) error = %v, want ErrNavigation", err)
	}
}

// Scenario: a result whose destination is the literal "game over" moves the
// session to the terminal state; any further selection is rejected.
func TestGameOverIsTerminal(t *testing.T) {
	s := trollAdventure(t)

	outcome, err := s.Choose(1)
	if err != nil {
		t.Fatalf("Choose(flee) failed: %v", err)
	}
	if !outcome.GameOver {
		t.Error("fleeing should end the game")
	}
	if !s.GameOver() {
		t.Error("session should report game over")
	}
	if s.CurrentPageID() != "" {
		t.Errorf("current page = %q after game over, want empty", s.CurrentPageID())
	}

	view, err := s.View()
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if !view.GameOver {
		t.Error("view should report game over")
	}

	if _, err := s.Choose(0); !errors.Is(err, ErrNavigation) {
		t.Errorf("Choose after game over error = %v, want ErrNavigation", err)
	}
}

// Scenario: mutations apply in declared order and each expression sees the
// values already changed by prior mutations of the same result.
func TestMutationOrderIsSequential(t *testing.T) {
	adv := testAdventure(t, `title: T
description: D
start: loop
record: treasure; 0
record: trap; 0`,
		map[string]string{
			"loop": `story: s
choice: Again {result: spin}
result: spin; loop; treasure; 1; trap; [treasure]`,
		})

	s, err := NewSession("s1", "a1", adv, &scriptRoller{rolls: []int{1}})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	// First pass: treasure 0->1, trap += 1 (sees the fresh increment).
	if _, err := s.Choose(0); err != nil {
		t.Fatalf("Choose failed: %v", err)
	}
	// Second pass: treasure 1->2, trap += 2.
	if _, err := s.Choose(0); err != nil {
		t.Fatalf("Choose failed: %v", err)
	}

	values := map[string]int{}
	for _, rec := range s.Records() {
		values[rec.Keyword] = rec.Value
	}
	if values["treasure"] != 2 {
		t.Errorf("treasure = %d, want 2", values["treasure"])
	}
	if values["trap"] != 3 {
		t.Errorf("trap = %d, want 3 (1 then +2)", values["trap"])
	}
}

func TestFailedMutationCommitsNothing(t *testing.T) {
	adv := testAdventure(t, `title: T
description: D
start: p
record: treasure; 0`,
		map[string]string{
			"p": `story: s
choice: Grab {result: grab}
choice: Wait {result: wait}
result: grab; p; treasure; 1; phantom; 1
result: wait; p`,
		})

	s, err := NewSession("s1", "a1", adv, &scriptRoller{rolls: []int{1}})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	before := s.CurrentPageID()
	if _, err := s.Choose(0); err == nil {
		t.Fatal("expected an evaluation error for the undefined record")
	}

	// The first mutation must not have leaked through.
	for _, rec := range s.Records() {
		if rec.Keyword == "treasure" && rec.Value != 0 {
			t.Errorf("treasure = %d after failed result, want 0", rec.Value)
		}
	}
	if s.CurrentPageID() != before {
		t.Errorf("page moved to %q despite failed result", s.CurrentPageID())
	}
}

func TestRenderTextSubstitution(t *testing.T) {
	s := trollAdventure(t)

	view, err := s.View()
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if view.Story != "The troll eyes Conan hungrily." {
		t.Errorf("Story = %q", view.Story)
	}
}

func TestRenderTextUnknownTokenKeptVerbatim(t *testing.T) {
	adv := testAdventure(t, `title: T
description: D
start: p`,
		map[string]string{
			"p": `story: Hello [nobody]!
choice: Go {result: r}
result: r; p`,
		})

	s, err := NewSession("s1", "a1", adv, &scriptRoller{rolls: []int{1}})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	view, err := s.View()
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if view.Story != "Hello [nobody]!" {
		t.Errorf("Story = %q, unknown tokens should stay verbatim", view.Story)
	}
}

func TestEventsRecorded(t *testing.T) {
	s := trollAdventure(t)

	if _, err := s.Choose(1); err != nil {
		t.Fatalf("Choose failed: %v", err)
	}

	events := s.Events()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Type != EventPageEntered || events[0].Page != "troll-fight" {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Type != EventChoiceResolved || events[1].Result != "flee" {
		t.Errorf("event 1 = %+v", events[1])
	}
	if events[2].Type != EventGameOver {
		t.Errorf("event 2 = %+v", events[2])
	}
}

func TestSnapshotRestore(t *testing.T) {
	s := trollAdventure(t)
	if _, err := s.Choose(0); err != nil {
		t.Fatalf("Choose failed: %v", err)
	}

	snap := s.Snapshot()

	adv := trollAdventure(t)
	restored, err := RestoreSession("s2", "a1", adv.adv, &scriptRoller{rolls: []int{1}}, snap, s.Events())
	if err != nil {
		t.Fatalf("RestoreSession failed: %v", err)
	}

	if restored.CurrentPageID() != "troll-fight-hit" {
		t.Errorf("restored page = %q, want troll-fight-hit", restored.CurrentPageID())
	}
	for _, rec := range restored.Records() {
		if rec.Keyword == "troll" && rec.Value != 9 {
			t.Errorf("restored troll = %d, want 9", rec.Value)
		}
	}
	if len(restored.Events()) != 3 {
		t.Errorf("restored %d events, want 3", len(restored.Events()))
	}
}
