package adventure

import (
	"errors"
	"strings"
	"testing"
)

func buildAdventure(t *testing.T, metadata string, pages map[string]string) *Adventure {
	t.Helper()

	adv, err := ParseMetadata(metadata)
	if err != nil {
		t.Fatalf("ParseMetadata failed: %v", err)
	}
	for id, text := range pages {
		page, err := ParsePage(text)
		if err != nil {
			t.Fatalf("ParsePage(%s) failed: %v", id, err)
		}
		adv.AddPage(id, page)
	}
	return adv
}

const validMetadata = `title: T
description: D
start: hub`

func TestValidateOK(t *testing.T) {
	adv := buildAdventure(t, validMetadata, map[string]string{
		"hub": `story: At the hub.
choice: Enter the cave {result: cave}
choice: Give up {result: quit}
result: cave; The-Cave
result: quit; game over`,
		"the-cave": `story: In the cave.
choice: Back {condition: alive}{result: back}
condition: alive; [hp]; >; 0
result: back; hub`,
	})

	if err := Validate(adv); err != nil {
		t.Fatalf("Validate failed on a valid adventure: %v", err)
	}
}

func TestValidateMissingStartPage(t *testing.T) {
	adv := buildAdventure(t, validMetadata, map[string]string{
		"other": `story: s
choice: Go {result: r}
result: r; other`,
	})

	err := Validate(adv)
	if !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("error = %v, want ErrDanglingReference", err)
	}
	if !strings.Contains(err.Error(), "start page") {
		t.Errorf("error does not mention the start page: %v", err)
	}
}

func TestValidateDanglingChoiceReferences(t *testing.T) {
	adv := buildAdventure(t, validMetadata, map[string]string{
		"hub": `story: s
choice: Guarded {condition: ghost}{result: r}
choice: Tested {test: phantom}
result: r; hub`,
	})

	err := Validate(adv)
	if !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("error = %v, want ErrDanglingReference", err)
	}
	// Both defects surface in one pass, not just the first.
	if !strings.Contains(err.Error(), `"ghost"`) || !strings.Contains(err.Error(), `"phantom"`) {
		t.Errorf("expected both dangling names reported, got: %v", err)
	}
}

func TestValidateDanglingTestResults(t *testing.T) {
	adv := buildAdventure(t, validMetadata, map[string]string{
		"hub": `story: s
choice: Try {test: luck}
test: luck; 1d6; >; 3; win; lose
result: win; hub`,
	})

	err := Validate(adv)
	if !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("error = %v, want ErrDanglingReference", err)
	}
	if !strings.Contains(err.Error(), `"lose"`) {
		t.Errorf("expected dangling failure result reported, got: %v", err)
	}
}

func TestValidateMissingDestination(t *testing.T) {
	adv := buildAdventure(t, validMetadata, map[string]string{
		"hub": `story: s
choice: Go {result: r}
result: r; nowhere`,
	})

	err := Validate(adv)
	if !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("error = %v, want ErrDanglingReference", err)
	}
	if !strings.Contains(err.Error(), `"nowhere"`) {
		t.Errorf("expected missing destination reported, got: %v", err)
	}
}

func TestValidateGameOverDestination(t *testing.T) {
	adv := buildAdventure(t, validMetadata, map[string]string{
		"hub": `story: s
choice: End it {result: r}
result: r; game over`,
	})

	if err := Validate(adv); err != nil {
		t.Fatalf("game over destination should validate, got: %v", err)
	}
}

func TestValidateCyclicGraph(t *testing.T) {
	// Adventures intentionally loop; cycles are ordinary lookups.
	adv := buildAdventure(t, validMetadata, map[string]string{
		"hub": `story: s
choice: Onward {result: r}
result: r; loop`,
		"loop": `story: s
choice: Back {result: r}
result: r; hub`,
	})

	if err := Validate(adv); err != nil {
		t.Fatalf("cyclic page graph should validate, got: %v", err)
	}
}
