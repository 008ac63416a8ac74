package adventure

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDanglingReference indicates a name that resolves to no declaration:
// a choice pointing at an undeclared condition/test/result, a test pointing
// at an undeclared result, or a destination naming no page.
var ErrDanglingReference = errors.New("dangling reference")

// Validate cross-checks every reference in the adventure and returns all
// defects joined together, not just the first. Adventures failing
// validation must refuse to load; evaluation errors (undefined records at
// play time) are deliberately not checked here.
func Validate(adv *Adventure) error {
	var defects []error

	if _, ok := adv.PageByID(adv.Start); !ok {
		defects = append(defects, fmt.Errorf("%w: start page %q", ErrDanglingReference, adv.Start))
	}

	// Pages are visited in sorted id order so defect lists are stable.
	ids := make([]string, 0, len(adv.Pages))
	for id := range adv.Pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		page := adv.Pages[id]

		for i, choice := range page.Choices {
			if choice.Condition != "" {
				if _, ok := page.Conditions[choice.Condition]; !ok {
					defects = append(defects, fmt.Errorf("%w: page %q choice %d condition %q", ErrDanglingReference, id, i, choice.Condition))
				}
			}
			if choice.Test != "" {
				if _, ok := page.Tests[choice.Test]; !ok {
					defects = append(defects, fmt.Errorf("%w: page %q choice %d test %q", ErrDanglingReference, id, i, choice.Test))
				}
			}
			if choice.Result != "" {
				if _, ok := page.Results[choice.Result]; !ok {
					defects = append(defects, fmt.Errorf("%w: page %q choice %d result %q", ErrDanglingReference, id, i, choice.Result))
				}
			}
		}

		for _, name := range sortedTestNames(page) {
			test := page.Tests[name]
			if _, ok := page.Results[test.SuccessResult]; !ok {
				defects = append(defects, fmt.Errorf("%w: page %q test %q success result %q", ErrDanglingReference, id, name, test.SuccessResult))
			}
			if _, ok := page.Results[test.FailureResult]; !ok {
				defects = append(defects, fmt.Errorf("%w: page %q test %q failure result %q", ErrDanglingReference, id, name, test.FailureResult))
			}
		}

		for _, name := range sortedResultNames(page) {
			result := page.Results[name]
			if result.IsGameOver() {
				continue
			}
			if _, ok := adv.PageByID(result.Destination); !ok {
				defects = append(defects, fmt.Errorf("%w: page %q result %q destination %q", ErrDanglingReference, id, name, result.Destination))
			}
		}
	}

	return errors.Join(defects...)
}

func sortedTestNames(p *Page) []string {
	names := make([]string, 0, len(p.Tests))
	for name := range p.Tests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedResultNames(p *Page) []string {
	names := make([]string, 0, len(p.Results))
	for name := range p.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
