package adventure

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/adventurebook/server/internal/eval"
)

// ErrUnknownTag indicates a line or brace group tagged with something
// outside the format's closed tag set.
var ErrUnknownTag = errors.New("unknown tag")

// ErrMissingRequiredTag indicates required content is absent, including a
// choice lacking exactly one of test/result.
var ErrMissingRequiredTag = errors.New("missing required tag")

// ErrDuplicateName indicates two declarations of the same kind sharing a
// name on one page, or a duplicate record/name keyword.
var ErrDuplicateName = errors.New("duplicate declaration name")

// ErrMalformedFieldList indicates a semicolon field list with a wrong field
// count or unparseable field.
var ErrMalformedFieldList = errors.New("malformed field list")

// tagLine matches lines that open with a lower-case colon-terminated tag.
// Anything matching this but not in the tag set is an unknown tag, not
// free text.
var tagLine = regexp.MustCompile(`^[a-z]+:`)

// braceGroup matches one embedded {tag: name} group inside a choice line.
var braceGroup = regexp.MustCompile(`\{([^{}]*)\}`)

// ParseMetadata parses an adventure metadata file. It is pure: the same
// text always produces the same Adventure, so re-running for live reload
// is safe. Pages are attached separately via AddPage.
func ParseMetadata(text string) (*Adventure, error) {
	adv := &Adventure{Pages: make(map[string]*Page)}
	seenRecords := make(map[string]bool)
	seenNames := make(map[string]bool)

	inDescription := false
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "title:"):
			inDescription = false
			adv.Title = strings.TrimSpace(strings.TrimPrefix(line, "title:"))
		case strings.HasPrefix(line, "description:"):
			inDescription = true
			adv.Description = strings.TrimSpace(strings.TrimPrefix(line, "description:"))
		case strings.HasPrefix(line, "start:"):
			inDescription = false
			adv.Start = strings.TrimSpace(strings.TrimPrefix(line, "start:"))
		case strings.HasPrefix(line, "record:"):
			inDescription = false
			rec, err := parseRecord(strings.TrimPrefix(line, "record:"))
			if err != nil {
				return nil, err
			}
			if seenRecords[rec.Keyword] {
				return nil, fmt.Errorf("%w: record %q", ErrDuplicateName, rec.Keyword)
			}
			seenRecords[rec.Keyword] = true
			adv.Records = append(adv.Records, rec)
		case strings.HasPrefix(line, "name:"):
			inDescription = false
			name, err := parseName(strings.TrimPrefix(line, "name:"))
			if err != nil {
				return nil, err
			}
			if seenNames[name.Keyword] {
				return nil, fmt.Errorf("%w: name %q", ErrDuplicateName, name.Keyword)
			}
			seenNames[name.Keyword] = true
			adv.Names = append(adv.Names, name)
		case tagLine.MatchString(line):
			return nil, fmt.Errorf("%w: %q", ErrUnknownTag, strings.SplitN(line, ":", 2)[0])
		case inDescription && strings.TrimSpace(line) != "":
			adv.Description += "\n" + line
		}
	}

	if adv.Title == "" {
		return nil, fmt.Errorf("%w: title", ErrMissingRequiredTag)
	}
	if adv.Description == "" {
		return nil, fmt.Errorf("%w: description", ErrMissingRequiredTag)
	}
	if adv.Start == "" {
		return nil, fmt.Errorf("%w: start", ErrMissingRequiredTag)
	}
	return adv, nil
}

// ParsePage parses one page file. Pure, like ParseMetadata.
func ParsePage(text string) (*Page, error) {
	page := &Page{
		Conditions: make(map[string]*Condition),
		Tests:      make(map[string]*Test),
		Results:    make(map[string]*Result),
	}

	inStory := false
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "title:"):
			inStory = false
			page.Title = strings.TrimSpace(strings.TrimPrefix(line, "title:"))
		case strings.HasPrefix(line, "story:"):
			inStory = true
			page.Story = strings.TrimSpace(strings.TrimPrefix(line, "story:"))
		case strings.HasPrefix(line, "choice:"):
			inStory = false
			choice, err := parseChoice(strings.TrimPrefix(line, "choice:"))
			if err != nil {
				return nil, err
			}
			page.Choices = append(page.Choices, choice)
		case strings.HasPrefix(line, "condition:"):
			inStory = false
			cond, err := parseCondition(strings.TrimPrefix(line, "condition:"))
			if err != nil {
				return nil, err
			}
			if _, ok := page.Conditions[cond.Name]; ok {
				return nil, fmt.Errorf("%w: condition %q", ErrDuplicateName, cond.Name)
			}
			page.Conditions[cond.Name] = cond
		case strings.HasPrefix(line, "test:"):
			inStory = false
			test, err := parseTest(strings.TrimPrefix(line, "test:"))
			if err != nil {
				return nil, err
			}
			if _, ok := page.Tests[test.Name]; ok {
				return nil, fmt.Errorf("%w: test %q", ErrDuplicateName, test.Name)
			}
			page.Tests[test.Name] = test
		case strings.HasPrefix(line, "result:"):
			inStory = false
			result, err := parseResult(strings.TrimPrefix(line, "result:"))
			if err != nil {
				return nil, err
			}
			if _, ok := page.Results[result.Name]; ok {
				return nil, fmt.Errorf("%w: result %q", ErrDuplicateName, result.Name)
			}
			page.Results[result.Name] = result
		case tagLine.MatchString(line):
			return nil, fmt.Errorf("%w: %q", ErrUnknownTag, strings.SplitN(line, ":", 2)[0])
		case inStory && strings.TrimSpace(line) != "":
			page.Story += "\n" + line
		}
	}

	if page.Story == "" {
		return nil, fmt.Errorf("%w: story", ErrMissingRequiredTag)
	}
	if len(page.Choices) == 0 {
		return nil, fmt.Errorf("%w: at least one choice", ErrMissingRequiredTag)
	}
	if len(page.Results) == 0 {
		return nil, fmt.Errorf("%w: at least one result", ErrMissingRequiredTag)
	}
	return page, nil
}

// splitFields splits a semicolon field list, trimming whitespace and
// dropping empty fields so trailing semicolons are tolerated.
func splitFields(s string) []string {
	parts := strings.Split(s, ";")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			fields = append(fields, p)
		}
	}
	return fields
}

// parseRecord accepts the forms "keyword", "keyword; value",
// "keyword; category" and "keyword; category; value". A two-field second
// field is a value when it parses as a number, a category otherwise.
func parseRecord(s string) (RecordDef, error) {
	fields := splitFields(s)
	switch len(fields) {
	case 1:
		return RecordDef{Keyword: fields[0]}, nil
	case 2:
		if v, err := strconv.Atoi(fields[1]); err == nil {
			return RecordDef{Keyword: fields[0], Value: v}, nil
		}
		return RecordDef{Keyword: fields[0], Category: fields[1]}, nil
	case 3:
		v, err := strconv.Atoi(fields[2])
		if err != nil {
			return RecordDef{}, fmt.Errorf("%w: record value %q is not a number", ErrMalformedFieldList, fields[2])
		}
		return RecordDef{Keyword: fields[0], Category: fields[1], Value: v}, nil
	default:
		return RecordDef{}, fmt.Errorf("%w: record wants 1-3 fields, got %d", ErrMalformedFieldList, len(fields))
	}
}

func parseName(s string) (NameDef, error) {
	fields := splitFields(s)
	switch len(fields) {
	case 1:
		return NameDef{Keyword: fields[0]}, nil
	case 2:
		return NameDef{Keyword: fields[0], Value: fields[1]}, nil
	default:
		return NameDef{}, fmt.Errorf("%w: name wants 1-2 fields, got %d", ErrMalformedFieldList, len(fields))
	}
}

// parseChoice extracts the embedded {condition: n} / {test: n} /
// {result: n} groups from anywhere in the line; what remains, trimmed, is
// the display text.
func parseChoice(s string) (Choice, error) {
	var choice Choice

	var parseErr error
	for _, m := range braceGroup.FindAllStringSubmatch(s, -1) {
		tag, name, ok := strings.Cut(m[1], ":")
		if !ok {
			parseErr = fmt.Errorf("%w: brace group %q", ErrMalformedFieldList, m[0])
			break
		}
		tag = strings.TrimSpace(tag)
		name = strings.TrimSpace(name)
		if name == "" {
			parseErr = fmt.Errorf("%w: brace group %q has no name", ErrMalformedFieldList, m[0])
			break
		}
		switch tag {
		case "condition":
			if choice.Condition != "" {
				parseErr = fmt.Errorf("%w: choice has two conditions", ErrDuplicateName)
			}
			choice.Condition = name
		case "test":
			if choice.Test != "" {
				parseErr = fmt.Errorf("%w: choice has two tests", ErrDuplicateName)
			}
			choice.Test = name
		case "result":
			if choice.Result != "" {
				parseErr = fmt.Errorf("%w: choice has two results", ErrDuplicateName)
			}
			choice.Result = name
		default:
			parseErr = fmt.Errorf("%w: %q in choice", ErrUnknownTag, tag)
		}
		if parseErr != nil {
			break
		}
	}
	if parseErr != nil {
		return Choice{}, parseErr
	}

	choice.Text = strings.TrimSpace(braceGroup.ReplaceAllString(s, ""))
	if choice.Text == "" {
		return Choice{}, fmt.Errorf("%w: choice has no display text", ErrMissingRequiredTag)
	}
	if choice.Test == "" && choice.Result == "" {
		return Choice{}, fmt.Errorf("%w: choice %q has neither test nor result", ErrMissingRequiredTag, choice.Text)
	}
	if choice.Test != "" && choice.Result != "" {
		return Choice{}, fmt.Errorf("%w: choice %q has both test and result", ErrMissingRequiredTag, choice.Text)
	}
	return choice, nil
}

// parseCondition parses "name; left; comparator; right".
func parseCondition(s string) (*Condition, error) {
	fields := splitFields(s)
	if len(fields) != 4 {
		return nil, fmt.Errorf("%w: condition wants 4 fields, got %d", ErrMalformedFieldList, len(fields))
	}
	cmp, err := eval.ParseComparison(fields[2])
	if err != nil {
		return nil, fmt.Errorf("%w: condition %q: %v", ErrMalformedFieldList, fields[0], err)
	}
	return &Condition{
		Name:       fields[0],
		Left:       fields[1],
		Comparison: cmp,
		Right:      fields[3],
	}, nil
}

// parseTest parses "name; left; comparator; right; success; failure".
func parseTest(s string) (*Test, error) {
	fields := splitFields(s)
	if len(fields) != 6 {
		return nil, fmt.Errorf("%w: test wants 6 fields, got %d", ErrMalformedFieldList, len(fields))
	}
	cmp, err := eval.ParseComparison(fields[2])
	if err != nil {
		return nil, fmt.Errorf("%w: test %q: %v", ErrMalformedFieldList, fields[0], err)
	}
	return &Test{
		Name:          fields[0],
		Left:          fields[1],
		Comparison:    cmp,
		Right:         fields[3],
		SuccessResult: fields[4],
		FailureResult: fields[5],
	}, nil
}

// parseResult parses "name; destination; (keyword; expression)*".
func parseResult(s string) (*Result, error) {
	fields := splitFields(s)
	if len(fields) < 2 || len(fields)%2 != 0 {
		return nil, fmt.Errorf("%w: result wants name, destination and keyword/expression pairs, got %d fields", ErrMalformedFieldList, len(fields))
	}
	result := &Result{
		Name:        fields[0],
		Destination: fields[1],
	}
	for i := 2; i < len(fields); i += 2 {
		result.Mutations = append(result.Mutations, Mutation{
			Keyword:    fields[i],
			Expression: fields[i+1],
		})
	}
	return result, nil
}
