package eval

import "fmt"

// Comparison is one of the closed set of comparators combining two
// evaluated expressions into a boolean.
type Comparison int

const (
	Greater Comparison = iota
	GreaterEqual
	Less
	LessEqual
	Equal
	NotEqual
)

// ParseComparison parses a comparator token. Unrecognized text is an error;
// conditions and tests must not silently fall back to a default comparator.
func ParseComparison(s string) (Comparison, error) {
	switch s {
	case ">":
		return Greater, nil
	case ">=":
		return GreaterEqual, nil
	case "<":
		return Less, nil
	case "<=":
		return LessEqual, nil
	case "=":
		return Equal, nil
	case "!":
		return NotEqual, nil
	}
	return 0, fmt.Errorf("%w: unknown comparator %q", ErrMalformedExpression, s)
}

func (c Comparison) String() string {
	switch c {
	case Greater:
		return ">"
	case GreaterEqual:
		return ">="
	case Less:
		return "<"
	case LessEqual:
		return "<="
	case Equal:
		return "="
	case NotEqual:
		return "!"
	default:
		return "?"
	}
}

// Holds reports whether left and right satisfy the comparison.
func (c Comparison) Holds(left, right int) bool {
	switch c {
	case Greater:
		return left > right
	case GreaterEqual:
		return left >= right
	case Less:
		return left < right
	case LessEqual:
		return left <= right
	case Equal:
		return left == right
	case NotEqual:
		return left != right
	default:
		return false
	}
}
