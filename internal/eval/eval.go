// Package eval evaluates the dice and arithmetic expression language used
// by adventure conditions, tests and result mutations.
//
// Evaluation runs in strict passes: every [keyword] token is substituted
// with its current record value first, then dice terms are resolved left to
// right, then integer arithmetic applies with the usual precedence
// (* and / over + and -) and parenthesized grouping.
package eval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adventurebook/server/internal/dice"
)

// ErrMalformedExpression indicates an expression that cannot be parsed.
var ErrMalformedExpression = errors.New("malformed expression")

// ErrDivisionByZero indicates a division by an evaluated zero.
var ErrDivisionByZero = errors.New("division by zero")

// ErrUndefinedRecord indicates a [keyword] token naming no known record.
var ErrUndefinedRecord = errors.New("undefined record")

// Lookup resolves a record keyword to its current numeric value. Lookups
// failing for unknown keywords should wrap or return ErrUndefinedRecord.
type Lookup func(keyword string) (int, error)

// Evaluate evaluates an expression string against the supplied record
// lookup and random source.
func Evaluate(input string, lookup Lookup, r dice.Roller) (int, error) {
	substituted, err := substitute(input, lookup)
	if err != nil {
		return 0, err
	}

	p := &parser{src: substituted, roller: r}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, fmt.Errorf("%w: unexpected %q in %q", ErrMalformedExpression, p.src[p.pos:], input)
	}
	return v, nil
}

// Compare evaluates two expressions and combines them with the comparator.
func Compare(left, right string, cmp Comparison, lookup Lookup, r dice.Roller) (bool, error) {
	l, err := Evaluate(left, lookup, r)
	if err != nil {
		return false, err
	}
	rv, err := Evaluate(right, lookup, r)
	if err != nil {
		return false, err
	}
	return cmp.Holds(l, rv), nil
}

// substitute replaces every [keyword] token with the looked-up record value.
func substitute(input string, lookup Lookup) (string, error) {
	if !strings.ContainsRune(input, '[') {
		if strings.ContainsRune(input, ']') {
			return "", fmt.Errorf("%w: unmatched ']' in %q", ErrMalformedExpression, input)
		}
		return input, nil
	}

	var b strings.Builder
	rest := input
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			break
		}
		end := strings.IndexByte(rest[open:], ']')
		if end < 0 {
			return "", fmt.Errorf("%w: unmatched '[' in %q", ErrMalformedExpression, input)
		}
		end += open

		keyword := strings.TrimSpace(rest[open+1 : end])
		if keyword == "" {
			return "", fmt.Errorf("%w: empty keyword in %q", ErrMalformedExpression, input)
		}
		if lookup == nil {
			return "", fmt.Errorf("%w: %q", ErrUndefinedRecord, keyword)
		}
		value, err := lookup(keyword)
		if err != nil {
			if errors.Is(err, ErrUndefinedRecord) {
				return "", fmt.Errorf("%w: %q", ErrUndefinedRecord, keyword)
			}
			return "", err
		}

		b.WriteString(rest[:open])
		b.WriteString(strconv.Itoa(value))
		rest = rest[end+1:]
	}
	if strings.ContainsRune(rest, ']') {
		return "", fmt.Errorf("%w: unmatched ']' in %q", ErrMalformedExpression, input)
	}
	b.WriteString(rest)
	return b.String(), nil
}

// parser walks the substituted expression, rolling dice as terms are
// reached so rolls happen in left-to-right string order.
type parser struct {
	src    string
	pos    int
	roller dice.Roller
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

// parseExpr handles + and -.
func (p *parser) parseExpr() (int, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v += rhs
		case '-':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v -= rhs
		default:
			return v, nil
		}
	}
}

// parseTerm handles * and /.
func (p *parser) parseTerm() (int, error) {
	v, err := p.parseKeep()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			rhs, err := p.parseKeep()
			if err != nil {
				return 0, err
			}
			v *= rhs
		case '/':
			p.pos++
			rhs, err := p.parseKeep()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("%w: in %q", ErrDivisionByZero, p.src)
			}
			v /= rhs
		default:
			return v, nil
		}
	}
}

// parseKeep handles the h/l keep-higher/keep-lower operators. Both sides
// roll independently; the fold is left to right.
func (p *parser) parseKeep() (int, error) {
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case 'h':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if rhs > v {
				v = rhs
			}
		case 'l':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if rhs < v {
				v = rhs
			}
		default:
			return v, nil
		}
	}
}

func (p *parser) parseUnary() (int, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (int, error) {
	switch c := p.peek(); {
	case c == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("%w: missing ')' in %q", ErrMalformedExpression, p.src)
		}
		p.pos++
		return v, nil
	case c >= '0' && c <= '9':
		return p.parseDice()
	case c == 0:
		return 0, fmt.Errorf("%w: unexpected end of %q", ErrMalformedExpression, p.src)
	default:
		return 0, fmt.Errorf("%w: unexpected %q in %q", ErrMalformedExpression, string(c), p.src)
	}
}

// parseDice parses a number optionally followed by a dice term:
// NdS, NdSpT, NdSqT or NxS.
func (p *parser) parseDice() (int, error) {
	count, err := p.parseNumber()
	if err != nil {
		return 0, err
	}

	var v int
	switch p.peek() {
	case 'd':
		p.pos++
		sides, err := p.parseNumber()
		if err != nil {
			return 0, err
		}
		switch p.peek() {
		case 'p':
			p.pos++
			threshold, err := p.parseNumber()
			if err != nil {
				return 0, err
			}
			v, err = dice.Pool(p.roller, count, sides, threshold)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrMalformedExpression, err)
			}
		case 'q':
			p.pos++
			threshold, err := p.parseNumber()
			if err != nil {
				return 0, err
			}
			v, err = dice.PoolLow(p.roller, count, sides, threshold)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrMalformedExpression, err)
			}
		default:
			v, err = dice.Sum(p.roller, count, sides)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrMalformedExpression, err)
			}
		}
		return v, nil
	case 'x':
		p.pos++
		sides, err := p.parseNumber()
		if err != nil {
			return 0, err
		}
		v, err = dice.Explode(p.roller, count, sides)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedExpression, err)
		}
		return v, nil
	}
	return count, nil
}

func (p *parser) parseNumber() (int, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("%w: expected number in %q", ErrMalformedExpression, p.src)
	}
	v, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedExpression, p.src[start:p.pos])
	}
	return v, nil
}
