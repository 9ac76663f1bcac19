package testing

import (
	"fmt"
	"strings"

	"github.com/desertthunder/dynlist/internal/models"
)

// filter is a parsed server filter expression. fold selects search
// semantics, where tag comparisons ignore case.
type filter func(t *models.Track, fold bool) bool

// parseFilter parses the subset of the server filter grammar the query
// compiler emits: "(TAG == 'v')", "(TAG != 'v')", "(TAG contains 'v')",
// "(base 'dir')" and "(E1 AND E2 ...)", with double-quoted values.
func parseFilter(expr string) (filter, error) {
	p := &filterParser{src: expr}
	f, err := p.expr()
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", expr, err)
	}
	if p.skip(); p.pos != len(p.src) {
		return nil, fmt.Errorf("filter %q: trailing input at %d", expr, p.pos)
	}
	return f, nil
}

type filterParser struct {
	src string
	pos int
}

func (p *filterParser) skip() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *filterParser) peek() byte {
	p.skip()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *filterParser) expect(c byte) error {
	if p.peek() != c {
		return fmt.Errorf("expected %q at %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *filterParser) word() string {
	p.skip()
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune(` ()"`, rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *filterParser) quoted() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case '\\':
			if p.pos >= len(p.src) {
				return "", fmt.Errorf("dangling escape")
			}
			b.WriteByte(p.src[p.pos])
			p.pos++
		case '"':
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *filterParser) expr() (filter, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}

	if p.peek() == '(' {
		var parts []filter
		for {
			f, err := p.expr()
			if err != nil {
				return nil, err
			}
			parts = append(parts, f)
			if p.peek() == ')' {
				p.pos++
				break
			}
			if w := p.word(); w != "AND" {
				return nil, fmt.Errorf("expected AND, got %q", w)
			}
		}
		return func(t *models.Track, fold bool) bool {
			for _, f := range parts {
				if !f(t, fold) {
					return false
				}
			}
			return true
		}, nil
	}

	field := p.word()
	if field == "base" {
		dir, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return func(t *models.Track, _ bool) bool { return t.InBase(dir) }, p.expect(')')
	}

	op := p.word()
	value, err := p.quoted()
	if err != nil {
		return nil, err
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}

	var cmp func(got, want string) bool
	switch op {
	case "==":
		cmp = func(got, want string) bool { return got == want }
	case "!=":
		cmp = func(got, want string) bool { return got != want }
	case "contains":
		cmp = strings.Contains
	default:
		return nil, fmt.Errorf("unsupported operator %q", op)
	}

	return func(t *models.Track, fold bool) bool {
		for _, v := range tagValues(t, field) {
			want := value
			if fold {
				v, want = strings.ToLower(v), strings.ToLower(want)
			}
			if cmp(v, want) {
				return true
			}
		}
		return false
	}, nil
}

// tagValues returns the values a filter on field compares against.
func tagValues(t *models.Track, field string) []string {
	switch f := strings.ToLower(field); f {
	case models.FieldFile:
		return []string{t.URI}
	case models.FieldAny:
		var out []string
		for k, v := range t.Tags {
			if k != "file" && k != "last-modified" {
				out = append(out, v)
			}
		}
		return out
	default:
		if v, ok := t.Tags[f]; ok {
			return []string{v}
		}
		return nil
	}
}
