package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/shared"
)

// RemoteQuery is one server filter expression. Case-sensitive queries run as
// find, the others as search.
type RemoteQuery struct {
	Expression    string
	CaseSensitive bool
}

// Plan is a compiled filter tree.
type Plan struct {
	Root        *models.Node
	Queries     []RemoteQuery
	FullScan    bool // nothing could be pushed; list the whole catalogue
	Empty       bool // a top-level conjunct is always false
	StickerKeys []string
	Unsupported []*shared.UnsupportedFieldError

	schema      Schema
	unsupported map[*models.Node]bool
	patterns    map[*models.Node]*regexp.Regexp
}

// Compile translates the pushable part of root into remote queries. A nil
// root selects the whole catalogue.
func Compile(root *models.Node, schema Schema) *Plan {
	p := &Plan{
		Root:        root,
		schema:      schema,
		unsupported: map[*models.Node]bool{},
		patterns:    map[*models.Node]*regexp.Regexp{},
	}
	if root == nil {
		p.FullScan = true
		return p
	}

	reported := map[string]bool{}
	root.Walk(func(n *models.Node) bool {
		if n.Type != models.NodeTag || n.Tag == nil {
			return true
		}
		q := n.Tag
		if !schema.Known(q.Field) {
			p.unsupported[n] = true
			if key := strings.ToLower(q.Field); !reported[key] {
				reported[key] = true
				p.Unsupported = append(p.Unsupported, &shared.UnsupportedFieldError{Field: q.Field})
			}
			return true
		}
		if q.Op == models.OpRegex || q.Op == models.OpNotRegex {
			pattern := q.Value
			if !q.CaseSensitive {
				pattern = "(?i)" + pattern
			}
			if re, err := regexp.Compile(pattern); err == nil {
				p.patterns[n] = re
			}
		}
		return true
	})
	p.StickerKeys = root.StickerKeys()

	var sensitive, insensitive []string
	for _, c := range conjuncts(root) {
		if c.Type != models.NodeTag {
			continue
		}
		if p.unsupported[c] {
			p.Empty = true
			continue
		}
		term, ok := p.term(c.Tag)
		if !ok {
			continue
		}
		if c.Tag.CaseSensitive {
			sensitive = append(sensitive, term)
		} else {
			insensitive = append(insensitive, term)
		}
	}

	if p.Empty {
		return p
	}
	if len(sensitive) > 0 {
		p.Queries = append(p.Queries, RemoteQuery{Expression: join(sensitive), CaseSensitive: true})
	}
	if len(insensitive) > 0 {
		p.Queries = append(p.Queries, RemoteQuery{Expression: join(insensitive), CaseSensitive: false})
	}
	p.FullScan = len(p.Queries) == 0
	return p
}

// conjuncts flattens nested and nodes below the root.
func conjuncts(n *models.Node) []*models.Node {
	if n.Type != models.NodeAnd {
		return []*models.Node{n}
	}
	var out []*models.Node
	for _, c := range n.Children {
		out = append(out, conjuncts(c)...)
	}
	return out
}

// term renders a tag query as a filter expression when the server can
// evaluate it, or a superset of it.
func (p *Plan) term(q *models.TagQuery) (string, bool) {
	if q.Value == "" {
		return "", false
	}
	field := strings.ToLower(q.Field)
	value := quote(q.Value)

	switch field {
	case models.FieldModified:
		return "", false
	case models.FieldBase:
		if q.Op != models.OpEqual {
			return "", false
		}
		return fmt.Sprintf("(base %s)", value), true
	case models.FieldFile:
		if q.Op != models.OpEqual {
			return "", false
		}
		return fmt.Sprintf("(file == %s)", value), true
	}

	name := p.schema.remoteName(field)
	switch q.Op {
	case models.OpEqual:
		return fmt.Sprintf("(%s == %s)", name, value), true
	case models.OpContains, models.OpStartsWith:
		return fmt.Sprintf("(%s contains %s)", name, value), true
	}
	return "", false
}

func join(terms []string) string {
	if len(terms) == 1 {
		return terms[0]
	}
	return "(" + strings.Join(terms, " AND ") + ")"
}

// quote escapes a value for a filter expression string literal.
func quote(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(v) + `"`
}

func (p *Plan) String() string {
	switch {
	case p.Empty:
		return "empty (always-false conjunct)"
	case p.FullScan:
		return "full scan"
	}
	parts := make([]string, len(p.Queries))
	for i, q := range p.Queries {
		cmd := "search"
		if q.CaseSensitive {
			cmd = "find"
		}
		parts[i] = cmd + " " + q.Expression
	}
	return strings.Join(parts, " ∩ ")
}
