package query

import (
	"strings"
	"time"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/stickers"
)

// Match evaluates the full tree against one track. lookup resolves the
// track's sticker values.
func (p *Plan) Match(t *models.Track, lookup func(key string) (string, bool), now time.Time) bool {
	if p.Root == nil {
		return true
	}
	if lookup == nil {
		lookup = stickers.None
	}
	return p.eval(p.Root, t, lookup, now)
}

func (p *Plan) eval(n *models.Node, t *models.Track, lookup func(string) (string, bool), now time.Time) bool {
	switch n.Type {
	case models.NodeAnd:
		for _, c := range n.Children {
			if !p.eval(c, t, lookup, now) {
				return false
			}
		}
		return true
	case models.NodeOr:
		for _, c := range n.Children {
			if p.eval(c, t, lookup, now) {
				return true
			}
		}
		return false
	case models.NodeNot:
		return len(n.Children) == 1 && !p.eval(n.Children[0], t, lookup, now)
	case models.NodeSticker:
		value, present := lookup(n.Sticker.Key)
		return stickers.Match(n.Sticker, value, present, now)
	case models.NodeTag:
		if p.unsupported[n] {
			return false
		}
		return p.evalTag(n, t, now)
	}
	return false
}

func (p *Plan) evalTag(n *models.Node, t *models.Track, now time.Time) bool {
	q := n.Tag
	field := strings.ToLower(q.Field)

	if q.Op == models.OpWithin {
		window, err := models.ParseWindow(q.Value)
		if err != nil || t.LastModified.IsZero() || t.LastModified.After(now) {
			return false
		}
		return now.Sub(t.LastModified) <= window
	}

	// base is recursive, as on the server.
	if field == models.FieldBase && (q.Op == models.OpEqual || q.Op == models.OpNotEqual) {
		return t.InBase(q.Value) != (q.Op == models.OpNotEqual)
	}

	positive, negated := q.Op, false
	switch q.Op {
	case models.OpNotEqual:
		positive, negated = models.OpEqual, true
	case models.OpNotRegex:
		positive, negated = models.OpRegex, true
	}

	var hit bool
	if field == models.FieldAny {
		for k, v := range t.Tags {
			if p.schema.IsTag(k) && p.matchValue(n, positive, v) {
				hit = true
				break
			}
		}
	} else if v, ok := t.Value(field); ok {
		hit = p.matchValue(n, positive, v)
	}

	return hit != negated
}

func (p *Plan) matchValue(n *models.Node, op models.Op, value string) bool {
	q := n.Tag
	if op == models.OpRegex {
		re := p.patterns[n]
		return re != nil && re.MatchString(value)
	}

	want := q.Value
	if !q.CaseSensitive && !pathField(q.Field) {
		value, want = strings.ToLower(value), strings.ToLower(want)
	}
	switch op {
	case models.OpEqual:
		return value == want
	case models.OpContains:
		return strings.Contains(value, want)
	case models.OpStartsWith:
		return strings.HasPrefix(value, want)
	}
	return false
}

// pathField reports fields compared as paths, always case-sensitively.
func pathField(field string) bool {
	f := strings.ToLower(field)
	return f == models.FieldFile || f == models.FieldBase
}
