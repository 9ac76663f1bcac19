package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NodeType tags the variant held by a [Node].
type NodeType string

const (
	NodeTag     NodeType = "tag"
	NodeSticker NodeType = "sticker"
	NodeAnd     NodeType = "and"
	NodeOr      NodeType = "or"
	NodeNot     NodeType = "not"
)

// Op is a comparison operator used by tag and sticker leaves.
type Op string

const (
	OpEqual      Op = "=="
	OpNotEqual   Op = "!="
	OpLess       Op = "<"
	OpLessEq     Op = "<="
	OpGreater    Op = ">"
	OpGreaterEq  Op = ">="
	OpContains   Op = "contains"
	OpStartsWith Op = "starts_with"
	OpRegex      Op = "=~"
	OpNotRegex   Op = "!~"
	OpExists     Op = "exists"
	OpWithin     Op = "within"
)

// Special tag fields understood in addition to the server's tag types.
const (
	FieldFile     = "file"
	FieldBase     = "base"
	FieldAny      = "any"
	FieldModified = "modified"
)

var tagOps = map[Op]bool{
	OpEqual: true, OpNotEqual: true, OpContains: true, OpStartsWith: true,
	OpRegex: true, OpNotRegex: true, OpWithin: true,
}

var stickerOps = map[Op]bool{
	OpEqual: true, OpNotEqual: true, OpLess: true, OpLessEq: true, OpGreater: true,
	OpGreaterEq: true, OpContains: true, OpStartsWith: true, OpExists: true, OpWithin: true,
}

// TagQuery is a leaf matching a song tag against a value.
type TagQuery struct {
	Field         string `json:"field"`
	Op            Op     `json:"op"`
	Value         string `json:"value"`
	CaseSensitive bool   `json:"case_sensitive"`
}

// StickerCondition is a leaf matching a per-song sticker value.
type StickerCondition struct {
	Key   string `json:"key"`
	Op    Op     `json:"op"`
	Value string `json:"value"`
}

// Node is one element of a filter tree. Leaves carry exactly one of Tag or
// Sticker; and/or/not nodes carry Children.
type Node struct {
	Type     NodeType          `json:"type"`
	Tag      *TagQuery         `json:"tag,omitempty"`
	Sticker  *StickerCondition `json:"sticker,omitempty"`
	Children []*Node           `json:"children,omitempty"`
}

// Tag builds a tag leaf.
func Tag(field string, op Op, value string, caseSensitive bool) *Node {
	return &Node{Type: NodeTag, Tag: &TagQuery{Field: field, Op: op, Value: value, CaseSensitive: caseSensitive}}
}

// Sticker builds a sticker leaf.
func Sticker(key string, op Op, value string) *Node {
	return &Node{Type: NodeSticker, Sticker: &StickerCondition{Key: key, Op: op, Value: value}}
}

func And(children ...*Node) *Node { return &Node{Type: NodeAnd, Children: children} }
func Or(children ...*Node) *Node  { return &Node{Type: NodeOr, Children: children} }
func Not(child *Node) *Node       { return &Node{Type: NodeNot, Children: []*Node{child}} }

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the children of the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// StickerKeys returns the distinct sticker keys referenced by the tree, in first-seen order.
func (n *Node) StickerKeys() []string {
	seen := map[string]bool{}
	var keys []string
	n.Walk(func(node *Node) bool {
		if node.Type == NodeSticker && node.Sticker != nil && !seen[node.Sticker.Key] {
			seen[node.Sticker.Key] = true
			keys = append(keys, node.Sticker.Key)
		}
		return true
	})
	return keys
}

// Clone returns a deep copy of the tree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Type: n.Type}
	if n.Tag != nil {
		tag := *n.Tag
		c.Tag = &tag
	}
	if n.Sticker != nil {
		st := *n.Sticker
		c.Sticker = &st
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// validate appends every structural problem under path to verr-style problems.
func (n *Node) validate(path string, add func(string, ...any)) {
	if n == nil {
		add("%s: node is empty", path)
		return
	}

	switch n.Type {
	case NodeTag:
		if n.Tag == nil || n.Sticker != nil || len(n.Children) > 0 {
			add("%s: tag node must carry only a tag query", path)
			return
		}
		q := n.Tag
		if strings.TrimSpace(q.Field) == "" {
			add("%s: tag field is required", path)
		}
		if !tagOps[q.Op] {
			add("%s: unknown tag operator %q", path, q.Op)
			return
		}
		switch q.Op {
		case OpRegex, OpNotRegex:
			if _, err := regexp.Compile(q.Value); err != nil {
				add("%s: invalid regular expression %q: %v", path, q.Value, err)
			}
		case OpWithin:
			if !strings.EqualFold(q.Field, FieldModified) {
				add("%s: within is only valid on the %s field", path, FieldModified)
			}
			if _, err := ParseWindow(q.Value); err != nil {
				add("%s: %v", path, err)
			}
		}
	case NodeSticker:
		if n.Sticker == nil || n.Tag != nil || len(n.Children) > 0 {
			add("%s: sticker node must carry only a sticker condition", path)
			return
		}
		c := n.Sticker
		if strings.TrimSpace(c.Key) == "" {
			add("%s: sticker key is required", path)
		}
		if !stickerOps[c.Op] {
			add("%s: unknown sticker operator %q", path, c.Op)
			return
		}
		if c.Op == OpWithin {
			if _, err := ParseWindow(c.Value); err != nil {
				add("%s: %v", path, err)
			}
		}
	case NodeAnd, NodeOr:
		if n.Tag != nil || n.Sticker != nil {
			add("%s: %s node must not carry a leaf payload", path, n.Type)
		}
		if len(n.Children) < 2 {
			add("%s: %s node needs at least two children, has %d", path, n.Type, len(n.Children))
		}
		for i, c := range n.Children {
			c.validate(fmt.Sprintf("%s.children[%d]", path, i), add)
		}
	case NodeNot:
		if n.Tag != nil || n.Sticker != nil {
			add("%s: not node must not carry a leaf payload", path)
		}
		if len(n.Children) != 1 {
			add("%s: not node needs exactly one child, has %d", path, len(n.Children))
		}
		for i, c := range n.Children {
			c.validate(fmt.Sprintf("%s.children[%d]", path, i), add)
		}
	default:
		add("%s: unknown node type %q", path, n.Type)
	}
}

// ParseWindow parses the value of a within condition. Besides Go durations
// ("36h", "90m") it accepts whole days and weeks ("7d", "2w").
func ParseWindow(value string) (time.Duration, error) {
	v := strings.TrimSpace(value)
	var d time.Duration
	var err error
	switch {
	case strings.HasSuffix(v, "d"), strings.HasSuffix(v, "w"):
		unit := 24 * time.Hour
		if strings.HasSuffix(v, "w") {
			unit *= 7
		}
		var n int
		n, err = strconv.Atoi(v[:len(v)-1])
		d = time.Duration(n) * unit
	default:
		d, err = time.ParseDuration(v)
	}
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("within value %q is not a positive duration", value)
	}
	return d, nil
}
