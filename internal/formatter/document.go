package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/desertthunder/dynlist/internal/models"
	"github.com/desertthunder/dynlist/internal/shared"
	"gopkg.in/yaml.v3"
)

// Document is the interchange form of a dynamic playlist. Snapshots, IDs and
// timestamps are not part of it.
type Document struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Target      string           `json:"target,omitempty" yaml:"target,omitempty"`
	Rules       *RuleDocument    `json:"rules,omitempty" yaml:"rules,omitempty"`
	Order       []OrderDocument  `json:"order,omitempty" yaml:"order,omitempty"`
	Shuffle     bool             `json:"shuffle,omitempty" yaml:"shuffle,omitempty"`
	Limit       *int             `json:"limit,omitempty" yaml:"limit,omitempty"`
	Schedule    ScheduleDocument `json:"schedule" yaml:"schedule"`
}

// RuleDocument is one node of the rule tree. Tag leaves use field, op, value
// and case_sensitive; sticker leaves use key, op and value; and/or/not nodes
// use children.
type RuleDocument struct {
	Type          string          `json:"type" yaml:"type"`
	Field         string          `json:"field,omitempty" yaml:"field,omitempty"`
	Key           string          `json:"key,omitempty" yaml:"key,omitempty"`
	Op            string          `json:"op,omitempty" yaml:"op,omitempty"`
	Value         string          `json:"value,omitempty" yaml:"value,omitempty"`
	CaseSensitive bool            `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty"`
	Children      []*RuleDocument `json:"children,omitempty" yaml:"children,omitempty"`
}

type OrderDocument struct {
	Field     string `json:"field" yaml:"field"`
	Direction string `json:"direction" yaml:"direction"`
}

// ScheduleDocument is either the string "manual" or an object with interval
// in seconds and anchor in unix seconds.
type ScheduleDocument struct {
	Manual   bool
	Interval int64
	Anchor   int64
}

const manualSchedule = "manual"

// maxIntervalSeconds is the longest interval that fits a time.Duration.
const maxIntervalSeconds = math.MaxInt64 / int64(time.Second)

type periodicDocument struct {
	Interval int64 `json:"interval" yaml:"interval"`
	Anchor   int64 `json:"anchor" yaml:"anchor"`
}

func (s ScheduleDocument) MarshalJSON() ([]byte, error) {
	if s.Manual {
		return json.Marshal(manualSchedule)
	}
	return json.Marshal(periodicDocument{Interval: s.Interval, Anchor: s.Anchor})
}

func (s *ScheduleDocument) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		return s.setName(name)
	}

	var p periodicDocument
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("schedule must be %q or {interval, anchor}: %w", manualSchedule, err)
	}
	*s = ScheduleDocument{Interval: p.Interval, Anchor: p.Anchor}
	return nil
}

func (s ScheduleDocument) MarshalYAML() (any, error) {
	if s.Manual {
		return manualSchedule, nil
	}
	return periodicDocument{Interval: s.Interval, Anchor: s.Anchor}, nil
}

func (s *ScheduleDocument) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return s.setName(value.Value)
	}

	var p periodicDocument
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("schedule must be %q or {interval, anchor}: %w", manualSchedule, err)
	}
	*s = ScheduleDocument{Interval: p.Interval, Anchor: p.Anchor}
	return nil
}

func (s *ScheduleDocument) setName(name string) error {
	if name != manualSchedule {
		return fmt.Errorf("unknown schedule %q", name)
	}
	*s = ScheduleDocument{Manual: true}
	return nil
}

// Export converts a playlist into its interchange document.
func Export(pl *models.DynamicPlaylist) Document {
	doc := Document{
		Name:        pl.Name,
		Description: pl.Description,
		Target:      pl.Target,
		Rules:       exportNode(pl.Rules),
		Shuffle:     pl.Shuffle,
		Schedule:    ScheduleDocument{Manual: true},
	}

	for _, o := range pl.Order {
		doc.Order = append(doc.Order, OrderDocument{Field: o.Field, Direction: string(o.Direction)})
	}
	if pl.Limit != nil {
		limit := *pl.Limit
		doc.Limit = &limit
	}
	if !pl.Schedule.IsManual() {
		doc.Schedule = ScheduleDocument{
			Interval: int64(pl.Schedule.Interval / time.Second),
			Anchor:   pl.Schedule.Anchor.Unix(),
		}
	}
	return doc
}

func exportNode(n *models.Node) *RuleDocument {
	if n == nil {
		return nil
	}

	r := &RuleDocument{Type: string(n.Type)}
	switch n.Type {
	case models.NodeTag:
		if n.Tag != nil {
			r.Field = n.Tag.Field
			r.Op = string(n.Tag.Op)
			r.Value = n.Tag.Value
			r.CaseSensitive = n.Tag.CaseSensitive
		}
	case models.NodeSticker:
		if n.Sticker != nil {
			r.Key = n.Sticker.Key
			r.Op = string(n.Sticker.Op)
			r.Value = n.Sticker.Value
		}
	}
	for _, c := range n.Children {
		r.Children = append(r.Children, exportNode(c))
	}
	return r
}

// MarshalRules encodes a rule tree in its interchange form, the shape of a
// document's rules attribute.
func MarshalRules(n *models.Node) ([]byte, error) {
	data, err := json.Marshal(exportNode(n))
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	return data, nil
}

// UnmarshalRules decodes a rule tree written by [MarshalRules]. Unknown
// attributes and leaves with attributes of the wrong kind are rejected; the
// tree itself is not validated.
func UnmarshalRules(data []byte) (*models.Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc *RuleDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("invalid rules: unexpected data after offset %d", dec.InputOffset())
	}

	verr := &shared.ValidationError{}
	n := importNode(doc, "rules", verr.Add)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return n, nil
}

// Import builds a playlist from a document. Any problem rejects the whole
// document with a [shared.ImportError]; nothing is partially applied.
func Import(doc Document) (*models.DynamicPlaylist, error) {
	verr := &shared.ValidationError{}

	rules := importNode(doc.Rules, "rules", verr.Add)
	pl := models.NewDynamicPlaylist(doc.Name, rules)
	pl.Description = doc.Description
	pl.Target = doc.Target
	pl.Shuffle = doc.Shuffle

	for _, o := range doc.Order {
		pl.Order = append(pl.Order, models.OrderClause{Field: o.Field, Direction: models.Direction(o.Direction)})
	}
	if doc.Limit != nil {
		limit := *doc.Limit
		pl.Limit = &limit
	}

	s := doc.Schedule
	switch {
	case s.Manual:
	case s.Interval == 0 && s.Anchor == 0:
		verr.Add("schedule: missing, use %q or {interval, anchor}", manualSchedule)
	case s.Interval <= 0:
		verr.Add("schedule: interval must be positive, got %d", s.Interval)
	case s.Interval > maxIntervalSeconds:
		verr.Add("schedule: interval %d seconds is too large, at most %d", s.Interval, maxIntervalSeconds)
	default:
		pl.Schedule = models.Periodic(time.Duration(s.Interval)*time.Second, time.Unix(s.Anchor, 0))
	}

	if err := verr.OrNil(); err != nil {
		return nil, &shared.ImportError{Err: err}
	}
	if err := pl.Validate(); err != nil {
		return nil, &shared.ImportError{Err: err}
	}
	return pl, nil
}

func importNode(r *RuleDocument, path string, add func(string, ...any)) *models.Node {
	if r == nil {
		return nil
	}

	n := &models.Node{Type: models.NodeType(r.Type)}
	switch n.Type {
	case models.NodeTag:
		if r.Key != "" {
			add("%s: tag rule has a sticker key", path)
		}
		n.Tag = &models.TagQuery{Field: r.Field, Op: models.Op(r.Op), Value: r.Value, CaseSensitive: r.CaseSensitive}
	case models.NodeSticker:
		if r.Field != "" || r.CaseSensitive {
			add("%s: sticker rule has tag attributes", path)
		}
		n.Sticker = &models.StickerCondition{Key: r.Key, Op: models.Op(r.Op), Value: r.Value}
	case models.NodeAnd, models.NodeOr, models.NodeNot:
		if r.Field != "" || r.Key != "" || r.Op != "" || r.Value != "" {
			add("%s: %s node has leaf attributes", path, r.Type)
		}
	}

	for i, c := range r.Children {
		n.Children = append(n.Children, importNode(c, fmt.Sprintf("%s.children[%d]", path, i), add))
	}
	return n
}
