package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/dynlist/internal/shared"
)

// Direction is the sort direction of an [OrderClause].
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// StickerFieldPrefix marks an order field that sorts by a sticker value.
const StickerFieldPrefix = "sticker:"

// OrderClause is one key of a multi-key sort.
type OrderClause struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// StickerKey returns the sticker key when the clause sorts by a sticker.
func (o OrderClause) StickerKey() (string, bool) {
	if key, ok := strings.CutPrefix(o.Field, StickerFieldPrefix); ok {
		return key, true
	}
	return "", false
}

// Snapshot is the ordered list of URIs last written to the stored playlist.
// Dirty marks a snapshot whose last write partially failed.
type Snapshot struct {
	URIs      []string
	Dirty     bool
	UpdatedAt time.Time
}

// Clone returns a copy that shares no backing array with s.
func (s Snapshot) Clone() Snapshot {
	s.URIs = slices.Clone(s.URIs)
	return s
}

// DynamicPlaylist is a named rule-defined view over the server catalogue.
type DynamicPlaylist struct {
	entity

	Name        string
	Description string
	Target      string // Stored playlist on the server, defaults to Name
	Rules       *Node  // nil selects the whole catalogue
	Order       []OrderClause
	Shuffle     bool
	Limit       *int
	Schedule    Schedule
	LastRefresh *time.Time
	Snapshot    Snapshot
	Revision    int64 // Bumped by the store on every definition write
}

// NewDynamicPlaylist creates a playlist with a manual schedule.
func NewDynamicPlaylist(name string, rules *Node) *DynamicPlaylist {
	return &DynamicPlaylist{
		entity:   newEntity(),
		Name:     name,
		Rules:    rules,
		Schedule: ManualSchedule(),
	}
}

// TargetName returns the stored playlist the engine writes to.
func (p *DynamicPlaylist) TargetName() string {
	if p.Target != "" {
		return p.Target
	}
	return p.Name
}

// SortStickerKeys returns sticker keys referenced by order clauses.
func (p *DynamicPlaylist) SortStickerKeys() []string {
	var keys []string
	for _, o := range p.Order {
		if key, ok := o.StickerKey(); ok && !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Validate checks the whole definition and reports every problem in one
// [shared.ValidationError].
func (p *DynamicPlaylist) Validate() error {
	verr := &shared.ValidationError{}

	if strings.TrimSpace(p.Name) == "" {
		verr.Add("name is required")
	}

	if p.Rules != nil {
		p.Rules.validate("rules", verr.Add)
	}

	if p.Limit != nil && *p.Limit <= 0 {
		verr.Add("limit must be positive, got %d", *p.Limit)
	}

	if p.Shuffle && len(p.Order) > 0 {
		verr.Add("order and shuffle are mutually exclusive")
	}

	for i, o := range p.Order {
		if strings.TrimSpace(o.Field) == "" {
			verr.Add("order[%d]: field is required", i)
		}
		if key, ok := o.StickerKey(); ok && strings.TrimSpace(key) == "" {
			verr.Add("order[%d]: sticker key is required", i)
		}
		if o.Direction != Ascending && o.Direction != Descending {
			verr.Add("order[%d]: direction must be %s or %s, got %q", i, Ascending, Descending, o.Direction)
		}
	}

	p.Schedule.validate(verr.Add)

	return verr.OrNil()
}

// CloneForEvaluation returns a deep copy used by one evaluation cycle.
func (p *DynamicPlaylist) CloneForEvaluation() *DynamicPlaylist {
	c := *p
	c.Rules = p.Rules.Clone()
	c.Order = slices.Clone(p.Order)
	if p.Limit != nil {
		limit := *p.Limit
		c.Limit = &limit
	}
	if p.LastRefresh != nil {
		last := *p.LastRefresh
		c.LastRefresh = &last
	}
	c.Snapshot = p.Snapshot.Clone()
	return &c
}

func (p *DynamicPlaylist) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.ID())
}
