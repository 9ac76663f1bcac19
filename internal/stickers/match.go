package stickers

import (
	"strings"
	"time"

	"github.com/desertthunder/dynlist/internal/models"
)

// Match evaluates a sticker condition against one song's value. An absent
// sticker satisfies only != ; exists tests presence.
func Match(c *models.StickerCondition, value string, present bool, now time.Time) bool {
	if c.Op == models.OpExists {
		return present
	}
	if !present {
		return c.Op == models.OpNotEqual
	}

	switch c.Op {
	case models.OpEqual:
		return Compare(value, c.Value) == 0
	case models.OpNotEqual:
		return Compare(value, c.Value) != 0
	case models.OpLess:
		return Compare(value, c.Value) < 0
	case models.OpLessEq:
		return Compare(value, c.Value) <= 0
	case models.OpGreater:
		return Compare(value, c.Value) > 0
	case models.OpGreaterEq:
		return Compare(value, c.Value) >= 0
	case models.OpContains:
		return strings.Contains(value, c.Value)
	case models.OpStartsWith:
		return strings.HasPrefix(value, c.Value)
	case models.OpWithin:
		window, err := models.ParseWindow(c.Value)
		if err != nil {
			return false
		}
		ts, ok := Time(func(string) (string, bool) { return value, true }, c.Key)
		if !ok {
			return false
		}
		return !ts.After(now) && now.Sub(ts) <= window
	}
	return false
}
