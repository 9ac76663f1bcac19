package stickers

import (
	"cmp"
	"strconv"
	"strings"
)

// Compare orders two values. Values that parse as numbers sort before all
// other values and compare numerically; the rest compare lexically. Mixed
// tags such as "9", "10" and "2/12" therefore sort the same way whatever
// order they arrive in.
func Compare(a, b string) int {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(fa, fb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}
