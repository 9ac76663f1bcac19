package stickers

import (
	"strconv"
	"time"
)

const (
	KeyRating      = "rating"
	KeyLike        = "like"
	KeyPlayCount   = "playCount"
	KeySkipCount   = "skipCount"
	KeyLastPlayed  = "lastPlayed"
	KeyLastSkipped = "lastSkipped"
	KeyElapsed     = "elapsed"
)

// Like values.
const (
	Hate    = 0
	Neutral = 1
	Love    = 2
)

// WellKnown lists the keys written by common clients.
var WellKnown = []string{KeyRating, KeyLike, KeyPlayCount, KeySkipCount, KeyLastPlayed, KeyLastSkipped, KeyElapsed}

// Lookup returns a song's sticker value for key and whether it is present.
type Lookup func(key string) (string, bool)

// None is a Lookup for songs without stickers.
func None(string) (string, bool) { return "", false }

// Int reads an integer sticker.
func Int(lookup Lookup, key string) (int64, bool) {
	v, ok := lookup(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Time reads a unix-seconds sticker such as lastPlayed.
func Time(lookup Lookup, key string) (time.Time, bool) {
	n, ok := Int(lookup, key)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(n, 0).UTC(), true
}

func Rating(lookup Lookup) (int64, bool)         { return Int(lookup, KeyRating) }
func Like(lookup Lookup) (int64, bool)           { return Int(lookup, KeyLike) }
func PlayCount(lookup Lookup) (int64, bool)      { return Int(lookup, KeyPlayCount) }
func SkipCount(lookup Lookup) (int64, bool)      { return Int(lookup, KeySkipCount) }
func LastPlayed(lookup Lookup) (time.Time, bool) { return Time(lookup, KeyLastPlayed) }
func LastSkipped(lookup Lookup) (time.Time, bool) {
	return Time(lookup, KeyLastSkipped)
}
