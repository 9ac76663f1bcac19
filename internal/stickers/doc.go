// Package stickers resolves and evaluates per-song sticker values.
//
// Stickers are key/value pairs the server stores per song URI. The [Resolver]
// loads every value of a key with a single sticker search, so evaluating a
// playlist costs one round trip per distinct key regardless of catalogue size.
// The resulting [Table] answers lookups with an explicit present flag: a song
// without a sticker is absent, never an error.
//
// Well-known keys follow the schema written by common clients:
//   - rating      0..10
//   - like        0 (hate), 1 (neutral), 2 (love)
//   - playCount, skipCount
//   - lastPlayed, lastSkipped  unix seconds
//   - elapsed     seconds into the song when playback stopped
package stickers
