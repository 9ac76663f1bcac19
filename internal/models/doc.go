// Package models defines domain entities and persistence interfaces for dynlist.
//
// The package contains three categories of types:
//
// 1. Rule Model: the definition of a dynamic playlist
//   - [DynamicPlaylist] : Named rule tree with ordering, limit, schedule and cached snapshot
//   - [Node] : Boolean filter tree over [TagQuery] and [StickerCondition] leaves
//   - [OrderClause] : One sort key, a tag field or a sticker:<key> reference
//   - [Schedule] : Manual or periodic (interval + anchor) re-evaluation
//
// 2. Run records: history of evaluation cycles
//   - [RefreshRun] : Trigger, outcome, counts and error of one cycle
//   - [Snapshot] : Ordered URIs last written to the stored playlist
//
// 3. Transfer types shared by the pipeline stages
//   - [Track] : Song URI with lowercased tags as reported by the server
//   - [PlaylistEdit] : One stored-playlist edit produced by the materializer
//
// All persistent entities implement the Model interface providing ID, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
