// Package tasks runs dynamic playlist evaluation cycles with real-time progress reporting.
//
// # Pipeline
//
// [PlaylistEngine.Evaluate] is the read side of a cycle:
//
//  1. Compile : the rule tree becomes remote filter expressions plus a residual predicate
//     ([query.Compile]); fields the server does not index are reported as warnings
//  2. Query : candidates are fetched with find/search, or the whole catalogue is listed
//  3. Stickers : one sticker search per referenced key ([stickers.Resolver])
//  4. Order : the residual filters candidates, then [ordering.Apply] sorts or shuffles
//     and applies the limit
//
// [PlaylistEngine.Refresh] adds the write side: the [materializer.Materializer] turns the
// previous snapshot into the new sequence with one command list, and the result is
// recorded as a [models.RefreshRun]. The stored snapshot is only replaced after the
// server accepted every edit; a partially applied batch marks it dirty.
//
// [PlaylistEngine.BulkRefresh] refreshes many playlists with a rate limited worker pool.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
