// Package services implements the [Library] interface over the MPD protocol.
//
// # Connection
//
// [MPD] owns a single protocol connection. One goroutine holds the
// [mpd.Client]; callers submit closures over a channel and wait for the reply,
// so remote calls from concurrent refresh cycles are serialized. A token
// bucket limiter sits in front of the queue. The context passed to each call
// only bounds the time spent waiting for the limiter and the queue: a command
// that reached the connection runs to completion.
//
// # Errors
//
// When a command fails the connection is pinged. A failed ping means the
// transport is gone: the client is closed, the error is wrapped with
// [shared.ErrRemoteConnection], and the next call dials again. Otherwise the
// server rejected the command; for command lists this is reported as a
// [shared.PartialBatchError].
//
// # Metrics
//
// [Metrics] counts requests per command and outcome, observes their latency,
// and counts reconnects.
package services
