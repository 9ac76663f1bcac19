// Package server provides the HTTP control API of the dynlist daemon.
//
// # Routes
//
//	GET  /healthz                    daemon and music server health
//	GET  /playlists                  playlists with schedule state and snapshot size
//	POST /playlists/{name}/refresh   request a manual refresh (no-op while one runs)
//	GET  /playlists/{name}/document  interchange document, ?format=json|yaml
//	PUT  /playlists/{name}/document  replace the definition, JSON or YAML body
//	GET  /playlists/{name}/runs      recent refresh runs, ?limit=N
//	GET  /metrics                    Prometheus metrics
//
// # Router Infrastructure
//
// Routing uses chi. [Middleware] has the standard func(http.Handler) http.Handler shape,
// so chi's own middleware and [RequestLogger] compose directly.
// Recovery and request IDs are always installed.
//
// A manual refresh is asynchronous: the handler asks the scheduler to run a cycle and
// returns 202 Accepted, or 200 with started=false when the playlist is already running.
//
// Definition edits go through [Scheduler] Edit. A playlist with a running cycle keeps
// its old definition until the cycle ends; the request then returns 202 with queued=true.
package server
