// Package materializer writes evaluated playlists into stored playlists on the server.
//
// [Plan] turns the previous snapshot and the new URI sequence into a list of
// stored-playlist edits. The list is derived from the longest common
// subsequence of the two sequences:
//
//  1. songs outside the common subsequence are deleted, highest position first
//  2. missing songs are appended and, unless they belong at the tail, moved into place
//
// A full clear-and-rewrite replaces the edit list when it would cost more
// commands than rewriting, when the snapshot is dirty, or when the stored
// playlist no longer matches the snapshot. [Materializer.Sync] sends the edits
// as one command list and returns the new snapshot.
package materializer
