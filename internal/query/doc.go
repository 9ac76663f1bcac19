// Package query compiles a filter tree into remote queries plus a residual predicate.
//
// Only tag leaves that are top-level conjuncts of the tree are translated into
// server filter expressions. Everything else (disjunctions, negations, sticker
// conditions, regular expressions) stays client-side. The residual predicate
// always evaluates the full tree, so the remote queries only need to return a
// superset of the matching songs:
//
//	plan := query.Compile(playlist.Rules, schema)
//	tracks, err := query.Candidates(ctx, catalog, plan)
//	for _, t := range tracks {
//		if plan.Match(t, table.Lookup(t.URI), now) { ... }
//	}
package query
