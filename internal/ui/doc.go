// Package ui renders terminal output for the dynlist CLI with lipgloss.
//
// A package-level [Palette] provides the title, success, error, warning and help
// styles, exposed through [Title], [OK], [Err], [Warn] and [Help]. [State] colors
// scheduler states and run statuses consistently across commands.
//
// [Table] draws bordered tables for playlist and run listings, and [KeyValues]
// aligns detail views such as `playlist show`.
//
// Colors degrade automatically when output is not a terminal.
package ui
