// Package tui renders the server dashboard: one row per worker instance and
// a chart of the selected instance's mean ground-truth displacement.
package tui
