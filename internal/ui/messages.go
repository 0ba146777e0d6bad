// Package ui provides the Bubble Tea TUI for CNJP.
package ui

import "github.com/caisiyang/CNJP/internal/engine"

// EngineEvent wraps an engine notification for delivery through the
// program's message loop.
type EngineEvent struct {
	Event engine.Event
}

// PipelineCommitted is sent when a debounced search query has been
// committed and the list must be re-derived.
type PipelineCommitted struct{}

// refreshFinished is sent when a manual refresh command returns.
type refreshFinished struct{}

// favoriteToggled is sent after a favorite write completes.
type favoriteToggled struct {
	Link  string
	Saved bool
	Err   error
}
