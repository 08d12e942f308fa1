// Package coding implements the medical-coding assistants: the
// patient-keyed observer that codes the loaded clinical context, and the
// session-keyed strategist that codes free-text input behind a debounce.
package coding

import (
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/platform/fsm"
)

// Shared assistant states. DEBOUNCING and FAILURE are strategist-only.
const (
	StateIdle       = "IDLE"
	StateDebouncing = "DEBOUNCING"
	StateAnalyzing  = "ANALYZING"
	StateSuggesting = "SUGGESTING"
	StateSilent     = "SILENT"
	StateFailure    = "FAILURE"
)

// DefaultMinConfidence is the suggestion display threshold when the
// configuration does not override it.
const DefaultMinConfidence = 0.4

// Suggestion is one proposed billing code. Confidence is in [0, 1].
type Suggestion struct {
	Code       string  `json:"code"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Context is the assistant's extended state.
type Context struct {
	Input       string       `json:"input"`
	Suggestions []Suggestion `json:"suggestions"`
	LastError   string       `json:"lastError,omitempty"`
}

// Snapshot is the immutable view returned by every transition.
type Snapshot = fsm.Snapshot[Context]

// SessionView is the strategist snapshot served over HTTP, with the display
// decision already made.
type SessionView struct {
	Snapshot
	ShouldDisplay bool `json:"shouldDisplay"`
}

func emptyContext() Context {
	return Context{Suggestions: []Suggestion{}}
}

func maxConfidence(suggestions []Suggestion) float64 {
	var max float64
	for _, s := range suggestions {
		if s.Confidence > max {
			max = s.Confidence
		}
	}
	return max
}

func cloneSuggestions(suggestions []Suggestion) []Suggestion {
	out := make([]Suggestion, len(suggestions))
	copy(out, suggestions)
	return out
}
