package coding

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Strategist is the session-keyed assistant:
//
//	IDLE -> DEBOUNCING -> ANALYZING -> SUGGESTING | SILENT | FAILURE
//
// Input updates are legal from every state: each one stores the text, bumps
// the session generation and re-arms the debounce timer. Only the timer fire
// and the analysis completion carrying the current generation are applied;
// anything older is a stale completion and is dropped without a transition.
type Strategist struct {
	mu        sync.Mutex
	state     string
	context   Context
	updatedAt time.Time
	gen       uint64
	timer     Timer

	ctx       context.Context
	clock     Clock
	analyzer  AnalysisProvider
	debounce  time.Duration
	threshold float64
	logger    zerolog.Logger
	notify    func(Snapshot)
}

// NewStrategist builds a session machine in IDLE. ctx bounds every analysis
// run; notify receives each transition snapshot and may be nil.
func NewStrategist(ctx context.Context, clock Clock, analyzer AnalysisProvider, debounce time.Duration, threshold float64, logger zerolog.Logger, notify func(Snapshot)) *Strategist {
	if notify == nil {
		notify = func(Snapshot) {}
	}
	return &Strategist{
		state:     StateIdle,
		context:   emptyContext(),
		updatedAt: time.Now().UTC(),
		ctx:       ctx,
		clock:     clock,
		analyzer:  analyzer,
		debounce:  debounce,
		threshold: threshold,
		logger:    logger.With().Str("machine", "strategist").Logger(),
		notify:    notify,
	}
}

// UpdateInput stores the text and re-arms the debounce window. Rapid calls
// collapse into a single analysis of the last text.
func (s *Strategist) UpdateInput(text string) Snapshot {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = StateDebouncing
	s.context.Input = text
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.fire(gen) })
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap
}

// fire moves DEBOUNCING to ANALYZING when the window elapses untouched.
func (s *Strategist) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateDebouncing {
		s.mu.Unlock()
		return
	}
	s.state = StateAnalyzing
	input := s.context.Input
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	go s.analyze(gen, input)
}

func (s *Strategist) analyze(gen uint64, input string) {
	suggestions, err := s.analyzer.Analyze(s.ctx, input)

	s.mu.Lock()
	if gen != s.gen || s.state != StateAnalyzing {
		// A newer input superseded this run.
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.state = StateFailure
		s.context.Suggestions = []Suggestion{}
		s.context.LastError = err.Error()
		s.logger.Warn().Err(err).Msg("session analysis failed")
	} else if maxConfidence(suggestions) < s.threshold {
		s.state = StateSilent
		s.context.Suggestions = []Suggestion{}
		s.context.LastError = ""
	} else {
		s.state = StateSuggesting
		s.context.Suggestions = cloneSuggestions(suggestions)
		s.context.LastError = ""
	}
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Snapshot returns the current state without side effects.
func (s *Strategist) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Stop cancels the pending debounce timer and invalidates any in-flight
// analysis. Called on session teardown.
func (s *Strategist) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Strategist) touchLocked() {
	s.updatedAt = time.Now().UTC()
}

func (s *Strategist) snapshotLocked() Snapshot {
	ctx := s.context
	ctx.Suggestions = cloneSuggestions(s.context.Suggestions)
	return Snapshot{Value: s.state, Context: ctx, UpdatedAt: s.updatedAt}
}
