package coding

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/oracle"
)

// Observer is the patient-keyed assistant:
//
//	IDLE -> ANALYZING -> SUGGESTING | SILENT
//
// A loaded clinical context starts an analysis of the concatenated timeline
// summaries; a fresh context from SUGGESTING or SILENT restarts it. Each
// analysis run carries a generation tag so a completion that lost the race
// against a restart is dropped instead of applied.
type Observer struct {
	mu        sync.Mutex
	state     string
	context   Context
	updatedAt time.Time
	gen       uint64

	ctx       context.Context
	analyzer  AnalysisProvider
	threshold float64
	logger    zerolog.Logger
	notify    func(Snapshot)
}

// NewObserver builds an assistant in IDLE. ctx bounds every analysis run;
// notify receives each transition snapshot and may be nil.
func NewObserver(ctx context.Context, analyzer AnalysisProvider, threshold float64, logger zerolog.Logger, notify func(Snapshot)) *Observer {
	if notify == nil {
		notify = func(Snapshot) {}
	}
	return &Observer{
		state:     StateIdle,
		context:   emptyContext(),
		updatedAt: time.Now().UTC(),
		ctx:       ctx,
		analyzer:  analyzer,
		threshold: threshold,
		logger:    logger.With().Str("machine", "coding").Logger(),
		notify:    notify,
	}
}

// OnOracleReady feeds a loaded clinical context into the assistant.
func (o *Observer) OnOracleReady(cs oracle.ContextSnapshot) {
	o.mu.Lock()
	switch o.state {
	case StateIdle, StateSuggesting, StateSilent:
	default:
		o.logger.Warn().Str("state", o.state).Msg("oracle context ignored in current state")
		o.mu.Unlock()
		return
	}

	input := summarize(cs)
	o.state = StateAnalyzing
	o.context = Context{Input: input, Suggestions: []Suggestion{}}
	o.gen++
	gen := o.gen
	o.touchLocked()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.notify(snap)
	go o.analyze(gen, input)
}

func (o *Observer) analyze(gen uint64, input string) {
	suggestions, err := o.analyzer.Analyze(o.ctx, input)

	o.mu.Lock()
	if gen != o.gen || o.state != StateAnalyzing {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.state = StateSilent
		o.context.Suggestions = []Suggestion{}
		o.context.LastError = err.Error()
		o.logger.Warn().Err(err).Msg("coding analysis failed")
	} else if maxConfidence(suggestions) >= o.threshold {
		o.state = StateSuggesting
		o.context.Suggestions = cloneSuggestions(suggestions)
		o.context.LastError = ""
	} else {
		o.state = StateSilent
		o.context.Suggestions = []Suggestion{}
		o.context.LastError = ""
	}
	o.touchLocked()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.notify(snap)
}

// Snapshot returns the current state without side effects.
func (o *Observer) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Invalidate bumps the generation so any in-flight completion is dropped.
// Called on teardown.
func (o *Observer) Invalidate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
}

func (o *Observer) touchLocked() {
	o.updatedAt = time.Now().UTC()
}

func (o *Observer) snapshotLocked() Snapshot {
	ctx := o.context
	ctx.Suggestions = cloneSuggestions(o.context.Suggestions)
	return Snapshot{Value: o.state, Context: ctx, UpdatedAt: o.updatedAt}
}

// summarize joins the timeline summaries into the analyzer input.
func summarize(cs oracle.ContextSnapshot) string {
	parts := make([]string, 0, len(cs.Timeline))
	for _, item := range cs.Timeline {
		if item.Summary != "" {
			parts = append(parts, item.Summary)
		}
	}
	return strings.Join(parts, ". ")
}
