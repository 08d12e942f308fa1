package oracle

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Machine is the patient-context finite-state machine:
//
//	IDLE -> INITIALIZING -> FETCHING_CONTEXT -> ANALYZING -> READY | ERROR
//
// From READY or ERROR a new InitializeEvent restarts the cycle, clearing any
// previous timeline, alerts and error. Events are applied strictly one at a
// time; an event that is not legal in the current state is a logged no-op
// that returns the unchanged snapshot.
type Machine struct {
	mu        sync.Mutex
	state     string
	context   Context
	updatedAt time.Time
	logger    zerolog.Logger
}

// NewMachine returns a machine in IDLE with an empty context.
func NewMachine(logger zerolog.Logger) *Machine {
	return &Machine{
		state:     StateIdle,
		context:   Context{Timeline: []TimelineItem{}, Alerts: []Alert{}},
		updatedAt: time.Now().UTC(),
		logger:    logger.With().Str("machine", "oracle").Logger(),
	}
}

// Send applies one event and returns the resulting snapshot.
func (m *Machine) Send(event Event) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateIdle, StateReady, StateError:
		if ev, ok := event.(InitializeEvent); ok {
			m.state = StateInitializing
			m.context = Context{
				PatientID: ev.PatientID,
				Timeline:  []TimelineItem{},
				Alerts:    []Alert{},
			}
			m.touch()
			return m.snapshotLocked()
		}
	case StateInitializing:
		if _, ok := event.(StartFetchEvent); ok {
			m.state = StateFetchingContext
			m.touch()
			return m.snapshotLocked()
		}
	case StateFetchingContext:
		if _, ok := event.(StartAnalyzingEvent); ok {
			m.state = StateAnalyzing
			m.touch()
			return m.snapshotLocked()
		}
	case StateAnalyzing:
		switch ev := event.(type) {
		case ContextLoadedEvent:
			m.state = StateReady
			m.context = Context{
				PatientID: ev.Snapshot.PatientID,
				Timeline:  cloneTimeline(ev.Snapshot.Timeline),
				Alerts:    cloneAlerts(ev.Snapshot.Alerts),
			}
			m.touch()
			return m.snapshotLocked()
		case FetchFailedEvent:
			msg := ev.Message
			m.state = StateError
			m.context.Error = &msg
			m.touch()
			return m.snapshotLocked()
		}
	}

	m.logger.Warn().
		Str("state", m.state).
		Str("event", event.eventType()).
		Msg("event ignored in current state")
	return m.snapshotLocked()
}

// Snapshot returns the current state without applying an event.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Value returns the current state tag.
func (m *Machine) Value() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) touch() {
	m.updatedAt = time.Now().UTC()
}

func (m *Machine) snapshotLocked() Snapshot {
	ctx := m.context
	ctx.Timeline = cloneTimeline(m.context.Timeline)
	ctx.Alerts = cloneAlerts(m.context.Alerts)
	if m.context.Error != nil {
		e := *m.context.Error
		ctx.Error = &e
	}
	return Snapshot{Value: m.state, Context: ctx, UpdatedAt: m.updatedAt}
}

func cloneTimeline(items []TimelineItem) []TimelineItem {
	out := make([]TimelineItem, len(items))
	copy(out, items)
	return out
}

func cloneAlerts(alerts []Alert) []Alert {
	out := make([]Alert, len(alerts))
	copy(out, alerts)
	return out
}
