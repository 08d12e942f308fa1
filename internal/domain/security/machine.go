package security

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/oracle"
)

// Machine is the per-patient safety guard:
//
//	IDLE -> DEFCON_3 -> OVERRIDE_ACTIVE -> SUBMITTED -> (RESET) -> IDLE
//
// ORACLE_READY is only examined in IDLE; a critical keyword in the clinical
// context escalates to DEFCON_3, otherwise the context is stored and the
// guard stays put. Validating under an active override emits exactly one
// audit event. Any other (state, event) pair is a logged no-op.
type Machine struct {
	mu        sync.Mutex
	state     string
	context   Context
	updatedAt time.Time
	logger    zerolog.Logger
	audit     AuditSink
}

// NewMachine returns a guard in IDLE. sink receives override audit events
// and must not be nil.
func NewMachine(patientID string, sink AuditSink, logger zerolog.Logger) *Machine {
	return &Machine{
		state:     StateIdle,
		context:   Context{PatientID: patientID},
		updatedAt: time.Now().UTC(),
		logger:    logger.With().Str("machine", "security").Str("patient_id", patientID).Logger(),
		audit:     sink,
	}
}

// Send applies one event and returns the resulting snapshot.
func (m *Machine) Send(event Event) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateIdle:
		if ev, ok := event.(OracleReadyEvent); ok {
			cs := ev.Snapshot
			m.context.PatientContext = &cs
			if scanContext(&cs) {
				m.state = StateDefcon3
				m.logger.Warn().Msg("critical keyword detected, escalating to DEFCON_3")
			}
			m.touch()
			return m.snapshotLocked()
		}
	case StateDefcon3:
		if ev, ok := event.(OverrideRequestEvent); ok {
			ov := Override{
				Reason: ev.Reason,
				Author: ev.Author,
				At:     time.Now().UTC(),
			}
			if ov.Reason == "" {
				ov.Reason = DefaultOverrideReason
			}
			if ov.Author == "" {
				ov.Author = DefaultOverrideAuthor
			}
			m.context.LastOverride = &ov
			m.context.ActiveOverride = &ov
			m.state = StateOverrideActive
			m.touch()
			return m.snapshotLocked()
		}
	case StateOverrideActive:
		if _, ok := event.(ValidateEvent); ok {
			m.emitAuditLocked()
			m.context.ActiveOverride = nil
			m.state = StateSubmitted
			m.touch()
			return m.snapshotLocked()
		}
	case StateSubmitted:
		if _, ok := event.(ResetEvent); ok {
			m.state = StateIdle
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

// emitAuditLocked builds the submission record from the active override and
// the clinical context the escalation was based on.
func (m *Machine) emitAuditLocked() {
	decision := AuditDecision{
		Author:        DefaultOverrideAuthor,
		Justification: DefaultOverrideReason,
		Outcome:       AuditOutcomeSubmitted,
	}
	if ov := m.context.ActiveOverride; ov != nil {
		decision.Author = ov.Author
		decision.Justification = ov.Reason
	}
	m.audit.Emit(AuditEvent{
		EventType: AuditEventTypeOverride,
		Severity:  AuditSeverityHigh,
		Timestamp: time.Now().UTC(),
		Context: AuditContext{
			PatientID:  m.context.PatientID,
			RuleBroken: classifyRule(m.context.PatientContext),
			DrugID:     auditDrugID,
		},
		Decision: decision,
	})
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
	if m.context.PatientContext != nil {
		cs := oracle.ContextSnapshot{
			PatientID: m.context.PatientContext.PatientID,
			Timeline:  append([]oracle.TimelineItem(nil), m.context.PatientContext.Timeline...),
			Alerts:    append([]oracle.Alert(nil), m.context.PatientContext.Alerts...),
		}
		ctx.PatientContext = &cs
	}
	if m.context.LastOverride != nil {
		ov := *m.context.LastOverride
		ctx.LastOverride = &ov
	}
	if m.context.ActiveOverride != nil {
		ov := *m.context.ActiveOverride
		ctx.ActiveOverride = &ov
	}
	return Snapshot{Value: m.state, Context: ctx, UpdatedAt: m.updatedAt}
}
