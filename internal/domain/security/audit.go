package security

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/oracle"
)

// Audit classification values.
const (
	AuditEventTypeOverride = "SECURITY_OVERRIDE"
	AuditSeverityHigh      = "HIGH"
	AuditOutcomeSubmitted  = "SUBMITTED"

	RuleAllergyPenicillin  = "ALLERGY_PENICILLIN"
	RuleAllergyOrVigilance = "ALLERGY_OR_VIGILANCE"
	RuleUnknown            = "UNKNOWN_RULE"

	auditDrugID = "AMOXICILLINE"
)

// AuditContext names what was overridden.
type AuditContext struct {
	PatientID  string `json:"patient_id"`
	RuleBroken string `json:"rule_broken"`
	DrugID     string `json:"drug_id"`
}

// AuditDecision names who overrode it and why.
type AuditDecision struct {
	Author        string `json:"author"`
	Justification string `json:"justification"`
	Outcome       string `json:"outcome"`
}

// AuditEvent is the single record emitted per override submission. It is
// pushed to the sink and never stored.
type AuditEvent struct {
	EventType string        `json:"event_type"`
	Severity  string        `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`
	Context   AuditContext  `json:"context"`
	Decision  AuditDecision `json:"decision"`
}

// AuditSink receives override audit events. Emit must not block the caller
// for long; it runs on the transition path.
type AuditSink interface {
	Emit(event AuditEvent)
}

// ZerologSink writes each audit event as one structured log line.
type ZerologSink struct {
	Logger zerolog.Logger
}

func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return &ZerologSink{Logger: logger.With().Str("component", "audit").Logger()}
}

func (s *ZerologSink) Emit(event AuditEvent) {
	s.Logger.Warn().
		Str("event_type", event.EventType).
		Str("severity", event.Severity).
		Time("timestamp", event.Timestamp).
		Interface("context", event.Context).
		Interface("decision", event.Decision).
		Msg("security override submitted")
}

// classifyRule derives the broken rule from the first HIGH alert of the
// clinical context the escalation was based on.
func classifyRule(cs *oracle.ContextSnapshot) string {
	if cs == nil {
		return RuleUnknown
	}
	for _, a := range cs.Alerts {
		if a.Level != oracle.AlertLevelHigh {
			continue
		}
		if containsCriticalTerm(a.Message) {
			return RuleAllergyPenicillin
		}
		return RuleAllergyOrVigilance
	}
	return RuleUnknown
}
