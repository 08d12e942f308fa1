// Package dashboard derives the client-facing aggregate view from the three
// machine snapshots of one patient. The projection is a pure function: no
// machine state is read or mutated here.
package dashboard

import (
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/coding"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/oracle"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/security"
)

// Client-facing security statuses. SUCCESS replaces the internal SUBMITTED
// tag, which must never reach a client.
const (
	StatusIdle           = "IDLE"
	StatusDefcon3        = "DEFCON_3"
	StatusOverrideActive = "OVERRIDE_ACTIVE"
	StatusSuccess        = "SUCCESS"
)

// Client actions gated by the security status.
const (
	ActionOverride    = "OVERRIDE"
	ActionAcknowledge = "ACKNOWLEDGE"
	ActionValidate    = "VALIDATE_PRESCRIPTION"
	ActionReset       = "RESET"
)

// ConfirmationMessage accompanies the SUCCESS status.
const ConfirmationMessage = "Prescription validée sous dérogation. Trace d'audit générée."

// OraclePane is the clinical-context slice of the view. Data is present
// only when the oracle is READY.
type OraclePane struct {
	State string                  `json:"state"`
	Data  *oracle.ContextSnapshot `json:"data,omitempty"`
}

// SecurityPane carries the gating decision.
type SecurityPane struct {
	Status              string             `json:"status"`
	AllowedActions      []string           `json:"allowed_actions"`
	BlockingReasons     []string           `json:"blocking_reasons"`
	ActiveOverride      *security.Override `json:"active_override,omitempty"`
	ConfirmationMessage string             `json:"confirmation_message,omitempty"`
}

// CodingPane carries the assistant's output.
type CodingPane struct {
	Status      string              `json:"status"`
	Suggestions []coding.Suggestion `json:"suggestions"`
}

// AggregateView is the single payload a dashboard renders.
type AggregateView struct {
	PatientID string       `json:"patientId"`
	Oracle    OraclePane   `json:"oracle"`
	Security  SecurityPane `json:"security"`
	Coding    CodingPane   `json:"coding"`
}

// Project combines the three snapshots into the client view.
func Project(patientID string, o oracle.Snapshot, s security.Snapshot, c coding.Snapshot) AggregateView {
	view := AggregateView{
		PatientID: patientID,
		Oracle:    projectOracle(o),
		Security:  projectSecurity(s),
		Coding:    projectCoding(c),
	}
	return view
}

func projectOracle(o oracle.Snapshot) OraclePane {
	pane := OraclePane{State: o.Value}
	if o.Value == oracle.StateReady {
		cs := oracle.ClinicalContext(o)
		pane.Data = &cs
	}
	return pane
}

func projectSecurity(s security.Snapshot) SecurityPane {
	pane := SecurityPane{
		AllowedActions:  []string{},
		BlockingReasons: []string{},
	}
	switch s.Value {
	case security.StateDefcon3:
		pane.Status = StatusDefcon3
		pane.AllowedActions = []string{ActionOverride, ActionAcknowledge}
		pane.BlockingReasons = alertMessages(s.Context.PatientContext)
	case security.StateOverrideActive:
		pane.Status = StatusOverrideActive
		pane.AllowedActions = []string{ActionValidate}
		pane.BlockingReasons = alertMessages(s.Context.PatientContext)
		pane.ActiveOverride = s.Context.ActiveOverride
	case security.StateSubmitted:
		pane.Status = StatusSuccess
		pane.AllowedActions = []string{ActionReset}
		pane.ConfirmationMessage = ConfirmationMessage
	default:
		pane.Status = StatusIdle
	}
	return pane
}

func projectCoding(c coding.Snapshot) CodingPane {
	suggestions := c.Context.Suggestions
	if suggestions == nil {
		suggestions = []coding.Suggestion{}
	}
	return CodingPane{Status: c.Value, Suggestions: suggestions}
}

func alertMessages(cs *oracle.ContextSnapshot) []string {
	if cs == nil {
		return []string{}
	}
	out := make([]string, 0, len(cs.Alerts))
	for _, a := range cs.Alerts {
		out = append(out, a.Message)
	}
	return out
}
