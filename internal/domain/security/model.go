// Package security implements the prescription safety guard. It observes the
// patient's clinical context, escalates to DEFCON_3 when a critical allergy
// term is present, and gates the override / validate / reset workflow.
package security

import (
	"time"

	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/oracle"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/platform/fsm"
)

// Guard states.
const (
	StateIdle           = "IDLE"
	StateDefcon3        = "DEFCON_3"
	StateOverrideActive = "OVERRIDE_ACTIVE"
	StateSubmitted      = "SUBMITTED"
)

// Defaults applied when an override request omits the fields.
const (
	DefaultOverrideReason = "Non précisée"
	DefaultOverrideAuthor = "Dr. House"
)

// Override records a clinician's decision to bypass a safety block.
type Override struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
	Author string    `json:"author"`
}

// Context is the guard's extended state. PatientContext is the clinical
// snapshot the escalation decision was made on; ActiveOverride is non-nil
// only between OVERRIDE_REQUEST and VALIDATE_PRESCRIPTION.
type Context struct {
	PatientID      string                  `json:"patientId"`
	PatientContext *oracle.ContextSnapshot `json:"patientContext,omitempty"`
	LastOverride   *Override               `json:"lastOverride,omitempty"`
	ActiveOverride *Override               `json:"activeOverride,omitempty"`
}

// Snapshot is the immutable view returned by every transition.
type Snapshot = fsm.Snapshot[Context]

// Event is the closed set of inputs the guard accepts.
type Event interface {
	eventType() string
}

// OracleReadyEvent carries the loaded clinical context. Sent by the service
// whenever the patient's oracle reaches READY.
type OracleReadyEvent struct {
	Snapshot oracle.ContextSnapshot
}

// OverrideRequestEvent asks to bypass the active block. Empty fields take
// the documented defaults.
type OverrideRequestEvent struct {
	Reason string
	Author string
}

// ValidateEvent submits the prescription under the active override.
type ValidateEvent struct{}

// ResetEvent acknowledges the submission and returns the guard to IDLE.
type ResetEvent struct{}

func (OracleReadyEvent) eventType() string     { return "ORACLE_READY" }
func (OverrideRequestEvent) eventType() string { return "OVERRIDE_REQUEST" }
func (ValidateEvent) eventType() string        { return "VALIDATE_PRESCRIPTION" }
func (ResetEvent) eventType() string           { return "RESET" }
