package oracle

import (
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/platform/fsm"
)

// Alert severity levels. The live provider schema rejects anything else.
const (
	AlertLevelHigh   = "HIGH"
	AlertLevelMedium = "MEDIUM"
)

// TimelineItem is one clinical event in the patient's history.
type TimelineItem struct {
	Date    string `json:"date"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

// Alert is an active point of vigilance (allergy, interaction, follow-up).
type Alert struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ContextSnapshot is the clinical context acquired for one patient: the
// timeline of past events plus the currently active alerts.
type ContextSnapshot struct {
	PatientID string         `json:"patientId"`
	Timeline  []TimelineItem `json:"timeline"`
	Alerts    []Alert        `json:"alerts"`
}

// Context is the oracle machine's own context. Error is non-nil only in the
// ERROR state.
type Context struct {
	PatientID string         `json:"patientId"`
	Timeline  []TimelineItem `json:"timeline"`
	Alerts    []Alert        `json:"alerts"`
	Error     *string        `json:"error"`
}

// Snapshot is the immutable value emitted on every oracle transition.
type Snapshot = fsm.Snapshot[Context]

// ClinicalContext extracts the clinical context carried by a snapshot.
// Meaningful once the machine reached READY.
func ClinicalContext(s Snapshot) ContextSnapshot {
	return ContextSnapshot{
		PatientID: s.Context.PatientID,
		Timeline:  s.Context.Timeline,
		Alerts:    s.Context.Alerts,
	}
}

// Machine states.
const (
	StateIdle            = "IDLE"
	StateInitializing    = "INITIALIZING"
	StateFetchingContext = "FETCHING_CONTEXT"
	StateAnalyzing       = "ANALYZING"
	StateReady           = "READY"
	StateError           = "ERROR"
)

// Event is the closed set of oracle machine events.
type Event interface {
	eventType() string
}

// InitializeEvent (re)starts the acquisition cycle for a patient.
type InitializeEvent struct {
	PatientID string
}

// StartFetchEvent moves the machine onto the provider path.
type StartFetchEvent struct{}

// StartAnalyzingEvent marks the provider call in flight.
type StartAnalyzingEvent struct{}

// ContextLoadedEvent delivers a successful provider result.
type ContextLoadedEvent struct {
	Snapshot ContextSnapshot
}

// FetchFailedEvent delivers an unrecoverable acquisition fault.
type FetchFailedEvent struct {
	Message string
}

func (InitializeEvent) eventType() string     { return "INITIALIZE" }
func (StartFetchEvent) eventType() string     { return "START_FETCH" }
func (StartAnalyzingEvent) eventType() string { return "START_ANALYZING" }
func (ContextLoadedEvent) eventType() string  { return "CONTEXT_LOADED" }
func (FetchFailedEvent) eventType() string    { return "FETCH_FAILED" }
