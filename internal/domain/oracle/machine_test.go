package oracle

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func testContextSnapshot(patientID string) ContextSnapshot {
	return ContextSnapshot{
		PatientID: patientID,
		Timeline:  []TimelineItem{{Date: "2024-01-15", Type: "consultation", Summary: "Bilan"}},
		Alerts:    []Alert{{Level: AlertLevelHigh, Message: "Allergie à la Pénicilline"}},
	}
}

func driveToAnalyzing(t *testing.T, m *Machine, patientID string) {
	t.Helper()
	m.Send(InitializeEvent{PatientID: patientID})
	m.Send(StartFetchEvent{})
	if snap := m.Send(StartAnalyzingEvent{}); snap.Value != StateAnalyzing {
		t.Fatalf("expected ANALYZING, got %s", snap.Value)
	}
}

func TestHappyPathToReady(t *testing.T) {
	m := NewMachine(testLogger())

	snap := m.Send(InitializeEvent{PatientID: "p1"})
	if snap.Value != StateInitializing || snap.Context.PatientID != "p1" {
		t.Fatalf("after INITIALIZE: %s / %q", snap.Value, snap.Context.PatientID)
	}

	snap = m.Send(StartFetchEvent{})
	if snap.Value != StateFetchingContext {
		t.Fatalf("after START_FETCH: %s", snap.Value)
	}

	snap = m.Send(StartAnalyzingEvent{})
	if snap.Value != StateAnalyzing {
		t.Fatalf("after START_ANALYZING: %s", snap.Value)
	}

	snap = m.Send(ContextLoadedEvent{Snapshot: testContextSnapshot("p1")})
	if snap.Value != StateReady {
		t.Fatalf("after CONTEXT_LOADED: %s", snap.Value)
	}
	if len(snap.Context.Timeline) != 1 || len(snap.Context.Alerts) != 1 {
		t.Errorf("context not populated: %+v", snap.Context)
	}
	if snap.Context.Error != nil {
		t.Errorf("error should be nil in READY, got %v", *snap.Context.Error)
	}
}

func TestFetchFailedToError(t *testing.T) {
	m := NewMachine(testLogger())
	driveToAnalyzing(t, m, "p1")

	snap := m.Send(FetchFailedEvent{Message: "provider exploded"})
	if snap.Value != StateError {
		t.Fatalf("after FETCH_FAILED: %s", snap.Value)
	}
	if snap.Context.Error == nil || *snap.Context.Error != "provider exploded" {
		t.Errorf("context.error = %v", snap.Context.Error)
	}
}

func TestReinitializeClearsPriorCycle(t *testing.T) {
	m := NewMachine(testLogger())
	driveToAnalyzing(t, m, "p1")
	m.Send(ContextLoadedEvent{Snapshot: testContextSnapshot("p1")})

	snap := m.Send(InitializeEvent{PatientID: "p1"})
	if snap.Value != StateInitializing {
		t.Fatalf("re-INITIALIZE from READY: %s", snap.Value)
	}
	if len(snap.Context.Timeline) != 0 || len(snap.Context.Alerts) != 0 || snap.Context.Error != nil {
		t.Errorf("prior cycle not cleared: %+v", snap.Context)
	}
}

func TestReinitializeFromError(t *testing.T) {
	m := NewMachine(testLogger())
	driveToAnalyzing(t, m, "p1")
	m.Send(FetchFailedEvent{Message: "boom"})

	snap := m.Send(InitializeEvent{PatientID: "p1"})
	if snap.Value != StateInitializing || snap.Context.Error != nil {
		t.Errorf("re-INITIALIZE from ERROR: %s err=%v", snap.Value, snap.Context.Error)
	}
}

func TestIllegalEventsAreNoOps(t *testing.T) {
	cases := []struct {
		name  string
		setup func(m *Machine)
		event Event
		want  string
	}{
		{"context loaded in IDLE", func(m *Machine) {}, ContextLoadedEvent{}, StateIdle},
		{"start fetch in IDLE", func(m *Machine) {}, StartFetchEvent{}, StateIdle},
		{"initialize while INITIALIZING", func(m *Machine) {
			m.Send(InitializeEvent{PatientID: "p1"})
		}, InitializeEvent{PatientID: "p2"}, StateInitializing},
		{"fetch failed while FETCHING_CONTEXT", func(m *Machine) {
			m.Send(InitializeEvent{PatientID: "p1"})
			m.Send(StartFetchEvent{})
		}, FetchFailedEvent{Message: "x"}, StateFetchingContext},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMachine(testLogger())
			tc.setup(m)
			before := m.Snapshot()
			after := m.Send(tc.event)
			if after.Value != tc.want {
				t.Errorf("state = %s, want %s", after.Value, tc.want)
			}
			if after.Value != before.Value {
				t.Errorf("illegal event changed state %s -> %s", before.Value, after.Value)
			}
		})
	}
}

func TestSnapshotIsIsolatedFromMachine(t *testing.T) {
	m := NewMachine(testLogger())
	driveToAnalyzing(t, m, "p1")
	m.Send(ContextLoadedEvent{Snapshot: testContextSnapshot("p1")})

	snap := m.Snapshot()
	snap.Context.Alerts[0].Message = "tampered"
	snap.Context.Timeline[0].Summary = "tampered"

	fresh := m.Snapshot()
	if fresh.Context.Alerts[0].Message == "tampered" || fresh.Context.Timeline[0].Summary == "tampered" {
		t.Error("mutating a snapshot leaked into the machine context")
	}
}
