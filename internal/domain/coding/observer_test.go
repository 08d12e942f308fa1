package coding

import (
	"context"
	"testing"
	"time"

	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/oracle"
)

func grippeContext() oracle.ContextSnapshot {
	return oracle.ContextSnapshot{
		PatientID: "p1",
		Timeline: []oracle.TimelineItem{
			{Date: "2024-03-01", Type: "consultation", Summary: "Grippe saisonnière avec fièvre"},
		},
		Alerts: []oracle.Alert{},
	}
}

func fatigueContext() oracle.ContextSnapshot {
	return oracle.ContextSnapshot{
		PatientID: "p1",
		Timeline: []oracle.TimelineItem{
			{Date: "2024-03-01", Type: "consultation", Summary: "Fatigue persistante"},
		},
		Alerts: []oracle.Alert{},
	}
}

func newTestObserver() *Observer {
	return NewObserver(context.Background(), &SimulatedAnalyzer{}, DefaultMinConfidence, testLogger(), nil)
}

func TestObserverSuggestsOnLoadedContext(t *testing.T) {
	o := newTestObserver()
	o.OnOracleReady(grippeContext())

	snap := waitForValue(t, o.Snapshot, StateSuggesting)
	if len(snap.Context.Suggestions) != 2 || snap.Context.Suggestions[0].Code != "J10.1" {
		t.Errorf("suggestions = %+v", snap.Context.Suggestions)
	}
	if snap.Context.Input == "" {
		t.Error("input should carry the concatenated summaries")
	}
}

func TestObserverSilentBelowThreshold(t *testing.T) {
	o := newTestObserver()
	o.OnOracleReady(fatigueContext())

	snap := waitForValue(t, o.Snapshot, StateSilent)
	if len(snap.Context.Suggestions) != 0 {
		t.Errorf("SILENT must clear suggestions, got %+v", snap.Context.Suggestions)
	}
}

func TestObserverRestartsOnFreshContext(t *testing.T) {
	o := newTestObserver()
	o.OnOracleReady(fatigueContext())
	waitForValue(t, o.Snapshot, StateSilent)

	// The oracle re-initialized and reached READY again.
	o.OnOracleReady(grippeContext())
	waitForValue(t, o.Snapshot, StateSuggesting)
}

func TestObserverIgnoresContextWhileAnalyzing(t *testing.T) {
	release := make(chan struct{})
	blocking := analyzerFunc(func(ctx context.Context, text string) ([]Suggestion, error) {
		<-release
		return []Suggestion{}, nil
	})
	o := NewObserver(context.Background(), blocking, DefaultMinConfidence, testLogger(), nil)
	o.OnOracleReady(grippeContext())
	waitForValue(t, o.Snapshot, StateAnalyzing)

	o.OnOracleReady(fatigueContext())
	if got := o.Snapshot().Context.Input; got != "Grippe saisonnière avec fièvre" {
		t.Errorf("input overwritten while analyzing: %q", got)
	}
	close(release)
	waitForValue(t, o.Snapshot, StateSilent)
}

func TestObserverInvalidateDropsCompletion(t *testing.T) {
	release := make(chan struct{})
	blocking := analyzerFunc(func(ctx context.Context, text string) ([]Suggestion, error) {
		<-release
		return []Suggestion{{Code: "J10.1", Label: "late", Confidence: 0.95}}, nil
	})
	o := NewObserver(context.Background(), blocking, DefaultMinConfidence, testLogger(), nil)
	o.OnOracleReady(grippeContext())
	waitForValue(t, o.Snapshot, StateAnalyzing)

	o.Invalidate()
	close(release)
	time.Sleep(30 * time.Millisecond)
	if snap := o.Snapshot(); len(snap.Context.Suggestions) != 0 {
		t.Errorf("invalidated completion was applied: %+v", snap)
	}
}

func TestSummarizeJoinsSummaries(t *testing.T) {
	cs := oracle.ContextSnapshot{Timeline: []oracle.TimelineItem{
		{Summary: "Grippe"},
		{Summary: ""},
		{Summary: "Fièvre"},
	}}
	if got := summarize(cs); got != "Grippe. Fièvre" {
		t.Errorf("summarize = %q", got)
	}
}
