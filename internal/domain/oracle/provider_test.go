package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDeterministicProviderAlwaysSucceeds(t *testing.T) {
	p := &DeterministicProvider{Latency: time.Millisecond}
	snap, err := p.Fetch(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.PatientID != "p1" {
		t.Errorf("PatientID = %q", snap.PatientID)
	}
	if len(snap.Timeline) == 0 || len(snap.Alerts) == 0 {
		t.Error("dataset should carry timeline and alerts")
	}
	var hasPenicillin bool
	for _, a := range snap.Alerts {
		if a.Level == AlertLevelHigh && strings.Contains(a.Message, "Pénicilline") {
			hasPenicillin = true
		}
	}
	if !hasPenicillin {
		t.Error("deterministic dataset must include the penicillin HIGH alert")
	}
}

func TestDeterministicProviderHonoursCancellation(t *testing.T) {
	p := &DeterministicProvider{Latency: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Fetch(ctx, "p1"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestParseProviderResponseValid(t *testing.T) {
	raw := []byte(`{
		"timeline": [{"date": "2024-01-15", "type": "consultation", "summary": "Bilan"}],
		"alerts": [{"level": "HIGH", "message": "Allergie"}]
	}`)
	snap, err := parseProviderResponse(raw, "p1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if snap.PatientID != "p1" || len(snap.Timeline) != 1 || len(snap.Alerts) != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestParseProviderResponseRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `the patient is fine, trust me`},
		{"missing alerts", `{"timeline": []}`},
		{"bad date", `{"timeline": [{"date": "someday", "type": "x", "summary": "y"}], "alerts": []}`},
		{"bad level", `{"timeline": [], "alerts": [{"level": "CRITICAL", "message": "m"}]}`},
		{"extra item field", `{"timeline": [], "alerts": [{"level": "HIGH", "message": "m", "secret": true}]}`},
		{"empty type", `{"timeline": [{"date": "2024-01-01", "type": "", "summary": "y"}], "alerts": []}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseProviderResponse([]byte(tc.raw), "p1"); err == nil {
				t.Error("expected schema rejection")
			}
		})
	}
}

func TestLiveProviderRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k-123" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"timeline": [], "alerts": [{"level": "MEDIUM", "message": "Surveiller"}]}`))
	}))
	defer srv.Close()

	p := NewLiveProvider(srv.URL, "k-123", time.Second)
	snap, err := p.Fetch(context.Background(), "p9")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(snap.Alerts) != 1 || snap.Alerts[0].Message != "Surveiller" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestLiveProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewLiveProvider(srv.URL, "", time.Second)
	if _, err := p.Fetch(context.Background(), "p1"); err == nil {
		t.Error("expected error on 503")
	}
}

func TestFallbackProviderAbsorbsPrimaryFailure(t *testing.T) {
	primary := providerFunc(func(ctx context.Context, patientID string) (*ContextSnapshot, error) {
		return nil, errors.New("network down")
	})
	p := &FallbackProvider{
		Primary:  primary,
		Fallback: &DeterministicProvider{},
		Logger:   testLogger(),
	}
	snap, err := p.Fetch(context.Background(), "p1")
	if err != nil {
		t.Fatalf("fallback should absorb the failure, got %v", err)
	}
	if snap.PatientID != "p1" {
		t.Errorf("PatientID = %q", snap.PatientID)
	}
}

func TestFallbackProviderPrefersPrimary(t *testing.T) {
	want := &ContextSnapshot{PatientID: "p1", Timeline: []TimelineItem{}, Alerts: []Alert{}}
	primary := providerFunc(func(ctx context.Context, patientID string) (*ContextSnapshot, error) {
		return want, nil
	})
	p := &FallbackProvider{Primary: primary, Fallback: &DeterministicProvider{}, Logger: testLogger()}
	snap, err := p.Fetch(context.Background(), "p1")
	if err != nil || snap != want {
		t.Errorf("expected primary result, got %+v / %v", snap, err)
	}
}

type providerFunc func(ctx context.Context, patientID string) (*ContextSnapshot, error)

func (f providerFunc) Fetch(ctx context.Context, patientID string) (*ContextSnapshot, error) {
	return f(ctx, patientID)
}
