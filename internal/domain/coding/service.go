package coding

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/oracle"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/platform/registry"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/platform/stream"
)

const (
	observerMachineName   = "coding"
	strategistMachineName = "strategist"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// OracleSource is the slice of the oracle service the observer needs.
type OracleSource interface {
	Subscribe(patientID string) *stream.Subscription[oracle.Snapshot]
}

type observerEntry struct {
	observer *Observer
	bc       *stream.Broadcaster[Snapshot]
	sub      *stream.Subscription[oracle.Snapshot]
	cancel   context.CancelFunc
}

type sessionEntry struct {
	strategist *Strategist
	bc         *stream.Broadcaster[Snapshot]
	cancel     context.CancelFunc
}

// Service owns the patient-keyed observers and the session-keyed
// strategists. Observers follow the oracle lifecycle; sessions live until
// explicitly destroyed.
type Service struct {
	observers *registry.Registry[*observerEntry]
	sessions  *registry.Registry[*sessionEntry]

	source    OracleSource
	analyzer  AnalysisProvider
	clock     Clock
	debounce  time.Duration
	threshold float64
	logger    zerolog.Logger
	publisher oracle.TransitionPublisher
}

// NewService builds both registries. publisher may be nil.
func NewService(source OracleSource, analyzer AnalysisProvider, clock Clock, debounce time.Duration, threshold float64, logger zerolog.Logger, publisher oracle.TransitionPublisher) *Service {
	s := &Service{
		source:    source,
		analyzer:  analyzer,
		clock:     clock,
		debounce:  debounce,
		threshold: threshold,
		logger:    logger.With().Str("component", "coding").Logger(),
		publisher: publisher,
	}
	s.observers = registry.New(s.newObserverEntry)
	s.sessions = registry.New(s.newSessionEntry)
	return s
}

func (s *Service) newObserverEntry(patientID string) (*observerEntry, registry.StopFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &observerEntry{
		bc:     stream.NewBroadcaster[Snapshot](),
		sub:    s.source.Subscribe(patientID),
		cancel: cancel,
	}
	e.observer = NewObserver(ctx, s.analyzer, s.threshold, s.logger, func(snap Snapshot) {
		e.bc.Publish(snap)
		if s.publisher != nil {
			s.publisher.PublishTransition(observerMachineName, patientID, snap)
		}
	})
	e.bc.Publish(e.observer.Snapshot())
	go s.watch(e)
	s.logger.Info().Str("patient_id", patientID).Msg("coding observer attached")
	return e, func() {
		e.observer.Invalidate()
		cancel()
		e.sub.Close()
		e.bc.Close()
	}
}

func (s *Service) watch(e *observerEntry) {
	for snap := range e.sub.C() {
		if snap.Value != oracle.StateReady {
			continue
		}
		e.observer.OnOracleReady(oracle.ClinicalContext(snap))
	}
}

func (s *Service) newSessionEntry(sessionID string) (*sessionEntry, registry.StopFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &sessionEntry{
		bc:     stream.NewBroadcaster[Snapshot](),
		cancel: cancel,
	}
	e.strategist = NewStrategist(ctx, s.clock, s.analyzer, s.debounce, s.threshold, s.logger, func(snap Snapshot) {
		e.bc.Publish(snap)
		if s.publisher != nil {
			s.publisher.PublishTransition(strategistMachineName, sessionID, snap)
		}
	})
	e.bc.Publish(e.strategist.Snapshot())
	s.logger.Info().Str("session_id", sessionID).Msg("coding session created")
	return e, func() {
		e.strategist.Stop()
		cancel()
		e.bc.Close()
	}
}

// StartWatching attaches an observer to the patient. Idempotent; wired to
// the oracle service's start hook.
func (s *Service) StartWatching(patientID string) {
	s.observers.GetOrCreate(patientID)
}

// StopWatching tears the patient's observer down. Wired to the oracle
// service's destroy hook.
func (s *Service) StopWatching(patientID string) bool {
	stopped := s.observers.Destroy(patientID)
	if stopped {
		s.logger.Info().Str("patient_id", patientID).Msg("coding observer detached")
	}
	return stopped
}

// GetObserverSnapshot returns the patient assistant's current snapshot.
func (s *Service) GetObserverSnapshot(patientID string) (Snapshot, bool) {
	entry, ok := s.observers.Get(patientID)
	if !ok {
		return Snapshot{}, false
	}
	return entry.observer.Snapshot(), true
}

// SubscribeObserver attaches to the patient assistant's transition stream.
func (s *Service) SubscribeObserver(patientID string) *stream.Subscription[Snapshot] {
	entry, _ := s.observers.GetOrCreate(patientID)
	return entry.bc.Subscribe()
}

// UpdateSessionInput validates the session id, creates the session lazily
// and re-arms its debounce window with the new text.
func (s *Service) UpdateSessionInput(sessionID, text string) (Snapshot, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return Snapshot{}, fmt.Errorf("invalid sessionId: must be 1..128 chars of [A-Za-z0-9_-]")
	}
	entry, _ := s.sessions.GetOrCreate(sessionID)
	return entry.strategist.UpdateInput(text), nil
}

// GetSession returns the session view. An unknown session yields an empty
// IDLE snapshot rather than an error; reads never create sessions.
func (s *Service) GetSession(sessionID string) SessionView {
	entry, ok := s.sessions.Get(sessionID)
	if !ok {
		return SessionView{
			Snapshot: Snapshot{Value: StateIdle, Context: emptyContext(), UpdatedAt: time.Now().UTC()},
		}
	}
	snap := entry.strategist.Snapshot()
	return SessionView{Snapshot: snap, ShouldDisplay: snap.Value == StateSuggesting}
}

// DestroySession tears the session down, cancelling its debounce timer and
// dropping any in-flight analysis. Idempotent.
func (s *Service) DestroySession(sessionID string) bool {
	destroyed := s.sessions.Destroy(sessionID)
	if destroyed {
		s.logger.Info().Str("session_id", sessionID).Msg("coding session destroyed")
	}
	return destroyed
}

// SessionCount reports live strategist sessions.
func (s *Service) SessionCount() int {
	return s.sessions.Len()
}

// Shutdown destroys every observer and session.
func (s *Service) Shutdown() {
	s.observers.Range(func(key string, _ *observerEntry) bool {
		s.StopWatching(key)
		return true
	})
	s.sessions.Range(func(key string, _ *sessionEntry) bool {
		s.DestroySession(key)
		return true
	})
}
