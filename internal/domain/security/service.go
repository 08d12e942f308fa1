package security

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/domain/oracle"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/platform/registry"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/platform/stream"
)

const machineName = "security"

// OracleSource is the slice of the oracle service the guard needs: a
// replay-last subscription to a patient's transition stream.
type OracleSource interface {
	Subscribe(patientID string) *stream.Subscription[oracle.Snapshot]
}

type guardEntry struct {
	machine *Machine
	bc      *stream.Broadcaster[Snapshot]
	sub     *stream.Subscription[oracle.Snapshot]
}

// Service owns one guard per patient. Each guard watches its patient's
// oracle stream; the replay-last contract means a guard attached after the
// oracle reached READY still receives the clinical context.
type Service struct {
	reg       *registry.Registry[*guardEntry]
	source    OracleSource
	sink      AuditSink
	logger    zerolog.Logger
	publisher oracle.TransitionPublisher
}

// NewService builds the per-patient guard registry. publisher may be nil.
func NewService(source OracleSource, sink AuditSink, logger zerolog.Logger, publisher oracle.TransitionPublisher) *Service {
	s := &Service{
		source:    source,
		sink:      sink,
		logger:    logger.With().Str("component", "security").Logger(),
		publisher: publisher,
	}
	s.reg = registry.New(func(patientID string) (*guardEntry, registry.StopFunc) {
		e := &guardEntry{
			machine: NewMachine(patientID, s.sink, s.logger),
			bc:      stream.NewBroadcaster[Snapshot](),
			sub:     s.source.Subscribe(patientID),
		}
		e.bc.Publish(e.machine.Snapshot())
		go s.watch(e, patientID)
		s.logger.Info().Str("patient_id", patientID).Msg("security guard attached")
		return e, func() {
			e.sub.Close()
			e.bc.Close()
		}
	})
	return s
}

// watch feeds oracle READY snapshots into the guard until the subscription
// closes.
func (s *Service) watch(e *guardEntry, patientID string) {
	for snap := range e.sub.C() {
		if snap.Value != oracle.StateReady {
			continue
		}
		s.publish(e, patientID, e.machine.Send(OracleReadyEvent{Snapshot: oracle.ClinicalContext(snap)}))
	}
}

func (s *Service) publish(e *guardEntry, patientID string, snap Snapshot) {
	e.bc.Publish(snap)
	if s.publisher != nil {
		s.publisher.PublishTransition(machineName, patientID, snap)
	}
}

// StartWatching attaches a guard to the patient. Idempotent; meant to be
// wired to the oracle service's start hook.
func (s *Service) StartWatching(patientID string) {
	s.reg.GetOrCreate(patientID)
}

// StopWatching tears the patient's guard down. Wired to the oracle
// service's destroy hook.
func (s *Service) StopWatching(patientID string) bool {
	stopped := s.reg.Destroy(patientID)
	if stopped {
		s.logger.Info().Str("patient_id", patientID).Msg("security guard detached")
	}
	return stopped
}

func (s *Service) send(patientID string, event Event) (Snapshot, error) {
	if patientID == "" {
		return Snapshot{}, fmt.Errorf("patientId is required")
	}
	entry, _ := s.reg.GetOrCreate(patientID)
	snap := entry.machine.Send(event)
	s.publish(entry, patientID, snap)
	return snap, nil
}

// Override requests a bypass of the active safety block.
func (s *Service) Override(patientID, reason, author string) (Snapshot, error) {
	return s.send(patientID, OverrideRequestEvent{Reason: reason, Author: author})
}

// Validate submits the prescription under the active override.
func (s *Service) Validate(patientID string) (Snapshot, error) {
	return s.send(patientID, ValidateEvent{})
}

// Reset acknowledges the submission and re-arms the guard.
func (s *Service) Reset(patientID string) (Snapshot, error) {
	return s.send(patientID, ResetEvent{})
}

// GetSnapshot returns the guard's current snapshot without side effects.
func (s *Service) GetSnapshot(patientID string) (Snapshot, bool) {
	entry, ok := s.reg.Get(patientID)
	if !ok {
		return Snapshot{}, false
	}
	return entry.machine.Snapshot(), true
}

// Subscribe attaches to the guard's transition stream, creating it lazily.
func (s *Service) Subscribe(patientID string) *stream.Subscription[Snapshot] {
	entry, _ := s.reg.GetOrCreate(patientID)
	return entry.bc.Subscribe()
}

// GuardCount reports live guards.
func (s *Service) GuardCount() int {
	return s.reg.Len()
}

// Shutdown detaches every guard.
func (s *Service) Shutdown() {
	s.reg.Range(func(key string, _ *guardEntry) bool {
		s.StopWatching(key)
		return true
	})
}
