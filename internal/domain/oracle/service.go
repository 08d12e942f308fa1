package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/platform/registry"
	"github.com/lyarnaud35/basevitale-endocortex-sub001/internal/platform/stream"
)

// TransitionPublisher receives every machine transition for dashboard push.
// The websocket hub implements it; a nil publisher disables the push path.
type TransitionPublisher interface {
	PublishTransition(machine, key string, snapshot any)
}

const machineName = "oracle"

type machineEntry struct {
	machine *Machine
	bc      *stream.Broadcaster[Snapshot]
	ctx     context.Context
	cancel  context.CancelFunc
}

// Service owns one oracle machine per patient plus its replay-last broadcast
// channel. All transitions flow through here so every observer (dashboards,
// the security guard, the coding assistant) sees the same serialized stream.
type Service struct {
	reg       *registry.Registry[*machineEntry]
	provider  ContextProvider
	timeout   time.Duration
	logger    zerolog.Logger
	publisher TransitionPublisher

	onStart   []func(patientID string)
	onDestroy []func(patientID string)
}

// NewService builds the per-patient oracle registry. timeout bounds every
// provider call; publisher may be nil.
func NewService(provider ContextProvider, timeout time.Duration, logger zerolog.Logger, publisher TransitionPublisher) *Service {
	s := &Service{
		provider:  provider,
		timeout:   timeout,
		logger:    logger.With().Str("component", "oracle").Logger(),
		publisher: publisher,
	}
	s.reg = registry.New(func(patientID string) (*machineEntry, registry.StopFunc) {
		ctx, cancel := context.WithCancel(context.Background())
		e := &machineEntry{
			machine: NewMachine(s.logger),
			bc:      stream.NewBroadcaster[Snapshot](),
			ctx:     ctx,
			cancel:  cancel,
		}
		// Seed the replay value so the very first subscriber sees IDLE
		// rather than nothing.
		e.bc.Publish(e.machine.Snapshot())
		s.logger.Info().Str("patient_id", patientID).Msg("oracle machine created")
		return e, func() {
			cancel()
			e.bc.Close()
		}
	})
	return s
}

// OnStart registers an observer hook invoked whenever Start runs for a
// patient. Wire these before serving traffic.
func (s *Service) OnStart(fn func(patientID string)) {
	s.onStart = append(s.onStart, fn)
}

// OnDestroy registers a teardown hook invoked when a patient's oracle entry
// is destroyed.
func (s *Service) OnDestroy(fn func(patientID string)) {
	s.onDestroy = append(s.onDestroy, fn)
}

// Start initializes (or restarts) the acquisition cycle for a patient. The
// INITIALIZE and START_FETCH transitions are applied synchronously; the
// provider call runs in the background and re-enters the machine as a
// serialized transition when it completes.
func (s *Service) Start(patientID string) (Snapshot, error) {
	if patientID == "" {
		return Snapshot{}, fmt.Errorf("patientId is required")
	}
	entry, _ := s.reg.GetOrCreate(patientID)

	snap := entry.machine.Send(InitializeEvent{PatientID: patientID})
	if snap.Value != StateInitializing {
		// Initialize is only legal from IDLE/READY/ERROR; a cycle already in
		// flight keeps running and the caller gets the current snapshot.
		s.logger.Warn().Str("patient_id", patientID).Str("state", snap.Value).
			Msg("start ignored, acquisition already in flight")
		return snap, nil
	}
	s.publish(entry, patientID, snap)

	snap = entry.machine.Send(StartFetchEvent{})
	s.publish(entry, patientID, snap)

	go s.processFetch(entry, patientID)

	for _, fn := range s.onStart {
		fn(patientID)
	}
	return snap, nil
}

// processFetch drives FETCHING_CONTEXT -> ANALYZING -> READY | ERROR. Every
// exit path is bounded: the provider call carries a deadline, and any panic
// is converted into a FETCH_FAILED transition so the stream never hangs.
func (s *Service) processFetch(entry *machineEntry, patientID string) {
	defer func() {
		if r := recover(); r != nil {
			snap := entry.machine.Send(FetchFailedEvent{Message: fmt.Sprintf("erreur inattendue: %v", r)})
			s.publish(entry, patientID, snap)
			s.logger.Error().Str("patient_id", patientID).Interface("panic", r).
				Msg("context acquisition panicked")
		}
	}()

	snap := entry.machine.Send(StartAnalyzingEvent{})
	s.publish(entry, patientID, snap)

	fetchCtx, cancel := context.WithTimeout(entry.ctx, s.timeout)
	defer cancel()

	cs, err := s.provider.Fetch(fetchCtx, patientID)
	if err != nil {
		snap = entry.machine.Send(FetchFailedEvent{Message: err.Error()})
		s.publish(entry, patientID, snap)
		s.logger.Warn().Err(err).Str("patient_id", patientID).Msg("context acquisition failed")
		return
	}

	snap = entry.machine.Send(ContextLoadedEvent{Snapshot: *cs})
	s.publish(entry, patientID, snap)
	s.logger.Info().
		Str("patient_id", patientID).
		Int("timeline", len(cs.Timeline)).
		Int("alerts", len(cs.Alerts)).
		Msg("context loaded")
}

func (s *Service) publish(entry *machineEntry, patientID string, snap Snapshot) {
	entry.bc.Publish(snap)
	if s.publisher != nil {
		s.publisher.PublishTransition(machineName, patientID, snap)
	}
}

// Subscribe attaches to the patient's transition stream, creating the
// machine lazily. The first value received is always the current snapshot.
func (s *Service) Subscribe(patientID string) *stream.Subscription[Snapshot] {
	entry, _ := s.reg.GetOrCreate(patientID)
	return entry.bc.Subscribe()
}

// GetSnapshot returns the current snapshot without side effects.
func (s *Service) GetSnapshot(patientID string) (Snapshot, bool) {
	entry, ok := s.reg.Get(patientID)
	if !ok {
		return Snapshot{}, false
	}
	return entry.machine.Snapshot(), true
}

// Destroy tears down the patient's oracle entry: in-flight fetch cancelled,
// broadcaster closed, observers notified. Idempotent.
func (s *Service) Destroy(patientID string) bool {
	destroyed := s.reg.Destroy(patientID)
	if destroyed {
		for _, fn := range s.onDestroy {
			fn(patientID)
		}
		s.logger.Info().Str("patient_id", patientID).Msg("oracle machine destroyed")
	}
	return destroyed
}

// MachineCount reports live oracle machines.
func (s *Service) MachineCount() int {
	return s.reg.Len()
}

// EvictIdle destroys machines whose last transition is older than ttl and
// returns how many were evicted.
func (s *Service) EvictIdle(ttl time.Duration) int {
	cutoff := time.Now().UTC().Add(-ttl)
	var stale []string
	s.reg.Range(func(key string, e *machineEntry) bool {
		if e.machine.Snapshot().UpdatedAt.Before(cutoff) {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		s.Destroy(key)
	}
	if len(stale) > 0 {
		s.logger.Info().Int("evicted", len(stale)).Msg("idle oracle machines evicted")
	}
	return len(stale)
}

// RunJanitor evicts idle machines every ttl/4 until ctx is cancelled. A ttl
// of zero disables eviction entirely.
func (s *Service) RunJanitor(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle(ttl)
		}
	}
}

// Shutdown destroys every machine. Used on server stop.
func (s *Service) Shutdown() {
	s.reg.Range(func(key string, _ *machineEntry) bool {
		s.Destroy(key)
		return true
	})
}
