package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/netfleet/fleetwatch/internal/inventory"
	"github.com/netfleet/fleetwatch/internal/models"
)

// ErrAlreadyRunning and ErrNotRunning report idempotent-control violations on
// Start/Stop. The API layer maps them to a status report instead of a fault.
var (
	ErrAlreadyRunning = errors.New("poll service is already running")
	ErrNotRunning     = errors.New("poll service is not running")
)

// Dispatcher fans a cycle's device set out to probes.
type Dispatcher interface {
	Dispatch(ctx context.Context, devices []models.Device) []models.ProbeResult
}

// ResultSink durably persists a cycle's result batch.
type ResultSink interface {
	Append(results []models.ProbeResult) error
}

// CycleTracker ingests a cycle's result batch into timeout tracking.
type CycleTracker interface {
	Apply(ctx context.Context, results []models.ProbeResult) error
}

// PollService is the cycle scheduler: every interval it fetches the device
// set, dispatches probes, and feeds the batch to the result sink and the
// timeout tracker. At most one cycle runs at a time; a tick that fires while
// a cycle is still in flight is skipped, never queued.
type PollService struct {
	interval        time.Duration
	source          inventory.Source
	dispatcher      Dispatcher
	sink            ResultSink
	tracker         CycleTracker
	trackingEnabled bool
	logger          zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lifecycleMu sync.Mutex

	// cycleMu is the non-blocking cycle-in-progress flag. Held for the
	// whole of one cycle; a tick that cannot take it is dropped.
	cycleMu       sync.Mutex
	cycleInFlight atomic.Bool

	cycleCount   atomic.Uint64
	skippedTicks atomic.Uint64

	statusMu  sync.Mutex
	startedAt time.Time
	lastCycle *models.CycleStats
}

// NewPollService wires the scheduler over its collaborators. trackingEnabled
// mirrors the configuration switch; when false the tracker is never called.
func NewPollService(interval time.Duration, source inventory.Source, dispatcher Dispatcher,
	sink ResultSink, tracker CycleTracker, trackingEnabled bool, logger zerolog.Logger) (*PollService, error) {

	if interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	return &PollService{
		interval:        interval,
		source:          source,
		dispatcher:      dispatcher,
		sink:            sink,
		tracker:         tracker,
		trackingEnabled: trackingEnabled,
		logger:          logger,
	}, nil
}

// Start launches the polling loop. Starting an already running service
// returns ErrAlreadyRunning and changes nothing.
func (s *PollService) Start() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.ctx != nil {
		s.logger.Warn().Msg("PollService is already running")
		return ErrAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.statusMu.Lock()
	s.startedAt = time.Now()
	s.statusMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runPollLoop(s.ctx)
	}()

	s.logger.Info().Dur("interval", s.interval).Msg("PollService started successfully")
	return nil
}

// Stop halts the scheduling loop. The in-flight cycle, if any, drains to
// completion before Stop returns; probes are never aborted mid-cycle.
func (s *PollService) Stop() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.ctx == nil {
		s.logger.Warn().Msg("PollService is not running")
		return ErrNotRunning
	}

	s.cancel()
	s.wg.Wait()

	s.ctx = nil
	s.cancel = nil

	s.logger.Info().Msg("PollService stopped successfully")
	return nil
}

// Status reports the scheduler's current state. Safe to call concurrently
// with a running cycle.
func (s *PollService) Status() models.SchedulerStatus {
	status := models.SchedulerStatus{
		State:         models.SchedulerStopped,
		Interval:      s.interval,
		CycleCount:    s.cycleCount.Load(),
		SkippedTicks:  s.skippedTicks.Load(),
		CycleInFlight: s.cycleInFlight.Load(),
	}

	s.lifecycleMu.Lock()
	running := s.ctx != nil
	s.lifecycleMu.Unlock()

	s.statusMu.Lock()
	if running {
		status.State = models.SchedulerRunning
		startedAt := s.startedAt
		status.StartedAt = &startedAt
	}
	if s.lastCycle != nil {
		cycle := *s.lastCycle
		status.LastCycle = &cycle
	}
	s.statusMu.Unlock()

	return status
}

// runPollLoop drives the tick loop. The first cycle runs immediately. Each
// tick attempts the cycle flag in its own goroutine, so an overrunning cycle
// causes later ticks to be dropped instead of queued.
func (s *PollService) runPollLoop(ctx context.Context) {
	s.spawnCycle()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.spawnCycle()
		case <-ctx.Done():
			s.logger.Info().Msg("PollService loop stopping, draining in-flight cycle")
			return
		}
	}
}

func (s *PollService) spawnCycle() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle()
	}()
}

// runCycle performs one complete polling cycle. The cycle deliberately runs
// under its own background context: Stop cancels the scheduling loop only,
// the current cycle finishes naturally so no partial cycle is ever recorded.
func (s *PollService) runCycle() {
	if !s.cycleMu.TryLock() {
		s.skippedTicks.Add(1)
		s.logger.Warn().Msg("Previous cycle still running, skipping this tick")
		return
	}
	defer s.cycleMu.Unlock()

	s.cycleInFlight.Store(true)
	defer s.cycleInFlight.Store(false)

	ctx := context.Background()
	cycleID := uuid.New().String()
	start := time.Now()

	devices, err := s.source.ListDevices(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to fetch device inventory, aborting cycle")
		return
	}

	polled := s.filterDevices(devices)
	if len(polled) == 0 {
		s.logger.Warn().Msg("No pollable devices in inventory")
	}

	results := s.dispatcher.Dispatch(ctx, polled)
	stats := models.ComputeCycleStats(cycleID, start, time.Since(start), results)

	// Store and tracker failures are isolated from each other: tracking
	// stays accurate when durability fails and vice versa.
	if err := s.sink.Append(results); err != nil {
		s.logger.Error().Err(err).Str("cycle_id", cycleID).Msg("Failed to persist cycle results")
	}
	if s.trackingEnabled {
		if err := s.tracker.Apply(ctx, results); err != nil {
			s.logger.Error().Err(err).Str("cycle_id", cycleID).Msg("Timeout tracking update reported an error")
		}
	}

	s.cycleCount.Add(1)
	s.statusMu.Lock()
	s.lastCycle = &stats
	s.statusMu.Unlock()

	s.logger.Info().
		Str("cycle_id", cycleID).
		Int("devices", stats.TotalDevices).
		Int("successful", stats.Successful).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("Polling cycle completed")
}

// filterDevices drops records the cycle must not probe: devices marked
// missing and records that fail validation.
func (s *PollService) filterDevices(devices []models.Device) []models.Device {
	polled := make([]models.Device, 0, len(devices))
	for i := range devices {
		device := devices[i]
		if err := device.Validate(); err != nil {
			s.logger.Warn().Err(err).Str("id", device.ID).Msg("Skipping invalid device record")
			continue
		}
		if !device.Pollable() {
			s.logger.Debug().Str("address", device.Address).Msg("Skipping device marked missing")
			continue
		}
		polled = append(polled, device)
	}
	return polled
}
