package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/netfleet/fleetwatch/internal/models"
)

// AlertSink receives the tracker's alert decisions. Implementations deliver
// them to the outside world; the tracker never retries a delivery.
type AlertSink interface {
	SendAlert(ctx context.Context, alert models.Alert) error
	SendRecovery(ctx context.Context, alert models.Alert) error
}

// Tracker maintains the per-address consecutive-failure streaks and the alert
// bookkeeping on top of them. Each address is in one of two states: Healthy
// (no record) or Failing (a record with streak >= 1). A cycle's batch of
// results is applied atomically under one lock, so concurrent readers observe
// either the state before or after a cycle, never an interleaving.
type Tracker struct {
	mu          sync.RWMutex
	records     map[string]*models.TimeoutRecord
	alertStates map[string]*models.AlertState

	threshold int
	cooldown  time.Duration
	alerting  bool
	sink      AlertSink

	statePath string
	persistMu sync.Mutex

	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker persisting its state to statePath. Existing
// state at that path is loaded, so streaks survive a restart. sink may be nil
// when alerting is disabled.
func NewTracker(statePath string, threshold int, cooldown time.Duration, alerting bool, sink AlertSink, logger zerolog.Logger) (*Tracker, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("alert threshold must be positive, got %d", threshold)
	}
	if cooldown < 0 {
		return nil, fmt.Errorf("alert cooldown must not be negative, got %s", cooldown)
	}
	if alerting && sink == nil {
		return nil, fmt.Errorf("alerting is enabled but no alert sink was provided")
	}

	t := &Tracker{
		records:     make(map[string]*models.TimeoutRecord),
		alertStates: make(map[string]*models.AlertState),
		threshold:   threshold,
		cooldown:    cooldown,
		alerting:    alerting,
		sink:        sink,
		statePath:   statePath,
		logger:      logger,
		now:         time.Now,
	}

	if err := t.loadState(); err != nil {
		return nil, fmt.Errorf("failed to load timeout state: %w", err)
	}

	return t, nil
}

// Apply ingests one cycle's result batch. All state transitions for the batch
// are computed under a single write lock. Afterwards the updated state is
// persisted and alert decisions are delivered; a persistence failure is
// returned but leaves the in-memory state accurate.
func (t *Tracker) Apply(ctx context.Context, results []models.ProbeResult) error {
	t.mu.Lock()
	now := t.now()
	seen := make(map[string]struct{}, len(results))
	var candidates []models.Alert
	var recovered []models.Alert

	for _, r := range results {
		if r.Address == "" {
			continue
		}
		seen[r.Address] = struct{}{}

		if r.Success {
			if rec, ok := t.records[r.Address]; ok {
				recovered = append(recovered, t.newAlertLocked(*rec, now, true))
				delete(t.records, r.Address)
				delete(t.alertStates, r.Address)
			}
			continue
		}

		rec, ok := t.records[r.Address]
		if !ok {
			rec = &models.TimeoutRecord{
				Address:      r.Address,
				Hostname:     r.Hostname,
				DeviceID:     r.DeviceID,
				Brand:        r.Device.Brand,
				OS:           r.Device.OS,
				Condition:    r.Device.Condition,
				FirstTimeout: now,
			}
			t.records[r.Address] = rec
		}
		rec.ConsecutiveTimeouts++
		rec.LastTimeout = now
		rec.LastUpdated = now

		if t.alerting && rec.ConsecutiveTimeouts >= t.threshold && t.cooldownElapsedLocked(r.Address, now) {
			candidates = append(candidates, t.newAlertLocked(*rec, now, false))
		}
	}

	// Devices removed from the inventory no longer produce results; their
	// streaks are meaningless, drop them.
	for address := range t.records {
		if _, ok := seen[address]; !ok {
			delete(t.records, address)
			delete(t.alertStates, address)
			t.logger.Debug().Str("address", address).Msg("Pruned stale timeout record")
		}
	}

	snapshot := t.listLocked(1)
	t.mu.Unlock()

	var persistErr error
	if err := t.persist(snapshot); err != nil {
		persistErr = fmt.Errorf("failed to persist timeout state: %w", err)
		t.logger.Error().Err(persistErr).Msg("Timeout state not persisted, in-memory tracking continues")
	}

	t.deliver(ctx, candidates, recovered)
	return persistErr
}

// deliver sends the cycle's alert decisions. A failed alert send does not
// consume the cooldown, so the next threshold crossing retries delivery.
// Recovery notices are best-effort.
func (t *Tracker) deliver(ctx context.Context, candidates, recovered []models.Alert) {
	if !t.alerting {
		return
	}

	for _, alert := range candidates {
		if err := t.sink.SendAlert(ctx, alert); err != nil {
			t.logger.Error().Err(err).Str("address", alert.Record.Address).
				Int("consecutive_timeouts", alert.Record.ConsecutiveTimeouts).
				Msg("Alert delivery failed, cooldown not consumed")
			continue
		}

		t.mu.Lock()
		state, ok := t.alertStates[alert.Record.Address]
		if !ok {
			state = &models.AlertState{Address: alert.Record.Address}
			t.alertStates[alert.Record.Address] = state
		}
		state.LastAlertSentAt = alert.RaisedAt
		state.AlertCount++
		t.mu.Unlock()

		t.logger.Warn().Str("address", alert.Record.Address).
			Int("consecutive_timeouts", alert.Record.ConsecutiveTimeouts).
			Msg("Critical timeout alert sent")
	}

	for _, notice := range recovered {
		if err := t.sink.SendRecovery(ctx, notice); err != nil {
			t.logger.Debug().Err(err).Str("address", notice.Record.Address).Msg("Recovery notice not delivered")
		}
	}
}

func (t *Tracker) newAlertLocked(rec models.TimeoutRecord, now time.Time, recovery bool) models.Alert {
	return models.Alert{
		ID:        uuid.New().String(),
		Record:    rec,
		Threshold: t.threshold,
		RaisedAt:  now,
		Recovery:  recovery,
	}
}

func (t *Tracker) cooldownElapsedLocked(address string, now time.Time) bool {
	state, ok := t.alertStates[address]
	if !ok {
		return true
	}
	return now.Sub(state.LastAlertSentAt) >= t.cooldown
}

// Summary returns aggregate statistics over the current timeout state.
func (t *Tracker) Summary() models.TimeoutSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := models.TimeoutSummary{TotalTimeoutDevices: len(t.records)}
	if len(t.records) == 0 {
		return summary
	}

	var sum int
	for _, rec := range t.records {
		sum += rec.ConsecutiveTimeouts
		if rec.ConsecutiveTimeouts > summary.MaxConsecutive {
			summary.MaxConsecutive = rec.ConsecutiveTimeouts
		}
		if rec.ConsecutiveTimeouts >= t.threshold {
			summary.CriticalDevices++
		}
	}
	summary.AvgConsecutive = float64(sum) / float64(len(t.records))
	return summary
}

// List returns the devices with a streak of at least minConsecutive, sorted
// descending by streak length.
func (t *Tracker) List(minConsecutive int) []models.TimeoutRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.listLocked(minConsecutive)
}

// Critical returns the devices at or past the alert threshold.
func (t *Tracker) Critical() []models.TimeoutRecord {
	return t.List(t.threshold)
}

// Threshold returns the configured critical-streak threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}

// Reset clears all timeout records and alert state, in memory and on disk.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	t.records = make(map[string]*models.TimeoutRecord)
	t.alertStates = make(map[string]*models.AlertState)
	t.mu.Unlock()

	if err := t.persist(nil); err != nil {
		return fmt.Errorf("failed to persist reset timeout state: %w", err)
	}
	t.logger.Info().Msg("Timeout tracking state reset")
	return nil
}

func (t *Tracker) listLocked(minConsecutive int) []models.TimeoutRecord {
	records := make([]models.TimeoutRecord, 0, len(t.records))
	for _, rec := range t.records {
		if rec.ConsecutiveTimeouts >= minConsecutive {
			records = append(records, *rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].ConsecutiveTimeouts != records[j].ConsecutiveTimeouts {
			return records[i].ConsecutiveTimeouts > records[j].ConsecutiveTimeouts
		}
		return records[i].Address < records[j].Address
	})
	return records
}
