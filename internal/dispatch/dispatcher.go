package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/netfleet/fleetwatch/internal/models"
	"github.com/netfleet/fleetwatch/internal/probe"
	"github.com/netfleet/fleetwatch/internal/utils"
)

// Dispatcher fans a probe out across a device set with bounded concurrency.
// At most the configured number of probes are in flight at once; excess
// devices queue on the worker pool. A call to Dispatch returns only after
// every device has a result.
type Dispatcher struct {
	prober       probe.Prober
	perProbeTime time.Duration
	pool         *utils.WorkerPool
	logger       zerolog.Logger
}

// NewDispatcher creates a Dispatcher backed by a worker pool of size
// concurrency. A non-positive concurrency or timeout is a configuration
// error, rejected here so it can never surface at cycle time.
func NewDispatcher(prober probe.Prober, concurrency int, perProbeTimeout time.Duration, logger zerolog.Logger) (*Dispatcher, error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("dispatcher concurrency must be positive, got %d", concurrency)
	}
	if perProbeTimeout <= 0 {
		return nil, fmt.Errorf("per-probe timeout must be positive, got %s", perProbeTimeout)
	}

	return &Dispatcher{
		prober:       prober,
		perProbeTime: perProbeTimeout,
		pool:         utils.NewWorkerPool(concurrency),
		logger:       logger,
	}, nil
}

// Concurrency returns the maximum number of simultaneous in-flight probes.
func (d *Dispatcher) Concurrency() int {
	return d.pool.Workers()
}

// Dispatch probes every device and returns one result per device. Result
// order is not significant. The worst-case wall clock is bounded by
// ceil(len(devices)/concurrency) times the per-probe timeout, not by the
// device count.
func (d *Dispatcher) Dispatch(ctx context.Context, devices []models.Device) []models.ProbeResult {
	if len(devices) == 0 {
		return nil
	}

	results := make([]models.ProbeResult, 0, len(devices))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, device := range devices {
		wg.Add(1)
		dev := device
		d.pool.Submit(func() {
			defer wg.Done()
			result := d.probeOne(ctx, dev)

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		})
	}

	wg.Wait()
	return results
}

// probeOne runs a single probe under its own timeout and converts any panic
// into a failed result so one bad device can never abort the batch.
func (d *Dispatcher) probeOne(ctx context.Context, device models.Device) (result models.ProbeResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("address", device.Address).Msg("Probe panicked")
			result = models.ProbeResult{
				Timestamp: time.Now(),
				DeviceID:  device.ID,
				Address:   device.Address,
				Hostname:  device.Hostname,
				Error:     probe.ReasonInternalError,
				Device:    device,
			}
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, d.perProbeTime)
	defer cancel()

	return d.prober.Probe(probeCtx, device)
}

// Close releases the dispatcher's worker pool. Dispatch must not be called
// afterwards.
func (d *Dispatcher) Close() {
	d.pool.Shutdown()
}
