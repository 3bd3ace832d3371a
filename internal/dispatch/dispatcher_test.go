package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleet/fleetwatch/internal/models"
	"github.com/netfleet/fleetwatch/internal/probe"
)

// stubProber simulates probes with a fixed delay and outcome, and records
// how many probes were in flight simultaneously.
type stubProber struct {
	delay   time.Duration
	fail    bool
	panicOn string

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       int
}

func (p *stubProber) Probe(_ context.Context, device models.Device) models.ProbeResult {
	p.mu.Lock()
	p.calls++
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()

	if device.Address == p.panicOn {
		panic("probe blew up")
	}

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	result := models.ProbeResult{
		Timestamp: time.Now(),
		DeviceID:  device.ID,
		Address:   device.Address,
		Hostname:  device.Hostname,
		Device:    device,
	}
	if p.fail {
		result.Error = probe.ReasonTimeout
	} else {
		latency := 1.5
		result.Success = true
		result.LatencyMS = &latency
	}
	return result
}

func makeDevices(n int) []models.Device {
	devices := make([]models.Device, 0, n)
	for i := 0; i < n; i++ {
		devices = append(devices, models.Device{
			ID:        fmt.Sprintf("%d", i+1),
			Address:   fmt.Sprintf("10.0.0.%d", i+1),
			Hostname:  fmt.Sprintf("device-%d", i+1),
			Condition: models.ConditionOK,
		})
	}
	return devices
}

// TestDispatcher_Dispatch_Completeness verifies every device gets exactly one
// result, with no silent drops.
func TestDispatcher_Dispatch_Completeness(t *testing.T) {
	// Setup
	prober := &stubProber{}
	d, err := NewDispatcher(prober, 5, time.Second, zerolog.Nop())
	require.NoError(t, err)
	defer d.Close()

	devices := makeDevices(25)

	// Execute
	results := d.Dispatch(context.Background(), devices)

	// Assert
	assert.Len(t, results, 25)
	seen := make(map[string]bool)
	for _, r := range results {
		seen[r.Address] = true
	}
	assert.Len(t, seen, 25)
	assert.Equal(t, 25, prober.calls)
}

// TestDispatcher_Dispatch_ConcurrencyBound verifies no more than the
// configured number of probes run at once.
func TestDispatcher_Dispatch_ConcurrencyBound(t *testing.T) {
	// Setup
	prober := &stubProber{delay: 30 * time.Millisecond, fail: true}
	d, err := NewDispatcher(prober, 4, time.Second, zerolog.Nop())
	require.NoError(t, err)
	defer d.Close()

	// Execute
	results := d.Dispatch(context.Background(), makeDevices(16))

	// Assert
	assert.Len(t, results, 16)
	assert.LessOrEqual(t, prober.maxInFlight, 4)
}

// TestDispatcher_Dispatch_WallClockBound verifies the batched timing
// guarantee: with every probe slow, total time scales with ceil(M/C) rounds,
// not with the device count.
func TestDispatcher_Dispatch_WallClockBound(t *testing.T) {
	// Setup: 8 devices, concurrency 4, each probe takes 100ms. Sequential
	// execution would need 800ms; two rounds need about 200ms.
	probeTime := 100 * time.Millisecond
	prober := &stubProber{delay: probeTime, fail: true}
	d, err := NewDispatcher(prober, 4, time.Second, zerolog.Nop())
	require.NoError(t, err)
	defer d.Close()

	devices := makeDevices(8)

	// Execute
	start := time.Now()
	results := d.Dispatch(context.Background(), devices)
	elapsed := time.Since(start)

	// Assert
	assert.Len(t, results, 8)
	assert.GreaterOrEqual(t, elapsed, 2*probeTime)
	assert.Less(t, elapsed, time.Duration(len(devices))*probeTime)
}

// TestDispatcher_Dispatch_PanicBecomesResult verifies a panicking probe is
// converted to a failed result without aborting the batch.
func TestDispatcher_Dispatch_PanicBecomesResult(t *testing.T) {
	// Setup
	prober := &stubProber{panicOn: "10.0.0.3"}
	d, err := NewDispatcher(prober, 2, time.Second, zerolog.Nop())
	require.NoError(t, err)
	defer d.Close()

	// Execute
	results := d.Dispatch(context.Background(), makeDevices(5))

	// Assert
	assert.Len(t, results, 5)
	var faulted *models.ProbeResult
	for i := range results {
		if results[i].Address == "10.0.0.3" {
			faulted = &results[i]
		}
	}
	require.NotNil(t, faulted)
	assert.False(t, faulted.Success)
	assert.Equal(t, probe.ReasonInternalError, faulted.Error)
}

// TestDispatcher_Dispatch_EmptyDeviceSet verifies an empty input is a no-op.
func TestDispatcher_Dispatch_EmptyDeviceSet(t *testing.T) {
	d, err := NewDispatcher(&stubProber{}, 2, time.Second, zerolog.Nop())
	require.NoError(t, err)
	defer d.Close()

	assert.Empty(t, d.Dispatch(context.Background(), nil))
}

// TestNewDispatcher_InvalidConfiguration verifies configuration errors are
// rejected at construction, never at cycle time.
func TestNewDispatcher_InvalidConfiguration(t *testing.T) {
	_, err := NewDispatcher(&stubProber{}, 0, time.Second, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewDispatcher(&stubProber{}, -3, time.Second, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewDispatcher(&stubProber{}, 4, 0, zerolog.Nop())
	assert.Error(t, err)
}
