package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleet/fleetwatch/internal/models"
	"github.com/netfleet/fleetwatch/internal/services"
	"github.com/netfleet/fleetwatch/internal/store"
)

type fakeScheduler struct {
	running    bool
	startCalls int
	stopCalls  int
}

func (f *fakeScheduler) Start() error {
	f.startCalls++
	if f.running {
		return services.ErrAlreadyRunning
	}
	f.running = true
	return nil
}

func (f *fakeScheduler) Stop() error {
	f.stopCalls++
	if !f.running {
		return services.ErrNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeScheduler) Status() models.SchedulerStatus {
	state := models.SchedulerStopped
	if f.running {
		state = models.SchedulerRunning
	}
	return models.SchedulerStatus{State: state, Interval: time.Minute, CycleCount: 3}
}

type fakeTimeouts struct {
	records    []models.TimeoutRecord
	resetCalls int
}

func (f *fakeTimeouts) Summary() models.TimeoutSummary {
	return models.TimeoutSummary{TotalTimeoutDevices: len(f.records)}
}

func (f *fakeTimeouts) List(min int) []models.TimeoutRecord {
	var out []models.TimeoutRecord
	for _, rec := range f.records {
		if rec.ConsecutiveTimeouts >= min {
			out = append(out, rec)
		}
	}
	return out
}

func (f *fakeTimeouts) Critical() []models.TimeoutRecord { return f.List(5) }

func (f *fakeTimeouts) Reset() error {
	f.resetCalls++
	f.records = nil
	return nil
}

type fakeResults struct {
	results    []models.ProbeResult
	readErr    error
	rebuildErr error
}

func (f *fakeResults) Latest(limit int) ([]models.ProbeResult, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if limit > 0 && len(f.results) > limit {
		return f.results[len(f.results)-limit:], nil
	}
	return f.results, nil
}

func (f *fakeResults) ReadDate(date string) ([]models.ProbeResult, error) {
	if _, err := time.Parse("20060102", date); err != nil {
		return nil, err
	}
	return f.results, nil
}

func (f *fakeResults) LatestByAddress() []models.ProbeResult { return f.results }

func (f *fakeResults) Partitions() ([]store.PartitionInfo, error) {
	return []store.PartitionInfo{{Filename: "ping_results_20260830.csv", Date: "20260830", RecordCount: len(f.results)}}, nil
}

func (f *fakeResults) Rebuild() error { return f.rebuildErr }

func newTestServer(t *testing.T, scheduler *fakeScheduler, timeouts *fakeTimeouts, results *fakeResults) *httptest.Server {
	t.Helper()
	s, err := NewServer(":0", scheduler, timeouts, results, zerolog.Nop())
	require.NoError(t, err)
	server := httptest.NewServer(s.routes())
	t.Cleanup(server.Close)
	return server
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

// TestServer_Health verifies the liveness endpoint.
func TestServer_Health(t *testing.T) {
	server := newTestServer(t, &fakeScheduler{}, &fakeTimeouts{}, &fakeResults{})

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.Equal(t, "success", env.Status)
}

// TestServer_LatestResults verifies the limit parameter and the envelope.
func TestServer_LatestResults(t *testing.T) {
	// Setup
	results := &fakeResults{}
	for i := 0; i < 5; i++ {
		results.results = append(results.results, models.ProbeResult{Address: "10.0.0.1", Success: true})
	}
	server := newTestServer(t, &fakeScheduler{}, &fakeTimeouts{}, results)

	// Execute
	resp, err := http.Get(server.URL + "/api/results/latest?limit=2")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.Equal(t, "success", env.Status)
	data, ok := env.Data.([]any)
	require.True(t, ok)
	assert.Len(t, data, 2)
}

// TestServer_LatestResults_BadLimit verifies parameter validation.
func TestServer_LatestResults_BadLimit(t *testing.T) {
	server := newTestServer(t, &fakeScheduler{}, &fakeTimeouts{}, &fakeResults{})

	resp, err := http.Get(server.URL + "/api/results/latest?limit=banana")
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.Equal(t, "error", env.Status)
	assert.NotEmpty(t, env.Error)
}

// TestServer_History verifies the date parameter contract.
func TestServer_History(t *testing.T) {
	server := newTestServer(t, &fakeScheduler{}, &fakeTimeouts{}, &fakeResults{})

	resp, err := http.Get(server.URL + "/api/results/history")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/api/results/history?date=20260830")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// TestServer_StoreReadFailure verifies store errors map to 500 with the
// error envelope.
func TestServer_StoreReadFailure(t *testing.T) {
	server := newTestServer(t, &fakeScheduler{}, &fakeTimeouts{}, &fakeResults{readErr: errors.New("partition unreadable")})

	resp, err := http.Get(server.URL + "/api/results/latest")
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.Contains(t, env.Error, "partition unreadable")
}

// TestServer_TimeoutEndpoints walks the timeout read and reset surface.
func TestServer_TimeoutEndpoints(t *testing.T) {
	// Setup
	timeouts := &fakeTimeouts{records: []models.TimeoutRecord{
		{Address: "10.0.0.1", ConsecutiveTimeouts: 7},
		{Address: "10.0.0.2", ConsecutiveTimeouts: 2},
	}}
	server := newTestServer(t, &fakeScheduler{}, timeouts, &fakeResults{})

	// Execute / Assert: list with filtering.
	resp, err := http.Get(server.URL + "/api/timeouts/?min_consecutive=5")
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)
	data, ok := env.Data.([]any)
	require.True(t, ok)
	assert.Len(t, data, 1)

	// Summary.
	resp, err = http.Get(server.URL + "/api/timeouts/summary")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Reset.
	resp, err = http.Post(server.URL+"/api/timeouts/reset", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 1, timeouts.resetCalls)
}

// TestServer_ServiceControl verifies start/stop and that redundant control
// calls report state instead of failing.
func TestServer_ServiceControl(t *testing.T) {
	// Setup
	scheduler := &fakeScheduler{}
	server := newTestServer(t, scheduler, &fakeTimeouts{}, &fakeResults{})

	// Execute: stop while stopped is still a 200.
	resp, err := http.Post(server.URL+"/api/service/stop", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Start, then start again.
	resp, err = http.Post(server.URL+"/api/service/start", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(server.URL+"/api/service/start", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.True(t, scheduler.running)
	assert.Equal(t, 2, scheduler.startCalls)

	// Status reflects the running scheduler.
	resp, err = http.Get(server.URL + "/api/service/status")
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)
	payload, ok := env.Data.(map[string]any)
	require.True(t, ok)
	sched, ok := payload["scheduler"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "running", sched["state"])
}

// TestServer_Rebuild verifies the maintenance endpoint.
func TestServer_Rebuild(t *testing.T) {
	results := &fakeResults{}
	server := newTestServer(t, &fakeScheduler{}, &fakeTimeouts{}, results)

	resp, err := http.Post(server.URL+"/api/results/rebuild", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	results.rebuildErr = errors.New("disk full")
	resp, err = http.Post(server.URL+"/api/results/rebuild", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()
}
