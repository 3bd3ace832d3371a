package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleet/fleetwatch/internal/models"
)

func newTestStore(t *testing.T) *ResultStore {
	t.Helper()
	s, err := NewResultStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func makeResult(address string, success bool, at time.Time) models.ProbeResult {
	r := models.ProbeResult{
		Timestamp: at,
		DeviceID:  "dev-" + address,
		Address:   address,
		Hostname:  "host-" + address,
		Success:   success,
	}
	if success {
		latency := 3.25
		r.LatencyMS = &latency
	} else {
		r.Error = "timeout"
	}
	return r
}

// TestResultStore_AppendAndReadBack verifies records come back in append
// order with all fields intact.
func TestResultStore_AppendAndReadBack(t *testing.T) {
	// Setup
	s := newTestStore(t)
	now := time.Now()

	var batch []models.ProbeResult
	for i := 0; i < 10; i++ {
		batch = append(batch, makeResult(fmt.Sprintf("10.0.0.%d", i+1), i%2 == 0, now.Add(time.Duration(i)*time.Second)))
	}

	// Execute
	require.NoError(t, s.Append(batch))
	results, err := s.ReadToday()

	// Assert
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, r := range results {
		expected := batch[i]
		assert.Equal(t, expected.Address, r.Address)
		assert.Equal(t, expected.DeviceID, r.DeviceID)
		assert.Equal(t, expected.Hostname, r.Hostname)
		assert.Equal(t, expected.Success, r.Success)
		assert.True(t, expected.Timestamp.Equal(r.Timestamp))
		if expected.Success {
			require.NotNil(t, r.LatencyMS)
			assert.InDelta(t, *expected.LatencyMS, *r.LatencyMS, 0.0001)
		} else {
			assert.Nil(t, r.LatencyMS)
			assert.Equal(t, "timeout", r.Error)
		}
	}
}

// TestResultStore_AppendAcrossBatches verifies later batches append after
// earlier ones and the header is written exactly once.
func TestResultStore_AppendAcrossBatches(t *testing.T) {
	// Setup
	s := newTestStore(t)
	now := time.Now()

	// Execute
	require.NoError(t, s.Append([]models.ProbeResult{makeResult("10.0.0.1", true, now)}))
	require.NoError(t, s.Append([]models.ProbeResult{makeResult("10.0.0.2", false, now.Add(time.Second))}))

	// Assert
	results, err := s.ReadToday()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "10.0.0.1", results[0].Address)
	assert.Equal(t, "10.0.0.2", results[1].Address)

	partitions, err := s.Partitions()
	require.NoError(t, err)
	require.Len(t, partitions, 1)
	assert.Equal(t, 2, partitions[0].RecordCount)
}

// TestResultStore_PartitionNaming verifies the daily file naming and that the
// partition boundary follows the store clock.
func TestResultStore_PartitionNaming(t *testing.T) {
	// Setup
	s := newTestStore(t)
	day1 := time.Date(2026, 8, 29, 23, 59, 0, 0, time.Local)
	day2 := time.Date(2026, 8, 30, 0, 1, 0, 0, time.Local)

	// Execute: one write just before midnight, one just after.
	s.now = func() time.Time { return day1 }
	require.NoError(t, s.Append([]models.ProbeResult{makeResult("10.0.0.1", true, day1)}))
	s.now = func() time.Time { return day2 }
	require.NoError(t, s.Append([]models.ProbeResult{makeResult("10.0.0.1", true, day2)}))

	// Assert
	partitions, err := s.Partitions()
	require.NoError(t, err)
	require.Len(t, partitions, 2)
	assert.Equal(t, "ping_results_20260830.csv", partitions[0].Filename)
	assert.Equal(t, "ping_results_20260829.csv", partitions[1].Filename)

	older, err := s.ReadDate("20260829")
	require.NoError(t, err)
	assert.Len(t, older, 1)
}

// TestResultStore_ReadDate_Validation covers bad dates and missing
// partitions.
func TestResultStore_ReadDate_Validation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReadDate("2026-08-30")
	assert.Error(t, err)

	results, err := s.ReadDate("20200101")
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TestResultStore_Latest verifies the tail semantics of Latest.
func TestResultStore_Latest(t *testing.T) {
	// Setup
	s := newTestStore(t)
	now := time.Now()
	var batch []models.ProbeResult
	for i := 0; i < 8; i++ {
		batch = append(batch, makeResult(fmt.Sprintf("10.0.0.%d", i+1), true, now.Add(time.Duration(i)*time.Second)))
	}
	require.NoError(t, s.Append(batch))

	// Execute
	tail, err := s.Latest(3)
	require.NoError(t, err)
	all, err := s.Latest(0)
	require.NoError(t, err)

	// Assert
	require.Len(t, tail, 3)
	assert.Equal(t, "10.0.0.6", tail[0].Address)
	assert.Equal(t, "10.0.0.8", tail[2].Address)
	assert.Len(t, all, 8)
}

// TestResultStore_LatestByAddress verifies the per-address view keeps only
// the newest result.
func TestResultStore_LatestByAddress(t *testing.T) {
	// Setup
	s := newTestStore(t)
	now := time.Now()
	require.NoError(t, s.Append([]models.ProbeResult{
		makeResult("10.0.0.1", false, now),
		makeResult("10.0.0.2", true, now),
	}))
	require.NoError(t, s.Append([]models.ProbeResult{
		makeResult("10.0.0.1", true, now.Add(time.Minute)),
	}))

	// Execute
	latest := s.LatestByAddress()

	// Assert: sorted by address, .1 reflects the second batch.
	require.Len(t, latest, 2)
	assert.Equal(t, "10.0.0.1", latest[0].Address)
	assert.True(t, latest[0].Success)
	assert.Equal(t, "10.0.0.2", latest[1].Address)
}

// TestResultStore_Rebuild verifies corrupted rows are dropped while intact
// rows survive.
func TestResultStore_Rebuild(t *testing.T) {
	// Setup
	dir := t.TempDir()
	s, err := NewResultStore(dir, zerolog.Nop())
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, s.Append([]models.ProbeResult{
		makeResult("10.0.0.1", true, now),
		makeResult("10.0.0.2", false, now),
	}))

	// Corrupt the partition with a row that cannot parse.
	path := s.partitionPath(s.now())
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("not-a-timestamp,dev,10.0.0.3,host,maybe,abc,\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = s.ReadToday()
	require.Error(t, err)

	// Execute
	require.NoError(t, s.Rebuild())

	// Assert
	results, err := s.ReadToday()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "10.0.0.1", results[0].Address)
	assert.Equal(t, "10.0.0.2", results[1].Address)

	_, err = os.Stat(filepath.Join(dir, filepath.Base(path)+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

// TestResultStore_CleanupOlderThan verifies only partitions past the
// retention window are removed.
func TestResultStore_CleanupOlderThan(t *testing.T) {
	// Setup: partitions at today, -10 days and -40 days.
	s := newTestStore(t)
	today := time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)
	for _, offset := range []int{0, -10, -40} {
		day := today.AddDate(0, 0, offset)
		s.now = func() time.Time { return day }
		require.NoError(t, s.Append([]models.ProbeResult{makeResult("10.0.0.1", true, day)}))
	}
	s.now = func() time.Time { return today }

	// Execute
	deleted, err := s.CleanupOlderThan(30)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	partitions, err := s.Partitions()
	require.NoError(t, err)
	require.Len(t, partitions, 2)
	assert.Equal(t, "ping_results_20260830.csv", partitions[0].Filename)
	assert.Equal(t, "ping_results_20260820.csv", partitions[1].Filename)

	_, err = s.CleanupOlderThan(0)
	assert.Error(t, err)
}
