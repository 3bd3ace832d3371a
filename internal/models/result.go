package models

import "time"

// ProbeResult is one outcome of checking one device at one instant. It is
// immutable once created; the result store and timeout tracker only ever
// append or read it.
type ProbeResult struct {
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Address   string    `json:"address"`
	Hostname  string    `json:"hostname"`
	Success   bool      `json:"success"`
	LatencyMS *float64  `json:"latency_ms,omitempty"`
	Error     string    `json:"error_message,omitempty"`

	// Device carries the inventory snapshot the result was produced from.
	// It feeds the timeout tracker's per-device context and is not part of
	// the persisted record.
	Device Device `json:"-"`
}

// CycleStats summarizes one completed polling cycle.
type CycleStats struct {
	CycleID      string        `json:"cycle_id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	TotalDevices int           `json:"total_devices"`
	Successful   int           `json:"successful"`
	Failed       int           `json:"failed"`
	SuccessRate  float64       `json:"success_rate"`
	MinLatencyMS *float64      `json:"min_latency_ms,omitempty"`
	AvgLatencyMS *float64      `json:"avg_latency_ms,omitempty"`
	MaxLatencyMS *float64      `json:"max_latency_ms,omitempty"`
}

// ComputeCycleStats aggregates a cycle's result batch.
func ComputeCycleStats(cycleID string, startedAt time.Time, duration time.Duration, results []ProbeResult) CycleStats {
	stats := CycleStats{
		CycleID:      cycleID,
		StartedAt:    startedAt,
		Duration:     duration,
		TotalDevices: len(results),
	}

	var sum float64
	var count int
	for _, r := range results {
		if !r.Success {
			stats.Failed++
			continue
		}
		stats.Successful++
		if r.LatencyMS == nil {
			continue
		}
		v := *r.LatencyMS
		if stats.MinLatencyMS == nil || v < *stats.MinLatencyMS {
			stats.MinLatencyMS = ptr(v)
		}
		if stats.MaxLatencyMS == nil || v > *stats.MaxLatencyMS {
			stats.MaxLatencyMS = ptr(v)
		}
		sum += v
		count++
	}

	if len(results) > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(len(results)) * 100
	}
	if count > 0 {
		stats.AvgLatencyMS = ptr(sum / float64(count))
	}

	return stats
}

func ptr(v float64) *float64 { return &v }
