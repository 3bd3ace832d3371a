package models

import "time"

// SchedulerState names the cycle scheduler's lifecycle state.
type SchedulerState string

const (
	SchedulerRunning SchedulerState = "running"
	SchedulerStopped SchedulerState = "stopped"
)

// SchedulerStatus is the scheduler's answer to a status query.
type SchedulerStatus struct {
	State         SchedulerState `json:"state"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	Interval      time.Duration  `json:"interval"`
	CycleCount    uint64         `json:"cycle_count"`
	SkippedTicks  uint64         `json:"skipped_ticks"`
	CycleInFlight bool           `json:"cycle_in_flight"`
	LastCycle     *CycleStats    `json:"last_cycle,omitempty"`
}

// HostMetrics is a point-in-time snapshot of the monitoring process's host,
// reported alongside the service status.
type HostMetrics struct {
	CPUPercent    *float64 `json:"cpu_percent,omitempty"`
	MemoryPercent *float64 `json:"memory_percent,omitempty"`
	MemoryUsedMB  *float64 `json:"memory_used_mb,omitempty"`
}
