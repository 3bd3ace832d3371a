package models

import "time"

// TimeoutRecord is the running per-device failure streak. A record exists for
// an address exactly when that address's current streak is at least one; a
// successful probe deletes the record entirely.
type TimeoutRecord struct {
	Address             string          `json:"address"`
	Hostname            string          `json:"hostname"`
	DeviceID            string          `json:"device_id"`
	Brand               string          `json:"brand"`
	OS                  string          `json:"os"`
	Condition           DeviceCondition `json:"condition"`
	ConsecutiveTimeouts int             `json:"consecutive_timeouts"`
	FirstTimeout        time.Time       `json:"first_timeout"`
	LastTimeout         time.Time       `json:"last_timeout"`
	LastUpdated         time.Time       `json:"last_updated"`
}

// AlertState is the per-device alert bookkeeping. It is cleared together with
// the device's TimeoutRecord so a future outage re-alerts fresh.
type AlertState struct {
	Address         string    `json:"address"`
	LastAlertSentAt time.Time `json:"last_alert_sent_at"`
	AlertCount      int       `json:"alert_count"`
}

// TimeoutSummary aggregates the tracker's current state.
type TimeoutSummary struct {
	TotalTimeoutDevices int     `json:"total_timeout_devices"`
	MaxConsecutive      int     `json:"max_consecutive_timeouts"`
	AvgConsecutive      float64 `json:"average_consecutive_timeouts"`
	CriticalDevices     int     `json:"critical_devices"`
}

// Alert is one alert decision made by the tracker, carrying the full device
// context the notification channel needs.
type Alert struct {
	ID        string        `json:"id"`
	Record    TimeoutRecord `json:"record"`
	Threshold int           `json:"threshold"`
	RaisedAt  time.Time     `json:"raised_at"`
	// Recovery marks a best-effort notice that the device came back.
	Recovery bool `json:"recovery"`
}
