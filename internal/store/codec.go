package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/netfleet/fleetwatch/internal/models"
)

// resultHeader fixes the persisted column order of a partition row.
var resultHeader = []string{
	"timestamp", "device_id", "address", "hostname",
	"success", "latency_ms", "error_message",
}

func encodeResult(r models.ProbeResult) []string {
	latency := ""
	if r.LatencyMS != nil {
		latency = strconv.FormatFloat(*r.LatencyMS, 'f', -1, 64)
	}

	return []string{
		r.Timestamp.Format(time.RFC3339Nano),
		r.DeviceID,
		r.Address,
		r.Hostname,
		strconv.FormatBool(r.Success),
		latency,
		r.Error,
	}
}

func decodeResult(row []string) (models.ProbeResult, error) {
	if len(row) != len(resultHeader) {
		return models.ProbeResult{}, fmt.Errorf("expected %d fields, got %d", len(resultHeader), len(row))
	}

	ts, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		return models.ProbeResult{}, fmt.Errorf("bad timestamp %q: %w", row[0], err)
	}

	success, err := strconv.ParseBool(row[4])
	if err != nil {
		return models.ProbeResult{}, fmt.Errorf("bad success flag %q: %w", row[4], err)
	}

	result := models.ProbeResult{
		Timestamp: ts,
		DeviceID:  row[1],
		Address:   row[2],
		Hostname:  row[3],
		Success:   success,
		Error:     row[6],
	}

	if row[5] != "" {
		latency, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return models.ProbeResult{}, fmt.Errorf("bad latency %q: %w", row[5], err)
		}
		result.LatencyMS = &latency
	}

	return result, nil
}
