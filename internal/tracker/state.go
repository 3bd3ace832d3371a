package tracker

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/netfleet/fleetwatch/internal/models"
)

// stateHeader fixes the column order of the timeout state file. The file is
// rewritten in full on every apply, sorted descending by streak length.
var stateHeader = []string{
	"address", "hostname", "device_id", "brand", "os", "condition",
	"consecutive_timeouts", "first_timeout", "last_timeout", "last_updated",
}

// persist writes the full state file through a temp file and rename.
func (t *Tracker) persist(records []models.TimeoutRecord) error {
	if t.statePath == "" {
		return nil
	}

	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(stateHeader); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Address,
			rec.Hostname,
			rec.DeviceID,
			rec.Brand,
			rec.OS,
			string(rec.Condition),
			strconv.Itoa(rec.ConsecutiveTimeouts),
			rec.FirstTimeout.Format(time.RFC3339Nano),
			rec.LastTimeout.Format(time.RFC3339Nano),
			rec.LastUpdated.Format(time.RFC3339Nano),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	tmp := t.statePath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, t.statePath)
}

// loadState restores timeout records from a previous run. Alert timestamps
// are deliberately not persisted; after a restart a still-failing device
// re-alerts on its next threshold crossing.
func (t *Tracker) loadState() error {
	if t.statePath == "" {
		return nil
	}

	f, err := os.Open(t.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return err
	}

	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == stateHeader[0] {
			continue
		}
		rec, err := decodeStateRow(row)
		if err != nil {
			t.logger.Warn().Err(err).Msg("Dropping malformed timeout state row")
			continue
		}
		t.records[rec.Address] = rec
	}

	if len(t.records) > 0 {
		t.logger.Info().Int("devices", len(t.records)).Msg("Restored timeout tracking state")
	}
	return nil
}

func decodeStateRow(row []string) (*models.TimeoutRecord, error) {
	if len(row) != len(stateHeader) {
		return nil, fmt.Errorf("expected %d fields, got %d", len(stateHeader), len(row))
	}

	count, err := strconv.Atoi(row[6])
	if err != nil || count < 1 {
		return nil, fmt.Errorf("bad consecutive_timeouts %q", row[6])
	}

	first, err := time.Parse(time.RFC3339Nano, row[7])
	if err != nil {
		return nil, fmt.Errorf("bad first_timeout %q: %w", row[7], err)
	}
	last, err := time.Parse(time.RFC3339Nano, row[8])
	if err != nil {
		return nil, fmt.Errorf("bad last_timeout %q: %w", row[8], err)
	}
	updated, err := time.Parse(time.RFC3339Nano, row[9])
	if err != nil {
		return nil, fmt.Errorf("bad last_updated %q: %w", row[9], err)
	}

	return &models.TimeoutRecord{
		Address:             row[0],
		Hostname:            row[1],
		DeviceID:            row[2],
		Brand:               row[3],
		OS:                  row[4],
		Condition:           models.DeviceCondition(row[5]),
		ConsecutiveTimeouts: count,
		FirstTimeout:        first,
		LastTimeout:         last,
		LastUpdated:         updated,
	}, nil
}
