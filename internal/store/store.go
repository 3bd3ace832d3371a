package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/netfleet/fleetwatch/internal/models"
)

const (
	partitionPrefix = "ping_results_"
	partitionExt    = ".csv"
	partitionDate   = "20060102"
)

// PartitionInfo describes one daily partition file.
type PartitionInfo struct {
	Filename     string    `json:"filename"`
	Date         string    `json:"date"`
	SizeBytes    int64     `json:"size_bytes"`
	RecordCount  int       `json:"record_count"`
	LastModified time.Time `json:"last_modified"`
}

// ResultStore is the durable sink for probe results. Records are grouped
// into one CSV partition per calendar day of the service's local clock,
// created lazily on the first write of a new day. Within a partition records
// are append-only, newest last. A single mutex enforces the single-writer
// discipline; Rebuild takes the same mutex so it can never run concurrently
// with an in-flight Append.
type ResultStore struct {
	dir    string
	mu     sync.Mutex
	latest cmap.ConcurrentMap[string, models.ProbeResult]
	logger zerolog.Logger

	now func() time.Time
}

// NewResultStore creates the store rooted at dir, creating the directory if
// needed.
func NewResultStore(dir string, logger zerolog.Logger) (*ResultStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("result store directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create result store directory %s: %w", dir, err)
	}

	return &ResultStore{
		dir:    dir,
		latest: cmap.New[models.ProbeResult](),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Append durably persists every result in the batch, or none of them: all
// rows are encoded into one buffer first and written with a single write to
// the partition, so an encoding failure leaves the file untouched.
func (s *ResultStore) Append(results []models.ProbeResult) error {
	if len(results) == 0 {
		return nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, r := range results {
		if err := w.Write(encodeResult(r)); err != nil {
			return fmt.Errorf("failed to encode probe result: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode probe results: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.partitionPath(s.now())
	fresh := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fresh = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open partition %s: %w", path, err)
	}
	defer f.Close()

	payload := buf.Bytes()
	if fresh {
		payload = append([]byte(strings.Join(resultHeader, ",")+"\n"), payload...)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("failed to append to partition %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync partition %s: %w", path, err)
	}

	for _, r := range results {
		s.latest.Set(r.Address, r)
	}

	s.logger.Debug().Int("records", len(results)).Str("partition", filepath.Base(path)).Msg("Appended probe results")
	return nil
}

// ReadDate returns all records of the partition for date (YYYYMMDD), oldest
// first. A missing partition yields an empty slice.
func (s *ResultStore) ReadDate(date string) ([]models.ProbeResult, error) {
	if _, err := time.Parse(partitionDate, date); err != nil {
		return nil, fmt.Errorf("invalid partition date %q: %w", date, err)
	}
	return s.readPartition(filepath.Join(s.dir, partitionPrefix+date+partitionExt))
}

// ReadToday returns all of today's records, oldest first.
func (s *ResultStore) ReadToday() ([]models.ProbeResult, error) {
	return s.readPartition(s.partitionPath(s.now()))
}

// Latest returns the newest limit records of today's partition, oldest
// first. limit <= 0 means all.
func (s *ResultStore) Latest(limit int) ([]models.ProbeResult, error) {
	results, err := s.ReadToday()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

// LatestByAddress returns the most recent result per address seen since the
// store was created, sorted by address for stable output.
func (s *ResultStore) LatestByAddress() []models.ProbeResult {
	results := make([]models.ProbeResult, 0, s.latest.Count())
	for _, r := range s.latest.Items() {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Address < results[j].Address })
	return results
}

// Partitions lists the available partition files, newest first.
func (s *ResultStore) Partitions() ([]PartitionInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list result store directory: %w", err)
	}

	var partitions []PartitionInfo
	for _, entry := range entries {
		date, ok := partitionDateOf(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		records, err := s.readPartition(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn().Err(err).Str("partition", entry.Name()).Msg("Skipping unreadable partition")
			continue
		}

		partitions = append(partitions, PartitionInfo{
			Filename:     entry.Name(),
			Date:         date,
			SizeBytes:    info.Size(),
			RecordCount:  len(records),
			LastModified: info.ModTime(),
		})
	}

	sort.Slice(partitions, func(i, j int) bool { return partitions[i].Filename > partitions[j].Filename })
	return partitions, nil
}

// Rebuild rewrites every partition atomically, dropping rows that no longer
// parse. It is a maintenance operation for recovering from partition
// corruption and is mutually exclusive with Append.
func (s *ResultStore) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list result store directory: %w", err)
	}

	for _, entry := range entries {
		if _, ok := partitionDateOf(entry.Name()); !ok {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := s.rebuildPartition(path); err != nil {
			return fmt.Errorf("failed to rebuild partition %s: %w", entry.Name(), err)
		}
	}

	s.logger.Info().Msg("Result store rebuild completed")
	return nil
}

// rebuildPartition rewrites one partition through a temp file and rename so
// a crash mid-rebuild leaves the original in place.
func (s *ResultStore) rebuildPartition(path string) error {
	records, err := s.readPartitionLoose(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(strings.Join(resultHeader, ",") + "\n")
	w := csv.NewWriter(&buf)
	for _, r := range records {
		if err := w.Write(encodeResult(r)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// CleanupOlderThan removes partitions whose date is more than keepDays in
// the past and returns how many were deleted.
func (s *ResultStore) CleanupOlderThan(keepDays int) (int, error) {
	if keepDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", keepDays)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list result store directory: %w", err)
	}

	cutoff := s.now().AddDate(0, 0, -keepDays)
	deleted := 0
	for _, entry := range entries {
		date, ok := partitionDateOf(entry.Name())
		if !ok {
			continue
		}
		day, err := time.ParseInLocation(partitionDate, date, time.Local)
		if err != nil {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Error().Err(err).Str("partition", entry.Name()).Msg("Failed to delete expired partition")
			continue
		}
		deleted++
		s.logger.Info().Str("partition", entry.Name()).Msg("Deleted expired partition")
	}

	return deleted, nil
}

func (s *ResultStore) partitionPath(t time.Time) string {
	return filepath.Join(s.dir, partitionPrefix+t.Format(partitionDate)+partitionExt)
}

// readPartition reads a whole partition, failing on the first malformed row.
func (s *ResultStore) readPartition(path string) ([]models.ProbeResult, error) {
	rows, err := readPartitionRows(path)
	if err != nil {
		return nil, err
	}

	results := make([]models.ProbeResult, 0, len(rows))
	for _, row := range rows {
		r, err := decodeResult(row)
		if err != nil {
			return nil, fmt.Errorf("malformed row in %s: %w", filepath.Base(path), err)
		}
		results = append(results, r)
	}
	return results, nil
}

// readPartitionLoose reads a partition keeping only rows that still parse.
func (s *ResultStore) readPartitionLoose(path string) ([]models.ProbeResult, error) {
	rows, err := readPartitionRows(path)
	if err != nil {
		return nil, err
	}

	results := make([]models.ProbeResult, 0, len(rows))
	for _, row := range rows {
		r, err := decodeResult(row)
		if err != nil {
			s.logger.Warn().Err(err).Str("partition", filepath.Base(path)).Msg("Dropping malformed row")
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

func readPartitionRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open partition %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read partition %s: %w", path, err)
	}

	if len(rows) > 0 && len(rows[0]) > 0 && rows[0][0] == resultHeader[0] {
		rows = rows[1:]
	}
	return rows, nil
}

// partitionDateOf extracts the YYYYMMDD portion of a partition filename.
func partitionDateOf(name string) (string, bool) {
	if !strings.HasPrefix(name, partitionPrefix) || !strings.HasSuffix(name, partitionExt) {
		return "", false
	}
	date := strings.TrimSuffix(strings.TrimPrefix(name, partitionPrefix), partitionExt)
	if _, err := time.Parse(partitionDate, date); err != nil {
		return "", false
	}
	return date, true
}
