package inventory

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/netfleet/fleetwatch/internal/models"
)

// SQLSource fetches the device list from a relational inventory table on
// every cycle, so inventory edits show up on the next tick.
type SQLSource struct {
	db     *sql.DB
	logger zerolog.Logger
}

const listDevicesQuery = `
	SELECT id, address, hostname, brand, os, condition
	FROM devices
	ORDER BY id
`

// OpenPostgres opens and pings a PostgreSQL inventory database.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open inventory database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach inventory database: %w", err)
	}
	return db, nil
}

// NewSQLSource creates a Source over an open database handle.
func NewSQLSource(db *sql.DB, logger zerolog.Logger) *SQLSource {
	return &SQLSource{db: db, logger: logger}
}

// ListDevices queries the devices table and validates every row. Invalid
// rows are skipped with a log line; a query failure aborts the fetch.
func (s *SQLSource) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx, listDevicesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		var hostname, brand, osName, condition sql.NullString
		if err := rows.Scan(&d.ID, &d.Address, &hostname, &brand, &osName, &condition); err != nil {
			return nil, fmt.Errorf("failed to scan inventory row: %w", err)
		}
		d.Hostname = hostname.String
		d.Brand = brand.String
		d.OS = osName.String
		d.Condition = models.DeviceCondition(condition.String)

		if err := d.Validate(); err != nil {
			s.logger.Warn().Err(err).Str("id", d.ID).Msg("Skipping invalid inventory record")
			continue
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inventory rows: %w", err)
	}

	return devices, nil
}
