package inventory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/netfleet/fleetwatch/internal/models"
	"github.com/netfleet/fleetwatch/pkg/file"
)

// FileSource reads the device list from a YAML file. The file is re-read on
// every call so edits are picked up on the next cycle without a restart.
type FileSource struct {
	path       string
	fileClient file.FileOperations
	logger     zerolog.Logger
}

type deviceFile struct {
	Devices []models.Device `yaml:"devices"`
}

// NewFileSource creates a Source backed by the YAML file at path.
func NewFileSource(path string, fileClient file.FileOperations, logger zerolog.Logger) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("inventory file path must not be empty")
	}
	return &FileSource{
		path:       path,
		fileClient: fileClient,
		logger:     logger,
	}, nil
}

// ListDevices loads and validates the device list. Invalid records are
// skipped with a log line rather than failing the whole fetch.
func (f *FileSource) ListDevices(_ context.Context) ([]models.Device, error) {
	var parsed deviceFile
	if err := f.fileClient.ReadYamlFile(f.path, &parsed); err != nil {
		return nil, fmt.Errorf("failed to read inventory file %s: %w", f.path, err)
	}

	devices := make([]models.Device, 0, len(parsed.Devices))
	for _, d := range parsed.Devices {
		if err := d.Validate(); err != nil {
			f.logger.Warn().Err(err).Str("id", d.ID).Msg("Skipping invalid inventory record")
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}
