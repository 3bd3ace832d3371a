package inventory

import (
	"context"

	"github.com/netfleet/fleetwatch/internal/models"
)

// Source supplies the current device set at the start of each polling cycle.
// A failure is recoverable: it aborts only the cycle that observed it.
type Source interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
}

// StaticSource serves a fixed device list. Used in tests and for small
// hand-maintained fleets configured inline.
type StaticSource struct {
	devices []models.Device
}

// NewStaticSource creates a Source over a fixed device list.
func NewStaticSource(devices []models.Device) *StaticSource {
	return &StaticSource{devices: devices}
}

// ListDevices returns a copy of the fixed list.
func (s *StaticSource) ListDevices(_ context.Context) ([]models.Device, error) {
	out := make([]models.Device, len(s.devices))
	copy(out, s.devices)
	return out, nil
}
