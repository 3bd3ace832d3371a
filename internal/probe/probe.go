package probe

import (
	"context"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/rs/zerolog"

	"github.com/netfleet/fleetwatch/internal/models"
)

// Failure reasons recorded on unsuccessful probes. Network-level failures are
// never surfaced as errors; they are data.
const (
	ReasonTimeout        = "timeout"
	ReasonUnreachable    = "unreachable"
	ReasonInvalidAddress = "invalid address"
	ReasonInternalError  = "internal error"
)

// Prober executes a single reachability check against one device.
type Prober interface {
	Probe(ctx context.Context, device models.Device) models.ProbeResult
}

// ICMPProber sends one ICMP echo request per call. No retries happen at this
// layer; each polling cycle is itself the retry for a persistently failing
// device.
type ICMPProber struct {
	timeout    time.Duration
	privileged bool
	logger     zerolog.Logger
}

// NewICMPProber creates an ICMP prober with the given per-probe timeout.
// privileged selects raw ICMP sockets over UDP ping sockets; it requires
// either root or the cap_net_raw capability.
func NewICMPProber(timeout time.Duration, privileged bool, logger zerolog.Logger) *ICMPProber {
	return &ICMPProber{
		timeout:    timeout,
		privileged: privileged,
		logger:     logger,
	}
}

// Probe sends exactly one echo request at device.Address and waits up to the
// configured timeout for a reply. All network-level outcomes, including an
// unparseable address, come back as a ProbeResult.
func (p *ICMPProber) Probe(ctx context.Context, device models.Device) models.ProbeResult {
	result := models.ProbeResult{
		Timestamp: time.Now(),
		DeviceID:  device.ID,
		Address:   device.Address,
		Hostname:  device.Hostname,
		Device:    device,
	}

	if net.ParseIP(device.Address) == nil {
		result.Error = ReasonInvalidAddress
		return result
	}

	pinger, err := probing.NewPinger(device.Address)
	if err != nil {
		result.Error = ReasonInvalidAddress
		return result
	}

	pinger.Count = 1
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(p.privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		p.logger.Debug().Err(err).Str("address", device.Address).Msg("Echo request failed")
		result.Error = ReasonUnreachable
		return result
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		result.Error = ReasonTimeout
		return result
	}

	latency := float64(stats.AvgRtt.Microseconds()) / 1000.0
	result.Success = true
	result.LatencyMS = &latency
	return result
}
