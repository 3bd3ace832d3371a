package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/netfleet/fleetwatch/internal/models"
)

const messageTimeLayout = "02-01-2006 15:04:05"

// formatAlertMessage renders the critical-timeout notification with the full
// device context.
func formatAlertMessage(alert models.Alert) string {
	rec := alert.Record

	var b strings.Builder
	b.WriteString("DEVICE TIMEOUT ALERT\n\n")
	b.WriteString("CRITICAL: device is unreachable.\n\n")
	b.WriteString("Device:\n")
	fmt.Fprintf(&b, "- Address: %s\n", orUnknown(rec.Address))
	fmt.Fprintf(&b, "- Hostname: %s\n", orUnknown(rec.Hostname))
	fmt.Fprintf(&b, "- Device ID: %s\n", orUnknown(rec.DeviceID))
	fmt.Fprintf(&b, "- Brand/Model: %s\n", orUnknown(rec.Brand))
	fmt.Fprintf(&b, "- Condition: %s\n\n", orUnknown(string(rec.Condition)))
	b.WriteString("Timeout details:\n")
	fmt.Fprintf(&b, "- Consecutive timeouts: %d (threshold %d)\n", rec.ConsecutiveTimeouts, alert.Threshold)
	fmt.Fprintf(&b, "- First timeout: %s\n", timeOrUnknown(rec.FirstTimeout))
	fmt.Fprintf(&b, "- Last check: %s\n\n", timeOrUnknown(rec.LastTimeout))
	fmt.Fprintf(&b, "Notified at %s by fleetwatch (alert %s).", alert.RaisedAt.Format(messageTimeLayout), alert.ID)

	return b.String()
}

// formatRecoveryMessage renders the best-effort recovery notice.
func formatRecoveryMessage(alert models.Alert) string {
	rec := alert.Record
	return fmt.Sprintf(
		"DEVICE RECOVERED\n\n%s (%s) is reachable again after %d consecutive timeouts.\nOutage started %s, recovered %s.",
		orUnknown(rec.Hostname), rec.Address, rec.ConsecutiveTimeouts,
		timeOrUnknown(rec.FirstTimeout), alert.RaisedAt.Format(messageTimeLayout),
	)
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// timeOrUnknown keeps zero times out of operator-facing messages.
func timeOrUnknown(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(messageTimeLayout)
}
