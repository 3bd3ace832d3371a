package models

import (
	"errors"
	"fmt"
	"net"
)

// DeviceCondition classifies the operational state recorded in the inventory.
type DeviceCondition string

const (
	// ConditionOK indicates a device in normal operation.
	ConditionOK DeviceCondition = "ok"
	// ConditionMaintenance indicates a device under scheduled maintenance.
	// Maintenance devices are still polled.
	ConditionMaintenance DeviceCondition = "maintenance"
	// ConditionMissing indicates a device that is physically unaccounted for.
	// Missing devices are excluded from polling.
	ConditionMissing DeviceCondition = "missing"
)

// ErrInvalidAddress is returned when a device record carries an empty or
// unparseable IP address.
var ErrInvalidAddress = errors.New("invalid device address")

// Device is an immutable snapshot of one inventory record, fetched once per
// polling cycle.
type Device struct {
	ID        string          `json:"id" yaml:"id"`
	Address   string          `json:"address" yaml:"address"`
	Hostname  string          `json:"hostname" yaml:"hostname"`
	Brand     string          `json:"brand" yaml:"brand"`
	OS        string          `json:"os" yaml:"os"`
	Condition DeviceCondition `json:"condition" yaml:"condition"`
}

// Validate checks the invariants the polling core relies on: a parseable IP
// address and a recognized condition. An empty condition is normalized to ok.
func (d *Device) Validate() error {
	if d.Address == "" {
		return fmt.Errorf("%w: address is empty", ErrInvalidAddress)
	}
	if net.ParseIP(d.Address) == nil {
		return fmt.Errorf("%w: %q is not an IP address", ErrInvalidAddress, d.Address)
	}

	switch d.Condition {
	case "":
		d.Condition = ConditionOK
	case ConditionOK, ConditionMaintenance, ConditionMissing:
	default:
		return fmt.Errorf("unrecognized device condition %q", d.Condition)
	}

	return nil
}

// Pollable reports whether the device should be probed this cycle.
func (d *Device) Pollable() bool {
	return d.Condition != ConditionMissing
}

// DisplayName returns the hostname, falling back to the address.
func (d *Device) DisplayName() string {
	if d.Hostname != "" {
		return d.Hostname
	}
	return d.Address
}
