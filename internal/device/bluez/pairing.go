// Package bluez reads host pairing state from BlueZ over the D-Bus system bus.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/srg/blesense/internal/device"
)

const (
	bluezBus       = "org.bluez"
	bluezDevice    = "org.bluez.Device1"
	DefaultAdapter = "hci0"
)

// PairingChecker answers pairing queries from org.bluez.Device1.Paired.
type PairingChecker struct {
	adapter string
	get     func(path dbus.ObjectPath, property string) (dbus.Variant, error)
}

// NewPairingChecker connects to the system bus. An empty adapter selects hci0.
func NewPairingChecker(adapter string) (*PairingChecker, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return newPairingChecker(adapter, func(path dbus.ObjectPath, property string) (dbus.Variant, error) {
		return conn.Object(bluezBus, path).GetProperty(property)
	}), nil
}

func newPairingChecker(adapter string, get func(dbus.ObjectPath, string) (dbus.Variant, error)) *PairingChecker {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	return &PairingChecker{adapter: adapter, get: get}
}

// Paired reports whether BlueZ holds a bond for the device address id.
// A device BlueZ has never seen is reported as not paired.
func (p *PairingChecker) Paired(ctx context.Context, id string) (bool, error) {
	path := DevicePath(p.adapter, id)
	v, err := device.Await(ctx, "pairing lookup", func() (dbus.Variant, error) {
		return p.get(path, bluezDevice+".Paired")
	})
	if err != nil {
		var derr dbus.Error
		if errors.As(err, &derr) && derr.Name == "org.freedesktop.DBus.Error.UnknownObject" {
			return false, nil
		}
		return false, fmt.Errorf("failed to read pairing state of %s: %w", id, err)
	}

	paired, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s.Paired has unexpected type %T", bluezDevice, v.Value())
	}
	return paired, nil
}

// DevicePath converts a BLE MAC address to a BlueZ object path.
// Example: "aa:bb:cc:dd:ee:ff" → "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"
func DevicePath(adapter, address string) dbus.ObjectPath {
	devAddr := strings.ToUpper(strings.ReplaceAll(address, ":", "_"))
	return dbus.ObjectPath(fmt.Sprintf("/org/bluez/%s/dev_%s", adapter, devAddr))
}
