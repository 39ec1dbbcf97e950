package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ble/ble"

	"github.com/srg/blesense/internal/device"
)

// NormalizeError maps known go-ble errors to the device error taxonomy.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	var attErr ble.ATTError
	if errors.As(err, &attErr) {
		switch attErr {
		case ble.ErrAuthentication, ble.ErrAuthorization, ble.ErrInsuffEnc, ble.ErrInsuffEncrKeySize,
			ble.ErrReadNotPerm, ble.ErrWriteNotPerm:
			return &device.CommunicationError{Status: device.StatusAccessDenied, Err: err}
		default:
			return &device.CommunicationError{Status: device.StatusProtocolError, Err: err}
		}
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrUnreachable, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", device.ErrUnreachable, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
