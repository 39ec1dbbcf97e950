package main

import (
	"errors"
	"fmt"

	"github.com/srg/blesense/internal/device"
)

// ErrConnectionLost indicates the platform dropped the link while monitoring.
var ErrConnectionLost = errors.New("connection lost")

// FormatUserError turns session errors into a single line a user can act on.
func FormatUserError(err error) string {
	var (
		nf   *device.NotFoundError
		cerr *device.CommunicationError
	)

	switch {
	case errors.Is(err, device.ErrNotPaired):
		return "device is not paired; pair it with the operating system first"
	case errors.Is(err, device.ErrUnreachable):
		return "device is unreachable; check that it is switched on and in range"
	case errors.Is(err, device.ErrOperationInProgress):
		return "another connect or disconnect is in progress"
	case errors.As(err, &nf) && nf.Resource == "device":
		return fmt.Sprintf("%s; check the device address", nf.Error())
	case errors.As(err, &nf):
		return fmt.Sprintf("%s; the device does not look like an environmental sensor", nf.Error())
	case errors.Is(err, device.ErrNotifyUnsupported):
		return "the sensor does not support notifications for a required characteristic"
	case errors.As(err, &cerr) && cerr.Status == device.StatusTimeout:
		return fmt.Sprintf("timed out waiting for the device (%s); try a larger --timeout", cerr.Op)
	case errors.As(err, &cerr) && cerr.Status == device.StatusAccessDenied:
		return fmt.Sprintf("access denied by the device (%s); re-pair it and retry", cerr.Op)
	}
	return err.Error()
}
