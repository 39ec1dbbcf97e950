//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
)

func newHostDevice() (ble.Device, error) {
	return nil, fmt.Errorf("BLE is not supported on %s", runtime.GOOS)
}
