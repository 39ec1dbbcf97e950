package main

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/device/bluez"
	goble "github.com/srg/blesense/internal/device/go-ble"
	"github.com/srg/blesense/pkg/config"
)

// PlatformFactory opens the host BLE stack (can be overridden in tests).
// The returned function releases it.
var PlatformFactory = func(cfg config.PlatformConfig, logger *logrus.Logger) (device.Platform, func(), error) {
	pairing, err := pairingChecker(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	p := goble.NewPlatform(logger, pairing)
	return p, func() {
		if err := p.Stop(); err != nil {
			logger.WithError(err).Debug("Failed to stop BLE device")
		}
	}, nil
}

func pairingChecker(cfg config.PlatformConfig, logger *logrus.Logger) (goble.PairingChecker, error) {
	switch cfg.PairingCheck {
	case "none":
		return nil, nil
	case "bluez":
		checker, err := bluez.NewPairingChecker(cfg.Adapter)
		if err != nil {
			return nil, fmt.Errorf("pairing check unavailable: %w", err)
		}
		return checker, nil
	default: // auto
		if runtime.GOOS != "linux" {
			return nil, nil
		}
		checker, err := bluez.NewPairingChecker(cfg.Adapter)
		if err != nil {
			logger.WithError(err).Debug("BlueZ unavailable, pairing state is not checked")
			return nil, nil
		}
		return checker, nil
	}
}
