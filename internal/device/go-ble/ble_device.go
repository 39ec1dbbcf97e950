package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/device"
)

// DeviceFactory creates the host ble.Device (can be overridden in tests)
var DeviceFactory = func() (ble.Device, error) {
	dev, err := newHostDevice()
	if err != nil {
		// Wrap Bluetooth state errors with clearer messages
		if strings.Contains(err.Error(), "central manager has invalid state") {
			if strings.Contains(err.Error(), "have=4") { // StatePoweredOff
				return nil, fmt.Errorf("Bluetooth is turned off - please enable Bluetooth and retry")
			}
			return nil, fmt.Errorf("Bluetooth is not ready - %w", err)
		}
		return nil, err
	}
	return dev, nil
}

// PairingChecker reports whether the host has a bond with a peripheral.
type PairingChecker interface {
	Paired(ctx context.Context, id string) (bool, error)
}

// AssumePaired is a PairingChecker for hosts with no pairing database access.
type AssumePaired struct{}

func (AssumePaired) Paired(context.Context, string) (bool, error) { return true, nil }

// Platform opens go-ble sessions. The host device is created on first use.
type Platform struct {
	logger  *logrus.Logger
	pairing PairingChecker

	mu   sync.Mutex
	dev  ble.Device
	dial func(ctx context.Context, id string) (GATTClient, error)
}

// NewPlatform returns a Platform. A nil pairing checker assumes every device is paired.
func NewPlatform(logger *logrus.Logger, pairing PairingChecker) *Platform {
	if logger == nil {
		logger = logrus.New()
	}
	if pairing == nil {
		pairing = AssumePaired{}
	}
	p := &Platform{logger: logger, pairing: pairing}
	p.dial = p.dialHost
	return p
}

// Open dials the peripheral with the given address and returns a live session.
func (p *Platform) Open(ctx context.Context, id string) (device.Session, error) {
	log := p.logger.WithField("device", id)
	log.Info("Connecting to BLE device...")

	client, err := p.dial(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address \"%s\": %w", id, NormalizeError(err))
	}

	paired, err := p.pairing.Paired(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Pairing state unavailable, assuming paired")
		paired = true
	}

	conn := newBLEConnection(id, paired, client, p.logger)
	log.WithFields(logrus.Fields{
		"name":   client.Name(),
		"paired": paired,
	}).Info("BLE device connected")
	return conn, nil
}

func (p *Platform) dialHost(ctx context.Context, id string) (GATTClient, error) {
	dev, err := p.hostDevice()
	if err != nil {
		return nil, err
	}
	client, err := dev.Dial(ctx, ble.NewAddr(id))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (p *Platform) hostDevice() (ble.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev != nil {
		return p.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	p.dev = dev
	return dev, nil
}

// Stop releases the host device, if one was created.
func (p *Platform) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return nil
	}
	err := p.dev.Stop()
	p.dev = nil
	return err
}
