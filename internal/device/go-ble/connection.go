package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/groutine"
)

// DefaultCloseTimeout bounds CancelConnection during Close.
const DefaultCloseTimeout = 5 * time.Second

// GATTClient is the part of ble.Client a BLEConnection uses
type GATTClient interface {
	Name() string
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// BLEConnection is a device.Session over a go-ble client
type BLEConnection struct {
	id     string
	paired bool
	client GATTClient
	logger *logrus.Logger

	handlers  *handlerRegistry
	connected atomic.Bool

	statusMu sync.Mutex
	status   chan bool
	closed   bool

	cancelMonitor context.CancelFunc
	closeOnce     sync.Once
	closeErr      error
}

func newBLEConnection(id string, paired bool, client GATTClient, logger *logrus.Logger) *BLEConnection {
	c := &BLEConnection{
		id:       id,
		paired:   paired,
		client:   client,
		logger:   logger,
		handlers: newHandlerRegistry(),
		status:   make(chan bool, 1),
	}
	c.connected.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelMonitor = cancel

	// Monitor go-ble client Disconnected() channel
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(ctx, "ble-connection-monitor", func(ctx context.Context) {
			select {
			case <-dc.Disconnected():
				c.logger.WithField("device", c.id).Warn("Platform reported disconnection")
				c.connected.Store(false)
				c.publishStatus(false)
			case <-ctx.Done():
			}
		})
	} else {
		c.logger.Debug("Client does not support Disconnected() channel")
	}
	return c
}

func (c *BLEConnection) ID() string { return c.id }

func (c *BLEConnection) Name() string { return c.client.Name() }

func (c *BLEConnection) Paired() bool { return c.paired }

func (c *BLEConnection) Connected() bool { return c.connected.Load() }

func (c *BLEConnection) StatusChanges() <-chan bool { return c.status }

func (c *BLEConnection) publishStatus(connected bool) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.status <- connected:
	default:
		c.logger.WithField("device", c.id).Debug("Status change dropped, previous one not consumed")
	}
}

func (c *BLEConnection) DiscoverServices(ctx context.Context) ([]device.Service, error) {
	raw, err := device.Await(ctx, "discover services", func() ([]*ble.Service, error) {
		return c.client.DiscoverServices(nil)
	})
	if err != nil {
		return nil, c.fail("discover services", err)
	}

	out := make([]device.Service, 0, len(raw))
	for _, s := range raw {
		out = append(out, newService(s))
	}
	return out, nil
}

func (c *BLEConnection) DiscoverCharacteristics(ctx context.Context, svc device.Service) ([]device.Characteristic, error) {
	s, ok := svc.(*BLEService)
	if !ok {
		return nil, fmt.Errorf("foreign service handle %T", svc)
	}

	raw, err := device.Await(ctx, "discover characteristics", func() ([]*ble.Characteristic, error) {
		return c.client.DiscoverCharacteristics(nil, s.BLESvc)
	})
	if err != nil {
		return nil, c.fail("discover characteristics", err)
	}

	out := make([]device.Characteristic, 0, len(raw))
	for _, ch := range raw {
		out = append(out, newCharacteristic(s, ch))
	}
	return out, nil
}

func (c *BLEConnection) DiscoverDescriptors(ctx context.Context, char device.Characteristic) ([]device.Descriptor, error) {
	ch, ok := char.(*BLECharacteristic)
	if !ok {
		return nil, fmt.Errorf("foreign characteristic handle %T", char)
	}

	raw, err := device.Await(ctx, "discover descriptors", func() ([]*ble.Descriptor, error) {
		return c.client.DiscoverDescriptors(nil, ch.BLEChar)
	})
	if err != nil {
		return nil, c.fail("discover descriptors", err)
	}

	out := make([]device.Descriptor, 0, len(raw))
	for _, d := range raw {
		out = append(out, newDescriptor(d))
	}
	return out, nil
}

// WriteClientConfig subscribes or unsubscribes ch. go-ble writes the client
// configuration descriptor as part of Subscribe and Unsubscribe.
func (c *BLEConnection) WriteClientConfig(ctx context.Context, char device.Characteristic, cfg device.ClientConfig) error {
	ch, ok := char.(*BLECharacteristic)
	if !ok {
		return fmt.Errorf("foreign characteristic handle %T", char)
	}

	op := "write client config " + cfg.String()
	err := device.AwaitErr(ctx, op, func() error {
		switch cfg {
		case device.ClientConfigNotify:
			return c.client.Subscribe(ch.BLEChar, false, c.handlers.forwarder(ch))
		case device.ClientConfigIndicate:
			return c.client.Subscribe(ch.BLEChar, true, c.handlers.forwarder(ch))
		case device.ClientConfigNone:
			return c.client.Unsubscribe(ch.BLEChar, ch.CanIndicate() && !ch.CanNotify())
		default:
			return fmt.Errorf("unsupported client configuration %d", cfg)
		}
	})
	if err != nil {
		return c.fail(op, err)
	}

	c.logger.WithFields(logrus.Fields{
		"device":         c.id,
		"characteristic": ch.uuid,
		"config":         cfg.String(),
	}).Debug("Client configuration written")
	return nil
}

func (c *BLEConnection) SetNotificationHandler(char device.Characteristic, h device.NotificationHandler) {
	if ch, ok := char.(*BLECharacteristic); ok {
		c.handlers.set(ch, h)
	}
}

func (c *BLEConnection) Read(ctx context.Context, char device.Characteristic) ([]byte, error) {
	ch, ok := char.(*BLECharacteristic)
	if !ok {
		return nil, fmt.Errorf("foreign characteristic handle %T", char)
	}

	data, err := device.Await(ctx, "read", func() ([]byte, error) {
		return c.client.ReadCharacteristic(ch.BLEChar)
	})
	if err != nil {
		return nil, c.fail("read "+ch.uuid, err)
	}
	return data, nil
}

// Release drops any handler still registered for attr. go-ble attributes hold
// no platform resources of their own.
func (c *BLEConnection) Release(attr device.Attribute) {
	if ch, ok := attr.(*BLECharacteristic); ok {
		c.handlers.set(ch, nil)
	}
}

// Close cancels the connection. Calling it again returns the first result.
func (c *BLEConnection) Close() error {
	c.closeOnce.Do(func() {
		c.cancelMonitor()
		c.handlers.clear()
		c.connected.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), DefaultCloseTimeout)
		defer cancel()
		c.closeErr = device.AwaitErr(ctx, "cancel connection", func() error {
			return NormalizeError(c.client.CancelConnection())
		})

		c.statusMu.Lock()
		c.closed = true
		close(c.status)
		c.statusMu.Unlock()

		if c.closeErr != nil {
			c.logger.WithFields(logrus.Fields{
				"device": c.id,
				"error":  c.closeErr,
			}).Warn("BLE device disconnected with errors")
		} else {
			c.logger.WithField("device", c.id).Info("BLE device disconnected successfully")
		}
	})
	return c.closeErr
}

// fail normalizes a go-ble error into a *device.CommunicationError for op.
func (c *BLEConnection) fail(op string, err error) error {
	err = NormalizeError(err)

	var cerr *device.CommunicationError
	if errors.As(err, &cerr) && cerr.Op == "" {
		cerr.Op = op
	}

	c.logger.WithFields(logrus.Fields{
		"device": c.id,
		"op":     op,
		"error":  err,
	}).Debug("GATT operation failed")
	return device.CommunicationFailure(op, err)
}
