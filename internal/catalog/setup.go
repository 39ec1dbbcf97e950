package catalog

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/device"
)

// Subscription is a characteristic with notifications enabled and a handler
// registered. It is released by Setup.Disable.
type Subscription struct {
	Characteristic *Characteristic
	active         bool
}

// Active reports whether the subscription has not been disabled yet.
func (s *Subscription) Active() bool {
	return s != nil && s.active
}

// Setup enables and disables notifications for characteristics of a catalog.
type Setup struct {
	catalog *Catalog
	logger  *logrus.Logger
}

// NewSetup binds a Setup to c.
func NewSetup(c *Catalog) *Setup {
	return &Setup{catalog: c, logger: c.logger}
}

// Enable turns on notifications for the characteristic named name in svc and
// routes its values to h.
//
// The steps run in order and stop at the first failure:
//  1. resolve the characteristic by name (uncached discovery)
//  2. discover its descriptors (uncached)
//  3. check that it advertises Notify
//  4. write "notify" to its client configuration descriptor, then register h
//
// h is registered only when every step succeeds.
func (s *Setup) Enable(ctx context.Context, svc *Service, name string, h device.NotificationHandler) (*Subscription, error) {
	c := s.catalog
	if !c.Owns(svc) {
		return nil, ErrStaleAttribute
	}

	log := s.logger.WithFields(logrus.Fields{
		"device":         c.session.ID(),
		"service":        svc.Name,
		"characteristic": name,
	})

	chars, outcome := c.DiscoverCharacteristics(ctx, svc)
	if outcome == OutcomeTimeout {
		return nil, &device.CommunicationError{Op: "discover characteristics", Status: device.StatusTimeout}
	}
	ch, ok := FindCharacteristic(chars, name)
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", Names: []string{svc.Name, name}}
	}

	descCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	_, err := c.session.DiscoverDescriptors(descCtx, ch.Handle)
	cancel()
	if err != nil {
		log.WithField("error", err).Debug("Descriptor discovery failed")
		return nil, &device.DescriptorDiscoveryError{Characteristic: name, Status: device.StatusOf(err), Err: err}
	}

	if !ch.Handle.CanNotify() {
		return nil, fmt.Errorf("characteristic %q: %w", name, device.ErrNotifyUnsupported)
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	err = c.session.WriteClientConfig(writeCtx, ch.Handle, device.ClientConfigNotify)
	cancel()
	if err != nil {
		log.WithField("error", err).Debug("Enabling notifications failed")
		return nil, device.CommunicationFailure("enable notifications on "+name, err)
	}

	c.session.SetNotificationHandler(ch.Handle, h)
	log.Debug("Notifications enabled")

	return &Subscription{Characteristic: ch, active: true}, nil
}

// Disable writes "none" to the client configuration descriptor of sub,
// unregisters its handler and releases its handle. Write failures are logged
// and otherwise ignored so that teardown always completes. Disabling an
// inactive subscription is a no-op.
func (s *Setup) Disable(ctx context.Context, sub *Subscription) {
	if !sub.Active() {
		return
	}
	sub.active = false

	c := s.catalog
	ch := sub.Characteristic

	c.session.SetNotificationHandler(ch.Handle, nil)

	writeCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	err := c.session.WriteClientConfig(writeCtx, ch.Handle, device.ClientConfigNone)
	cancel()
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"device":         c.session.ID(),
			"characteristic": ch.Name,
			"error":          err,
		}).Warn("Failed to disable notifications, releasing anyway")
	}

	c.Release(ch)
}
