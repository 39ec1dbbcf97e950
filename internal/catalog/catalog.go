// Package catalog discovers the GATT attributes of a session, names them, and
// turns notifications on and off for individual characteristics.
//
// Discovery fails open: a service or characteristic list that could not be read
// is reported as empty, exactly like one the device genuinely does not have. The
// reason is not lost, though; every discovery also returns an Outcome.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/bledb"
	"github.com/srg/blesense/internal/device"
)

// DefaultStepTimeout bounds each platform round trip made by the catalog.
const DefaultStepTimeout = 10 * time.Second

// Outcome is the internal result of a discovery call.
type Outcome int

const (
	OutcomeFound Outcome = iota
	OutcomeEmpty
	OutcomeAccessDenied
	OutcomeTransportError
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeEmpty:
		return "empty"
	case OutcomeAccessDenied:
		return "access_denied"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ErrStaleAttribute is returned when an attribute from a cleared catalog is used.
var ErrStaleAttribute = errors.New("attribute belongs to a previous session")

// Service is a named service handle.
type Service struct {
	Name   string
	UUID   string
	Handle device.Service

	owner      *Catalog
	generation uint64
}

// Characteristic is a named characteristic handle.
type Characteristic struct {
	Name    string
	UUID    string
	Handle  device.Characteristic
	Service *Service
}

// Catalog holds the attributes discovered on one session. It is owned by a
// single goroutine and is not safe for concurrent use.
type Catalog struct {
	session     device.Session
	logger      *logrus.Logger
	stepTimeout time.Duration

	generation uint64
	services   []*Service
	handles    []device.Attribute
}

// New creates an empty catalog for session. A zero stepTimeout selects DefaultStepTimeout.
func New(session device.Session, logger *logrus.Logger, stepTimeout time.Duration) *Catalog {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Catalog{
		session:     session,
		logger:      logger,
		stepTimeout: stepTimeout,
		generation:  1,
	}
}

// Session returns the session the catalog discovers on.
func (c *Catalog) Session() device.Session {
	return c.session
}

// DiscoverServices fetches the service list from the device, bypassing any
// platform cache, and replaces the catalog's services with it.
func (c *Catalog) DiscoverServices(ctx context.Context) ([]*Service, Outcome) {
	stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	raw, err := c.session.DiscoverServices(stepCtx)
	outcome := classify(len(raw), err)
	c.logOutcome("services", "", outcome, err)
	if outcome != OutcomeFound {
		c.services = nil
		return nil, outcome
	}

	services := make([]*Service, 0, len(raw))
	for _, s := range raw {
		services = append(services, &Service{
			Name:       bledb.ServiceIdent(s.UUID()),
			UUID:       bledb.NormalizeUUID(s.UUID()),
			Handle:     s,
			owner:      c,
			generation: c.generation,
		})
		c.track(s)
	}
	c.services = services
	return services, outcome
}

// DiscoverCharacteristics fetches the characteristics of svc from the device,
// bypassing any platform cache.
func (c *Catalog) DiscoverCharacteristics(ctx context.Context, svc *Service) ([]*Characteristic, Outcome) {
	if !c.Owns(svc) {
		c.logger.WithField("device", c.session.ID()).Warn("Characteristic discovery on a stale service handle")
		return nil, OutcomeEmpty
	}

	stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	raw, err := c.session.DiscoverCharacteristics(stepCtx, svc.Handle)
	outcome := classify(len(raw), err)
	c.logOutcome("characteristics", svc.Name, outcome, err)
	if outcome != OutcomeFound {
		return nil, outcome
	}

	chars := make([]*Characteristic, 0, len(raw))
	for _, ch := range raw {
		chars = append(chars, &Characteristic{
			Name:    bledb.CharacteristicIdent(ch.UUID()),
			UUID:    bledb.NormalizeUUID(ch.UUID()),
			Handle:  ch,
			Service: svc,
		})
		c.track(ch)
	}
	return chars, outcome
}

// Services returns the services found by the last DiscoverServices call.
func (c *Catalog) Services() []*Service {
	return c.services
}

// Service looks a discovered service up by name.
func (c *Catalog) Service(name string) (*Service, bool) {
	return FindService(c.services, name)
}

// Read reads the current value of ch, bounded by the step timeout.
func (c *Catalog) Read(ctx context.Context, ch *Characteristic) ([]byte, error) {
	if !c.Owns(ch.Service) {
		return nil, ErrStaleAttribute
	}
	stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	data, err := c.session.Read(stepCtx, ch.Handle)
	if err != nil {
		return nil, device.CommunicationFailure("read "+ch.Name, err)
	}
	return data, nil
}

// Owns reports whether svc was discovered by this catalog since its last Clear.
func (c *Catalog) Owns(svc *Service) bool {
	return svc != nil && svc.owner == c && svc.generation == c.generation
}

func (c *Catalog) track(h device.Attribute) {
	for _, known := range c.handles {
		if known == h {
			return
		}
	}
	c.handles = append(c.handles, h)
}

// Release hands the given characteristics back to the platform ahead of Clear.
func (c *Catalog) Release(chars ...*Characteristic) {
	for _, ch := range chars {
		for i, h := range c.handles {
			if h == device.Attribute(ch.Handle) {
				c.session.Release(h)
				c.handles = append(c.handles[:i], c.handles[i+1:]...)
				break
			}
		}
	}
}

// Clear releases every handle the catalog handed out and invalidates all of its
// attributes. It is safe to call more than once.
func (c *Catalog) Clear() {
	for i := len(c.handles) - 1; i >= 0; i-- {
		c.session.Release(c.handles[i])
	}
	c.handles = nil
	c.services = nil
	c.generation++
}

// FindService returns the first service named name. Names are matched exactly
// and case-sensitively; when a device exposes duplicates, discovery order
// decides, and that order is not guaranteed to be stable across platforms.
func FindService(services []*Service, name string) (*Service, bool) {
	for _, s := range services {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// FindCharacteristic returns the first characteristic named name, with the same
// matching rules as FindService.
func FindCharacteristic(chars []*Characteristic, name string) (*Characteristic, bool) {
	for _, ch := range chars {
		if ch.Name == name {
			return ch, true
		}
	}
	return nil, false
}

func classify(n int, err error) Outcome {
	if err == nil {
		if n == 0 {
			return OutcomeEmpty
		}
		return OutcomeFound
	}
	switch device.StatusOf(err) {
	case device.StatusAccessDenied:
		return OutcomeAccessDenied
	case device.StatusTimeout:
		return OutcomeTimeout
	default:
		return OutcomeTransportError
	}
}

func (c *Catalog) logOutcome(what, scope string, outcome Outcome, err error) {
	fields := logrus.Fields{
		"device":  c.session.ID(),
		"what":    what,
		"outcome": outcome.String(),
	}
	if scope != "" {
		fields["service"] = scope
	}
	if err != nil {
		fields["error"] = err
		c.logger.WithFields(fields).Warn("Discovery failed, treating as empty")
		return
	}
	c.logger.WithFields(fields).Debug("Discovery completed")
}
