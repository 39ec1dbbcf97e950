package monitor

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/catalog"
	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/groutine"
	"github.com/srg/blesense/internal/payload"
	"github.com/srg/blesense/pkg/events"
)

// GATT names the monitor resolves, as produced by the bledb name table.
const (
	envSensingService         = "EnvSensing"
	temperatureCharacteristic = "Temperature"
	humidityCharacteristic    = "Humidity"
	heartRateService          = "HeartRate"
	heartRateCharacteristic   = "HeartRateMeasurement"
)

func (m *Monitor) connect(ctx context.Context, deviceID string) ConnectionResult {
	if m.active != nil {
		m.active.log.Info("Replacing existing session")
		m.disconnect(ctx)
	}

	log := m.logger.WithField("device", deviceID)
	m.setState(StateConnecting)

	openCtx, cancel := context.WithTimeout(ctx, m.cfg.StepTimeout)
	dev, err := m.platform.Open(openCtx, deviceID)
	cancel()
	if err != nil {
		m.setState(StateIdle)
		log.WithError(err).Debug("Failed to open session")
		if device.StatusOf(err) == device.StatusTimeout {
			return failed(device.CommunicationFailure("open "+deviceID, err))
		}
		return failed(&device.NotFoundError{Resource: "device", Names: []string{deviceID}})
	}

	if !dev.Paired() {
		log.Warn("Device is not paired with this host")
		if err := dev.Close(); err != nil {
			log.WithError(err).Warn("Failed to close session")
		}
		m.setState(StateIdle)
		return failed(device.ErrNotPaired)
	}

	m.generation++
	s := &session{
		id:         newSessionID(),
		generation: m.generation,
		dev:        dev,
		catalog:    catalog.New(dev, m.logger, m.cfg.StepTimeout),
		decoder:    payload.NewDecoder(),
	}
	s.setup = catalog.NewSetup(s.catalog)
	s.log = log.WithField("session", s.id)

	m.active = s
	m.current.Store(&sessionRef{dev: dev})
	m.watchStatus(s)

	services, err := m.discover(ctx, s)
	if err != nil {
		return m.abort(ctx, s, err)
	}
	env, ok := catalog.FindService(services, envSensingService)
	if !ok {
		return m.abort(ctx, s, &device.NotFoundError{Resource: "service", Names: []string{envSensingService}})
	}

	m.setState(StateSettingUpCharacteristics)
	if err := m.subscribe(ctx, s, env, temperatureCharacteristic, payload.KindTemperature); err != nil {
		return m.abort(ctx, s, err)
	}
	if err := m.subscribe(ctx, s, env, humidityCharacteristic, payload.KindHumidity); err != nil {
		if m.cfg.RollbackPartialSetup {
			return m.abort(ctx, s, err)
		}
		s.log.WithError(err).Warn("Humidity setup failed, keeping temperature subscription")
		m.setState(StatePartial)
		res := failed(err)
		res.Name = dev.Name()
		return res
	}

	if m.cfg.HeartRate {
		m.subscribeHeartRate(ctx, s, services)
	}

	m.setState(StateConnected)
	connected := dev.Connected()
	s.log.WithFields(logrus.Fields{
		"name":          dev.Name(),
		"subscriptions": len(s.subs),
	}).Info("Connected")
	m.bus.Publish(events.ConnectionStatusChanged{IsConnected: connected})

	return ConnectionResult{IsConnected: connected, Name: dev.Name()}
}

func (m *Monitor) discover(ctx context.Context, s *session) ([]*catalog.Service, error) {
	m.setState(StateDiscoveringServices)

	services, outcome := s.catalog.DiscoverServices(ctx)
	if len(services) > 0 {
		return services, nil
	}
	if outcome == catalog.OutcomeTimeout {
		return nil, &device.CommunicationError{Op: "discover services", Status: device.StatusTimeout}
	}
	return nil, device.ErrUnreachable
}

func (m *Monitor) subscribe(ctx context.Context, s *session, svc *catalog.Service, name string, kind payload.Kind) error {
	sub, err := s.setup.Enable(ctx, svc, name, m.forward(s, kind))
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (m *Monitor) subscribeHeartRate(ctx context.Context, s *session, services []*catalog.Service) {
	svc, ok := catalog.FindService(services, heartRateService)
	if !ok {
		s.log.Debug("No heart rate service")
		return
	}
	if err := m.subscribe(ctx, s, svc, heartRateCharacteristic, payload.KindHeartRate); err != nil {
		s.log.WithError(err).Warn("Heart rate subscription failed")
	}
}

// forward returns the platform callback for one subscription. It runs on a
// platform goroutine and only hands a copy of the value to the control loop.
func (m *Monitor) forward(s *session, kind payload.Kind) device.NotificationHandler {
	generation := s.generation
	return func(data []byte) {
		n := notification{
			generation: generation,
			kind:       kind,
			data:       append([]byte(nil), data...),
		}
		if m.notes.Send(n) {
			m.dropLog.Do(func() {
				m.logger.WithFields(logrus.Fields{
					"kind":        kind.String(),
					"overwritten": m.notes.Metrics().Overwritten,
				}).Warn("Notification buffer full, dropping oldest values")
			})
		}
	}
}

func (m *Monitor) watchStatus(s *session) {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopWatch = cancel

	changes := s.dev.StatusChanges()
	generation := s.generation

	groutine.Go(ctx, "status-watch", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case connected, ok := <-changes:
				if !ok {
					return
				}
				select {
				case m.statuses <- statusChange{generation: generation, connected: connected}:
				case <-ctx.Done():
					return
				case <-m.quit:
					return
				}
			}
		}
	})
}

func (m *Monitor) deliver(n notification) {
	s := m.active
	if s == nil || s.generation != n.generation || !m.State().live() {
		return
	}

	r := s.decoder.Decode(n.kind, n.data)
	switch r.Kind {
	case payload.KindTemperature:
		m.bus.Publish(events.TemperatureChanged{Temperature: r.Value})
	case payload.KindHumidity:
		m.bus.Publish(events.HumidityChanged{Humidity: r.Value})
	case payload.KindHeartRate:
		m.bus.Publish(events.HeartRateChanged{BPM: uint16(r.Value)})
	}
}

func (m *Monitor) forwardStatus(st statusChange) {
	s := m.active
	if s == nil || s.generation != st.generation {
		return
	}
	s.log.WithField("connected", st.connected).Info("Platform connection status changed")
	m.bus.Publish(events.ConnectionStatusChanged{IsConnected: st.connected})
}

// abort releases a session that never reached StateConnected. No status event
// is published since none was published for it yet.
func (m *Monitor) abort(ctx context.Context, s *session, err error) ConnectionResult {
	s.log.WithError(err).Warn("Connect failed")
	m.release(ctx, s)
	m.setState(StateIdle)
	return failed(err)
}

func (m *Monitor) disconnect(ctx context.Context) {
	s := m.active
	if s == nil {
		return
	}

	m.setState(StateDisconnecting)
	m.release(ctx, s)
	m.setState(StateIdle)

	s.log.Info("Disconnected")
	m.bus.Publish(events.ConnectionStatusChanged{IsConnected: false})
}

// release undoes everything a session acquired, newest first. Errors are logged.
func (m *Monitor) release(ctx context.Context, s *session) {
	ctx = context.WithoutCancel(ctx)

	s.stopWatch()
	for i := len(s.subs) - 1; i >= 0; i-- {
		s.setup.Disable(ctx, s.subs[i])
	}
	s.subs = nil
	s.catalog.Clear()

	if err := s.dev.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close session")
	}

	s.decoder = nil
	m.active = nil
	m.current.Store(nil)
}
