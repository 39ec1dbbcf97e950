// Package monitor manages the GATT session with a paired environmental sensor.
//
// A Monitor owns at most one live session. Every operation on that session,
// including the delivery of notifications and platform status changes, runs
// on a single control-loop goroutine, so session state is never shared between
// goroutines. Public methods submit commands to the loop and wait for them.
//
//	m := monitor.New(platform, cfg.Monitor, logger)
//	defer m.Close()
//
//	events.On(m.Events(), func(e events.TemperatureChanged) { ... })
//	if res := m.Connect(ctx, "AA:BB:CC:DD:EE:FF"); res.Err != nil { ... }
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/srg/blesense/internal/catalog"
	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/groutine"
	"github.com/srg/blesense/internal/payload"
	"github.com/srg/blesense/internal/ringchan"
	"github.com/srg/blesense/pkg/config"
	"github.com/srg/blesense/pkg/events"
)

// ErrClosed is returned by operations on a closed Monitor.
var ErrClosed = errors.New("monitor is closed")

const (
	defaultNotificationBuffer = 64
	dropLogInterval           = 5 * time.Second
)

// ConnectionResult is the outcome of Connect.
type ConnectionResult struct {
	IsConnected  bool
	Name         string
	ErrorMessage string
	Err          error
}

func failed(err error) ConnectionResult {
	return ConnectionResult{ErrorMessage: err.Error(), Err: err}
}

type notification struct {
	generation uint64
	kind       payload.Kind
	data       []byte
}

type statusChange struct {
	generation uint64
	connected  bool
}

// session is everything acquired for one connection. Only the control loop touches it.
type session struct {
	id         string
	generation uint64
	dev        device.Session
	catalog    *catalog.Catalog
	setup      *catalog.Setup
	subs       []*catalog.Subscription
	decoder    *payload.Decoder
	stopWatch  context.CancelFunc
	log        *logrus.Entry
}

type sessionRef struct {
	dev device.Session
}

// Monitor connects to a sensor, subscribes to its readings and publishes them
// on an event bus.
type Monitor struct {
	platform device.Platform
	bus      *events.Bus
	logger   *logrus.Logger
	cfg      config.MonitorConfig

	state   atomic.Int32
	busy    atomic.Bool
	current atomic.Pointer[sessionRef]

	cmds     chan func()
	notes    *ringchan.RingChannel[notification]
	statuses chan statusChange
	dropLog  rate.Sometimes

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by the control loop
	active     *session
	generation uint64
}

// New creates a Monitor and starts its control loop. Close must be called to
// stop it.
func New(platform device.Platform, cfg config.MonitorConfig, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = catalog.DefaultStepTimeout
	}
	if cfg.NotificationBuffer <= 0 {
		cfg.NotificationBuffer = defaultNotificationBuffer
	}

	m := &Monitor{
		platform: platform,
		bus:      events.New(logger),
		logger:   logger,
		cfg:      cfg,
		cmds:     make(chan func()),
		notes:    ringchan.New[notification](cfg.NotificationBuffer),
		statuses: make(chan statusChange, 8),
		dropLog:  rate.Sometimes{Interval: dropLogInterval},
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	groutine.Go(context.Background(), "monitor-loop", m.run)
	return m
}

// Events returns the bus readings and status changes are published on.
// Handlers run on the control loop and must not call back into the Monitor
// synchronously.
func (m *Monitor) Events() *events.Bus {
	return m.bus
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// IsConnected reports the platform connection status of the current session,
// or false when there is none.
func (m *Monitor) IsConnected() bool {
	ref := m.current.Load()
	return ref != nil && ref.dev.Connected()
}

// Connect establishes a session with deviceID, discovers the Environmental
// Sensing service and subscribes to temperature and humidity. An existing
// session is disconnected first. A Connect issued while another one is in
// flight fails with device.ErrOperationInProgress.
func (m *Monitor) Connect(ctx context.Context, deviceID string) ConnectionResult {
	if !m.busy.CompareAndSwap(false, true) {
		return failed(device.ErrOperationInProgress)
	}
	defer m.busy.Store(false)

	var res ConnectionResult
	if err := m.exec(ctx, func() { res = m.connect(ctx, deviceID) }); err != nil {
		return failed(err)
	}
	return res
}

// Disconnect tears the current session down. Without a session it does nothing.
// A Disconnect issued during Connect runs once Connect has finished.
func (m *Monitor) Disconnect(ctx context.Context) error {
	return m.exec(ctx, func() { m.disconnect(ctx) })
}

// DeviceInfo reads the device information strings and battery level of the
// connected device. It returns a zero DeviceInfo when not connected.
func (m *Monitor) DeviceInfo(ctx context.Context) DeviceInfo {
	var info DeviceInfo
	if err := m.exec(ctx, func() { info = m.deviceInfo(ctx) }); err != nil {
		m.logger.WithError(err).Debug("Device info unavailable")
	}
	return info
}

// Close disconnects and stops the control loop. It is safe to call more than once.
func (m *Monitor) Close() error {
	ctx := context.Background()
	err := m.exec(ctx, func() { m.disconnect(ctx) })

	m.closeOnce.Do(func() { close(m.quit) })
	<-m.done

	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	m.logger.WithField("goroutine", groutine.Name(ctx)).Debug("Control loop started")
	for {
		select {
		case <-m.quit:
			m.logger.Debug("Control loop stopped")
			return
		case cmd := <-m.cmds:
			cmd()
		case n := <-m.notes.C():
			m.deliver(n)
		case st := <-m.statuses:
			m.forwardStatus(st)
		}
	}
}

// exec runs fn on the control loop and waits for it to finish.
func (m *Monitor) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case m.cmds <- cmd:
	case <-m.quit:
		return ErrClosed
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	<-finished
	return nil
}

func (m *Monitor) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	if prev != s {
		m.logger.WithFields(logrus.Fields{
			"from": prev.String(),
			"to":   s.String(),
		}).Debug("Session state changed")
	}
}

func newSessionID() string {
	return ulid.Make().String()
}
