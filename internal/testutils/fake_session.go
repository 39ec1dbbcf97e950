package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/srg/blesense/internal/bledb"
	"github.com/srg/blesense/internal/device"
)

// Operation names used to inject faults into fake sessions.
const (
	OpOpen                    = "open"
	OpDiscoverServices        = "discover_services"
	OpDiscoverCharacteristics = "discover_characteristics"
	OpDiscoverDescriptors     = "discover_descriptors"
	OpWriteClientConfig       = "write_client_config"
	OpRead                    = "read"
	OpClose                   = "close"
)

// FakeService is an in-memory device.Service.
type FakeService struct {
	uuid  string
	chars []*FakeCharacteristic
}

func (s *FakeService) UUID() string { return s.uuid }

// FakeCharacteristic is an in-memory device.Characteristic.
type FakeCharacteristic struct {
	uuid   string
	notify bool
	read   bool
	value  []byte
}

func (c *FakeCharacteristic) UUID() string    { return c.uuid }
func (c *FakeCharacteristic) CanNotify() bool { return c.notify }
func (c *FakeCharacteristic) CanRead() bool   { return c.read }

type fakeDescriptor struct{ uuid string }

func (d fakeDescriptor) UUID() string { return d.uuid }

// Call records one platform round trip made against a FakeSession.
type Call struct {
	Op     string
	UUID   string
	Config device.ClientConfig
}

func (c Call) String() string {
	if c.Op == OpWriteClientConfig {
		return fmt.Sprintf("%s:%s:%s", c.Op, c.UUID, c.Config)
	}
	if c.UUID == "" {
		return c.Op
	}
	return c.Op + ":" + c.UUID
}

// FakeSession is an in-memory device.Session driven by a FakePlatform.
type FakeSession struct {
	faults *faults

	mu        sync.Mutex
	id        string
	name      string
	paired    bool
	connected bool
	closed    bool
	services  []*FakeService
	handlers  map[string]device.NotificationHandler
	configs   map[string]device.ClientConfig
	released  map[string]int
	calls     []Call
	status    chan bool
}

func newFakeSession(cfg DeviceConfig, f *faults) *FakeSession {
	s := &FakeSession{
		faults:    f,
		id:        cfg.ID,
		name:      cfg.Name,
		paired:    !cfg.Unpaired,
		connected: true,
		handlers:  make(map[string]device.NotificationHandler),
		configs:   make(map[string]device.ClientConfig),
		released:  make(map[string]int),
		status:    make(chan bool, 16),
	}
	for _, svcCfg := range cfg.Services {
		svc := &FakeService{uuid: bledb.NormalizeUUID(svcCfg.UUID)}
		for _, chCfg := range svcCfg.Characteristics {
			props := parseProperties(chCfg.Properties)
			svc.chars = append(svc.chars, &FakeCharacteristic{
				uuid:   bledb.NormalizeUUID(chCfg.UUID),
				notify: props["notify"],
				read:   props["read"],
				value:  chCfg.Value,
			})
		}
		s.services = append(s.services, svc)
	}
	return s
}

func parseProperties(props string) map[string]bool {
	if props == "" {
		props = "read,notify"
	}
	out := make(map[string]bool)
	for _, p := range strings.Split(props, ",") {
		out[strings.TrimSpace(p)] = true
	}
	return out
}

func (s *FakeSession) ID() string   { return s.id }
func (s *FakeSession) Name() string { return s.name }
func (s *FakeSession) Paired() bool { return s.paired }

func (s *FakeSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && !s.closed
}

func (s *FakeSession) StatusChanges() <-chan bool { return s.status }

func (s *FakeSession) DiscoverServices(ctx context.Context) ([]device.Service, error) {
	if err := s.roundTrip(ctx, Call{Op: OpDiscoverServices}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]device.Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	return out, nil
}

func (s *FakeSession) DiscoverCharacteristics(ctx context.Context, svc device.Service) ([]device.Characteristic, error) {
	if err := s.roundTrip(ctx, Call{Op: OpDiscoverCharacteristics, UUID: svc.UUID()}); err != nil {
		return nil, err
	}
	fs, ok := svc.(*FakeService)
	if !ok {
		return nil, fmt.Errorf("foreign service handle %T", svc)
	}
	out := make([]device.Characteristic, 0, len(fs.chars))
	for _, ch := range fs.chars {
		out = append(out, ch)
	}
	return out, nil
}

func (s *FakeSession) DiscoverDescriptors(ctx context.Context, char device.Characteristic) ([]device.Descriptor, error) {
	if err := s.roundTrip(ctx, Call{Op: OpDiscoverDescriptors, UUID: char.UUID()}); err != nil {
		return nil, err
	}
	if !char.CanNotify() {
		return nil, nil
	}
	return []device.Descriptor{fakeDescriptor{uuid: "2902"}}, nil
}

func (s *FakeSession) WriteClientConfig(ctx context.Context, char device.Characteristic, cfg device.ClientConfig) error {
	if err := s.roundTrip(ctx, Call{Op: OpWriteClientConfig, UUID: char.UUID(), Config: cfg}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[char.UUID()] = cfg
	return nil
}

func (s *FakeSession) SetNotificationHandler(char device.Characteristic, h device.NotificationHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.handlers, char.UUID())
		return
	}
	s.handlers[char.UUID()] = h
}

func (s *FakeSession) Read(ctx context.Context, char device.Characteristic) ([]byte, error) {
	if err := s.roundTrip(ctx, Call{Op: OpRead, UUID: char.UUID()}); err != nil {
		return nil, err
	}
	fc, ok := char.(*FakeCharacteristic)
	if !ok || !fc.read {
		return nil, fmt.Errorf("read not permitted")
	}
	return append([]byte(nil), fc.value...), nil
}

func (s *FakeSession) Release(attr device.Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released[attr.UUID()]++
}

func (s *FakeSession) Close() error {
	err := s.faults.failure(Call{Op: OpClose})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: OpClose})
	if s.closed {
		return nil
	}
	s.closed = true
	s.connected = false
	s.handlers = make(map[string]device.NotificationHandler)
	close(s.status)
	return err
}

func (s *FakeSession) roundTrip(ctx context.Context, call Call) error {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return device.ErrNotConnected
	}
	if err := s.faults.wait(ctx, call); err != nil {
		return err
	}
	return s.faults.failure(call)
}

// Notify pushes data to the handler registered for the characteristic uuid,
// as the platform would on a remote value change. It reports whether a handler
// received the value.
func (s *FakeSession) Notify(uuid string, data []byte) bool {
	uuid = bledb.NormalizeUUID(uuid)

	s.mu.Lock()
	h, ok := s.handlers[uuid]
	s.mu.Unlock()

	if !ok {
		return false
	}
	h(data)
	return true
}

// SetConnected simulates a platform-raised connection transition.
func (s *FakeSession) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.connected = connected
	select {
	case s.status <- connected:
	default:
	}
}

// Calls returns every recorded round trip, formatted by Call.String.
func (s *FakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.String())
	}
	return out
}

// ClientConfig returns the last configuration written for uuid.
func (s *FakeSession) ClientConfig(uuid string) device.ClientConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[bledb.NormalizeUUID(uuid)]
}

// HasHandler reports whether a notification handler is registered for uuid.
func (s *FakeSession) HasHandler(uuid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handlers[bledb.NormalizeUUID(uuid)]
	return ok
}

// Handler returns the notification handler registered for uuid, or nil.
func (s *FakeSession) Handler(uuid string) device.NotificationHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[bledb.NormalizeUUID(uuid)]
}

// HandlerCount returns the number of registered notification handlers.
func (s *FakeSession) HandlerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Released returns how many times a handle with uuid was released.
func (s *FakeSession) Released(uuid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released[bledb.NormalizeUUID(uuid)]
}

// Closed reports whether Close was called.
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// faults holds failure injections shared by a FakePlatform and its sessions.
type faults struct {
	mu       sync.Mutex
	failures map[string]error
	delays   map[string]time.Duration
	gates    map[string]*Gate
}

func newFaults() *faults {
	return &faults{
		failures: make(map[string]error),
		delays:   make(map[string]time.Duration),
		gates:    make(map[string]*Gate),
	}
}

// keys returns the lookup keys of call from most to least specific.
func keys(call Call) []string {
	if call.UUID == "" {
		return []string{call.Op}
	}
	k := []string{call.Op + ":" + call.UUID, call.Op}
	if call.Op == OpWriteClientConfig {
		k = append([]string{call.String()}, k...)
	}
	return k
}

func (f *faults) failure(call Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys(call) {
		if err, ok := f.failures[k]; ok {
			return err
		}
	}
	return nil
}

func (f *faults) wait(ctx context.Context, call Call) error {
	f.mu.Lock()
	var gate *Gate
	var delay time.Duration
	for _, k := range keys(call) {
		if g, ok := f.gates[k]; ok && gate == nil {
			gate = g
		}
		if d, ok := f.delays[k]; ok && delay == 0 {
			delay = d
		}
	}
	f.mu.Unlock()

	if gate != nil {
		gate.enter()
		select {
		case <-gate.release:
		case <-ctx.Done():
			return device.CommunicationFailure(call.Op, ctx.Err())
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return device.CommunicationFailure(call.Op, ctx.Err())
		}
	}
	return nil
}

// Gate holds an operation until it is released.
type Gate struct {
	entered     chan struct{}
	enterOnce   sync.Once
	release     chan struct{}
	releaseOnce sync.Once
}

func newGate() *Gate {
	return &Gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *Gate) enter() { g.enterOnce.Do(func() { close(g.entered) }) }

// Entered is closed once an operation reaches the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets held and future operations through.
func (g *Gate) Release() { g.releaseOnce.Do(func() { close(g.release) }) }
