package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/srg/blesense/internal/device"
)

// CharacteristicConfig represents a GATT characteristic of a fake peripheral
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a GATT service of a fake peripheral
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceConfig represents the complete fake peripheral
type DeviceConfig struct {
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Unpaired bool            `json:"unpaired,omitempty"`
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder builds a FakePlatform hosting one peripheral
type PeripheralDeviceBuilder struct {
	profile DeviceConfig
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		profile: DeviceConfig{
			ID:       DefaultDeviceID,
			Name:     DefaultDeviceName,
			Services: []ServiceConfig{},
		},
	}
}

// WithID sets the platform identifier the peripheral answers to
func (b *PeripheralDeviceBuilder) WithID(id string) *PeripheralDeviceBuilder {
	b.profile.ID = id
	return b
}

// WithName sets the advertised name
func (b *PeripheralDeviceBuilder) WithName(name string) *PeripheralDeviceBuilder {
	b.profile.Name = name
	return b
}

// Unpaired makes the peripheral report that it is not paired with this host
func (b *PeripheralDeviceBuilder) Unpaired() *PeripheralDeviceBuilder {
	b.profile.Unpaired = true
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// FromJSON fills the device profile from JSON. Missing id and name keep their defaults.
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	config := DeviceConfig{ID: b.profile.ID, Name: b.profile.Name}
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// Profile returns the configured device profile
func (b *PeripheralDeviceBuilder) Profile() DeviceConfig {
	return b.profile
}

// Build creates a FakePlatform that hosts the configured peripheral
func (b *PeripheralDeviceBuilder) Build() *FakePlatform {
	return NewFakePlatform(b.profile)
}

// FakePlatform is an in-memory device.Platform. Every Open of a known id
// yields a fresh FakeSession; fault injections apply to all of them.
type FakePlatform struct {
	faults *faults

	mu       sync.Mutex
	devices  map[string]DeviceConfig
	sessions []*FakeSession
	opens    int
}

// NewFakePlatform creates a platform hosting the given peripherals
func NewFakePlatform(devices ...DeviceConfig) *FakePlatform {
	p := &FakePlatform{
		faults:  newFaults(),
		devices: make(map[string]DeviceConfig),
	}
	for _, d := range devices {
		p.devices[d.ID] = d
	}
	return p
}

// Open implements device.Platform
func (p *FakePlatform) Open(ctx context.Context, id string) (device.Session, error) {
	p.mu.Lock()
	p.opens++
	p.mu.Unlock()

	call := Call{Op: OpOpen, UUID: id}
	if err := p.faults.wait(ctx, call); err != nil {
		return nil, err
	}
	if err := p.faults.failure(call); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	cfg, ok := p.devices[id]
	if !ok {
		return nil, fmt.Errorf("no device with id %q", id)
	}
	s := newFakeSession(cfg, p.faults)
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Fail makes every operation matching key return err. Keys are "op",
// "op:uuid" or, for client configuration writes, "op:uuid:config", with
// 16-bit UUIDs in lower-case short form.
func (p *FakePlatform) Fail(key string, err error) *FakePlatform {
	p.faults.mu.Lock()
	defer p.faults.mu.Unlock()
	p.faults.failures[key] = err
	return p
}

// Heal removes the failure registered for key
func (p *FakePlatform) Heal(key string) *FakePlatform {
	p.faults.mu.Lock()
	defer p.faults.mu.Unlock()
	delete(p.faults.failures, key)
	return p
}

// Delay makes every operation matching key take d, or until its context expires
func (p *FakePlatform) Delay(key string, d time.Duration) *FakePlatform {
	p.faults.mu.Lock()
	defer p.faults.mu.Unlock()
	p.faults.delays[key] = d
	return p
}

// HoldOn blocks every operation matching key until the returned gate is released
func (p *FakePlatform) HoldOn(key string) *Gate {
	p.faults.mu.Lock()
	defer p.faults.mu.Unlock()
	g := newGate()
	p.faults.gates[key] = g
	return g
}

// Session returns the most recently opened session, or nil
func (p *FakePlatform) Session() *FakeSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// Sessions returns every session opened so far
func (p *FakePlatform) Sessions() []*FakeSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeSession(nil), p.sessions...)
}

// Opens returns how many times Open was called
func (p *FakePlatform) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}
