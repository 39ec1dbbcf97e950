// Package events is the fan-out point between a sensor session and its consumers.
//
// Delivery is synchronous and, for a given event type, happens in subscription
// order. A panicking handler is recovered and logged; handlers after it still run.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Type names an event kind.
type Type string

const (
	TypeConnectionStatusChanged Type = "connection_status_changed"
	TypeTemperatureChanged      Type = "temperature_changed"
	TypeHumidityChanged         Type = "humidity_changed"
	TypeHeartRateChanged        Type = "heart_rate_changed"
)

// Event is implemented by every event published on a Bus.
type Event interface {
	Type() Type
}

// ConnectionStatusChanged reports a connection transition, either locally
// initiated or raised by the platform (signal loss, remote disconnect).
type ConnectionStatusChanged struct {
	IsConnected bool
}

// TemperatureChanged carries a decoded temperature in degrees Celsius.
type TemperatureChanged struct {
	Temperature float32
}

// HumidityChanged carries a decoded relative humidity in percent.
type HumidityChanged struct {
	Humidity float32
}

// HeartRateChanged carries a decoded heart rate in beats per minute.
type HeartRateChanged struct {
	BPM uint16
}

func (ConnectionStatusChanged) Type() Type { return TypeConnectionStatusChanged }
func (TemperatureChanged) Type() Type      { return TypeTemperatureChanged }
func (HumidityChanged) Type() Type         { return TypeHumidityChanged }
func (HeartRateChanged) Type() Type        { return TypeHeartRateChanged }

// Handler receives events of any type.
type Handler func(Event)

// Bus is a goroutine-safe, synchronous event bus.
type Bus struct {
	mu     sync.RWMutex
	typed  map[Type]*orderedmap.OrderedMap[uint64, Handler]
	all    *orderedmap.OrderedMap[uint64, Handler]
	nextID atomic.Uint64
	logger *logrus.Logger
}

// New creates an event bus.
func New(logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bus{
		typed:  make(map[Type]*orderedmap.OrderedMap[uint64, Handler]),
		all:    orderedmap.New[uint64, Handler](),
		logger: logger,
	}
}

// Subscribe registers h for events of type t and returns an unsubscribe function.
func (b *Bus) Subscribe(t Type, h Handler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	subs, ok := b.typed[t]
	if !ok {
		subs = orderedmap.New[uint64, Handler]()
		b.typed[t] = subs
	}
	subs.Set(id, h)
	b.mu.Unlock()

	return b.unsubscriber(subs, id)
}

// SubscribeAll registers h for every event and returns an unsubscribe function.
// Handlers registered this way run after the typed handlers of an event.
func (b *Bus) SubscribeAll(h Handler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.all.Set(id, h)
	b.mu.Unlock()

	return b.unsubscriber(b.all, id)
}

func (b *Bus) unsubscriber(subs *orderedmap.OrderedMap[uint64, Handler], id uint64) func() {
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs.Delete(id)
	}
}

// On registers a handler for a concrete event type.
//
//	unsubscribe := events.On(bus, func(e events.TemperatureChanged) { ... })
func On[E Event](b *Bus, h func(E)) func() {
	var zero E
	return b.Subscribe(zero.Type(), func(e Event) {
		if typed, ok := e.(E); ok {
			h(typed)
		}
	})
}

// Publish delivers e to every matching handler before returning.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := snapshot(b.typed[e.Type()], nil)
	handlers = snapshot(b.all, handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(e, h)
	}
}

func snapshot(subs *orderedmap.OrderedMap[uint64, Handler], dst []Handler) []Handler {
	if subs == nil {
		return dst
	}
	for pair := subs.Oldest(); pair != nil; pair = pair.Next() {
		dst = append(dst, pair.Value)
	}
	return dst
}

func (b *Bus) dispatch(e Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"event": string(e.Type()),
				"panic": fmt.Sprint(r),
			}).Error("Event handler panicked")
		}
	}()
	h(e)
}

// Len returns the number of handlers subscribed to t, excluding SubscribeAll handlers.
func (b *Bus) Len(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if subs, ok := b.typed[t]; ok {
		return subs.Len()
	}
	return 0
}
