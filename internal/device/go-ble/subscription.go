package goble

import (
	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"

	"github.com/srg/blesense/internal/device"
)

// handlerRegistry routes go-ble notification callbacks to the handler currently
// registered for a characteristic. go-ble invokes callbacks on its own
// goroutines, so lookups are lock-free.
type handlerRegistry struct {
	handlers *hashmap.Map[string, device.NotificationHandler]
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{handlers: hashmap.New[string, device.NotificationHandler]()}
}

func (r *handlerRegistry) set(c *BLECharacteristic, h device.NotificationHandler) {
	if h == nil {
		r.handlers.Del(c.key)
		return
	}
	r.handlers.Set(c.key, h)
}

func (r *handlerRegistry) clear() {
	r.handlers.Range(func(key string, _ device.NotificationHandler) bool {
		r.handlers.Del(key)
		return true
	})
}

// forwarder is the go-ble handler subscribed for c. Values arriving while no
// handler is registered are dropped.
func (r *handlerRegistry) forwarder(c *BLECharacteristic) ble.NotificationHandler {
	key := c.key
	return func(data []byte) {
		if h, ok := r.handlers.Get(key); ok {
			h(data)
		}
	}
}

func (r *handlerRegistry) len() int {
	return r.handlers.Len()
}
