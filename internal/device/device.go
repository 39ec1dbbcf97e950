package device

import (
	"context"
)

// ClientConfig is the value written to a Client Characteristic Configuration descriptor.
type ClientConfig uint16

const (
	ClientConfigNone     ClientConfig = 0x0000
	ClientConfigNotify   ClientConfig = 0x0001
	ClientConfigIndicate ClientConfig = 0x0002
)

func (c ClientConfig) String() string {
	switch c {
	case ClientConfigNone:
		return "none"
	case ClientConfigNotify:
		return "notify"
	case ClientConfigIndicate:
		return "indicate"
	default:
		return "unknown"
	}
}

// NotificationHandler receives raw characteristic values pushed by the peripheral.
// It is invoked on a goroutine owned by the platform.
type NotificationHandler func(data []byte)

// Attribute is an opaque platform handle to a discovered GATT attribute.
type Attribute interface {
	UUID() string
}

// Service is a discovered primary service.
type Service interface {
	Attribute
}

// Characteristic is a discovered characteristic.
type Characteristic interface {
	Attribute
	CanNotify() bool
	CanRead() bool
}

// Descriptor is a discovered characteristic descriptor.
type Descriptor interface {
	Attribute
}

// Session is a live GATT session with a single peripheral.
//
// All discovery methods bypass any platform-side attribute cache. Implementations
// must be safe for concurrent use; notification handlers and status changes are
// delivered on goroutines the caller does not control.
type Session interface {
	ID() string
	Name() string
	Paired() bool
	Connected() bool

	// StatusChanges reports platform connection transitions (true = connected).
	// The channel is closed when the session is closed.
	StatusChanges() <-chan bool

	DiscoverServices(ctx context.Context) ([]Service, error)
	DiscoverCharacteristics(ctx context.Context, svc Service) ([]Characteristic, error)
	DiscoverDescriptors(ctx context.Context, char Characteristic) ([]Descriptor, error)

	WriteClientConfig(ctx context.Context, char Characteristic, cfg ClientConfig) error
	// SetNotificationHandler routes values of char to h. A nil h removes the route.
	SetNotificationHandler(char Characteristic, h NotificationHandler)
	Read(ctx context.Context, char Characteristic) ([]byte, error)

	// Release drops any platform resources held for attr. Releasing twice is a no-op.
	Release(attr Attribute)
	Close() error
}

// Platform opens sessions to peripherals identified by a platform device id.
type Platform interface {
	Open(ctx context.Context, id string) (Session, error)
}
