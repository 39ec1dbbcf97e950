// Package device defines the contract between the sensor client and a BLE host
// stack, together with the error taxonomy shared by every layer above it.
//
// A Platform opens a Session for an already-paired peripheral. The Session
// exposes uncached GATT discovery, client characteristic configuration writes,
// characteristic reads and notification delivery. Every failure coming out of a
// Session carries a CommunicationStatus so callers can tell a timeout from an
// access denial without parsing strings.
package device
