package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CommunicationStatus is the outcome of a single platform round trip.
type CommunicationStatus int

const (
	StatusSuccess CommunicationStatus = iota
	StatusUnreachable
	StatusProtocolError
	StatusAccessDenied
	StatusTimeout
)

func (s CommunicationStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnreachable:
		return "unreachable"
	case StatusProtocolError:
		return "protocol_error"
	case StatusAccessDenied:
		return "access_denied"
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// CommunicationError is a failed platform round trip.
type CommunicationError struct {
	Op     string
	Status CommunicationStatus
	Err    error
}

func (e *CommunicationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "communication failure: " + e.Status.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// Is matches another *CommunicationError with the same Status.
func (e *CommunicationError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*CommunicationError)
	if !ok {
		return false
	}
	return e.Status == t.Status
}

// NotFoundError reports a device or GATT attribute that could not be resolved by name.
type NotFoundError struct {
	Resource string   // "device", "service", "characteristic"
	Names    []string // outermost first, e.g. [service, characteristic]
}

func (e *NotFoundError) Error() string {
	switch len(e.Names) {
	case 0:
		return fmt.Sprintf("%s not found", e.Resource)
	case 1:
		return fmt.Sprintf("%s %q not found", e.Resource, e.Names[0])
	default:
		return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.Names[len(e.Names)-1], e.Names[0])
	}
}

// Is matches another *NotFoundError for the same Resource.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return e.Resource == t.Resource
}

// ConnectionState is the kind of connection-level refusal.
type ConnectionState string

const (
	NotPaired           ConnectionState = "not_paired"
	Unreachable         ConnectionState = "unreachable"
	NotConnected        ConnectionState = "not_connected"
	OperationInProgress ConnectionState = "operation_in_progress"
)

// ConnectionError represents a refusal to establish or use a session.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return e.Msg
}

// Is allows errors.Is to compare ConnectionError values by State.
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// DescriptorDiscoveryError is returned when descriptors of a characteristic
// could not be discovered.
type DescriptorDiscoveryError struct {
	Characteristic string
	Status         CommunicationStatus
	Err            error
}

func (e *DescriptorDiscoveryError) Error() string {
	return fmt.Sprintf("descriptor discovery for %q failed: %s", e.Characteristic, e.Status)
}

func (e *DescriptorDiscoveryError) Unwrap() error {
	return &CommunicationError{Op: "discover descriptors", Status: e.Status, Err: e.Err}
}

var (
	ErrDeviceNotFound        = &NotFoundError{Resource: "device"}
	ErrServiceMissing        = &NotFoundError{Resource: "service"}
	ErrCharacteristicMissing = &NotFoundError{Resource: "characteristic"}
)

var (
	ErrNotPaired           = &ConnectionError{State: NotPaired, Msg: "device is not paired"}
	ErrUnreachable         = &ConnectionError{State: Unreachable, Msg: "device is unreachable (out of range or switched off)"}
	ErrNotConnected        = &ConnectionError{State: NotConnected, Msg: "device not connected"}
	ErrOperationInProgress = &ConnectionError{State: OperationInProgress, Msg: "another connect or disconnect is in progress"}
)

var ErrNotifyUnsupported = errors.New("notify not supported")

// CommunicationFailure builds a *CommunicationError for op, deriving the status from err.
func CommunicationFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var cerr *CommunicationError
	if errors.As(err, &cerr) {
		return err
	}
	return &CommunicationError{Op: op, Status: StatusOf(err), Err: err}
}

// StatusOf maps any error to the CommunicationStatus it represents.
func StatusOf(err error) CommunicationStatus {
	if err == nil {
		return StatusSuccess
	}

	var cerr *CommunicationError
	if errors.As(err, &cerr) {
		return cerr.Status
	}
	var derr *DescriptorDiscoveryError
	if errors.As(err, &derr) {
		return derr.Status
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrUnreachable):
		return StatusUnreachable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return StatusTimeout
	case strings.Contains(msg, "insufficient authentication"),
		strings.Contains(msg, "insufficient authorization"),
		strings.Contains(msg, "insufficient encryption"),
		strings.Contains(msg, "not permitted"),
		strings.Contains(msg, "access denied"):
		return StatusAccessDenied
	case strings.Contains(msg, "disconnected"), strings.Contains(msg, "not connected"):
		return StatusUnreachable
	default:
		return StatusProtocolError
	}
}

// IsConnectionState reports whether err is a ConnectionError with the given state.
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
