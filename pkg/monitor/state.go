package monitor

// State is the lifecycle position of a Monitor.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateDiscoveringServices
	StateSettingUpCharacteristics
	StateConnected
	// StatePartial is a session whose temperature subscription is live but whose
	// humidity setup failed. It behaves like StateConnected until Disconnect.
	StatePartial
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateDiscoveringServices:
		return "discovering_services"
	case StateSettingUpCharacteristics:
		return "setting_up_characteristics"
	case StateConnected:
		return "connected"
	case StatePartial:
		return "partial"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// live reports whether notifications are delivered in this state.
func (s State) live() bool {
	return s == StateConnected || s == StatePartial
}
