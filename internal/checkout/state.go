package checkout

// State is a checkout attempt's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateTokenCollected
	StateCharging
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTokenCollected:
		return "token_collected"
	case StateCharging:
		return "charging"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}
