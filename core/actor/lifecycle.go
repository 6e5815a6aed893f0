package actor

// State is the lifecycle state of an actor.
type State int32

const (
	StateNew State = iota
	StateInitializing
	StateIdle
	StateProcessing
	StateDestroying
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateDestroying:
		return "destroying"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
