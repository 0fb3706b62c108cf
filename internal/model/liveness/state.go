package liveness

// State is the lifecycle position of a liveness session.
type State string

const (
	StateAwaitingFirstFrame  State = "awaiting_first_frame"
	StateChallengeInProgress State = "challenge_in_progress"
	StateCompleted           State = "completed"
	StateFailed              State = "failed"
	StateTimedOut            State = "timed_out"
)

// Terminal reports whether no further frames will be processed.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}
