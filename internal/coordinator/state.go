package coordinator

// State is a device's position in the poll cycle.
type State string

const (
	StateIdle            State = "idle"
	StateFetching        State = "fetching"
	StatePublished       State = "published"
	StateAuthFailed      State = "auth_failed"
	StateTransientFailed State = "transient_failed"
)

// Terminal reports whether no further cycles run from this state without
// outside action.
func (s State) Terminal() bool {
	return s == StateAuthFailed
}
