package trafficlight

type stateKeyType string

const (
	stateKey stateKeyType = "state"
)

// State describes the transition a notifier is handling.
type State struct {
	Phase Phase
	Index int
}
