package trafficlight

import "fmt"

type Phase string

const (
	PhaseRed   Phase = "red"
	PhaseGreen Phase = "green"
)

func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhaseRed, PhaseGreen:
		return p, nil
	default:
		return "", fmt.Errorf("invalid phase %q: must be red or green", s)
	}
}

// Toggle returns the phase that follows p.
func (p Phase) Toggle() Phase {
	if p == PhaseGreen {
		return PhaseRed
	}
	return PhaseGreen
}

func (p Phase) String() string {
	return string(p)
}
