package trafficlight_test

import (
	"testing"

	"github.com/fujiwara/trafficlight"
)

func TestPhase(t *testing.T) {
	if trafficlight.PhaseRed.Toggle() != trafficlight.PhaseGreen {
		t.Error("red must toggle to green")
	}
	if trafficlight.PhaseGreen.Toggle() != trafficlight.PhaseRed {
		t.Error("green must toggle to red")
	}
	for _, s := range []string{"red", "green"} {
		p, err := trafficlight.ParsePhase(s)
		if err != nil || p.String() != s {
			t.Errorf("ParsePhase(%q) = %s, %v", s, p, err)
		}
	}
	for _, s := range []string{"", "yellow", "Green"} {
		if _, err := trafficlight.ParsePhase(s); err == nil {
			t.Errorf("ParsePhase(%q): expected error", s)
		}
	}
}
