package trafficlight

var (
	NewExpectCodeFunc = newExpectCodeFunc
	RandomCycle       = randomCycle
	ListenPhase       = (*Responder).phaseListener
)
