package session

import (
	"github.com/glimps-re/pescan/pkg/datamodel"
)

// Phase is the lifecycle tag of the current scan attempt.
type Phase int

const (
	Idle Phase = iota
	InFlight
	Failed
	Succeeded
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "IDLE"
	case InFlight:
		return "IN_FLIGHT"
	case Failed:
		return "FAILED"
	case Succeeded:
		return "SUCCEEDED"
	default:
		return "UNKNOWN"
	}
}

// State holds exactly one phase. Error is only set when Failed,
// Result only when Succeeded.
type State struct {
	Phase  Phase
	Error  string
	Result *datamodel.ScanResult
}

func idleState() State {
	return State{Phase: Idle}
}

func inFlightState() State {
	return State{Phase: InFlight}
}

func failedState(message string) State {
	return State{Phase: Failed, Error: message}
}

func succeededState(result datamodel.ScanResult) State {
	return State{Phase: Succeeded, Result: &result}
}
