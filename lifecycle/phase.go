package lifecycle

import "graphdock/internal/check"

// Phase tracks where an environment's instance is in its lifecycle. A
// reconnect to an already running instance re-verifies it, so running may
// re-enter health_checking.
type Phase uint8

const (
	Absent Phase = iota + 1
	Starting
	HealthChecking
	Running
	Stopping
	Stopped
	Failed
)

func (p Phase) String() string {
	switch p {
	case Absent:
		return "absent"
	case Starting:
		return "starting"
	case HealthChecking:
		return "health_checking"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transition validates the move and returns the new phase. Invalid moves
// trip the debug assertion and leave the phase unchanged.
func (p Phase) Transition(to Phase) Phase {
	ok := false
	switch p {
	case Absent:
		ok = to == Starting
	case Starting:
		ok = to == HealthChecking || to == Failed
	case HealthChecking:
		ok = to == Running || to == Failed
	case Running:
		ok = to == HealthChecking || to == Stopping
	case Stopping:
		ok = to == Stopped || to == Failed
	case Stopped:
		ok = to == Starting
	case Failed:
		ok = to == Starting
	}
	check.Assertf(ok, "instance phase transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}
