package supervisor

import (
	"fmt"
	"strings"
)

// KillPolicy decides what a change does to an in-flight build.
type KillPolicy int

const (
	// KillPolicyKill terminates the running build and restarts it.
	KillPolicyKill KillPolicy = iota
	// KillPolicyWait lets the running build finish and ignores the change.
	KillPolicyWait
)

// String returns the string representation of the KillPolicy
func (p KillPolicy) String() string {
	switch p {
	case KillPolicyKill:
		return "kill"
	case KillPolicyWait:
		return "wait"
	default:
		return "unknown"
	}
}

// ParseKillPolicy converts a configuration value into a KillPolicy.
func ParseKillPolicy(s string) (KillPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "kill":
		return KillPolicyKill, nil
	case "wait":
		return KillPolicyWait, nil
	default:
		return KillPolicyKill, fmt.Errorf("unknown kill policy %q (supported: kill, wait)", s)
	}
}

// State is the build state of a supervisor.
type State int

const (
	// StateIdle means no compiler process is running.
	StateIdle State = iota
	// StateBuilding means a compiler process is running and no kill was requested.
	StateBuilding
	// StateTerminating means a kill was requested and the exit is pending.
	StateTerminating
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Action is what the supervisor does in response to an event.
type Action int

const (
	// ActionStart spawns a compiler process.
	ActionStart Action = iota
	// ActionTerminate requests termination of the running process.
	ActionTerminate
	// ActionWait keeps the running build and drops the change.
	ActionWait
	// ActionIgnore drops the event without side effects.
	ActionIgnore
	// ActionRespawn spawns a new process after a process we killed exited.
	ActionRespawn
	// ActionClear returns to idle after a process exited.
	ActionClear
)

// String returns the string representation of the Action
func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionTerminate:
		return "terminate"
	case ActionWait:
		return "wait"
	case ActionIgnore:
		return "ignore"
	case ActionRespawn:
		return "respawn"
	case ActionClear:
		return "clear"
	default:
		return "unknown"
	}
}

// DecideChange picks the action for a change event.
func DecideChange(state State, policy KillPolicy, stopped bool) Action {
	if stopped {
		return ActionIgnore
	}

	switch state {
	case StateIdle:
		return ActionStart
	case StateBuilding:
		if policy == KillPolicyWait {
			return ActionWait
		}
		return ActionTerminate
	default:
		return ActionIgnore
	}
}

// DecideExit picks the action for the exit of the running process.
func DecideExit(state State, killedByUs, stopped bool) Action {
	if stopped || state == StateIdle {
		return ActionClear
	}
	if killedByUs {
		return ActionRespawn
	}
	return ActionClear
}

// Next returns the state an action leads to from state, assuming the
// action succeeds.
func Next(state State, action Action) State {
	switch action {
	case ActionStart, ActionRespawn:
		return StateBuilding
	case ActionTerminate:
		return StateTerminating
	case ActionClear:
		return StateIdle
	default:
		return state
	}
}
