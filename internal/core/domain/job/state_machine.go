package job

// State es un enumerado para controlar el ciclo de vida del job.
type State int

const (
	Pending State = iota
	Deployed
	Submitted
	Running
	Completed
	Failed
	TimedOut
)

func AllStates() []string {
	return []string{
		"Pending",
		"Deployed",
		"Submitted",
		"Running",
		"Completed",
		"Failed",
		"TimedOut",
	}
}

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Deployed:
		return "Deployed"
	case Submitted:
		return "Submitted"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case TimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// Terminal indica si el estado es final: un job en estado terminal ya no
// transiciona.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == TimedOut
}

var stateTransitionMap = map[State][]State{
	Pending:   {Pending, Deployed, Failed},
	Deployed:  {Deployed, Submitted, Failed},
	Submitted: {Submitted, Running, Completed, Failed, TimedOut},
	Running:   {Running, Completed, Failed, TimedOut},
	Completed: {},
	Failed:    {},
	TimedOut:  {},
}

func Contains(states []State, state State) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

// ValidStateTransition valida si es posible pasar de src a dst según stateTransitionMap.
func ValidStateTransition(src State, dst State) bool {
	return Contains(stateTransitionMap[src], dst)
}
