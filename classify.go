package canharness

// Outcome is the classified result of a single transmit or receive call.
type Outcome int

const (
	Success Outcome = iota
	InvalidState
	Timeout
	UnhandledError
)

// Outcomes lists every Outcome in declaration order.
var Outcomes = []Outcome{Success, InvalidState, Timeout, UnhandledError}

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case InvalidState:
		return "INVALID_STATE"
	case Timeout:
		return "TIMEOUT"
	default:
		return "UNHANDLED_ERROR"
	}
}

// Classify maps a driver status to an Outcome. It is total: any status that
// is not OK, INVALID_STATE or TIMEOUT, including codes added by future
// drivers, is UnhandledError.
func Classify(s Status) Outcome {
	switch s {
	case StatusOK:
		return Success
	case StatusInvalidState:
		return InvalidState
	case StatusTimeout:
		return Timeout
	default:
		return UnhandledError
	}
}

// ClassifyErr is Classify(StatusOf(err)).
func ClassifyErr(err error) (Outcome, Status) {
	st := StatusOf(err)
	return Classify(st), st
}
