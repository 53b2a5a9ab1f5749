package leaseq

// Result is the terminal classification stored on an archived task.
type Result string

const (
	// ResultSuccess means the handler completed without error.
	ResultSuccess Result = "SUCCESS"
	// ResultFailure means the task failed permanently.
	ResultFailure Result = "FAILURE"
)

// AllResults lists every valid archive result in a stable order.
var AllResults = []Result{ResultSuccess, ResultFailure}

// String returns the raw string value of the result.
func (r Result) String() string { return string(r) }

// ParseResult converts a string into a Result, returning an error for unknown values.
func ParseResult(s string) (Result, error) {
	switch s {
	case string(ResultSuccess):
		return ResultSuccess, nil
	case string(ResultFailure):
		return ResultFailure, nil
	default:
		return "", ErrUnknownResult
	}
}

// Outcome is what a single execution attempt produced.
type Outcome int

const (
	// OutcomeSuccess archives the task with ResultSuccess.
	OutcomeSuccess Outcome = iota
	// OutcomePermanent archives the task with ResultFailure.
	OutcomePermanent
	// OutcomeYield keeps the task active without counting a failure.
	OutcomeYield
	// OutcomeTransient keeps the task active and counts a failure.
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePermanent:
		return "permanent"
	case OutcomeYield:
		return "yield"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome moves the task to the archive.
func (o Outcome) Terminal() bool {
	return o == OutcomeSuccess || o == OutcomePermanent
}
