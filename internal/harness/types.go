package harness

// Trace event types.
const (
	EventStage    = "stage"
	EventFixture  = "event"
	EventWarning  = "warning"
	EventTeardown = "teardown"
)

// TraceEvent is one entry of a scenario trace.
type TraceEvent struct {
	Type    string `json:"type"`
	Stage   string `json:"stage,omitempty"`
	Status  string `json:"status,omitempty"`
	Name    string `json:"name,omitempty"`
	Target  string `json:"target,omitempty"`
	Origin  string `json:"origin,omitempty"`
	Message string `json:"message,omitempty"`
	Seq     int64  `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the outcome matched expectations and every
	// assertion held.
	Pass bool `json:"pass"`

	// Outcome is completed, skipped or failed.
	Outcome string `json:"outcome"`

	// ErrorCode is the stage error code, empty on success.
	ErrorCode string `json:"error_code,omitempty"`

	// Error is the bootstrap error message, empty on success.
	Error string `json:"error,omitempty"`

	// Fingerprint is the frozen configuration hash. It depends on the
	// process environment through ${VAR} expansion and is therefore left
	// out of golden snapshots.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Trace lists stage outcomes, fixture events, warnings and teardown
	// failures in that order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}
