package generation

// Outcome classifies how a pipeline step ended.
type Outcome string

// Step outcomes
const (
	// OutcomeSucceeded means the step produced everything it should.
	OutcomeSucceeded Outcome = "succeeded"

	// OutcomeFallback means the step degraded but the pipeline continues.
	OutcomeFallback Outcome = "fallback"

	// OutcomeFatal means the generation must fail and be refunded.
	OutcomeFatal Outcome = "fatal"
)

// Result is the explicit outcome of a step. Err is set for Fallback and Fatal.
type Result struct {
	Outcome Outcome
	Err     error
}

// Succeeded returns a successful Result.
func Succeeded() Result { return Result{Outcome: OutcomeSucceeded} }

// Fallback returns a degraded Result carrying the reason.
func Fallback(err error) Result { return Result{Outcome: OutcomeFallback, Err: err} }

// Fatal returns a Result that aborts the pipeline.
func Fatal(err error) Result { return Result{Outcome: OutcomeFatal, Err: err} }

// IsFatal reports whether the pipeline must stop.
func (r Result) IsFatal() bool { return r.Outcome == OutcomeFatal }

// ImageResult is the outcome of one slide image request. Image is nil
// unless Outcome is OutcomeSucceeded.
type ImageResult struct {
	Result
	Index    int
	Image    []byte
	Attempts int
}
