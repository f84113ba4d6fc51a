package batchsign

// OutcomeStatus is the result class of a single signtool invocation.
type OutcomeStatus int

const (
	OutcomeSucceeded OutcomeStatus = iota
	OutcomeFailed
	OutcomeTimedOut
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed out"
	}
	return "unknown"
}

// AttemptOutcome is the result of one signtool invocation for one target.
type AttemptOutcome struct {
	Status      OutcomeStatus
	ExitCode    int
	Stdout      string
	Stderr      string
	CommandLine string // rendered for diagnostics, contains the password
}

// Succeeded reports whether the attempt signed the file.
func (o AttemptOutcome) Succeeded() bool {
	return o.Status == OutcomeSucceeded
}

// FileResult is the terminal result for one target.
type FileResult struct {
	Target    string
	Succeeded bool
	Attempts  int
}

// BatchResult aggregates the results of a list run.
// Total counts every entry of the list, Skipped the entries that did not exist.
type BatchResult struct {
	Total     int
	Skipped   int
	Failed    int
	Succeeded int
}

// Considered is the number of targets that were actually dispatched.
func (r BatchResult) Considered() int {
	return r.Total - r.Skipped
}
