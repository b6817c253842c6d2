package gvsingest

import "github.com/hupe1980/gvsingest/bulk"

// Outcome is the classification of one write result.
type Outcome int

const (
	// OutcomeSucceeded is a 2xx response.
	OutcomeSucceeded Outcome = iota
	// OutcomeException is a result carrying an error.
	OutcomeException
	// OutcomeUnsuccessful is a response with a non-2xx status.
	OutcomeUnsuccessful
	// OutcomeNoResponse is a result with neither error nor response.
	OutcomeNoResponse
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeException:
		return "exception"
	case OutcomeUnsuccessful:
		return "unsuccessful"
	case OutcomeNoResponse:
		return "no_response"
	default:
		return "unknown"
	}
}

// Classify maps a result to its outcome. An error takes precedence over
// any response.
func Classify(r bulk.Result) Outcome {
	switch {
	case r.Err != nil:
		return OutcomeException
	case r.Response == nil:
		return OutcomeNoResponse
	case !r.Response.IsSuccess():
		return OutcomeUnsuccessful
	default:
		return OutcomeSucceeded
	}
}
