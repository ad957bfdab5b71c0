package remoteconfig

import "errors"

var (
	// ErrFetchUnavailable means the remote source or its dependencies could
	// not be reached. Values fall back to defaults.
	ErrFetchUnavailable = errors.New("remote config unavailable")

	// ErrFetchTimedOut means a caller stopped waiting for readiness. The
	// caller proceeds with current values.
	ErrFetchTimedOut = errors.New("remote config wait timed out")

	// ErrInvalidPayload means the remote source answered with data that
	// could not be parsed
	ErrInvalidPayload = errors.New("remote config payload invalid")
)

// Fetch outcomes reported to the observer
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
	OutcomeInvalid     = "invalid"
	OutcomeError       = "error"
)

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrFetchUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, ErrInvalidPayload):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
