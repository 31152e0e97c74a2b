package match

import "errors"

// Sentinel errors returned by Engine.Check. Use errors.Is to test for them;
// returned errors wrap these with detail.
var (
	// ErrCouldNotStart means the search never began: a pre-bound node did
	// not resolve, alternative start found an unsatisfiable node, or some
	// part of the pattern had nothing to start from. It is not a proof that
	// the pattern has no match.
	ErrCouldNotStart = errors.New("match: could not start")

	// ErrPrecheckFailed means an edge or exclusion pair between two
	// pre-bound nodes does not hold. Errors carrying it also match
	// ErrCouldNotStart.
	ErrPrecheckFailed = errors.New("match: precheck failed")

	// ErrKilled means the search was cancelled through Kill, the watchdog or
	// the context. The outcome is unknown, not empty.
	ErrKilled = errors.New("match: killed")

	// ErrInvariant reports an algorithm defect. The error carries a stack.
	ErrInvariant = errors.New("match: invariant violated")

	// ErrBackend wraps a failure returned by a strategy's backend.
	ErrBackend = errors.New("match: backend failure")

	// ErrAlreadyRun is returned when Check is called twice on one Engine.
	ErrAlreadyRun = errors.New("match: engine already used")

	// ErrUnknownBinding is returned for explicit bindings of nodes that are
	// not in the pattern.
	ErrUnknownBinding = errors.New("match: binding for node outside pattern")

	// ErrNoAccess is returned by New when Strategies.Access is nil.
	ErrNoAccess = errors.New("match: neighbourhood access is required")
)
