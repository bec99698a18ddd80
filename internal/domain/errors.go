package domain

import "errors"

// Sentinel errors shared across services. The HTTP layer maps each to a
// stable error code; the postgres layer maps constraint violations onto them.
var (
	// ErrJobNotFound indicates the requested job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrBotNotFound indicates the bot is unknown or soft-deleted.
	ErrBotNotFound = errors.New("bot not found")

	// ErrBotBusy indicates a claim by a bot that already holds a job.
	ErrBotBusy = errors.New("bot already holds a job")

	// ErrNotClaimOwner indicates a transition attempted by a bot that is
	// not the job's claimant.
	ErrNotClaimOwner = errors.New("caller is not the claim owner")

	// ErrAlreadyTerminal indicates a conflicting transition on a job that
	// has already reached a terminal state.
	ErrAlreadyTerminal = errors.New("job already in a terminal state")

	// ErrJobNotReleasable indicates a release of a job that is not in a
	// releasable (claimed or processing) state.
	ErrJobNotReleasable = errors.New("job is not releasable")

	// ErrInvalidTransition indicates a lifecycle event fired against a job
	// in the wrong state, such as completing a job that was never started.
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrInvalidArgument indicates malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownOperation indicates an operation name outside the registry.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrUnauthorized indicates a missing or invalid admin token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBotCurrentJobTaken indicates the unique binding of a job to a bot
	// was violated (two bots racing for one job binding).
	ErrBotCurrentJobTaken = errors.New("job already bound to another bot")

	// ErrStateViolation indicates a row that breaks the pending/claimant
	// consistency rule. It signals a bug, not a caller error.
	ErrStateViolation = errors.New("job state consistency violation")

	// ErrUnavailable indicates the store could not be reached in time.
	// Callers should retry with backoff.
	ErrUnavailable = errors.New("store unavailable")
)
