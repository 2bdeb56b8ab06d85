package domain

import "errors"

// Sentinel errors surfaced by the domain layer. Collaborators match these
// with errors.Is rather than comparing strings.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID indicates a malformed identifier was supplied.
	ErrInvalidID = errors.New("invalid id")

	// ErrNameRequired indicates a target/query name field was empty after trimming.
	ErrNameRequired = errors.New("name is required")

	// ErrNameTooLong indicates a target/query name field exceeded the allowed length.
	ErrNameTooLong = errors.New("name exceeds maximum length")

	// ErrInvalidTargetKind indicates a probe target's kind did not match http or sql.
	ErrInvalidTargetKind = errors.New("invalid target kind")

	// ErrInvalidStatus indicates an unrecognized probe result status.
	ErrInvalidStatus = errors.New("invalid result status")

	// ErrJobNotClaimable indicates a job was not in a state that allows claiming.
	ErrJobNotClaimable = errors.New("job is not claimable")

	// ErrRetriesExhausted indicates a job has used all of its configured attempts.
	ErrRetriesExhausted = errors.New("retries exhausted")
)
