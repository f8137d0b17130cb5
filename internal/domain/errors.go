package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")

	// Exchange.
	ErrDuplicateClientOrderID = errors.New("duplicate client order id")
	ErrRejectedOrder          = errors.New("order rejected")
	ErrOrderNotFound          = errors.New("order not found")
	ErrUnauthorized           = errors.New("unauthorized")

	// Shared by every gateway: the call may succeed if retried later.
	ErrTransient = errors.New("transient failure")

	// Input that can never be processed, such as an undecodable log.
	ErrMalformed = errors.New("malformed input")

	// Chain.
	ErrNoEntrypoint  = errors.New("no active entrypoints")
	ErrSigningFailed = errors.New("signing failed")
)
