package app

import "errors"

var (
	// ErrInvalidCredentials is returned for any login failure so callers
	// cannot distinguish unknown emails from wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailExists is returned when registering or updating to an email
	// already held by another user.
	ErrEmailExists = errors.New("email already registered")

	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor is authenticated but not
	// allowed to perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation wraps all request validation failures.
	ErrValidation = errors.New("validation failed")
)
