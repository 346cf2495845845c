package app

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken indicates signup with an already registered email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials indicates a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates a login into a disabled account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrValidation indicates a rejected request payload.
	ErrValidation = errors.New("validation failed")
	// ErrNotSingleComponent indicates a bundle referencing a non-single product.
	ErrNotSingleComponent = errors.New("bundle components must be single products")
)
