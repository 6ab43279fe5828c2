package internal

import "errors"

var (
	ErrUnauthorized     = errors.New("authorization expired or revoked")
	ErrNotAuthenticated = errors.New("not connected to the calendar provider")
	ErrInitialization   = errors.New("calendar provider failed to initialize")
	ErrNotFound         = errors.New("appointment not found")
	ErrNoCalendar       = errors.New("no calendar matches the professional")
	ErrNotImplemented   = errors.New("not implemented for local appointments")
	ErrInvalidEvent     = errors.New("appointment must end after it starts")
)
