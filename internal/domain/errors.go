package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnavailable   = errors.New("unit is already held")
	ErrOverlap       = errors.New("reservation window overlaps an existing reservation")
	ErrInvalidWindow = errors.New("invalid window")
	ErrAlreadyClosed = errors.New("entry is already closed")
	ErrNotActive     = errors.New("entry is not active")
	ErrNotEligible   = errors.New("not eligible")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrDuplicate     = errors.New("already exists")
)
