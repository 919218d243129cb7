package domain

import "errors"

var (
	// ErrValidation marks bad caller input. Operations reject it before any
	// mutation and the wrapped message is surfaced verbatim to the operator.
	ErrValidation = errors.New("invalid input")

	ErrNotFound = errors.New("not found")
)
