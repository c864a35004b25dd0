package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder = errors.New("invalid order")
	// ErrDuplicateOrder is an ErrInvalidOrder: ids are never reused within an engine's lifetime.
	ErrDuplicateOrder     = fmt.Errorf("%w: duplicate order id", ErrInvalidOrder)
	ErrSinkUnavailable    = errors.New("event sink unavailable")
	ErrInvariantViolation = errors.New("order book invariant violated")
)
