package models

import "errors"

var (
	// ErrInvalidArgument is a caller error and is never retried
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned for unknown products, orders and receipts
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is a terminal business outcome of a purchase
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUnavailable marks a transient queue, store or cache failure
	ErrUnavailable = errors.New("unavailable")
	// ErrDuplicateApplication marks a redelivered intent that was already applied
	ErrDuplicateApplication = errors.New("duplicate application")
)

// IsRetryable reports whether the failure is transient and worth retrying
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
