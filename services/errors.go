package services

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStatusConflict    = errors.New("order status was changed by someone else")
	ErrOrderNotFound     = errors.New("order not found")
	ErrItemsCreateFailed = errors.New("failed to create order items")
	ErrOrphanedOrder     = errors.New("order left without items")
	ErrNothingToExport   = errors.New("no completed or cancelled orders found")
)

// ValidationError names the offending field; errors.Is(err, ErrValidation) holds for it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
