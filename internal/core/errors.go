package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a message or account does not exist
	ErrNotFound = errors.New("not found")
	// ErrMessagePurged is returned for a message removed by retention. It
	// matches ErrNotFound.
	ErrMessagePurged = fmt.Errorf("message purged: %w", ErrNotFound)
	// ErrDuplicateMessage is returned when a canonical id is already stored
	ErrDuplicateMessage = errors.New("duplicate message")
	// ErrModelUnavailable is returned when the model probe has not succeeded
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrModelSaturated is returned when the in-flight model budget is exhausted
	ErrModelSaturated = errors.New("model request budget exhausted")
	// ErrInvalidModelResponse is returned when a response has no usable token
	ErrInvalidModelResponse = errors.New("invalid model response")
)
