package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrCrossTenant is returned when an organization references a template
	// or flow that is neither global nor owned by it.
	ErrCrossTenant = fmt.Errorf("%w: resource belongs to another organization", ErrValidation)

	// ErrNotProcessable is returned when a record is not eligible for dispatch.
	ErrNotProcessable = fmt.Errorf("%w: record is not processable", ErrConflict)
)
