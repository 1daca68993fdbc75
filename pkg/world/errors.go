package world

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalid is returned when an entity fails its intrinsic validation.
	ErrInvalid = errors.New("invalid entity")

	// ErrNotDeletable is returned when deleting a kind that does not support removal.
	ErrNotDeletable = errors.New("entity kind cannot be deleted")
)

// DuplicateEntityError is returned when a uniqueness constraint would be violated.
type DuplicateEntityError struct {
	Kind       Kind
	Key        string
	ExistingID string
}

func (e DuplicateEntityError) Error() string {
	return fmt.Sprintf("duplicate %s %q (already %s)", e.Kind, e.Key, e.ExistingID)
}

// NotFoundError is returned when an ID does not resolve to a live entity.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("entity not found: %s", e.ID)
}

// UnknownFieldError is returned when a patch names a field the kind does not have.
type UnknownFieldError struct {
	Kind  Kind
	Field string
}

func (e UnknownFieldError) Error() string {
	return fmt.Sprintf("%s has no field %q", e.Kind, e.Field)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsDuplicate reports whether err wraps a DuplicateEntityError.
func IsDuplicate(err error) bool {
	var dup DuplicateEntityError
	return errors.As(err, &dup)
}
