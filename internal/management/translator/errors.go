package translator

import (
	"errors"
	"fmt"
)

// Registry errors.
//
// A missing pair is reported as *NotFoundError, which matches ErrNotFound:
//
//	if errors.Is(err, translator.ErrNotFound) {
//	    // deployment is missing a translator
//	}
var (
	// ErrNotFound is returned when no translator is registered for a pair.
	ErrNotFound = errors.New("translator: not found")

	// ErrDuplicate is returned when a pair is registered twice.
	ErrDuplicate = errors.New("translator: duplicate registration")

	// ErrSealed is returned when registering after Seal.
	ErrSealed = errors.New("translator: registry sealed")

	// ErrTypeMismatch is returned when the Go types of a registered pair
	// differ from the types requested at lookup, or when a value of the
	// wrong type is passed to an untyped translator.
	ErrTypeMismatch = errors.New("translator: type mismatch")

	// ErrInvalidType is returned when a Type discriminator is empty.
	ErrInvalidType = errors.New("translator: invalid type")
)

// NotFoundError names the pair that has no registered translator.
type NotFoundError struct {
	Source Type
	Target Type
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("translator: no translator from %s to %s", e.Source, e.Target)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
