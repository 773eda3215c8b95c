package heading

import (
	"errors"
	"fmt"
)

// UnknownAttributeError reports a reference to an attribute name that is
// absent from the current heading. Raised synchronously at construction
// time by projection and related operators; never deferred to rendering.
type UnknownAttributeError struct {
	// Name is the attribute that was referenced.
	Name string

	// Context describes the operation that made the reference
	// (e.g. "projection", "rename", "aggregation").
	Context string
}

// Error implements the error interface.
func (e *UnknownAttributeError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("unknown attribute %q in %s", e.Name, e.Context)
	}
	return fmt.Sprintf("unknown attribute %q", e.Name)
}

// IsUnknownAttribute reports whether err is an UnknownAttributeError.
// Uses errors.As to handle wrapped errors.
func IsUnknownAttribute(err error) bool {
	var ua *UnknownAttributeError
	return errors.As(err, &ua)
}

// HeadingError reports an invalid heading construction: duplicate names,
// a nullable primary-key attribute, or an empty primary key.
type HeadingError struct {
	Message string
}

func (e *HeadingError) Error() string {
	return "invalid heading: " + e.Message
}
