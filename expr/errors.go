package expr

import (
	"errors"
	"fmt"
	"strings"
)

// AggregationDependencyError reports a violated functional-dependency
// requirement: the grouped operand lacks, or mismatches lineage on, a
// primary-key attribute of the grouping operand.
type AggregationDependencyError struct {
	// Attributes lists the missing or lineage-mismatched attribute
	// names.
	Attributes []string
}

// Error implements the error interface.
func (e *AggregationDependencyError) Error() string {
	return fmt.Sprintf(
		"grouped operand must carry every grouping key attribute with matching lineage; violated for: %s",
		strings.Join(e.Attributes, ", "))
}

// IsAggregationDependency reports whether err is an
// AggregationDependencyError. Uses errors.As to handle wrapped errors.
func IsAggregationDependency(err error) bool {
	var ae *AggregationDependencyError
	return errors.As(err, &ae)
}

// UnionIncompatibleError reports union operands that do not share one
// primary key, or that declare conflicting non-key attributes.
type UnionIncompatibleError struct {
	Reason string
}

// Error implements the error interface.
func (e *UnionIncompatibleError) Error() string {
	return "union operands are incompatible: " + e.Reason
}

// IsUnionIncompatible reports whether err is a UnionIncompatibleError.
func IsUnionIncompatible(err error) bool {
	var ue *UnionIncompatibleError
	return errors.As(err, &ue)
}

// UnsupportedOperationError reports the use of a removed or illegal
// construct. Guidance names the supported replacement.
type UnsupportedOperationError struct {
	Operation string
	Guidance  string
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %s: %s", e.Operation, e.Guidance)
}

// IsUnsupported reports whether err is an UnsupportedOperationError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedOperationError
	return errors.As(err, &ue)
}
