package cli

import (
	"errors"

	"github.com/entset/entset/compat"
	"github.com/entset/entset/expr"
	"github.com/entset/entset/heading"
	"github.com/entset/entset/render"
	"github.com/entset/entset/schema"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeNotFound   = "E002" // Path not found
	ErrCodeLoadFailed = "E003" // CUE load or build failed
	ErrCodeStoreError = "E004" // Lineage store error

	// Declaration validation errors
	ErrCodeBadAttribute  = "E101" // Invalid attribute declaration
	ErrCodeBadPrimaryKey = "E102" // Missing or invalid primary key
	ErrCodeBadForeignKey = "E103" // Invalid foreign key
	ErrCodeBadType       = "E104" // Invalid attribute type or default
	ErrCodeBadSchema     = "E105" // Missing schema name or tables

	// Expression construction errors
	ErrCodeUnknownAttribute = "E111" // Reference to an undeclared attribute
	ErrCodeIncompatible     = "E112" // Namesakes with mismatched lineage
	ErrCodeAggDependency    = "E113" // Aggregation grouping not keyed by grouped set
	ErrCodeUnionInvalid     = "E114" // Union operands disagree
	ErrCodeUnsupported      = "E115" // Operation undefined for the operand
	ErrCodeRenderInternal   = "E116" // Renderer invariant violation
)

// MapFieldToErrorCode maps a declaration error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "attributes", "name", "nullable":
		return ErrCodeBadAttribute
	case "primaryKey":
		return ErrCodeBadPrimaryKey
	case "foreignKeys":
		return ErrCodeBadForeignKey
	case "type", "default":
		return ErrCodeBadType
	case "schema", "table":
		return ErrCodeBadSchema
	case "dir":
		return ErrCodeNotFound
	case "cue":
		return ErrCodeLoadFailed
	default:
		return ErrCodeGeneric
	}
}

// classifyError maps a domain error to its stable CLI code.
func classifyError(err error) string {
	var compileErr *schema.CompileError
	if errors.As(err, &compileErr) {
		return MapFieldToErrorCode(compileErr.Field)
	}
	switch {
	case heading.IsUnknownAttribute(err):
		return ErrCodeUnknownAttribute
	case compat.IsIncompatible(err):
		return ErrCodeIncompatible
	case expr.IsAggregationDependency(err):
		return ErrCodeAggDependency
	case expr.IsUnionIncompatible(err):
		return ErrCodeUnionInvalid
	case expr.IsUnsupported(err):
		return ErrCodeUnsupported
	case render.IsInternal(err):
		return ErrCodeRenderInternal
	default:
		return ErrCodeGeneric
	}
}
